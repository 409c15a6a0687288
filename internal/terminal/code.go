package terminal

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Activation code format: <2-letter-tenant-prefix>-<4-digit-year>-<6-char-base36>.
const (
	codeRandomLength = 6
	codeAlphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// maxCodeAttempts bounds the uniqueness retry loop. Six base36 characters
	// give ~2.2 billion combinations per tenant-year, so collisions are rare.
	maxCodeAttempts = 5
)

// newActivationCode produces a single candidate code. Uniqueness is the
// caller's problem.
func newActivationCode(prefix string, now time.Time) (string, error) {
	buf := make([]byte, codeRandomLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return fmt.Sprintf("%s-%d-%s", normalizeCodePrefix(prefix), now.Year(), string(buf)), nil
}

// normalizeCodePrefix reduces a tenant prefix to two uppercase letters.
func normalizeCodePrefix(prefix string) string {
	p := strings.ToUpper(strings.TrimSpace(prefix))
	if len(p) >= 2 {
		return p[:2]
	}
	if p == "" {
		return "XX"
	}
	return p + strings.Repeat("X", 2-len(p))
}

// generateCode produces an activation code that is unique in the store,
// retrying up to maxCodeAttempts before giving up.
func (s *Service) generateCode(ctx context.Context, prefix string) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := newActivationCode(prefix, time.Now())
		if err != nil {
			return "", err
		}

		taken, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking code uniqueness: %w", err)
		}
		if !taken {
			return code, nil
		}

		s.logger.Warn().
			Str("prefix", prefix).
			Int("attempt", attempt+1).
			Msg("activation code collision, retrying")
	}
	return "", ErrCodeGenerationExhausted
}
