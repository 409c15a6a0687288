// Package auth mints and verifies the credentials used by the fleet API:
// long-lived device tokens held by POS terminals, and operator tokens issued
// by the platform identity service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/sortepremiada/fleet/internal/terminal"
)

// Device Token Policy
//
// A terminal receives exactly one token, at activation, and holds it for its
// installed lifetime. There is no refresh flow: terminals are unattended
// devices and cannot re-enter an activation code on expiry, so the token is
// minted with a far-future expiry and revocation is handled server-side
// instead. Every verification compares the presented token against the one
// stored on the terminal row; archiving a terminal (reinstall) or deleting it
// clears the stored token, which invalidates the old credential immediately
// without any blacklist.

const (
	// DeviceTokenExpiry is the validity window of a device token. Effectively
	// the lifetime of the installation; revocation is by stored-token
	// comparison, not expiry.
	DeviceTokenExpiry = 10 * 365 * 24 * time.Hour

	// tokenKindDevice marks device credentials so operator tokens can never
	// be replayed on device endpoints.
	tokenKindDevice = "device"
)

// Predefined device credential errors. All of them surface as 401 at the API
// layer.
var (
	ErrInvalidDeviceToken = errors.New("invalid device token")
	ErrDeviceTokenExpired = errors.New("device token has expired")
	ErrDeviceRevoked      = errors.New("device token has been revoked")
	ErrDeviceDisabled     = errors.New("device is administratively disabled")
)

// DeviceClaims are the claims embedded in a device token.
type DeviceClaims struct {
	jwt.RegisteredClaims

	// TerminalID is the logical terminal the token is bound to.
	TerminalID string `json:"did"`

	// TenantID is the owning tenant.
	TenantID string `json:"tid"`

	// Kind distinguishes device tokens from operator tokens.
	Kind string `json:"kind"`
}

// DeviceStore is the subset of the terminal store the verifier needs.
// Satisfied by terminal.Store.
type DeviceStore interface {
	GetByID(ctx context.Context, id string) (*terminal.Terminal, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

// TokenService mints and verifies device tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	devices    DeviceStore
	logger     zerolog.Logger
}

// TokenConfig holds configuration for the token service.
type TokenConfig struct {
	// SigningKey is the secret key used to sign tokens.
	SigningKey string

	// Issuer is the issuer claim (e.g., "https://api.sortepremiada.com.br").
	Issuer string

	// Audience is the audience claim (e.g., "fleet-api").
	Audience string

	// Devices resolves terminals during verification.
	Devices DeviceStore

	Logger zerolog.Logger
}

// NewTokenService creates a new token service.
func NewTokenService(cfg TokenConfig) *TokenService {
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		devices:    cfg.Devices,
		logger:     cfg.Logger,
	}
}

// MintDeviceToken creates a device token bound to a terminal and tenant.
func (s *TokenService) MintDeviceToken(terminalID, tenantID string) (string, error) {
	now := time.Now()

	claims := DeviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   terminalID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(DeviceTokenExpiry)),
			NotBefore: jwt.NewNumericDate(now),
		},
		TerminalID: terminalID,
		TenantID:   tenantID,
		Kind:       tokenKindDevice,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return signed, nil
}

// VerifyDeviceToken validates a presented credential and returns the terminal
// it authenticates. Beyond the signature, the token must equal the one stored
// on the terminal row: a reinstall or archive replaces the stored token and
// strands the old credential. Successful verification refreshes the
// terminal's last-seen timestamp.
func (s *TokenService) VerifyDeviceToken(ctx context.Context, tokenString string) (*terminal.Terminal, error) {
	claims, err := s.parseDeviceClaims(tokenString)
	if err != nil {
		return nil, err
	}

	t, err := s.devices.GetByID(ctx, claims.TerminalID)
	if err != nil {
		if errors.Is(err, terminal.ErrTerminalNotFound) {
			return nil, ErrDeviceRevoked
		}
		return nil, fmt.Errorf("loading terminal %s: %w", claims.TerminalID, err)
	}

	if t.Archived() || t.Token == nil || *t.Token != tokenString {
		return nil, ErrDeviceRevoked
	}
	if !t.IsActive {
		return nil, ErrDeviceDisabled
	}

	if err := s.devices.TouchLastSeen(ctx, t.ID, time.Now()); err != nil {
		// Liveness tracking must not fail authentication.
		s.logger.Warn().Err(err).Str("terminal_id", t.ID).Msg("failed to touch last seen")
	}

	return t, nil
}

func (s *TokenService) parseDeviceClaims(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrDeviceTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidDeviceToken, err.Error())
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidDeviceToken
	}
	if claims.Kind != tokenKindDevice || claims.TerminalID == "" {
		return nil, ErrInvalidDeviceToken
	}

	return claims, nil
}
