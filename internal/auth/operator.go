package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator roles. Operators administer one tenant's fleet; platform operators
// administer every tenant and may hard-delete terminals.
const (
	RoleOperator = "operator"
	RolePlatform = "platform"
)

// Predefined operator credential errors.
var (
	ErrInvalidOperatorToken = errors.New("invalid operator token")
	ErrOperatorTokenExpired = errors.New("operator token has expired")
)

// OperatorClaims are the claims in an operator token. Operator tokens are
// minted by the platform identity service; this service only verifies them.
type OperatorClaims struct {
	jwt.RegisteredClaims

	// UserID is the authenticated operator's ID.
	UserID string `json:"uid"`

	// TenantID scopes the operator to one tenant. Empty for platform
	// operators.
	TenantID string `json:"tid"`

	// Role is RoleOperator or RolePlatform.
	Role string `json:"role"`
}

// Platform reports whether the claims grant platform-wide access.
func (c *OperatorClaims) Platform() bool {
	return c.Role == RolePlatform
}

// OperatorVerifier validates operator tokens against the shared identity
// service signing key.
type OperatorVerifier struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewOperatorVerifier creates a verifier for operator tokens.
func NewOperatorVerifier(signingKey, issuer, audience string) *OperatorVerifier {
	return &OperatorVerifier{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// Verify validates an operator token and returns its claims.
func (v *OperatorVerifier) Verify(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrOperatorTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidOperatorToken, err.Error())
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidOperatorToken
	}

	switch claims.Role {
	case RoleOperator, RolePlatform:
	default:
		return nil, ErrInvalidOperatorToken
	}
	if claims.Role == RoleOperator && claims.TenantID == "" {
		return nil, ErrInvalidOperatorToken
	}

	return claims, nil
}

// MintOperatorToken signs an operator token. Only used by tests and local
// tooling; production tokens come from the identity service.
func (v *OperatorVerifier) MintOperatorToken(userID, tenantID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{v.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.signingKey)
}
