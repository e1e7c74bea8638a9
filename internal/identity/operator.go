package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin is the only role the console issues today.
const RoleAdmin = "admin"

// ErrBadSecret is returned by Exchange when the admin secret does not match.
var ErrBadSecret = errors.New("invalid admin secret")

// OperatorClaims are the JWT claims of a console operator session.
type OperatorClaims struct {
	jwt.RegisteredClaims
	OperatorID string `json:"operator_id"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role"`
}

// OperatorTokenIssuer issues and verifies operator session tokens signed
// with a shared HMAC key.
type OperatorTokenIssuer struct {
	key         []byte
	adminSecret []byte
	issuer      string
	ttl         time.Duration
	now         func() time.Time
}

// NewOperatorTokenIssuer creates an OperatorTokenIssuer. ttl defaults to 8 hours.
func NewOperatorTokenIssuer(key []byte, issuer string, ttl time.Duration) *OperatorTokenIssuer {
	if ttl == 0 {
		ttl = 8 * time.Hour
	}
	return &OperatorTokenIssuer{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetAdminSecret configures the static secret accepted by Exchange. An empty
// secret disables token exchange.
func (o *OperatorTokenIssuer) SetAdminSecret(secret string) {
	o.adminSecret = []byte(secret)
}

// Issue creates a signed token for an operator.
func (o *OperatorTokenIssuer) Issue(operatorID, name string) (string, error) {
	if operatorID == "" {
		return "", fmt.Errorf("issue operator token: empty operator id")
	}
	now := o.now().UTC()
	claims := OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    o.issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(o.ttl)),
			ID:        uuid.New().String(),
		},
		OperatorID: operatorID,
		Name:       name,
		Role:       RoleAdmin,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(o.key)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return signed, nil
}

// Exchange trades the admin secret for an operator token.
func (o *OperatorTokenIssuer) Exchange(secret, operatorID, name string) (string, error) {
	if len(o.adminSecret) == 0 || !secretEqual([]byte(secret), o.adminSecret) {
		return "", ErrBadSecret
	}
	return o.Issue(operatorID, name)
}

// Verify parses and validates an operator token, returning its claims.
func (o *OperatorTokenIssuer) Verify(tokenStr string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&OperatorClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return o.key, nil
		},
		jwt.WithIssuer(o.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
	)
	if err != nil {
		return nil, fmt.Errorf("verify operator token: %w", err)
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid operator token claims")
	}
	if claims.OperatorID == "" || claims.Role != RoleAdmin {
		return nil, fmt.Errorf("not an operator token")
	}
	return claims, nil
}

// secretEqual compares in constant time regardless of length.
func secretEqual(a, b []byte) bool {
	ha, hb := sha256.Sum256(a), sha256.Sum256(b)
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
