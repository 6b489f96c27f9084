package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tenant-gate/internal/domain"
)

// Issuer mints HS256 credentials signed with the gate's shared secret.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewIssuer creates an Issuer. issuer becomes the `iss` claim.
func NewIssuer(secret []byte, issuer string) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("credential issuer requires a shared secret")
	}
	return &Issuer{secret: secret, issuer: issuer, now: time.Now}, nil
}

// Issue signs claims. A missing credential id is generated and a missing
// expiry is rejected.
func (i *Issuer) Issue(_ context.Context, claims domain.Claims) (string, error) {
	if claims.ExpiresAt.IsZero() {
		return "", fmt.Errorf("issue credential: expiry is required")
	}
	if claims.CredentialID == "" {
		claims.CredentialID = uuid.NewString()
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, fromDomain(claims, i.issuer, i.now()))
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}
