package credential

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tenant-gate/internal/domain"
	"tenant-gate/internal/metrics"
)

var (
	asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
	symmetricMethods  = []string{jwt.SigningMethodHS256.Alg()}
)

// VerifierConfig configures a Verifier. Keys nil disables the asymmetric
// path; an empty Secret disables the symmetric one.
type VerifierConfig struct {
	Keys     KeySource
	Issuers  []string // accepted issuers on the asymmetric path; empty accepts any
	Audience string

	Secret          []byte
	SymmetricIssuer string
	// SymmetricFallback accepts third-party HS256 credentials while a key
	// source is configured. When false only impersonating credentials minted
	// by the gate itself may use the shared secret.
	SymmetricFallback bool

	Leeway  time.Duration
	Metrics *metrics.Gate
}

// Verifier validates bearer credentials and returns their claims.
type Verifier struct {
	cfg     VerifierConfig
	issuers map[string]bool
	now     func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the time source used for temporal claims.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg VerifierConfig, opts ...Option) *Verifier {
	v := &Verifier{cfg: cfg, now: time.Now, issuers: make(map[string]bool, len(cfg.Issuers))}
	for _, iss := range cfg.Issuers {
		if iss != "" {
			v.issuers[iss] = true
		}
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Configured reports whether any verification path exists.
func (v *Verifier) Configured() bool {
	return v.cfg.Keys != nil || len(v.cfg.Secret) > 0
}

// Verify checks raw and returns its claims. Every failure is a
// *domain.CredentialError.
func (v *Verifier) Verify(ctx context.Context, raw string) (*domain.Claims, error) {
	claims, err := v.verify(ctx, raw)
	if err != nil {
		var cerr *domain.CredentialError
		if errors.As(err, &cerr) {
			v.cfg.Metrics.Verification(string(cerr.Code))
		}
		return nil, err
	}
	v.cfg.Metrics.Verification(metrics.ResultOK)
	return claims, nil
}

func (v *Verifier) verify(ctx context.Context, raw string) (*domain.Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrCredential(domain.CredentialMalformed, nil, "empty credential")
	}

	// Expiry is judged on the unverified payload first so an expired
	// credential is reported as EXPIRED regardless of its signature.
	unverified := &tokenClaims{}
	tok, _, err := jwt.NewParser().ParseUnverified(raw, unverified)
	if err != nil {
		return nil, domain.ErrCredential(domain.CredentialMalformed, err, "credential is not a well-formed JWT")
	}
	if unverified.ExpiresAt == nil {
		return nil, domain.ErrCredential(domain.CredentialMalformed, nil, "credential has no exp claim")
	}
	if !v.now().Before(unverified.ExpiresAt.Add(v.cfg.Leeway)) {
		return nil, domain.ErrCredential(domain.CredentialExpired, nil, "credential expired at %s", unverified.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if !v.Configured() {
		return nil, domain.ErrCredential(domain.CredentialNoVerificationPath, nil, "no signing key source or shared secret configured")
	}

	var verified *tokenClaims
	if strings.HasPrefix(tok.Method.Alg(), "HS") {
		verified, err = v.verifySymmetric(raw, unverified)
	} else {
		verified, err = v.verifyAsymmetric(ctx, raw, tok)
	}
	if err != nil {
		return nil, err
	}

	claims := verified.toDomain()
	if err := claims.Validate(); err != nil {
		return nil, domain.ErrCredential(domain.CredentialMalformed, err, "%s", err.Error())
	}
	return claims, nil
}

func (v *Verifier) verifySymmetric(raw string, unverified *tokenClaims) (*tokenClaims, error) {
	if len(v.cfg.Secret) == 0 {
		return nil, domain.ErrCredential(domain.CredentialSignatureInvalid, nil, "symmetric credentials are not accepted")
	}
	if v.cfg.Keys != nil && !v.cfg.SymmetricFallback && !unverified.Impersonating {
		return nil, domain.ErrCredential(domain.CredentialSignatureInvalid, nil, "symmetric credentials are reserved for elevated sessions")
	}

	opts := v.parserOptions(symmetricMethods)
	if v.cfg.SymmetricIssuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.SymmetricIssuer))
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func (v *Verifier) verifyAsymmetric(ctx context.Context, raw string, tok *jwt.Token) (*tokenClaims, error) {
	if v.cfg.Keys == nil {
		return nil, domain.ErrCredential(domain.CredentialSignatureInvalid, nil, "asymmetric credentials are not accepted")
	}
	kid, _ := tok.Header["kid"].(string)
	if kid == "" {
		return nil, domain.ErrCredential(domain.CredentialMalformed, nil, "credential header has no kid")
	}

	key, err := v.cfg.Keys.Key(ctx, kid)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return nil, domain.ErrCredential(domain.CredentialSignatureInvalid, err, "no signing key with kid %q", kid)
	case err != nil:
		return nil, domain.ErrCredential(domain.CredentialKeyUnavailable, err, "signing keys unavailable")
	}

	claims := &tokenClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, v.parserOptions(asymmetricMethods)...)
	if err != nil {
		return nil, classify(err)
	}
	if len(v.issuers) > 0 && !v.issuers[claims.Issuer] {
		return nil, domain.ErrCredential(domain.CredentialIssuerInvalid, nil, "issuer %q is not accepted", claims.Issuer)
	}
	return claims, nil
}

func (v *Verifier) parserOptions(methods []string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}
	return opts
}

// classify maps jwt parse errors onto credential error codes.
func classify(err error) error {
	var cerr *domain.CredentialError
	switch {
	case errors.As(err, &cerr):
		return cerr
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrCredential(domain.CredentialExpired, err, "credential expired")
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return domain.ErrCredential(domain.CredentialAudienceInvalid, err, "audience not accepted")
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return domain.ErrCredential(domain.CredentialIssuerInvalid, err, "issuer not accepted")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domain.ErrCredential(domain.CredentialSignatureInvalid, err, "signature verification failed")
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return domain.ErrCredential(domain.CredentialMalformed, err, "credential is not valid yet")
	default:
		return domain.ErrCredential(domain.CredentialMalformed, err, "credential rejected")
	}
}
