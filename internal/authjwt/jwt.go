// Package authjwt validates bearer tokens entirely offline, the way a
// field device must: against an embedded public key rather than a call to
// an auth server. Token lifecycle helpers compute remaining validity so
// callers can act on a threshold, generalized from opaque
// OAuth2 access tokens to self-contained signed JWTs.
package authjwt

import (
	"crypto/rsa"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

//go:embed keys/verify.pub
var embeddedPublicKeyPEM []byte

// timeNow is overridden in tests to pin the clock at an exact expiry
// boundary; production code never reassigns it.
var timeNow = time.Now

// ErrInvalidToken wraps every verification failure (bad signature, wrong
// algorithm, expired, wrong issuer/audience, missing required claim).
var ErrInvalidToken = errors.New("authjwt: invalid token")

// TokenType distinguishes access tokens from refresh tokens; the two are
// never interchangeable.
type TokenType string

// The two token types a bearer JWT may carry.
const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the decoded payload of an inspectcore bearer token.
type Claims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CompanyID *string   `json:"companyId,omitempty"`
	SessionID string    `json:"sessionId"`
	Type      TokenType `json:"type"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
	Issuer    string    `json:"iss"`
	Audience  []string  `json:"aud"`
}

// Verifier validates tokens against a fixed issuer and an acceptable
// audience set, using one embedded RSA public key.
type Verifier struct {
	publicKey        *rsa.PublicKey
	expectedIssuer   string
	acceptedAudience map[string]struct{}
	iatSkew          time.Duration
}

// New constructs a Verifier from the embedded SPKI public key. acceptedAudience
// lists the audience values this device will accept; a token is valid if its
// aud claim intersects this set.
func New(expectedIssuer string, acceptedAudience []string) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(embeddedPublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("authjwt: parsing embedded public key: %w", err)
	}

	audSet := make(map[string]struct{}, len(acceptedAudience))
	for _, a := range acceptedAudience {
		audSet[a] = struct{}{}
	}

	return &Verifier{
		publicKey:        key,
		expectedIssuer:   expectedIssuer,
		acceptedAudience: audSet,
		iatSkew:          60 * time.Second,
	}, nil
}

// Verify decodes token, checks alg=RS256, verifies the RSA signature
// against the embedded public key, and validates iss/aud/exp/iat and the
// presence of sub/email/role. It returns ErrInvalidToken (wrapped with
// detail) for any failure — there is no partial-success return.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims, err := v.parseAndVerifySignature(tokenString)
	if err != nil {
		return nil, err
	}

	if err := validateClaims(claims, v.expectedIssuer, v.acceptedAudience, v.iatSkew); err != nil {
		return nil, err
	}

	return claims, nil
}

// VerifyUnsafe performs the same iss/aud/exp/iat/required-claim checks as
// Verify but skips RSA signature verification entirely. It exists for
// parity with constrained runtimes that lack a cryptographic primitive;
// on this target crypto/rsa is always available, so Verify is used by
// default and this path is not called from anywhere in this module.
func (v *Verifier) VerifyUnsafe(tokenString string) (*Claims, error) {
	claims, err := DecodeUnsafe(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if err := validateClaims(claims, v.expectedIssuer, v.acceptedAudience, v.iatSkew); err != nil {
		return nil, err
	}

	return claims, nil
}

func (v *Verifier) parseAndVerifySignature(tokenString string) (*Claims, error) {
	var rawClaims rawClaims

	_, err := jwt.ParseWithClaims(tokenString, &rawClaims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}

		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return rawClaims.toClaims(), nil
}

// rawClaims mirrors Claims but satisfies jwt.Claims via the embedded
// RegisteredClaims, letting the library parse exp/iat/iss/aud while we
// layer the stricter application-level checks on top ourselves.
type rawClaims struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CompanyID *string   `json:"companyId,omitempty"`
	SessionID string    `json:"sessionId"`
	Type      TokenType `json:"type"`
	jwt.RegisteredClaims
}

func (r *rawClaims) toClaims() *Claims {
	var exp, iat int64

	if r.ExpiresAt != nil {
		exp = r.ExpiresAt.Unix()
	}

	if r.IssuedAt != nil {
		iat = r.IssuedAt.Unix()
	}

	return &Claims{
		Subject:   r.Subject,
		Email:     r.Email,
		Name:      r.Name,
		Role:      r.Role,
		CompanyID: r.CompanyID,
		SessionID: r.SessionID,
		Type:      r.Type,
		IssuedAt:  iat,
		ExpiresAt: exp,
		Issuer:    r.Issuer,
		Audience:  []string(r.Audience),
	}
}

func validateClaims(c *Claims, expectedIssuer string, acceptedAudience map[string]struct{}, iatSkew time.Duration) error {
	if c.Subject == "" || c.Email == "" || c.Role == "" {
		return fmt.Errorf("%w: missing sub, email, or role claim", ErrInvalidToken)
	}

	if c.Issuer != expectedIssuer {
		return fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, c.Issuer)
	}

	if len(acceptedAudience) > 0 && !audienceIntersects(c.Audience, acceptedAudience) {
		return fmt.Errorf("%w: audience %v not accepted", ErrInvalidToken, c.Audience)
	}

	now := timeNow()

	if c.ExpiresAt != 0 && !time.Unix(c.ExpiresAt, 0).After(now) {
		return fmt.Errorf("%w: expired at %s", ErrInvalidToken, time.Unix(c.ExpiresAt, 0).UTC())
	}

	if c.IssuedAt != 0 && time.Unix(c.IssuedAt, 0).After(now.Add(iatSkew)) {
		return fmt.Errorf("%w: issued in the future", ErrInvalidToken)
	}

	return nil
}

func audienceIntersects(tokenAud []string, accepted map[string]struct{}) bool {
	for _, a := range tokenAud {
		if _, ok := accepted[a]; ok {
			return true
		}
	}

	return false
}

// IsExpired reports whether token's exp claim is in the past or exactly
// now. It performs no signature verification — callers that need trust
// should call Verify.
func IsExpired(token string) bool {
	claims, err := DecodeUnsafe(token)
	if err != nil {
		return true
	}

	return !time.Unix(claims.ExpiresAt, 0).After(timeNow())
}

// RemainingSeconds returns the whole seconds remaining until token's exp
// claim, or 0 if already expired or undecodable.
func RemainingSeconds(token string) uint32 {
	claims, err := DecodeUnsafe(token)
	if err != nil {
		return 0
	}

	remaining := time.Until(time.Unix(claims.ExpiresAt, 0))
	if remaining <= 0 {
		return 0
	}

	return uint32(remaining.Seconds())
}

// DecodeUnsafe decodes token's claims without verifying its signature.
// For display purposes only — callers must never treat the result as
// trusted identity.
func DecodeUnsafe(token string) (*Claims, error) {
	var rawClaims rawClaims

	parser := jwt.NewParser()

	_, _, err := parser.ParseUnverified(token, &rawClaims)
	if err != nil {
		return nil, fmt.Errorf("authjwt: decoding: %w", err)
	}

	return rawClaims.toClaims(), nil
}
