package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ekaya-inc/querygate/pkg/models"
)

// Issuer is the iss claim on locally issued tokens.
const Issuer = "querygate"

// TokenIssuer signs HS256 access tokens for local users.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. ttl is the token lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL returns the lifetime of issued tokens.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for user.
func (i *TokenIssuer) Issue(user *models.User) (string, error) {
	now := i.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		UserID: user.ID.String(),
		Role:   user.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenValidator validates a token string and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Validator checks HS256 tokens with the local secret and delegates tokens
// from external issuers to JWKS.
type Validator struct {
	secret []byte
	jwks   TokenValidator
	// issuers holds the external issuers handled by jwks.
	issuers map[string]struct{}
}

// NewValidator builds a validator. jwks may be nil when no external issuers are configured.
func NewValidator(secret string, jwks *JWKSClient) *Validator {
	v := &Validator{secret: []byte(secret), issuers: map[string]struct{}{}}
	if jwks != nil {
		v.jwks = jwks
		for iss := range jwks.endpoints {
			v.issuers[iss] = struct{}{}
		}
	}
	return v
}

// ValidateToken implements TokenValidator.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	unverified := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, unverified); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if _, external := v.issuers[unverified.Issuer]; external {
		return v.jwks.ValidateToken(tokenString)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

var _ TokenValidator = (*Validator)(nil)
