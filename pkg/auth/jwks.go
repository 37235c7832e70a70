package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSClient validates RS256/ES256 tokens from whitelisted external issuers.
type JWKSClient struct {
	endpoints map[string]keyfunc.Keyfunc
}

// NewJWKSClient loads a key set for every issuer=url pair.
// Returns nil when endpoints is empty.
func NewJWKSClient(ctx context.Context, endpoints map[string]string) (*JWKSClient, error) {
	if len(endpoints) == 0 {
		return nil, nil
	}

	client := &JWKSClient{endpoints: make(map[string]keyfunc.Keyfunc, len(endpoints))}
	for issuer, jwksURL := range endpoints {
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
		if err != nil {
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", issuer, err)
		}
		client.endpoints[issuer] = kf
	}
	return client, nil
}

// ValidateToken verifies the signature with the issuer's published keys.
func (c *JWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return nil, errors.New("invalid claims type")
		}
		kf, exists := c.endpoints[claims.Issuer]
		if !exists {
			return nil, fmt.Errorf("unauthorized issuer: %s", claims.Issuer)
		}
		return kf.Keyfunc(token)
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return claims, nil
}

var _ TokenValidator = (*JWKSClient)(nil)
