// Package testhelpers provides shared fixtures for querygate tests.
package testhelpers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTSecret signs tokens issued by IssueTestToken.
const TestJWTSecret = "querygate-test-secret"

// IssueTestToken returns an HS256 token shaped like the ones /auth/token issues.
func IssueTestToken(userID, username, role string) string {
	claims := jwt.MapClaims{
		"sub":  username,
		"uid":  userID,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(30 * time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

// BearerHeader returns the Authorization header value for a test token.
func BearerHeader(userID, username, role string) string {
	return "Bearer " + IssueTestToken(userID, username, role)
}
