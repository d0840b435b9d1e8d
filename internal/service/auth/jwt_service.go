package auth

import (
	"context"
	"time"
)

// JWTService issues and validates operator bearer tokens for the HTTP surface.
type JWTService interface {
	// GenerateToken creates a signed token naming the operator.
	GenerateToken(ctx context.Context, operator string) (string, error)

	// ValidateToken verifies signature and time claims and returns the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims is the validated content of an operator token.
type Claims struct {
	Operator  string    `json:"op,omitempty"`
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
