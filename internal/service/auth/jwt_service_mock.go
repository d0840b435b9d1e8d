package auth

import "context"

// MockJWTService is a configurable JWTService for handler tests.
type MockJWTService struct {
	GenerateTokenFn func(ctx context.Context, operator string) (string, error)
	ValidateTokenFn func(ctx context.Context, tokenString string) (*Claims, error)
}

var _ JWTService = (*MockJWTService)(nil)

// GenerateToken delegates to GenerateTokenFn.
func (m *MockJWTService) GenerateToken(ctx context.Context, operator string) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, operator)
	}
	return "test-token-" + operator, nil
}

// ValidateToken delegates to ValidateTokenFn.
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if m.ValidateTokenFn != nil {
		return m.ValidateTokenFn(ctx, tokenString)
	}
	return nil, ErrInvalidToken
}
