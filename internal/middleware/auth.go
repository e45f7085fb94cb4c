package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/cashledger/internal/auth"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// OperatorIDKey is the context key for the authenticated operator ID.
const OperatorIDKey contextKey = "operator_id"

// GetOperatorID extracts the operator ID from the context.
// Returns empty string if not found.
func GetOperatorID(ctx context.Context) string {
	operatorID, _ := ctx.Value(OperatorIDKey).(string)
	return operatorID
}

// WithOperatorID returns a copy of ctx carrying operatorID.
func WithOperatorID(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, OperatorIDKey, operatorID)
}

// RequireAuth returns an interceptor that validates the bearer token and
// puts the operator ID into the request context.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}

			// Parse Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}

			return next(WithOperatorID(ctx, claims.OperatorID), req)
		}
	}
}
