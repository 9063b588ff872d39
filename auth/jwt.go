// Package auth implements the identity service: the coordinator asks
// it for the current principal's stable user id. Tokens are HS256 JWTs
// carried in the Authorization header.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/split-engine/group"
	"github.com/warp/split-engine/ledger"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const userIDKey contextKey = "user_id"

// Claims are the custom JWT claims for a user session.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates session tokens and implements
// group.Identity by reading the principal middleware placed on the
// request context.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

var _ group.Identity = (*JWTManager)(nil)

// NewJWTManager creates a manager with the given secret and token
// lifetime. The secret should be a strong random string.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{secretKey: []byte(secretKey), tokenDuration: tokenDuration}
}

// Generate creates a signed token for the user.
func (m *JWTManager) Generate(userID ledger.UserID) (string, error) {
	claims := &Claims{
		UserID: string(userID),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token: %v", ledger.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid token", ledger.ErrUnauthorized)
	}
	return claims, nil
}

// CurrentUserID implements group.Identity.
func (m *JWTManager) CurrentUserID(ctx context.Context) (ledger.UserID, error) {
	id, ok := ctx.Value(userIDKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: no authenticated user", ledger.ErrUnauthorized)
	}
	return ledger.UserID(id), nil
}

// Middleware validates the bearer token and stores the principal on
// the request context for CurrentUserID.
func (m *JWTManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if header == "" || len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "authorization token required", http.StatusUnauthorized)
			return
		}
		claims, err := m.Validate(parts[1])
		if err != nil {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithUser returns a context carrying the principal. Test seam.
func WithUser(ctx context.Context, userID ledger.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, string(userID))
}
