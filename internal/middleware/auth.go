package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/walletpay/backend/internal/services"
)

type contextKey string

const actorIDKey contextKey = "actorID"

var errMissingSubject = errors.New("token carries no user_id or sub claim")

// WithActorID stores the authenticated actor on ctx.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey, actorID)
}

// ActorID returns the actor stored by AuthMiddleware.
func ActorID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorIDKey).(string)
	return id, ok && id != ""
}

// AuthMiddleware validates an HS256 bearer token signed with secret and puts
// the token's user_id (or sub) on the request context as the actor id.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendCodedError(w, "UNAUTHORIZED", "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendCodedError(w, "UNAUTHORIZED", "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			actorID, err := validateToken(parts[1], secret)
			if err != nil {
				services.SendCodedError(w, "UNAUTHORIZED", "Invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActorID(r.Context(), actorID)))
		})
	}
}

func validateToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}

	if userID, ok := claims["user_id"]; ok && userID != nil {
		if id := fmt.Sprintf("%v", userID); id != "" {
			return id, nil
		}
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", errMissingSubject
}
