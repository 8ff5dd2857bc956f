package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const sellerIDKey = contextKey("seller_id")

// Claims is the bearer token payload issued by the user service.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// jwtAuth requires an HS256 bearer token and puts its user_id in the context.
func jwtAuth(secret []byte, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "authorization token is not provided")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				logger.Debug("rejected bearer token", zap.Error(err))
				msg := "token is invalid"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "token has expired"
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			if claims.UserID == "" {
				writeError(w, http.StatusUnauthorized, "user_id not found in token claims")
				return
			}

			ctx := context.WithValue(r.Context(), sellerIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sellerID(ctx context.Context) string {
	id, _ := ctx.Value(sellerIDKey).(string)
	return id
}
