package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWT authenticates HS256 bearer tokens. The websocket endpoint may carry the
// token in the "token" query parameter instead, since browsers cannot set
// headers on an upgrade request.
func JWT(secret, issuer, audience string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := extractToken(r)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}

			claims, err := verifyToken(tokenString, secret, issuer, audience)
			if err != nil {
				observability.GetLogger(r.Context()).Debug("jwt rejected",
					zap.String("request_id", RequestIDFromContext(r.Context())), zap.Error(err))
				writeUnauthorized(w, err.Error())
				return
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				writeUnauthorized(w, "invalid token claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(InjectUserID(r.Context(), sub)))
		})
	}
}

func extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("missing token")
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid token format")
	}

	return parts[1], nil
}

func verifyToken(tokenString, secret, issuer, audience string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
