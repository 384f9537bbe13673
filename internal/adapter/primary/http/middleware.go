package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	roleKey   = "role"
	roleAdmin = "admin"
)

// AuthMiddleware reads an optional Bearer token and stores its role claim.
// Requests without a token continue as anonymous; a bad token is rejected.
func AuthMiddleware(secret string) echo.MiddlewareFunc {
	jwtKey := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return next(c)
			}
			if len(jwtKey) == 0 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authentication is not configured"})
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Bearer token malformed"})
			}

			token, err := jwt.Parse(strings.TrimSpace(tokenString), func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return jwtKey, nil
			})
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or expired token"})
			}

			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if role, ok := claims[roleKey].(string); ok {
					c.Set(roleKey, role)
				}
			}
			return next(c)
		}
	}
}

func isAdmin(c echo.Context) bool {
	role, _ := c.Get(roleKey).(string)
	return role == roleAdmin
}
