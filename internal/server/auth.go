package server

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// RequireBearerToken validates HS256 bearer tokens signed with the shared
// secret and stores the subject claim on the context. The analytics API has
// no per-resource authorization model; the token gates access to the whole
// surface.
func RequireBearerToken(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(raw,
				func(t *jwt.Token) (interface{}, error) { return key, nil },
				jwt.WithValidMethods([]string{"HS256"}),
			)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if sub, err := token.Claims.GetSubject(); err == nil {
				c.Set("subject", sub)
			}
			return next(c)
		}
	}
}
