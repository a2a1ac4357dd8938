package helpers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GetIdentity returns the caller identity set by the identity middleware, or
// AnonymousIdentity when none was established.
func GetIdentity(c echo.Context) string {
	if id, ok := GetIdentityRaw(c); ok {
		return id
	}
	return AnonymousIdentity
}

// GetBearerToken returns the bearer token from the Authorization header. A missing
// header yields an empty token and no error; a malformed one is a 401.
func GetBearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", nil
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}
