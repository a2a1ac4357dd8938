package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver/helpers"
)

// IdentityMiddleware resolves the caller identity from an optional HS256 bearer token.
type IdentityMiddleware struct {
	secret []byte
	issuer string
	logger *logrus.Logger
}

func NewIdentityMiddleware(secret, issuer string, logger *logrus.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{secret: []byte(secret), issuer: issuer, logger: logger}
}

// ResolveIdentity sets the token subject as the caller identity. Requests without a
// token, or any request when no secret is configured, run as anonymous. A token that
// fails validation is rejected with 401.
func (m *IdentityMiddleware) ResolveIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(m.secret) == 0 {
				helpers.SetIdentity(c, helpers.AnonymousIdentity)
				return next(c)
			}
			tokenString, err := helpers.GetBearerToken(c)
			if err != nil {
				return err
			}
			if tokenString == "" {
				helpers.SetIdentity(c, helpers.AnonymousIdentity)
				return next(c)
			}

			subject, claims, err := m.parse(tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path, "error": err.Error()}).Warn("JWT validation failed")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			helpers.SetIdentity(c, subject)
			helpers.SetClaims(c, claims)
			if m.logger != nil {
				m.logger.WithField("identity", subject).Debug("caller identity resolved")
			}
			return next(c)
		}
	}
}

func (m *IdentityMiddleware) parse(tokenString string) (string, jwt.MapClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(5 * time.Second)}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure the token's signing method is HMAC (prevent alg confusion)
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", nil, err
	}
	if !token.Valid {
		return "", nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, fmt.Errorf("invalid token claims")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", nil, fmt.Errorf("token has no subject")
	}
	if subject == helpers.AnonymousIdentity {
		// reserved for callers without a token
		return "", nil, fmt.Errorf("token subject %q is reserved", subject)
	}
	return subject, claims, nil
}

// RequireIdentity rejects anonymous callers when tokens are configured. Without a
// secret there is no way to authenticate, so every caller is let through.
func (m *IdentityMiddleware) RequireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(m.secret) > 0 && helpers.GetIdentity(c) == helpers.AnonymousIdentity {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}
