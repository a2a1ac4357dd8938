package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver/helpers"
)

// protectedNamespaces are never listed or cleared through the admin surface.
var protectedNamespaces = map[string]struct{}{
	ports.IdempotencyNamespace: {},
}

// adminNamespace returns the namespace path parameter, or writes an error response and
// returns ok=false when the namespace may not be inspected.
func (s *Server) adminNamespace(c echo.Context) (string, bool, error) {
	if s.adminCache == nil {
		return "", false, helpers.WriteError(c, http.StatusNotFound, "NOT_FOUND", "cache inspection is disabled")
	}
	ns := c.Param("namespace")
	if _, ok := protectedNamespaces[ns]; ok {
		return "", false, helpers.WriteError(c, http.StatusForbidden, "NAMESPACE_PROTECTED", "namespace "+ns+" cannot be managed here")
	}
	return ns, true, nil
}

func (s *Server) listCacheKeys(c echo.Context) error {
	ns, ok, err := s.adminNamespace(c)
	if !ok {
		return err
	}
	prefix := c.QueryParam("prefix")
	keys := s.adminCache.List(c.Request().Context(), ns, prefix)
	return c.JSON(http.StatusOK, map[string]interface{}{"namespace": ns, "prefix": prefix, "keys": keys, "total": len(keys)})
}

func (s *Server) clearCacheNamespace(c echo.Context) error {
	ns, ok, err := s.adminNamespace(c)
	if !ok {
		return err
	}
	if !s.adminCache.Clear(c.Request().Context(), ns) {
		return helpers.WriteError(c, http.StatusBadGateway, "CACHE_CLEAR_FAILED", "one or more cache tiers failed to clear")
	}
	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{"namespace": ns, "identity": helpers.GetIdentity(c)}).Info("cache namespace cleared")
	}
	return c.NoContent(http.StatusNoContent)
}
