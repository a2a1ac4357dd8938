package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) idempotencyStats(c echo.Context) error {
	if s.idempotencyStore == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"backend": "none"})
	}
	return c.JSON(http.StatusOK, s.idempotencyStore.Stats(c.Request().Context()))
}
