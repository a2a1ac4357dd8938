package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/avatarctic/replaycache/internal/core/domain/document"
	"github.com/avatarctic/replaycache/internal/core/ports"
	"github.com/avatarctic/replaycache/internal/infrastructure/httpserver/helpers"
)

func (s *Server) createDocument(c echo.Context) error {
	var req document.CreateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	}
	doc, err := s.documentSvc.CreateDocument(c.Request().Context(), &req)
	if err != nil {
		return s.documentError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, strings.TrimSuffix(c.Request().URL.Path, "/")+"/"+doc.ID.String())
	return c.JSON(http.StatusCreated, doc)
}

func (s *Server) getDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid document ID")
	}
	doc, err := s.documentSvc.GetDocument(c.Request().Context(), id)
	if err != nil {
		return s.documentError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) updateDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid document ID")
	}
	var req document.UpdateDocumentRequest
	if err := c.Bind(&req); err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	}
	doc, err := s.documentSvc.UpdateDocument(c.Request().Context(), id, &req)
	if err != nil {
		return s.documentError(c, err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) deleteDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid document ID")
	}
	if err := s.documentSvc.DeleteDocument(c.Request().Context(), id); err != nil {
		return s.documentError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) searchDocuments(c echo.Context) error {
	var req document.SearchRequest
	if err := c.Bind(&req); err != nil {
		return helpers.WriteError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid search parameters")
	}
	res, err := s.documentSvc.SearchDocuments(c.Request().Context(), &req)
	if err != nil {
		return s.documentError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) documentError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ports.ErrDocumentNotFound):
		return helpers.WriteError(c, http.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, ports.ErrInvalidDocument):
		return helpers.WriteError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	}
	if s.logger != nil {
		s.logger.WithError(err).WithField("path", c.Request().URL.Path).Error("document operation failed")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}
