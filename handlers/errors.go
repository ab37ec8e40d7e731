package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/diagramsync/internal/document"
	"github.com/gogotex/diagramsync/internal/document/service"
	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/gogotex/diagramsync/pkg/logger"
)

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, document.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, document.ErrNotFound):
		status, msg = http.StatusNotFound, "document not found"
	case errors.Is(err, document.ErrInvalidType), errors.Is(err, service.ErrInvalidName),
		errors.Is(err, service.ErrInvalidCollaborator):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, document.ErrStorage):
		status, msg = http.StatusServiceUnavailable, "document store unavailable"
	}
	if status >= http.StatusInternalServerError {
		logger.WithFields(logger.Fields{"path": c.FullPath(), "status": status}).Errorf("request failed: %v", err)
	}
	c.JSON(status, gin.H{"error": msg})
}
