package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/gogotex/diagramsync/internal/document/service"
	"github.com/gogotex/diagramsync/pkg/middleware"
)

// Archiver stores a document snapshot and returns a download URL.
type Archiver interface {
	Archive(ctx context.Context, docID string, body []byte, at time.Time, ttl time.Duration) (string, error)
}

const archiveURLTTL = 15 * time.Minute

// DocumentHandler serves the document REST surface. Content writes go
// through the collab router so live sessions see REST edits.
type DocumentHandler struct {
	svc     *service.Service
	router  *collab.Router
	archive Archiver
}

// NewDocumentHandler builds the handler. archive may be nil.
func NewDocumentHandler(svc *service.Service, router *collab.Router, archive Archiver) *DocumentHandler {
	return &DocumentHandler{svc: svc, router: router, archive: archive}
}

// Register mounts the routes on an authenticated group, under /documents
// and under the /api/diagrams alias used by the web client.
func (h *DocumentHandler) Register(rg *gin.RouterGroup) {
	for _, prefix := range []string{"/documents", "/api/diagrams"} {
		g := rg.Group(prefix)
		g.POST("", h.Create)
		g.GET("", h.List)
		g.GET("/:id", h.Get)
		g.PUT("/:id", h.Update)
		g.POST("/:id/collaborators", h.AddCollaborator)
		g.POST("/:id/archive", h.Archive)
	}
}

// Create accepts { name, type } and returns the created document.
func (h *DocumentHandler) Create(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.Create(c.Request.Context(), id.ID, req.Name, req.Type)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// List returns the caller's documents, most recently modified first.
func (h *DocumentHandler) List(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	docs, err := h.svc.List(c.Request.Context(), id.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	d, err := h.svc.Get(c.Request.Context(), id.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Update replaces the content and broadcasts it to every session in the room.
func (h *DocumentHandler) Update(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req struct {
		Content *string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	d, err := h.router.Mutate(c.Request.Context(), collab.Mutation{
		Actor:      id,
		DocumentID: c.Param("id"),
		Content:    *req.Content,
		Source:     collab.SourceREST,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// AddCollaborator accepts { userId }. Owner only.
func (h *DocumentHandler) AddCollaborator(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.svc.AddCollaborator(c.Request.Context(), id.ID, c.Param("id"), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// Archive stores the current document in object storage and returns a presigned URL.
func (h *DocumentHandler) Archive(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "archive storage not configured"})
		return
	}
	id, _ := middleware.IdentityFrom(c)
	d, err := h.svc.Get(c.Request.Context(), id.ID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	body, err := json.Marshal(d)
	if err != nil {
		writeError(c, err)
		return
	}
	url, err := h.archive.Archive(c.Request.Context(), d.ID, body, time.Now(), archiveURLTTL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "archive upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expiresIn": int(archiveURLTTL.Seconds())})
}
