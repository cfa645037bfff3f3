package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// evidenceOpener resolves stored evidence names, satisfied by *evidence.Store.
type evidenceOpener interface {
	Open(name string) (string, error)
}

// EvidenceHandler serves uploaded evidence files. The route is public so
// that <img> and <video> tags in the frontend can load files directly.
type EvidenceHandler struct {
	files evidenceOpener
}

// NewEvidenceHandler creates an EvidenceHandler.
func NewEvidenceHandler(files evidenceOpener) *EvidenceHandler {
	return &EvidenceHandler{files: files}
}

// Register mounts GET /uploads/:filename on rg.
func (h *EvidenceHandler) Register(rg gin.IRoutes) {
	rg.GET("/uploads/:filename", h.Serve)
}

// Serve streams a stored evidence file.
func (h *EvidenceHandler) Serve(c *gin.Context) {
	path, err := h.files.Open(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	c.File(path)
}
