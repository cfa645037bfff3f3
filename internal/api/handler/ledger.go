package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/health"
	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

// chainReader is the read surface of *ledger.Ledger used by LedgerHandler.
type chainReader interface {
	Len() int
	Root() string
	Verify() error
	Get(index int) (ledger.Block, error)
}

// LedgerHandler exposes read-only HTTP endpoints for the ledger.
type LedgerHandler struct {
	ledger    chainReader
	readiness func() health.Status
	logger    *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(l chainReader, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, logger: logger}
}

// SetReadiness installs the integrity status reported by Ready. Without it
// the service always reports ready.
func (h *LedgerHandler) SetReadiness(fn func() health.Status) {
	h.readiness = fn
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries/:idx", h.GetEntry)
	}
}

// Health handles GET /healthz.
func (h *LedgerHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "blocks": h.ledger.Len()})
}

// Ready handles GET /readyz. It returns 503 once the persisted chain has
// failed enough consecutive integrity checks.
func (h *LedgerHandler) Ready(c *gin.Context) {
	if h.readiness == nil {
		c.JSON(http.StatusOK, gin.H{"healthy": true})
		return
	}
	st := h.readiness()
	if !st.Healthy {
		c.JSON(http.StatusServiceUnavailable, st)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Overview handles GET /ledger and returns the chain length and tail hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries": h.ledger.Len(),
		"root":    h.ledger.Root(),
	})
}

// Verify handles GET /ledger/verify and walks the full chain.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.ledger.Verify(); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "entries": h.ledger.Len()})
}

// GetEntry handles GET /ledger/entries/:idx.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.ledger.Get(idx)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
