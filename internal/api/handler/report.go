package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
	"github.com/2001118301/bullying-detection-system/internal/reports"
	"github.com/2001118301/bullying-detection-system/internal/users"
)

// reportSvc is the interface expected by ReportHandler, satisfied by *reports.ReportService.
type reportSvc interface {
	Submit(ctx context.Context, reporter *users.User, sub reports.Submission) (string, error)
	List(ctx context.Context, user *users.User, role string) ([]reports.Report, error)
	Get(ctx context.Context, user *users.User, reportID string) (reports.Report, error)
	Update(ctx context.Context, user *users.User, reportID, actionType, remarks string) (ledger.Block, error)
}

// ReportHandler handles report submission, listing, and status updates.
type ReportHandler struct {
	reports reportSvc
	auth    *Authenticator
	logger  *zap.Logger
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(svc reportSvc, auth *Authenticator, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: svc, auth: auth, logger: logger}
}

// Register mounts the report routes on rg.
func (h *ReportHandler) Register(rg *gin.RouterGroup) {
	r := rg.Group("/reports", h.auth.Require()...)
	{
		r.POST("", h.Submit)
		r.GET("", h.List)
		r.GET("/:id", h.Get)
		r.POST("/:id/updates", h.Update)
	}
}

// RegisterCompat mounts the flat legacy routes used by the bundled frontend.
func (h *ReportHandler) RegisterCompat(rg *gin.RouterGroup) {
	g := rg.Group("", h.auth.Require()...)
	g.POST("/submit_report", h.Submit)
	g.GET("/get_reports", h.LegacyList)
	g.POST("/update_report", h.LegacyUpdate)
}

// Submit handles a multipart report submission.
func (h *ReportHandler) Submit(c *gin.Context) {
	sub := reports.Submission{
		StudentID:   c.PostForm("student_id"),
		Description: c.PostForm("description"),
		Witness:     c.PostForm("witness"),
		Date:        c.PostForm("date"),
	}
	if fh, err := c.FormFile("evidence"); err == nil {
		sub.Evidence = fh
	}

	id, err := h.reports.Submit(c.Request.Context(), CurrentUser(c), sub)
	if err != nil {
		h.fail(c, "submit report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report submitted", "report_id": id})
}

// List handles GET /reports?role=.
func (h *ReportHandler) List(c *gin.Context) {
	list, err := h.reports.List(c.Request.Context(), CurrentUser(c), c.Query("role"))
	if err != nil {
		h.fail(c, "list reports", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": list, "count": len(list)})
}

// LegacyList handles GET /get_reports?role=. Administrators receive an
// object keyed by report id; other roles receive an array of timelines.
func (h *ReportHandler) LegacyList(c *gin.Context) {
	role := c.Query("role")
	list, err := h.reports.List(c.Request.Context(), CurrentUser(c), role)
	if err != nil {
		h.fail(c, "list reports", err)
		return
	}

	if role == string(users.RoleAdmin) {
		byID := make(map[string][]ledger.Block, len(list))
		for _, r := range list {
			byID[r.ReportID] = r.Timeline
		}
		c.JSON(http.StatusOK, byID)
		return
	}
	timelines := make([][]ledger.Block, 0, len(list))
	for _, r := range list {
		timelines = append(timelines, r.Timeline)
	}
	c.JSON(http.StatusOK, timelines)
}

// Get handles GET /reports/:id.
func (h *ReportHandler) Get(c *gin.Context) {
	r, err := h.reports.Get(c.Request.Context(), CurrentUser(c), c.Param("id"))
	if err != nil {
		h.fail(c, "get report", err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type updateRequest struct {
	ReportID   string `json:"report_id"`
	ActionType string `json:"action_type"`
	Remarks    string `json:"remarks"`
}

// Update handles POST /reports/:id/updates.
func (h *ReportHandler) Update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	h.update(c, c.Param("id"), req)
}

// LegacyUpdate handles POST /update_report with the report id in the body.
func (h *ReportHandler) LegacyUpdate(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	h.update(c, req.ReportID, req)
}

func (h *ReportHandler) update(c *gin.Context, reportID string, req updateRequest) {
	b, err := h.reports.Update(c.Request.Context(), CurrentUser(c), reportID, req.ActionType, req.Remarks)
	if err != nil {
		h.fail(c, "update report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Report updated", "block": b})
}

// fail maps service errors onto HTTP responses.
func (h *ReportHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, reports.ErrMissingFields),
		errors.Is(err, reports.ErrMissingEvidence),
		errors.Is(err, reports.ErrMissingUpdate),
		errors.Is(err, reports.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, reports.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, reports.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrPersistFailed):
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger is unavailable, nothing was recorded"})
	default:
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
