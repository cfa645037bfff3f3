// Package reports implements the incident workflow: reporters submit
// reports with evidence, administrators and validators append status
// updates, and every step is a block on the ledger.
package reports

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/analysis"
	"github.com/2001118301/bullying-detection-system/internal/email"
	"github.com/2001118301/bullying-detection-system/internal/ledger"
	"github.com/2001118301/bullying-detection-system/internal/users"
)

// chain is the ledger surface consumed by ReportService, satisfied by *ledger.Ledger.
type chain interface {
	Append(ctx context.Context, actionType, reportID, actor string, data map[string]any) (ledger.Block, error)
	Timeline(reportID string) []ledger.Block
	HasReport(reportID string) bool
	ReportsByReporter(email string) [][]ledger.Block
	ReportIDs() []string
	EscalatedReports() [][]ledger.Block
}

// evidenceStore persists uploaded evidence, satisfied by *evidence.Store.
type evidenceStore interface {
	Save(reportID string, fh *multipart.FileHeader) (name, path string, err error)
	Remove(name string) error
}

// ReportService implements the report workflow.
type ReportService struct {
	chain     chain
	evidence  evidenceStore
	text      analysis.TextAnalyzer
	image     analysis.ImageAnalyzer
	notifier  email.Sender
	validator string
	now       func() time.Time
	logger    *zap.Logger
}

// NewReportService creates a ReportService.
func NewReportService(
	c chain,
	ev evidenceStore,
	text analysis.TextAnalyzer,
	image analysis.ImageAnalyzer,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		chain:    c,
		evidence: ev,
		text:     text,
		image:    image,
		now:      time.Now,
		logger:   logger,
	}
}

// SetNotifier configures the sender and address used to tell the validator
// about escalations. An empty address disables notifications.
func (s *ReportService) SetNotifier(sender email.Sender, validatorAddr string) {
	s.notifier = sender
	s.validator = validatorAddr
}

// SetClock overrides the time source used for created_at and SLA checks.
func (s *ReportService) SetClock(now func() time.Time) {
	s.now = now
}

// Submit stores the evidence, runs both analysers, and appends a Created
// block owned by reporter. It returns the new report id.
func (s *ReportService) Submit(ctx context.Context, reporter *users.User, sub Submission) (string, error) {
	if strings.TrimSpace(sub.Description) == "" || strings.TrimSpace(sub.StudentID) == "" {
		return "", ErrMissingFields
	}
	if sub.Evidence == nil {
		return "", ErrMissingEvidence
	}

	reportID := uuid.New().String()
	name, path, err := s.evidence.Save(reportID, sub.Evidence)
	if err != nil {
		return "", fmt.Errorf("store evidence: %w", err)
	}

	data := map[string]any{
		ledger.FieldReporterEmail: reporter.UserID,
		FieldStudentID:            sub.StudentID,
		FieldDescription:          sub.Description,
		FieldWitness:              sub.Witness,
		FieldEvidence:             name,
		FieldDateSubmitted:        sub.Date,
		FieldAIText:               s.text.AnalyzeText(ctx, sub.Description),
		FieldAIImage:              s.image.AnalyzeImage(ctx, path),
		FieldStatus:               StatusSubmitted,
		FieldCreatedAt:            float64(s.now().UnixMilli()) / 1000,
	}

	if _, err := s.chain.Append(ctx, ledger.ActionCreated, reportID, string(users.RoleReporter), data); err != nil {
		// No block references the upload, so it must not stay servable.
		if rerr := s.evidence.Remove(name); rerr != nil {
			s.logger.Warn("orphaned evidence not removed",
				zap.String("evidence", name),
				zap.Error(rerr),
			)
		}
		return "", fmt.Errorf("record report: %w", err)
	}

	s.logger.Info("report submitted",
		zap.String("report_id", reportID),
		zap.String("reporter", reporter.UserID),
	)
	return reportID, nil
}

// List returns the reports visible to user under the requested role view.
// Reporters see their own reports; administrators see every report;
// validators see the reports escalated to them. A user may only request the
// view of their own role.
func (s *ReportService) List(_ context.Context, user *users.User, requested string) ([]Report, error) {
	role, err := users.ParseRole(requested)
	if err != nil || requested == "" {
		return nil, ErrInvalidRole
	}
	if role != user.Role {
		return nil, ErrForbidden
	}

	var timelines [][]ledger.Block
	switch role {
	case users.RoleReporter:
		timelines = s.chain.ReportsByReporter(user.UserID)
	case users.RoleAdmin:
		for _, id := range s.chain.ReportIDs() {
			timelines = append(timelines, s.chain.Timeline(id))
		}
	case users.RoleValidator:
		timelines = s.chain.EscalatedReports()
	}

	now := s.now()
	out := make([]Report, 0, len(timelines))
	for _, tl := range timelines {
		out = append(out, newReport(tl, now))
	}
	return out, nil
}

// Get returns a single report. Reporters may only read reports they created.
func (s *ReportService) Get(_ context.Context, user *users.User, reportID string) (Report, error) {
	timeline := s.chain.Timeline(reportID)
	if len(timeline) == 0 {
		return Report{}, ErrNotFound
	}
	if !user.Role.CanReview() && ownerOf(timeline) != user.UserID {
		return Report{}, ErrNotFound
	}
	return newReport(timeline, s.now()), nil
}

// Update appends a status block with the given action label to an existing
// report. Only administrators and validators may update reports; the actor
// recorded is the user's role. Escalations notify the validator.
func (s *ReportService) Update(ctx context.Context, user *users.User, reportID, actionType, remarks string) (ledger.Block, error) {
	if !user.Role.CanReview() {
		return ledger.Block{}, ErrForbidden
	}
	if reportID == "" || actionType == "" {
		return ledger.Block{}, ErrMissingUpdate
	}
	if !s.chain.HasReport(reportID) {
		return ledger.Block{}, ErrNotFound
	}

	b, err := s.chain.Append(ctx, actionType, reportID, string(user.Role), map[string]any{FieldRemarks: remarks})
	if err != nil {
		return ledger.Block{}, fmt.Errorf("record update: %w", err)
	}

	s.logger.Info("report updated",
		zap.String("report_id", reportID),
		zap.String("action_type", actionType),
		zap.String("actor", string(user.Role)),
	)

	if actionType == ledger.ActionEscalated {
		s.notifyEscalation(ctx, reportID, string(user.Role), remarks)
	}
	return b, nil
}

func (s *ReportService) notifyEscalation(ctx context.Context, reportID, actor, remarks string) {
	if s.notifier == nil || s.validator == "" {
		return
	}
	msg := email.EscalationNotice(s.validator, reportID, actor, remarks)
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("escalation notice not delivered",
			zap.String("report_id", reportID),
			zap.Error(err),
		)
	}
}

func ownerOf(timeline []ledger.Block) string {
	for i := range timeline {
		if timeline[i].ActionType == ledger.ActionCreated {
			return timeline[i].StringField(ledger.FieldReporterEmail)
		}
	}
	return ""
}
