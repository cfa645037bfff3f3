package reports

import (
	"errors"
	"mime/multipart"
	"time"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

var (
	ErrMissingFields   = errors.New("description and student_id are required")
	ErrMissingEvidence = errors.New("evidence (photo/video) is required")
	ErrMissingUpdate   = errors.New("report_id and action_type are required")
	ErrInvalidRole     = errors.New("invalid role")
	ErrForbidden       = errors.New("unauthorized role access")
	ErrNotFound        = errors.New("report not found")
)

// StatusSubmitted is the status recorded on every new report.
const StatusSubmitted = "Submitted"

// Payload keys of a Created block. reporter_email is owned by the ledger's
// reporter index.
const (
	FieldStudentID     = "student_id"
	FieldDescription   = "description"
	FieldWitness       = "witness"
	FieldEvidence      = "evidence"
	FieldDateSubmitted = "date_submitted"
	FieldAIText        = "ai_text"
	FieldAIImage       = "ai_image"
	FieldStatus        = "status"
	FieldCreatedAt     = "created_at"
	FieldRemarks       = "remarks"
)

// Submission is a new incident report as received from a reporter.
type Submission struct {
	StudentID   string
	Description string
	Witness     string
	Date        string
	Evidence    *multipart.FileHeader
}

// Report is one report's timeline together with values derived from it.
type Report struct {
	ReportID    string         `json:"report_id"`
	Status      string         `json:"status"`
	SLADeadline *time.Time     `json:"sla_deadline,omitempty"`
	SLAOverdue  bool           `json:"sla_overdue"`
	Timeline    []ledger.Block `json:"timeline"`
}

// Status returns the action label of the latest block in timeline, which is
// the report's current workflow state.
func Status(timeline []ledger.Block) string {
	if len(timeline) == 0 {
		return ""
	}
	return timeline[len(timeline)-1].ActionType
}

func newReport(timeline []ledger.Block, now time.Time) Report {
	r := Report{
		Status:     Status(timeline),
		SLAOverdue: ledger.Overdue(timeline, now),
		Timeline:   timeline,
	}
	if len(timeline) > 0 {
		r.ReportID = timeline[0].ReportID
	}
	for i := range timeline {
		if timeline[i].ActionType == ledger.ActionCreated {
			r.SLADeadline = timeline[i].SLADeadline
			break
		}
	}
	return r
}
