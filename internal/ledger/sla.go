package ledger

import "time"

// DefaultSLAWindow is the response commitment attached to new reports.
const DefaultSLAWindow = 7 * 24 * time.Hour

// SLAPolicy computes deadlines for report-creation events.
type SLAPolicy struct {
	Window time.Duration
}

// DefaultSLAPolicy returns the seven-day policy.
func DefaultSLAPolicy() SLAPolicy {
	return SLAPolicy{Window: DefaultSLAWindow}
}

// Deadline returns the SLA deadline for a report created at createdAt.
func (p SLAPolicy) Deadline(createdAt time.Time) time.Time {
	w := p.Window
	if w <= 0 {
		w = DefaultSLAWindow
	}
	return createdAt.Add(w)
}

// closingActions end the SLA clock for a report.
var closingActions = map[string]bool{
	ActionValidated: true,
	ActionRejected:  true,
}

// Overdue reports whether timeline's SLA deadline passed before now without a
// closing action having been recorded.
func Overdue(timeline []Block, now time.Time) bool {
	var deadline *time.Time
	for i := range timeline {
		b := &timeline[i]
		if closingActions[b.ActionType] {
			return false
		}
		if b.ActionType == ActionCreated && deadline == nil {
			deadline = b.SLADeadline
		}
	}
	return deadline != nil && now.After(*deadline)
}
