package ledger

import "fmt"

// Payload keys the views rely on.
const (
	FieldUserID        = "user_id"
	FieldReporterEmail = "reporter_email"
)

// index holds the auxiliary lookups behind the views. Positions refer to the
// published chain. It is mutated only under Ledger.mu held for writing.
type index struct {
	reports     map[string][]int // report id -> block positions, chain order
	reportOrder []string         // report ids by first appearance
	users       map[string]int   // user id -> latest Register position
	byReporter  map[string][]string
	reporterSet map[string]map[string]bool
	escalated   map[string]bool
}

func newIndex() *index {
	return &index{
		reports:     make(map[string][]int),
		users:       make(map[string]int),
		byReporter:  make(map[string][]string),
		reporterSet: make(map[string]map[string]bool),
		escalated:   make(map[string]bool),
	}
}

func buildIndex(chain []Block) *index {
	idx := newIndex()
	for i := range chain {
		idx.add(i, &chain[i])
	}
	return idx
}

func (x *index) add(pos int, b *Block) {
	if b.ActionType == ActionRegister {
		if uid, ok := b.Data[FieldUserID].(string); ok {
			x.users[uid] = pos
		}
	}

	if b.ReportID == "" {
		return
	}
	rid := b.ReportID
	if _, seen := x.reports[rid]; !seen {
		x.reportOrder = append(x.reportOrder, rid)
	}
	x.reports[rid] = append(x.reports[rid], pos)

	switch b.ActionType {
	case ActionCreated:
		email, ok := b.Data[FieldReporterEmail].(string)
		if !ok {
			return
		}
		set := x.reporterSet[email]
		if set == nil {
			set = make(map[string]bool)
			x.reporterSet[email] = set
		}
		if !set[rid] {
			set[rid] = true
			x.byReporter[email] = append(x.byReporter[email], rid)
		}
	case ActionEscalated:
		x.escalated[rid] = true
	}
}

// timeline must be called with l.mu held.
func (l *Ledger) timeline(reportID string) []Block {
	positions := l.idx.reports[reportID]
	out := make([]Block, len(positions))
	for i, p := range positions {
		out[i] = l.blocks[p].clone()
	}
	return out
}

// ResolveUser returns the payload of the most recent Register block for
// userID. Earlier registrations stay in the chain but are superseded.
func (l *Ledger) ResolveUser(userID string) (map[string]any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.idx.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return cloneMap(l.blocks[pos].Data), nil
}

// Timeline returns every block recorded against reportID in chain order.
// The result is empty when the report is unknown.
func (l *Ledger) Timeline(reportID string) []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.timeline(reportID)
}

// HasReport reports whether any block carries reportID.
func (l *Ledger) HasReport(reportID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.idx.reports[reportID]
	return ok
}

// ReportsByReporter returns one timeline per report whose Created block names
// email as reporter, ordered by first appearance.
func (l *Ledger) ReportsByReporter(email string) [][]Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.idx.byReporter[email]
	out := make([][]Block, 0, len(ids))
	for _, rid := range ids {
		out = append(out, l.timeline(rid))
	}
	return out
}

// AllReports partitions the chain by report id. Blocks without a report id
// (genesis, registrations) are excluded.
func (l *Ledger) AllReports() map[string][]Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]Block, len(l.idx.reportOrder))
	for _, rid := range l.idx.reportOrder {
		out[rid] = l.timeline(rid)
	}
	return out
}

// ReportIDs returns every report id in order of first appearance.
func (l *Ledger) ReportIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.idx.reportOrder))
	copy(out, l.idx.reportOrder)
	return out
}

// EscalatedReports returns the timelines of reports that received at least
// one "Escalated to Validator" block, ordered by first appearance.
func (l *Ledger) EscalatedReports() [][]Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out [][]Block
	for _, rid := range l.idx.reportOrder {
		if l.idx.escalated[rid] {
			out = append(out, l.timeline(rid))
		}
	}
	if out == nil {
		out = [][]Block{}
	}
	return out
}
