package ledger_test

import (
	"errors"
	"testing"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

func mustAppend(t *testing.T, l *ledger.Ledger, action, reportID, actor string, data map[string]any) ledger.Block {
	t.Helper()
	b, err := l.Append(ctx, action, reportID, actor, data)
	if err != nil {
		t.Fatalf("Append(%s): %v", action, err)
	}
	return b
}

func TestResolveUser_lastWriteWins(t *testing.T) {
	l, _ := newMemLedger(t)
	mustAppend(t, l, ledger.ActionRegister, "", "System", map[string]any{"user_id": "u1", "device_hash": "A"})
	mustAppend(t, l, ledger.ActionRegister, "", "System", map[string]any{"user_id": "u2", "device_hash": "C"})
	mustAppend(t, l, ledger.ActionRegister, "", "System", map[string]any{"user_id": "u1", "device_hash": "B"})

	u, err := l.ResolveUser("u1")
	if err != nil {
		t.Fatal(err)
	}
	if u["device_hash"] != "B" {
		t.Errorf("device_hash: got %v, want B", u["device_hash"])
	}

	registrations := 0
	for _, b := range l.Snapshot() {
		if b.ActionType == ledger.ActionRegister && b.StringField("user_id") == "u1" {
			registrations++
		}
	}
	if registrations != 2 {
		t.Errorf("expected both u1 registrations to remain, found %d", registrations)
	}
}

func TestResolveUser_notFound(t *testing.T) {
	l, _ := newMemLedger(t)
	// A Created block carrying user_id must not count as a registration.
	mustAppend(t, l, ledger.ActionCreated, "r1", "Reporter", map[string]any{"user_id": "ghost"})

	if _, err := l.ResolveUser("ghost"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTimelineAndReporterViews(t *testing.T) {
	l, _ := newMemLedger(t)
	mustAppend(t, l, ledger.ActionRegister, "", "System", map[string]any{"user_id": "alice@example.com"})
	mustAppend(t, l, ledger.ActionCreated, "R", "Reporter", map[string]any{"reporter_email": "alice@example.com"})
	mustAppend(t, l, ledger.ActionCreated, "S", "Reporter", map[string]any{"reporter_email": "bob@example.com"})
	mustAppend(t, l, "Under Review", "R", "Admin", map[string]any{"remarks": "looking"})
	mustAppend(t, l, ledger.ActionValidated, "R", "Validator", map[string]any{"remarks": "confirmed"})

	tl := l.Timeline("R")
	if len(tl) != 3 {
		t.Fatalf("timeline length: got %d, want 3", len(tl))
	}
	wantActions := []string{ledger.ActionCreated, "Under Review", ledger.ActionValidated}
	for i, b := range tl {
		if b.ActionType != wantActions[i] {
			t.Errorf("timeline[%d]: got %q, want %q", i, b.ActionType, wantActions[i])
		}
		if i > 0 && b.Index <= tl[i-1].Index {
			t.Errorf("timeline not in chain order")
		}
	}

	alice := l.ReportsByReporter("alice@example.com")
	if len(alice) != 1 || len(alice[0]) != 3 || alice[0][0].ReportID != "R" {
		t.Errorf("alice's reports: %+v", alice)
	}
	for _, timeline := range l.ReportsByReporter("bob@example.com") {
		if timeline[0].ReportID == "R" {
			t.Errorf("bob's reports include R")
		}
	}
	if got := l.ReportsByReporter("carol@example.com"); len(got) != 0 {
		t.Errorf("unknown reporter: got %d timelines", len(got))
	}
	if got := l.Timeline("missing"); len(got) != 0 {
		t.Errorf("unknown report: got %d blocks", len(got))
	}
}

func TestReportsByReporter_firstAppearanceDeduplicated(t *testing.T) {
	l, _ := newMemLedger(t)
	mustAppend(t, l, ledger.ActionCreated, "B", "Reporter", map[string]any{"reporter_email": "a@x"})
	mustAppend(t, l, ledger.ActionCreated, "A", "Reporter", map[string]any{"reporter_email": "a@x"})
	// A second Created block for B must not produce a duplicate timeline.
	mustAppend(t, l, ledger.ActionCreated, "B", "Reporter", map[string]any{"reporter_email": "a@x"})

	got := l.ReportsByReporter("a@x")
	if len(got) != 2 {
		t.Fatalf("expected 2 timelines, got %d", len(got))
	}
	if got[0][0].ReportID != "B" || got[1][0].ReportID != "A" {
		t.Errorf("order: got %s, %s", got[0][0].ReportID, got[1][0].ReportID)
	}
	if len(got[0]) != 2 {
		t.Errorf("B timeline should hold both Created blocks, got %d", len(got[0]))
	}
}

func TestAllReports_excludesUnscopedBlocks(t *testing.T) {
	l, _ := newMemLedger(t)
	mustAppend(t, l, ledger.ActionRegister, "", "System", map[string]any{"user_id": "u"})
	mustAppend(t, l, ledger.ActionCreated, "R1", "Reporter", nil)
	mustAppend(t, l, ledger.ActionCreated, "R2", "Reporter", nil)
	mustAppend(t, l, "Commented", "R1", "Admin", nil)

	all := l.AllReports()
	if len(all) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(all))
	}
	if len(all["R1"]) != 2 || len(all["R2"]) != 1 {
		t.Errorf("group sizes: R1=%d R2=%d", len(all["R1"]), len(all["R2"]))
	}
	if _, ok := all[""]; ok {
		t.Errorf("blocks without report id were grouped")
	}
	ids := l.ReportIDs()
	if len(ids) != 2 || ids[0] != "R1" || ids[1] != "R2" {
		t.Errorf("ReportIDs: %v", ids)
	}
}

func TestEscalatedReports(t *testing.T) {
	l, _ := newMemLedger(t)
	mustAppend(t, l, ledger.ActionCreated, "R1", "Reporter", nil)
	mustAppend(t, l, ledger.ActionCreated, "R2", "Reporter", nil)
	mustAppend(t, l, "Under Review", "R1", "Admin", nil)
	mustAppend(t, l, ledger.ActionEscalated, "R2", "Admin", nil)
	mustAppend(t, l, ledger.ActionValidated, "R2", "Validator", nil)

	esc := l.EscalatedReports()
	if len(esc) != 1 {
		t.Fatalf("expected 1 escalated report, got %d", len(esc))
	}
	if esc[0][0].ReportID != "R2" || len(esc[0]) != 3 {
		t.Errorf("escalated timeline: %+v", esc[0])
	}
}

func TestEscalatedReports_noneIsEmpty(t *testing.T) {
	l, _ := newMemLedger(t)
	if got := l.EscalatedReports(); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}
