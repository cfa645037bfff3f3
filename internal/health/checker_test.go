package health_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/health"
	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type failingLoader struct{ err error }

func (f failingLoader) Load(context.Context) ([]ledger.Block, error) { return nil, f.err }

type counter struct {
	mu      sync.Mutex
	ok, bad int
}

func (c *counter) record(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if success {
		c.ok++
	} else {
		c.bad++
	}
}

func newFileLedger(t *testing.T) (*ledger.Ledger, *ledger.FileStore) {
	t.Helper()
	store := ledger.NewFileStore(filepath.Join(t.TempDir(), "chain.json"))
	l, err := ledger.Open(context.Background(), store, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Append(context.Background(), ledger.ActionCreated, "r-1", "Reporter",
		map[string]any{"description": "pushed", "reporter_email": "a@x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	return l, store
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheckOnce_healthyChain(t *testing.T) {
	l, store := newFileLedger(t)
	var m counter
	c := health.New(l, store, health.Config{}, zap.NewNop())
	c.SetMetricsRecord(m.record)

	if err := c.CheckOnce(context.Background()); err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
	st := c.Status()
	if !st.Healthy || st.Failures != 0 || st.LastCheck.IsZero() {
		t.Errorf("unexpected status: %+v", st)
	}
	if m.ok != 1 || m.bad != 0 {
		t.Errorf("metrics ok=%d bad=%d", m.ok, m.bad)
	}
}

func TestCheckOnce_detectsTamperedStore(t *testing.T) {
	l, store := newFileLedger(t)
	ctx := context.Background()

	chain, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chain[1].Data["description"] = "nothing happened"
	if err := store.Save(ctx, chain); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c := health.New(l, store, health.Config{FailThreshold: 1}, zap.NewNop())
	if err := c.CheckOnce(ctx); err == nil {
		t.Fatal("expected tampered store to fail the probe")
	}
	if c.Status().Healthy {
		t.Error("expected degraded status")
	}
}

func TestCheckOnce_detectsRewrittenChain(t *testing.T) {
	l, store := newFileLedger(t)
	ctx := context.Background()

	// A different but internally valid chain of the same length.
	other, err := ledger.Open(ctx, ledger.NewFileStore(filepath.Join(t.TempDir(), "other.json")), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := other.Append(ctx, ledger.ActionCreated, "r-9", "Reporter", map[string]any{"description": "forged"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Save(ctx, other.Snapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c := health.New(l, store, health.Config{}, zap.NewNop())
	if err := c.CheckOnce(ctx); !errors.Is(err, health.ErrDiverged) {
		t.Fatalf("CheckOnce = %v, want ErrDiverged", err)
	}
}

func TestCheckOnce_storeAheadIsHealthy(t *testing.T) {
	l, store := newFileLedger(t)
	ctx := context.Background()

	// Simulate an append persisted but not yet published.
	ahead, err := ledger.Open(ctx, store, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := ahead.Append(ctx, ledger.ActionEscalated, "r-1", "Admin", map[string]any{"remarks": ""}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	c := health.New(l, store, health.Config{}, zap.NewNop())
	if err := c.CheckOnce(ctx); err != nil {
		t.Fatalf("CheckOnce: %v", err)
	}
}

func TestCheckOnce_degradesAfterThresholdAndRecovers(t *testing.T) {
	l, store := newFileLedger(t)
	ctx := context.Background()

	loader := &switchLoader{ok: store, bad: failingLoader{err: errors.New("disk gone")}}
	loader.fail = true

	var alerts int
	c := health.New(l, loader, health.Config{FailThreshold: 3}, zap.NewNop())
	c.SetAlert(func(context.Context, error) { alerts++ })

	for i := 1; i <= 4; i++ {
		_ = c.CheckOnce(ctx)
		st := c.Status()
		if st.Failures != i {
			t.Fatalf("check %d: failures = %d", i, st.Failures)
		}
		if wantHealthy := i < 3; st.Healthy != wantHealthy {
			t.Fatalf("check %d: healthy = %v, want %v", i, st.Healthy, wantHealthy)
		}
	}
	if alerts != 1 {
		t.Errorf("alerts = %d, want exactly one at the threshold", alerts)
	}

	loader.fail = false
	if err := c.CheckOnce(ctx); err != nil {
		t.Fatalf("CheckOnce after recovery: %v", err)
	}
	if st := c.Status(); !st.Healthy || st.Failures != 0 || st.LastError != "" {
		t.Errorf("unexpected status after recovery: %+v", st)
	}
}

func TestStart_stopsOnContextCancel(t *testing.T) {
	l, store := newFileLedger(t)
	var m counter
	c := health.New(l, store, health.Config{CheckInterval: 5 * time.Millisecond}, zap.NewNop())
	c.SetMetricsRecord(m.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		m.mu.Lock()
		n := m.ok
		m.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no check ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

type switchLoader struct {
	ok   health.ChainLoader
	bad  health.ChainLoader
	fail bool
}

func (s *switchLoader) Load(ctx context.Context) ([]ledger.Block, error) {
	if s.fail {
		return s.bad.Load(ctx)
	}
	return s.ok.Load(ctx)
}
