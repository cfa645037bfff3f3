// Package health periodically audits the persisted ledger against the chain
// the service is serving, so out-of-band edits to the backing store are
// noticed while the process runs.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// ChainSource is the live, in-memory chain.
type ChainSource interface {
	Len() int
	Get(index int) (ledger.Block, error)
}

// ChainLoader reads the persisted chain back from its store.
type ChainLoader interface {
	Load(ctx context.Context) ([]ledger.Block, error)
}

// ErrDiverged is returned when the persisted chain no longer extends the
// chain being served.
var ErrDiverged = errors.New("persisted chain diverged from served chain")

// Status is a snapshot of the checker's view.
type Status struct {
	Healthy   bool      `json:"healthy"`
	Failures  int       `json:"consecutive_failures"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// AlertFunc is an optional callback fired once when the checker degrades.
type AlertFunc func(ctx context.Context, err error)

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(success bool)

// Checker runs periodic integrity probes of the persisted chain.
type Checker struct {
	source ChainSource
	loader ChainLoader
	cfg    Config

	mu     sync.Mutex
	status Status

	onAlert   AlertFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker. The checker starts healthy; Open has already
// verified the chain it loaded.
func New(source ChainSource, loader ChainLoader, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		source: source,
		loader: loader,
		cfg:    cfg,
		status: Status{Healthy: true},
		logger: logger,
	}
}

// SetAlert configures the degradation callback.
func (h *Checker) SetAlert(fn AlertFunc) {
	h.onAlert = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the check loop until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Status returns the result of the most recent check.
func (h *Checker) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// CheckOnce probes the store and updates the status. It returns the probe
// error, if any.
func (h *Checker) CheckOnce(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()

	err := h.probe(pctx)
	if h.onMetrics != nil {
		h.onMetrics(err == nil)
	}

	h.mu.Lock()
	prev := h.status
	next := Status{LastCheck: time.Now().UTC()}
	if err == nil {
		next.Healthy = true
	} else {
		next.Failures = prev.Failures + 1
		next.Healthy = next.Failures < h.cfg.FailThreshold
		next.LastError = err.Error()
	}
	h.status = next
	h.mu.Unlock()

	switch {
	case err == nil && !prev.Healthy:
		h.logger.Info("health: ledger store recovered")
	case err != nil && next.Failures == h.cfg.FailThreshold:
		// Transition: healthy → degraded (exactly at threshold)
		h.logger.Error("health: ledger store degraded",
			zap.Int("fail_count", next.Failures),
			zap.Error(err),
		)
		if h.onAlert != nil {
			h.onAlert(ctx, err)
		}
	case err != nil:
		h.logger.Warn("health: ledger probe failed", zap.Int("fail_count", next.Failures), zap.Error(err))
	}
	return err
}

// probe loads the persisted chain, verifies it, and checks that it still
// extends the served chain. The store may be ahead of memory by in-flight
// appends, never behind.
func (h *Checker) probe(ctx context.Context) error {
	n := h.source.Len()
	if n == 0 {
		return nil
	}
	tail, err := h.source.Get(n - 1)
	if err != nil {
		return fmt.Errorf("read served tail: %w", err)
	}
	want, err := ledger.DigestBlock(tail)
	if err != nil {
		return fmt.Errorf("digest served tail: %w", err)
	}

	persisted, err := h.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted chain: %w", err)
	}
	if err := ledger.VerifyChain(persisted); err != nil {
		return fmt.Errorf("verify persisted chain: %w", err)
	}
	if len(persisted) < n {
		return fmt.Errorf("%w: %d persisted blocks, %d served", ErrDiverged, len(persisted), n)
	}
	got, err := ledger.DigestBlock(persisted[n-1])
	if err != nil {
		return fmt.Errorf("digest persisted block %d: %w", n-1, err)
	}
	if got != want {
		return fmt.Errorf("%w: block %d hash %s, served %s", ErrDiverged, n-1, got, want)
	}
	return nil
}
