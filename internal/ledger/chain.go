package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ledger is the single-writer, hash-chained log. It keeps the whole chain in
// memory, mirrors it to a Store after every append, and answers the derived
// views from incrementally maintained indices.
//
// Appends are serialised end to end by writeMu. Readers share mu in read
// mode; the writer takes it exclusively only to publish a block that has
// already been persisted, so readers never wait on storage I/O.
type Ledger struct {
	writeMu sync.Mutex

	mu       sync.RWMutex
	blocks   []Block // published chain; a published slice is never modified
	tailHash string  // DigestBlock of blocks[len-1]
	idx      *index

	store    Store
	sla      SLAPolicy
	now      func() time.Time
	onAppend func(Block)
	logger   *zap.Logger
}

// Option configures a Ledger at Open time.
type Option func(*Ledger)

// WithClock overrides the time source used for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithSLAPolicy overrides the deadline policy applied to Created blocks.
func WithSLAPolicy(p SLAPolicy) Option {
	return func(l *Ledger) { l.sla = p }
}

// WithAppendHook registers fn to observe every published block. fn runs with
// the writer lock held, in chain order, and must not call back into the Ledger.
func WithAppendHook(fn func(Block)) Option {
	return func(l *Ledger) { l.onAppend = fn }
}

// OpenFile opens the chain stored in the JSON file at path.
func OpenFile(ctx context.Context, path string, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	return Open(ctx, NewFileStore(path), logger, opts...)
}

// Open loads the chain from store, or creates and persists a genesis block
// when the store is empty. A chain that cannot be read or fails verification
// is reported as ErrStorageUnavailable and is never repaired.
func Open(ctx context.Context, store Store, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:  store,
		sla:    DefaultSLAPolicy(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}

	chain, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if chain == nil {
		genesis, err := l.genesis()
		if err != nil {
			return nil, err
		}
		chain = []Block{genesis}
		if err := store.Save(ctx, chain); err != nil {
			return nil, fmt.Errorf("%w: persist genesis: %w", ErrStorageUnavailable, err)
		}
		l.logger.Info("ledger initialised with genesis block")
	} else if err := verifyChain(chain); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	tail, err := DigestBlock(chain[len(chain)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: digest tail: %w", ErrStorageUnavailable, err)
	}

	l.blocks = chain
	l.tailHash = tail
	l.idx = buildIndex(chain)

	l.logger.Info("ledger loaded",
		zap.Int("blocks", len(chain)),
		zap.String("root", tail),
	)
	return l, nil
}

func (l *Ledger) genesis() (Block, error) {
	data := map[string]any{}
	dataHash, err := Digest(data)
	if err != nil {
		return Block{}, err
	}
	return Block{
		Index:        0,
		Timestamp:    l.now().UTC(),
		ActionType:   ActionGenesis,
		Actor:        "System",
		Data:         data,
		DataHash:     dataHash,
		PreviousHash: GenesisPreviousHash,
	}, nil
}

// Append adds a block chained to the current tail and persists the full
// chain before returning it. reportID may be empty. Created blocks receive an
// SLA deadline. If the store rejects the write, ErrPersistFailed is returned
// and the chain is exactly as it was before the call.
func (l *Ledger) Append(ctx context.Context, actionType, reportID, actor string, data map[string]any) (Block, error) {
	payload, err := normalizeData(data)
	if err != nil {
		return Block{}, fmt.Errorf("append %q: %w", actionType, err)
	}
	dataHash, err := Digest(payload)
	if err != nil {
		return Block{}, fmt.Errorf("append %q: %w", actionType, err)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	// Only this goroutine can replace l.blocks while writeMu is held.
	n := len(l.blocks)
	now := l.now().UTC()
	b := Block{
		Index:        uint64(n),
		Timestamp:    now,
		ActionType:   actionType,
		ReportID:     reportID,
		Actor:        actor,
		Data:         payload,
		DataHash:     dataHash,
		PreviousHash: l.tailHash,
	}
	if actionType == ActionCreated {
		deadline := l.sla.Deadline(now)
		b.SLADeadline = &deadline
	}

	hash, err := DigestBlock(b)
	if err != nil {
		return Block{}, fmt.Errorf("append %q: %w", actionType, err)
	}

	next := make([]Block, n+1)
	copy(next, l.blocks)
	next[n] = b

	if err := l.store.Save(ctx, next); err != nil {
		l.logger.Error("ledger persist failed",
			zap.Uint64("index", b.Index),
			zap.String("action_type", actionType),
			zap.Error(err),
		)
		return Block{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	l.mu.Lock()
	l.blocks = next
	l.tailHash = hash
	l.idx.add(n, &next[n])
	l.mu.Unlock()

	if l.onAppend != nil {
		l.onAppend(b.clone())
	}

	l.logger.Debug("ledger block appended",
		zap.Uint64("index", b.Index),
		zap.String("action_type", actionType),
		zap.String("report_id", reportID),
	)
	return b.clone(), nil
}

// Len returns the number of blocks, genesis included.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// Get returns the block at index.
func (l *Ledger) Get(index int) (Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.blocks) {
		return Block{}, fmt.Errorf("block %d: %w", index, ErrNotFound)
	}
	return l.blocks[index].clone(), nil
}

// Root returns the digest of the most recent block.
func (l *Ledger) Root() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tailHash
}

// Snapshot returns a copy of the whole chain.
func (l *Ledger) Snapshot() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Block, len(l.blocks))
	for i := range l.blocks {
		out[i] = l.blocks[i].clone()
	}
	return out
}

// Verify re-checks every block's index, data hash, and linkage.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	chain := l.blocks
	l.mu.RUnlock()
	return verifyChain(chain)
}

// VerifyChain checks that chain is a well-formed ledger: a genesis block at
// index 0, contiguous indices, matching data hashes, and unbroken linkage.
func VerifyChain(chain []Block) error {
	return verifyChain(chain)
}

func verifyChain(chain []Block) error {
	if len(chain) == 0 {
		return fmt.Errorf("chain is empty")
	}
	g := chain[0]
	if g.Index != 0 || g.ActionType != ActionGenesis || g.PreviousHash != GenesisPreviousHash {
		return fmt.Errorf("block 0 is not a genesis block")
	}

	var prevHash string
	for i := range chain {
		b := chain[i]
		if b.Index != uint64(i) {
			return fmt.Errorf("block at position %d has index %d", i, b.Index)
		}
		dataHash, err := Digest(b.Data)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		if dataHash != b.DataHash {
			return fmt.Errorf("block %d has invalid data hash", i)
		}
		if i > 0 && b.PreviousHash != prevHash {
			return fmt.Errorf("hash chain broken at index %d", i)
		}
		prevHash, err = DigestBlock(b)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}
