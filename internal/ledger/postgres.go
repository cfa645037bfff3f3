package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises chain writers across processes sharing one
// database. The value is arbitrary but must be the same everywhere.
const advisoryLockKey = int64(2_001_118_301)

const createBlocksTable = `
CREATE TABLE IF NOT EXISTS ledger_blocks (
	idx         BIGINT PRIMARY KEY,
	action_type TEXT NOT NULL,
	report_id   TEXT,
	body        TEXT NOT NULL,
	stored_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_blocks_report_id_idx ON ledger_blocks (report_id);`

// PostgresStore persists the chain to a ledger_blocks table. The exact JSON
// of each block is kept in body so digests are unaffected by column types.
// Save only inserts the suffix not yet stored, inside one transaction, so a
// failed Save leaves the table unchanged.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Migrate creates the ledger_blocks table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createBlocksTable); err != nil {
		return fmt.Errorf("create ledger_blocks: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context) ([]Block, error) {
	rows, err := s.pool.Query(ctx, "SELECT idx, body FROM ledger_blocks ORDER BY idx ASC")
	if err != nil {
		return nil, fmt.Errorf("query ledger_blocks: %w", err)
	}
	defer rows.Close()

	var chain []Block
	for rows.Next() {
		var idx int64
		var body string
		if err := rows.Scan(&idx, &body); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		var b Block
		if err := json.Unmarshal([]byte(body), &b); err != nil {
			return nil, fmt.Errorf("parse block %d: %w", idx, err)
		}
		chain = append(chain, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return chain, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, chain []Block) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var stored int
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_blocks").Scan(&stored); err != nil {
		return fmt.Errorf("count ledger rows: %w", err)
	}
	if stored > len(chain) {
		return fmt.Errorf("stored chain has %d blocks, in-memory chain only %d", stored, len(chain))
	}

	// The stored tail must be the block we are extending.
	if stored > 0 {
		var tailBody string
		if err := tx.QueryRow(ctx,
			"SELECT body FROM ledger_blocks WHERE idx = $1", stored-1,
		).Scan(&tailBody); err != nil {
			return fmt.Errorf("read stored tail: %w", err)
		}
		want, err := json.Marshal(chain[stored-1])
		if err != nil {
			return fmt.Errorf("marshal tail: %w", err)
		}
		if tailBody != string(want) {
			return fmt.Errorf("stored tail at index %d diverges from in-memory chain", stored-1)
		}
	}

	for _, b := range chain[stored:] {
		body, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal block %d: %w", b.Index, err)
		}
		var reportID *string
		if b.ReportID != "" {
			rid := b.ReportID
			reportID = &rid
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_blocks (idx, action_type, report_id, body) VALUES ($1, $2, $3, $4)`,
			int64(b.Index), b.ActionType, reportID, string(body),
		); err != nil {
			return fmt.Errorf("insert block %d: %w", b.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger blocks stored",
		zap.Int("inserted", len(chain)-stored),
		zap.Int("total", len(chain)),
	)
	return nil
}
