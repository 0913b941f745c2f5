package streamreg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/swarmdb/node/pkg/logging"
	sqlpool "github.com/swarmdb/node/pkg/sqlpool"
)

// migrationObserver logs the single migration-check query/exec pair
// through the node's structured logger, so a slow or failing
// CREATE TABLE IF NOT EXISTS on startup shows up the same way every
// other query on this node does instead of only surfacing as a
// returned error.
type migrationObserver struct {
	log logging.Logger
}

func (o migrationObserver) OnQuery(operation string, duration time.Duration, err error) {
	fields := map[string]interface{}{"operation": operation, "duration_ms": duration.Milliseconds()}
	if err != nil {
		o.log.WithFields(fields).Errorf("streamreg: postgres migration %s failed: %v", operation, err)
		return
	}
	o.log.WithFields(fields).Infof("streamreg: postgres migration %s", operation)
}

// PgSnapshotConfig configures the optional present-offset-map
// checkpoint to Postgres. This is additive persistence for operators
// running a fleet of nodes behind a shared dashboard; the event log
// segments remain the source of truth.
type PgSnapshotConfig struct {
	DSN            string
	NodeID         string
	CheckpointEach time.Duration
}

// PgSnapshot periodically writes a registry's present offset map to a
// Postgres table.
type PgSnapshot struct {
	cfg  PgSnapshotConfig
	pool *pgxpool.Pool
}

// OpenPgSnapshot connects to Postgres and verifies the checkpoint
// table exists, creating it via a plain database/sql + lib/pq
// connection for the one-time migration check (the hot write path
// uses the pgx pool below).
func OpenPgSnapshot(ctx context.Context, cfg PgSnapshotConfig) (*PgSnapshot, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("streamreg: PgSnapshotConfig.NodeID is required")
	}
	if err := migratePg(cfg.DSN); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("streamreg: connecting pgx pool: %w", err)
	}
	return &PgSnapshot{cfg: cfg, pool: pool}, nil
}

// migratePg opens a short-lived pool sized for the one-time migration
// check (lib/pq driver; the hot write path uses the pgx pool above) and
// creates the checkpoint table if it doesn't already exist.
func migratePg(dsn string) error {
	cfg := sqlpool.DefaultPoolConfig(dsn, "postgres")
	cfg.MaxOpenConns = 2
	cfg.MaxIdleConns = 1
	cfg.Observer = migrationObserver{log: logging.NewLogger(logging.LoggerConfig{Level: "INFO"}).WithFields(map[string]interface{}{"component": "streamreg.pgsnapshot"})}

	pool, err := sqlpool.NewPool(cfg)
	if err != nil {
		return fmt.Errorf("streamreg: opening migration connection: %w", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS stream_registry_checkpoints (
		node_id TEXT NOT NULL,
		stream_id TEXT NOT NULL,
		present_offset BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (node_id, stream_id)
	)`)
	if err != nil {
		return fmt.Errorf("streamreg: migrating checkpoint table: %w", err)
	}
	return nil
}

// Checkpoint writes present to the checkpoint table under this node's id.
func (p *PgSnapshot) Checkpoint(ctx context.Context, present map[string]uint64) error {
	batch := &pgxBatchWriter{pool: p.pool, nodeID: p.cfg.NodeID}
	return batch.write(ctx, present)
}

type pgxBatchWriter struct {
	pool   *pgxpool.Pool
	nodeID string
}

func (w *pgxBatchWriter) write(ctx context.Context, present map[string]uint64) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("streamreg: begin checkpoint tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for streamID, offset := range present {
		_, err := tx.Exec(ctx, `INSERT INTO stream_registry_checkpoints (node_id, stream_id, present_offset, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (node_id, stream_id) DO UPDATE SET present_offset = excluded.present_offset, updated_at = now()`,
			w.nodeID, streamID, int64(offset))
		if err != nil {
			return fmt.Errorf("streamreg: upserting checkpoint for %s: %w", streamID, err)
		}
	}
	return tx.Commit(ctx)
}

// Run checkpoints on cfg.CheckpointEach until ctx is cancelled.
func (p *PgSnapshot) Run(ctx context.Context, present func() map[string]uint64) {
	interval := p.cfg.CheckpointEach
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Checkpoint(ctx, present())
		}
	}
}

// Close releases the pgx pool.
func (p *PgSnapshot) Close() {
	p.pool.Close()
}
