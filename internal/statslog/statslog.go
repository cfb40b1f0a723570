// Package statslog periodically snapshots pool and device statistics
// to Postgres — an ambient observability concern the distilled spec
// is silent on but every production coordinator needs for later
// analysis (spec §6 external interfaces, supplemented).
package statslog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
)

// PoolSnapshot is one row of pool stats captured at Timestamp.
type PoolSnapshot struct {
	PoolID      int       `db:"pool_id"`
	Timestamp   time.Time `db:"ts"`
	Accepted    int64     `db:"accepted"`
	Rejected    int64     `db:"rejected"`
	Stale       int64     `db:"stale"`
	Diff1Shares float64   `db:"diff1_shares"`
	FoundBlocks int64     `db:"found_blocks"`
}

// DeviceSnapshot is one row of device stats captured at Timestamp.
type DeviceSnapshot struct {
	DeviceID    string    `db:"device_id"`
	Timestamp   time.Time `db:"ts"`
	HashrateHS  float64   `db:"hashrate_hs"`
	Temperature float64   `db:"temperature"`
	Liveness    int       `db:"liveness"`
}

// Repository persists snapshots to Postgres.
type Repository struct {
	db *sqlx.DB
}

// NewRepository wraps an already-open sqlx.DB.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// StorePoolSnapshot inserts one pool stats row.
func (r *Repository) StorePoolSnapshot(ctx context.Context, s PoolSnapshot) error {
	const query = `
		INSERT INTO pool_stats (pool_id, ts, accepted, rejected, stale, diff1_shares, found_blocks)
		VALUES (:pool_id, :ts, :accepted, :rejected, :stale, :diff1_shares, :found_blocks)
	`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("store pool snapshot: %w", err)
	}
	return nil
}

// StoreDeviceSnapshot inserts one device stats row.
func (r *Repository) StoreDeviceSnapshot(ctx context.Context, s DeviceSnapshot) error {
	const query = `
		INSERT INTO device_stats (device_id, ts, hashrate_hs, temperature, liveness)
		VALUES (:device_id, :ts, :hashrate_hs, :temperature, :liveness)
	`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("store device snapshot: %w", err)
	}
	return nil
}

// PoolHistory returns pool snapshots in [start, end], ordered by time.
func (r *Repository) PoolHistory(ctx context.Context, poolID int, start, end time.Time) ([]PoolSnapshot, error) {
	const query = `
		SELECT pool_id, ts, accepted, rejected, stale, diff1_shares, found_blocks
		FROM pool_stats
		WHERE pool_id = $1 AND ts BETWEEN $2 AND $3
		ORDER BY ts ASC
	`
	var out []PoolSnapshot
	if err := r.db.SelectContext(ctx, &out, query, poolID, start, end); err != nil {
		return nil, fmt.Errorf("query pool history: %w", err)
	}
	return out, nil
}

// PoolSource and DeviceSource supply the current counters for one
// sweep. cmd/coordinator adapts internal/pool.Pool and
// internal/device.Device to them; they are kept narrow so this
// package does not import either.
type PoolSource interface {
	PoolID() int
	Snapshot() (accepted, rejected, stale int64, diff1Shares float64, foundBlocks int64)
}

type DeviceSource interface {
	DeviceID() string
	Snapshot() (hashrateHS, temperature float64, liveness int)
}

// Logger periodically snapshots every registered source.
type Logger struct {
	repo     *Repository
	interval time.Duration
	pools    []PoolSource
	devices  []DeviceSource
}

// NewLogger creates a Logger that snapshots every interval.
func NewLogger(repo *Repository, interval time.Duration) *Logger {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Logger{repo: repo, interval: interval}
}

// RegisterPool adds a pool stats source to the periodic sweep.
func (l *Logger) RegisterPool(p PoolSource) { l.pools = append(l.pools, p) }

// RegisterDevice adds a device stats source to the periodic sweep.
func (l *Logger) RegisterDevice(d DeviceSource) { l.devices = append(l.devices, d) }

// Run snapshots every source on each tick until ctx is cancelled.
func (l *Logger) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

func (l *Logger) sweep(ctx context.Context) {
	now := time.Now()
	for _, p := range l.pools {
		accepted, rejected, stale, diff1, blocks := p.Snapshot()
		err := l.repo.StorePoolSnapshot(ctx, PoolSnapshot{
			PoolID: p.PoolID(), Timestamp: now,
			Accepted: accepted, Rejected: rejected, Stale: stale,
			Diff1Shares: diff1, FoundBlocks: blocks,
		})
		if err != nil {
			log.Printf("[statslog] %v", err)
		}
	}
	for _, d := range l.devices {
		hashrateHS, temperature, liveness := d.Snapshot()
		err := l.repo.StoreDeviceSnapshot(ctx, DeviceSnapshot{
			DeviceID: d.DeviceID(), Timestamp: now,
			HashrateHS: hashrateHS, Temperature: temperature, Liveness: liveness,
		})
		if err != nil {
			log.Printf("[statslog] %v", err)
		}
	}
}
