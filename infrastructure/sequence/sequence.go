// Package sequence allocates day-scoped counters used for human-visible container ids.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

const (
	ScopeBatch = "batch"
	ScopeQuad  = "quad"
)

// Next increments and returns the counter for scope on day. It must run inside the
// caller's write transaction so the id is consumed only if the caller commits.
// The first call for a new day returns 1.
func Next(ctx context.Context, tx bun.Tx, scope string, day time.Time) (int64, error) {
	var value int64
	err := tx.NewRaw(`
INSERT INTO daily_sequences (scope, day, value)
VALUES (?, ?, 1)
ON CONFLICT(scope, day) DO UPDATE SET value = value + 1
RETURNING value`, scope, day.Format("20060102")).Scan(ctx, &value)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", scope, err)
	}
	return value, nil
}

// FormatID renders prefix-YYYYMMDD-NNN.
func FormatID(prefix string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, day.Format("20060102"), seq)
}

// NextID allocates the next id for scope and renders it with prefix.
func NextID(ctx context.Context, tx bun.Tx, scope, prefix string, day time.Time) (string, error) {
	seq, err := Next(ctx, tx, scope, day)
	if err != nil {
		return "", err
	}
	return FormatID(prefix, day, seq), nil
}

// Prune drops counters for days strictly before cutoff.
func Prune(ctx context.Context, tx bun.Tx, cutoff time.Time) (int64, error) {
	res, err := tx.NewRaw(`DELETE FROM daily_sequences WHERE day < ?`, cutoff.Format("20060102")).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
