package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/models"
)

// Service is the audit-trail sink. Each event is persisted in its own write
// transaction after the originating transaction has committed.
type Service struct {
	db     *sqlite.DB
	logger *zap.Logger
}

func NewService(db *sqlite.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger.Named("audit")}
}

// Entry is an audit row with decoded snapshots.
type Entry struct {
	ID         int64           `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Notify implements notify.Sink. Failures are logged, never returned.
func (s *Service) Notify(ctx context.Context, ev notify.Event) {
	if err := s.Write(ctx, ev); err != nil {
		s.logger.Error("write audit log",
			zap.String("action", ev.Action),
			zap.String("entity_type", ev.EntityType),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err))
	}
}

// Write persists one event.
func (s *Service) Write(ctx context.Context, ev notify.Event) error {
	return s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return WriteTx(ctx, tx, ev)
	})
}

// WriteTx persists one event inside an existing transaction.
func WriteTx(ctx context.Context, tx bun.Tx, ev notify.Event) error {
	beforeJSON, err := marshal(ev.OldValue)
	if err != nil {
		return fmt.Errorf("marshal before: %w", err)
	}
	afterJSON, err := marshal(ev.NewValue)
	if err != nil {
		return fmt.Errorf("marshal after: %w", err)
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	row := &models.AuditLog{
		ActorID:    ev.ActorID,
		Action:     ev.Action,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		BeforeJSON: beforeJSON,
		AfterJSON:  afterJSON,
		CreatedAt:  at.UTC(),
	}
	_, err = tx.NewInsert().Model(row).Exec(ctx)
	return err
}

// List returns the history of one entity, oldest first.
func (s *Service) List(ctx context.Context, entityType, entityID string) ([]Entry, error) {
	rows := make([]models.AuditLog, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&rows).
			Where("entity_type = ?", entityType).
			Where("entity_id = ?", entityID).
			OrderExpr("created_at ASC, id ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{
			ID:         row.ID,
			ActorID:    row.ActorID,
			Action:     row.Action,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Before:     raw(row.BeforeJSON),
			After:      raw(row.AfterJSON),
			CreatedAt:  row.CreatedAt,
		})
	}
	return entries, nil
}

// Purge deletes rows created before cutoff and returns how many were removed.
func (s *Service) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*models.AuditLog)(nil)).Where("created_at < ?", cutoff.UTC()).Exec(ctx)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func marshal(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func raw(v string) json.RawMessage {
	if v == "" {
		return nil
	}
	return json.RawMessage(v)
}
