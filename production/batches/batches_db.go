package batches

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"baletrack/infrastructure/apperr"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sequence"
	"baletrack/infrastructure/sqlite"
	"baletrack/models"
	"baletrack/production/items"
)

// IDPrefix starts every batch id.
const IDPrefix = "P"

// BarcodeResolver finds an item from scanned barcode text.
type BarcodeResolver interface {
	GetByBarcode(ctx context.Context, text string) (models.ProductionItem, error)
}

// Service aggregates graded items of one sort into pallets.
type Service struct {
	db       *sqlite.DB
	resolver BarcodeResolver
	sink     notify.Sink
	logger   *zap.Logger
	loc      *time.Location
	Now      func() time.Time
}

func NewService(db *sqlite.DB, resolver BarcodeResolver, sink notify.Sink, logger *zap.Logger, loc *time.Location) *Service {
	if sink == nil {
		sink = notify.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, resolver: resolver, sink: sink, logger: logger.Named("batches"), loc: loc, Now: time.Now}
}

// Create opens an empty batch for sort.
func (s *Service) Create(ctx context.Context, actor, sort string) (View, error) {
	sort = strings.TrimSpace(sort)
	if sort == "" {
		return View{}, apperr.Validation("sort", "is required")
	}
	now := s.Now()
	var (
		out notify.Outbox
		b   models.Batch
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		id, err := sequence.NextID(ctx, tx, sequence.ScopeBatch, IDPrefix, now.In(s.loc))
		if err != nil {
			return err
		}
		b = models.Batch{ID: id, Sort: sort, Status: models.BatchOpen, CreatedBy: actor, CreatedAt: now.UTC()}
		if _, err := tx.NewInsert().Model(&b).Exec(ctx); err != nil {
			return err
		}
		out.Add(notify.Event{Action: "batch.create", EntityType: "batch", EntityID: b.ID, NewValue: b, ActorID: actor, OccurredAt: now})
		return nil
	})
	if err != nil {
		return View{}, err
	}
	out.Flush(ctx, s.sink)
	return newView(b, nil), nil
}

// AddItem palletizes a Graded item into an Open batch of the same sort.
func (s *Service) AddItem(ctx context.Context, actor, batchID, itemID string) (View, error) {
	now := s.Now()
	var (
		out  notify.Outbox
		view View
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		b, err := load(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if b.Status != models.BatchOpen {
			return apperr.InvalidState("batch", b.ID, string(b.Status), "add item to")
		}
		item, err := items.Load(ctx, tx, itemID)
		if err != nil {
			return err
		}
		present, err := tx.NewSelect().Model((*models.ProductionItem)(nil)).
			Where("pi.batch_id = ?", b.ID).
			Where("pi.serial_number = ?", item.SerialNumber).
			Exists(ctx)
		if err != nil {
			return err
		}
		if present {
			return apperr.Conflict("serial %d is already in batch %s", item.SerialNumber, b.ID)
		}
		if item.Status != models.ItemGraded {
			return apperr.InvalidState("item", item.ID, string(item.Status), "palletize")
		}
		if item.SortValue() != b.Sort {
			return apperr.Validation("sort", "item sort %q does not match batch sort %q", item.SortValue(), b.Sort)
		}

		var last int64
		err = tx.NewRaw("SELECT COALESCE(MAX(batch_position), 0) FROM production_items WHERE batch_id = ?", b.ID).Scan(ctx, &last)
		if err != nil {
			return err
		}
		mover := items.Mover{Tx: tx, Out: &out, Actor: actor, At: now}
		if err := mover.EnterBatch(ctx, item, b.ID, last+1); err != nil {
			return err
		}
		out.Add(notify.Event{Action: "batch.add_item", EntityType: "batch", EntityID: b.ID, NewValue: map[string]any{"itemId": item.ID, "serialNumber": item.SerialNumber}, ActorID: actor, OccurredAt: now})

		view, err = loadView(ctx, tx, b)
		return err
	})
	if err != nil {
		return View{}, err
	}
	out.Flush(ctx, s.sink)
	return view, nil
}

// AddItemByBarcode resolves a scanned barcode and adds the item.
func (s *Service) AddItemByBarcode(ctx context.Context, actor, batchID, text string) (View, error) {
	if s.resolver == nil {
		return View{}, apperr.Validation("barcode", "barcode lookup is not configured")
	}
	item, err := s.resolver.GetByBarcode(ctx, text)
	if err != nil {
		return View{}, err
	}
	return s.AddItem(ctx, actor, batchID, item.ID)
}

// RemoveItem returns the member with serial to Graded. Removing an absent serial is a no-op.
func (s *Service) RemoveItem(ctx context.Context, actor, batchID string, serial int64) (View, error) {
	now := s.Now()
	var (
		out  notify.Outbox
		view View
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		b, err := load(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if b.Status != models.BatchOpen {
			return apperr.InvalidState("batch", b.ID, string(b.Status), "remove item from")
		}
		item := new(models.ProductionItem)
		err = tx.NewSelect().Model(item).
			Where("pi.batch_id = ?", b.ID).
			Where("pi.serial_number = ?", serial).
			Where("pi.status = ?", models.ItemPalletized).
			Limit(1).Scan(ctx)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			view, err = loadView(ctx, tx, b)
			return err
		case err != nil:
			return err
		}

		mover := items.Mover{Tx: tx, Out: &out, Actor: actor, At: now}
		if err := mover.LeaveBatch(ctx, item); err != nil {
			return err
		}
		out.Add(notify.Event{Action: "batch.remove_item", EntityType: "batch", EntityID: b.ID, OldValue: map[string]any{"itemId": item.ID, "serialNumber": serial}, ActorID: actor, OccurredAt: now})

		view, err = loadView(ctx, tx, b)
		return err
	})
	if err != nil {
		return View{}, err
	}
	out.Flush(ctx, s.sink)
	return view, nil
}

// Close freezes an Open batch.
func (s *Service) Close(ctx context.Context, actor, batchID string) (View, error) {
	now := s.Now()
	var (
		out  notify.Outbox
		view View
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		b, err := load(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if b.Status != models.BatchOpen {
			return apperr.InvalidState("batch", b.ID, string(b.Status), "close")
		}
		before := b
		closedAt := now.UTC()
		res, err := tx.NewUpdate().Model((*models.Batch)(nil)).
			Set("status = ?", models.BatchClosed).
			Set("closed_at = ?", closedAt).
			Where("id = ?", b.ID).
			Where("status = ?", models.BatchOpen).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.Conflict("batch %s changed concurrently", b.ID)
		}
		b.Status = models.BatchClosed
		b.ClosedAt = &closedAt
		out.Add(notify.Event{Action: "batch.close", EntityType: "batch", EntityID: b.ID, OldValue: before, NewValue: b, ActorID: actor, OccurredAt: now})

		view, err = loadView(ctx, tx, b)
		return err
	})
	if err != nil {
		return View{}, err
	}
	out.Flush(ctx, s.sink)
	return view, nil
}

// Disband returns every member to Graded and deletes the batch. A batch with shipped
// members cannot be disbanded.
func (s *Service) Disband(ctx context.Context, actor, batchID string) (DisbandResult, error) {
	now := s.Now()
	var (
		out    notify.Outbox
		result DisbandResult
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		b, err := load(ctx, tx, batchID)
		if err != nil {
			return err
		}
		rows, err := members(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		for _, m := range rows {
			if m.Status == models.ItemShipped {
				return apperr.InvalidState("batch", b.ID, "shipped", "disband")
			}
		}
		before := newView(b, append([]models.ProductionItem(nil), rows...))

		mover := items.Mover{Tx: tx, Out: &out, Actor: actor, At: now}
		freed := make([]models.ProductionItem, 0, len(rows))
		for i := range rows {
			if err := mover.LeaveBatch(ctx, &rows[i]); err != nil {
				return err
			}
			freed = append(freed, rows[i])
		}
		if _, err := tx.NewDelete().Model((*models.Batch)(nil)).Where("id = ?", b.ID).Exec(ctx); err != nil {
			return err
		}
		out.Add(notify.Event{Action: "batch.disband", EntityType: "batch", EntityID: b.ID, OldValue: before, ActorID: actor, OccurredAt: now})
		result = DisbandResult{BatchID: b.ID, Freed: freed}
		return nil
	})
	if err != nil {
		return DisbandResult{}, err
	}
	s.logger.Info("batch disbanded", zap.String("batch_id", result.BatchID), zap.Int("freed", len(result.Freed)))
	out.Flush(ctx, s.sink)
	return result, nil
}

// Get returns one batch with its items.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	var view View
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		b, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		view, err = loadView(ctx, tx, b)
		return err
	})
	return view, err
}

// List returns batches, newest first, optionally restricted to status.
func (s *Service) List(ctx context.Context, status models.BatchStatus) ([]View, error) {
	views := make([]View, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		rows := make([]models.Batch, 0)
		q := tx.NewSelect().Model(&rows)
		if status != "" {
			q = q.Where("b.status = ?", status)
		}
		if err := q.OrderExpr("b.created_at DESC, b.id DESC").Scan(ctx); err != nil {
			return err
		}
		for _, b := range rows {
			v, err := loadView(ctx, tx, b)
			if err != nil {
				return err
			}
			views = append(views, v)
		}
		return nil
	})
	return views, err
}

func load(ctx context.Context, db bun.IDB, id string) (models.Batch, error) {
	var b models.Batch
	err := db.NewSelect().Model(&b).Where("b.id = ?", strings.TrimSpace(id)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Batch{}, apperr.NotFound("batch", id)
	}
	return b, err
}

// members returns every item that carries batchID, including shipped ones.
func members(ctx context.Context, db bun.IDB, batchID string) ([]models.ProductionItem, error) {
	rows := make([]models.ProductionItem, 0)
	err := db.NewSelect().Model(&rows).
		Where("pi.batch_id = ?", batchID).
		OrderExpr("pi.batch_position ASC, pi.serial_number ASC").
		Scan(ctx)
	return rows, err
}

func loadView(ctx context.Context, db bun.IDB, b models.Batch) (View, error) {
	rows, err := members(ctx, db, b.ID)
	if err != nil {
		return View{}, err
	}
	return newView(b, rows), nil
}
