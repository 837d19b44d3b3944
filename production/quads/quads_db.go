package quads

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

// IDPrefix starts every quad id.
const IDPrefix = "Q"

// Service packs graded items into fixed four-item shipping units.
type Service struct {
	db     *sqlite.DB
	sink   notify.Sink
	logger *zap.Logger
	loc    *time.Location
	Now    func() time.Time
}

func NewService(db *sqlite.DB, sink notify.Sink, logger *zap.Logger, loc *time.Location) *Service {
	if sink == nil {
		sink = notify.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, sink: sink, logger: logger.Named("quads"), loc: loc, Now: time.Now}
}

// Create packs exactly four Graded items of one product and sort into a new quad.
func (s *Service) Create(ctx context.Context, actor string, itemIDs []string) (View, error) {
	if len(itemIDs) != Size {
		return View{}, apperr.Validation("itemIds", "quad requires exactly %d items, got %d", Size, len(itemIDs))
	}
	ids := make([]string, 0, Size)
	seen := make(map[string]struct{}, Size)
	for i, id := range itemIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return View{}, apperr.Validation("itemIds", "item id %d is empty", i+1)
		}
		if _, dup := seen[id]; dup {
			return View{}, apperr.Validation("itemIds", "item %s is listed more than once", id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	now := s.Now()
	var (
		out  notify.Outbox
		view View
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		members := make([]*models.ProductionItem, 0, Size)
		for _, id := range ids {
			item, err := items.Load(ctx, tx, id)
			if err != nil {
				return err
			}
			if item.Status != models.ItemGraded {
				return apperr.InvalidState("item", item.ID, string(item.Status), "pack")
			}
			members = append(members, item)
		}
		first := members[0]
		for _, m := range members[1:] {
			if m.ProductName != first.ProductName || m.SortValue() != first.SortValue() {
				return apperr.Validation("itemIds", "mixed product/sort: %s/%s and %s/%s",
					first.ProductName, first.SortValue(), m.ProductName, m.SortValue())
			}
		}

		id, err := sequence.NextID(ctx, tx, sequence.ScopeQuad, IDPrefix, now.In(s.loc))
		if err != nil {
			return err
		}
		q := models.Quad{
			ID:          id,
			ProductName: first.ProductName,
			Sort:        first.SortValue(),
			Status:      models.QuadCreated,
			CreatedBy:   actor,
			CreatedAt:   now.UTC(),
		}
		if _, err := tx.NewInsert().Model(&q).Exec(ctx); err != nil {
			return err
		}
		mover := items.Mover{Tx: tx, Out: &out, Actor: actor, At: now}
		packed := make([]models.ProductionItem, 0, Size)
		for _, m := range members {
			if err := mover.EnterQuad(ctx, m, q.ID); err != nil {
				return err
			}
			packed = append(packed, *m)
		}
		view = newView(q, packed)
		out.Add(notify.Event{Action: "quad.create", EntityType: "quad", EntityID: q.ID, NewValue: view, ActorID: actor, OccurredAt: now})
		return nil
	})
	if err != nil {
		return View{}, err
	}
	out.Flush(ctx, s.sink)
	return view, nil
}

// SendToWarehouse stores a Created quad and its four items. A non-empty location is
// recorded on the quad and on every item.
func (s *Service) SendToWarehouse(ctx context.Context, actor, quadID string, location *string) (View, error) {
	if location != nil {
		trimmed := strings.TrimSpace(*location)
		location = &trimmed
		if trimmed == "" {
			location = nil
		}
	}
	now := s.Now()
	var (
		out  notify.Outbox
		view View
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		q, err := load(ctx, tx, quadID)
		if err != nil {
			return err
		}
		if q.Status != models.QuadCreated {
			return apperr.InvalidState("quad", q.ID, string(q.Status), "send to warehouse")
		}
		rows, err := members(ctx, tx, q.ID)
		if err != nil {
			return err
		}
		before := newView(q, append([]models.ProductionItem(nil), rows...))

		storedAt := now.UTC()
		upd := tx.NewUpdate().Model((*models.Quad)(nil)).
			Set("status = ?", models.QuadWarehouse).
			Set("warehoused_at = ?", storedAt).
			Where("id = ?", q.ID).
			Where("status = ?", models.QuadCreated)
		if location != nil {
			upd = upd.Set("location_id = ?", *location)
		}
		res, err := upd.Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.Conflict("quad %s changed concurrently", q.ID)
		}
		q.Status = models.QuadWarehouse
		q.WarehousedAt = &storedAt
		if location != nil {
			q.LocationID = location
		}

		mover := items.Mover{Tx: tx, Out: &out, Actor: actor, At: now}
		for i := range rows {
			if err := mover.Store(ctx, &rows[i], location); err != nil {
				return err
			}
		}
		view = newView(q, rows)
		out.Add(notify.Event{Action: "quad.warehouse", EntityType: "quad", EntityID: q.ID, OldValue: before, NewValue: view, ActorID: actor, OccurredAt: now})
		return nil
	})
	if err != nil {
		return View{}, err
	}
	out.Flush(ctx, s.sink)
	return view, nil
}

// Disband returns the items of a Created quad to Graded and deletes the quad.
func (s *Service) Disband(ctx context.Context, actor, quadID string) ([]models.ProductionItem, error) {
	now := s.Now()
	var (
		out   notify.Outbox
		freed []models.ProductionItem
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		q, err := load(ctx, tx, quadID)
		if err != nil {
			return err
		}
		if q.Status != models.QuadCreated {
			return apperr.InvalidState("quad", q.ID, string(q.Status), "disband")
		}
		rows, err := members(ctx, tx, q.ID)
		if err != nil {
			return err
		}
		before := newView(q, append([]models.ProductionItem(nil), rows...))

		mover := items.Mover{Tx: tx, Out: &out, Actor: actor, At: now}
		for i := range rows {
			if err := mover.LeaveQuad(ctx, &rows[i]); err != nil {
				return err
			}
		}
		if _, err := tx.NewDelete().Model((*models.Quad)(nil)).Where("id = ?", q.ID).Exec(ctx); err != nil {
			return err
		}
		freed = rows
		out.Add(notify.Event{Action: "quad.disband", EntityType: "quad", EntityID: q.ID, OldValue: before, ActorID: actor, OccurredAt: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Flush(ctx, s.sink)
	return freed, nil
}

// ListAvailable returns Graded items outside any container that could be packed
// together, oldest first.
func (s *Service) ListAvailable(ctx context.Context, productName, sort string) ([]models.ProductionItem, error) {
	productName = strings.TrimSpace(productName)
	if productName == "" {
		return nil, apperr.Validation("product", "is required")
	}
	rows := make([]models.ProductionItem, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&rows).
			Where("pi.status = ?", models.ItemGraded).
			Where("pi.batch_id IS NULL").
			Where("pi.quad_id IS NULL").
			Where("pi.product_name = ? COLLATE NOCASE", productName)
		if sort = strings.TrimSpace(sort); sort != "" {
			q = q.Where("pi.sort = ?", sort)
		}
		return q.OrderExpr("pi.production_date ASC, pi.serial_number ASC").Scan(ctx)
	})
	return rows, err
}

// Get returns one quad with its items.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	var view View
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		rows, err := members(ctx, tx, q.ID)
		if err != nil {
			return err
		}
		view = newView(q, rows)
		return nil
	})
	return view, err
}

// List returns quads, newest first, optionally restricted to status.
func (s *Service) List(ctx context.Context, status models.QuadStatus) ([]View, error) {
	views := make([]View, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		quads := make([]models.Quad, 0)
		sel := tx.NewSelect().Model(&quads)
		if status != "" {
			sel = sel.Where("q.status = ?", status)
		}
		if err := sel.OrderExpr("q.created_at DESC, q.id DESC").Scan(ctx); err != nil {
			return err
		}
		for _, q := range quads {
			rows, err := members(ctx, tx, q.ID)
			if err != nil {
				return err
			}
			views = append(views, newView(q, rows))
		}
		return nil
	})
	return views, err
}

func load(ctx context.Context, db bun.IDB, id string) (models.Quad, error) {
	var q models.Quad
	err := db.NewSelect().Model(&q).Where("q.id = ?", strings.TrimSpace(id)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Quad{}, apperr.NotFound("quad", id)
	}
	return q, err
}

func members(ctx context.Context, db bun.IDB, quadID string) ([]models.ProductionItem, error) {
	rows := make([]models.ProductionItem, 0, Size)
	err := db.NewSelect().Model(&rows).
		Where("pi.quad_id = ?", quadID).
		OrderExpr("pi.production_date ASC, pi.serial_number ASC").
		Scan(ctx)
	return rows, err
}
