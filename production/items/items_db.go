package items

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"baletrack/infrastructure/apperr"
	"baletrack/infrastructure/audit"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/models"
	"baletrack/production/barcode"
)

// ProductLookup resolves catalog entries by name.
type ProductLookup interface {
	Get(ctx context.Context, name string) (models.Product, error)
}

// HistoryReader lists audit entries for one entity.
type HistoryReader interface {
	List(ctx context.Context, entityType, entityID string) ([]audit.Entry, error)
}

// Service owns the item lifecycle outside containers.
type Service struct {
	db       *sqlite.DB
	products ProductLookup
	history  HistoryReader
	sink     notify.Sink
	logger   *zap.Logger
	loc      *time.Location
	Now      func() time.Time
}

func NewService(db *sqlite.DB, products ProductLookup, history HistoryReader, sink notify.Sink, logger *zap.Logger, loc *time.Location) *Service {
	if sink == nil {
		sink = notify.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:       db,
		products: products,
		history:  history,
		sink:     sink,
		logger:   logger.Named("items"),
		loc:      loc,
		Now:      time.Now,
	}
}

// Create registers a new bale in Created state and derives its barcode.
func (s *Service) Create(ctx context.Context, actor string, in CreateInput) (models.ProductionItem, error) {
	if strings.TrimSpace(in.ProductName) == "" {
		return models.ProductionItem{}, apperr.Validation("productName", "is required")
	}
	if !in.Weight.IsPositive() {
		return models.ProductionItem{}, apperr.Validation("weight", "must be greater than 0, got %s", in.Weight.String())
	}
	if in.SerialNumber != nil && *in.SerialNumber <= 0 {
		return models.ProductionItem{}, apperr.Validation("serialNumber", "must be greater than 0")
	}
	now := s.Now()
	day := now.In(s.loc)
	if d := strings.TrimSpace(in.Date); d != "" {
		parsed, err := time.Parse(DateLayout, d)
		if err != nil {
			return models.ProductionItem{}, apperr.Validation("date", "%q is not a YYYY-MM-DD date", d)
		}
		day = parsed
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	product, err := s.products.Get(ctx, in.ProductName)
	if err != nil {
		return models.ProductionItem{}, err
	}

	item := models.ProductionItem{
		ID:             uuid.NewString(),
		ProductName:    product.Name,
		ProductSKU:     product.SKU,
		ProductionDate: day.Format(DateLayout),
		Weight:         in.Weight,
		Status:         models.ItemCreated,
		CreatedBy:      actor,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
		Version:        1,
	}

	var out notify.Outbox
	err = s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		if in.SerialNumber != nil {
			item.SerialNumber = *in.SerialNumber
		} else {
			var last int64
			err := tx.NewRaw(
				"SELECT COALESCE(MAX(serial_number), 0) FROM production_items WHERE product_sku = ? AND production_date = ?",
				item.ProductSKU, item.ProductionDate,
			).Scan(ctx, &last)
			if err != nil {
				return err
			}
			item.SerialNumber = last + 1
		}
		item.Barcode = barcode.Format(barcode.Code{Date: day, SKU: item.ProductSKU, Serial: item.SerialNumber, Weight: item.Weight})

		if _, err := tx.NewInsert().Model(&item).Exec(ctx); err != nil {
			return err
		}
		out.Add(notify.Event{Action: "item.create", EntityType: "item", EntityID: item.ID, NewValue: item, ActorID: actor, OccurredAt: now})
		return nil
	})
	if sqlite.IsUniqueViolation(err) {
		return models.ProductionItem{}, apperr.Conflict("item %s #%d on %s already exists", item.ProductSKU, item.SerialNumber, item.ProductionDate)
	}
	if err != nil {
		return models.ProductionItem{}, err
	}
	out.Flush(ctx, s.sink)
	return item, nil
}

// Grade assigns a sort. Graded items may be re-graded; items inside a container or
// already shipped may not.
func (s *Service) Grade(ctx context.Context, actor, id, sort string) (models.ProductionItem, error) {
	sort = strings.TrimSpace(sort)
	if sort == "" {
		return models.ProductionItem{}, apperr.Validation("sort", "is required")
	}
	if strings.TrimSpace(actor) == "" {
		return models.ProductionItem{}, apperr.Validation("actor", "is required")
	}
	return s.mutate(ctx, actor, id, "item.grade", func(ctx context.Context, tx bun.Tx, item *models.ProductionItem, at time.Time) error {
		if item.Status != models.ItemCreated && item.Status != models.ItemGraded {
			return apperr.InvalidState("item", item.ID, string(item.Status), "grade")
		}
		return transition(ctx, tx, item, models.ItemGraded, "grade", at, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("sort = ?", sort).Set("graded_by = ?", actor).Set("graded_at = ?", at.UTC())
		})
	})
}

// Revert returns a Graded item to Created and clears its grading.
func (s *Service) Revert(ctx context.Context, actor, id string) (models.ProductionItem, error) {
	return s.mutate(ctx, actor, id, "item.revert", func(ctx context.Context, tx bun.Tx, item *models.ProductionItem, at time.Time) error {
		if item.Status != models.ItemGraded {
			return apperr.InvalidState("item", item.ID, string(item.Status), "revert")
		}
		return transition(ctx, tx, item, models.ItemCreated, "revert", at, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("sort = NULL").Set("graded_by = NULL").Set("graded_at = NULL")
		})
	})
}

// SetLocation records the warehouse slot of a non-shipped item. An empty location clears it.
func (s *Service) SetLocation(ctx context.Context, actor, id, location string) (models.ProductionItem, error) {
	location = strings.TrimSpace(location)
	return s.mutate(ctx, actor, id, "item.locate", func(ctx context.Context, tx bun.Tx, item *models.ProductionItem, at time.Time) error {
		if item.Status == models.ItemShipped {
			return apperr.InvalidState("item", item.ID, string(item.Status), "locate")
		}
		return update(ctx, tx, item, item.Status, at, func(q *bun.UpdateQuery) *bun.UpdateQuery {
			if location == "" {
				return q.Set("location_id = NULL")
			}
			return q.Set("location_id = ?", location)
		})
	})
}

// Ship marks every listed item Shipped in one transaction. Any failure ships nothing.
func (s *Service) Ship(ctx context.Context, actor string, ids []string) ([]models.ProductionItem, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil, apperr.Validation("itemIds", "at least one item is required")
	}
	now := s.Now()
	shipped := make([]models.ProductionItem, 0, len(unique))
	var out notify.Outbox
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		shipped = shipped[:0]
		for _, id := range unique {
			item, err := Load(ctx, tx, id)
			if err != nil {
				return err
			}
			before := *item
			err = transition(ctx, tx, item, models.ItemShipped, "ship", now, func(q *bun.UpdateQuery) *bun.UpdateQuery {
				return q.Set("shipped_at = ?", now.UTC())
			})
			if err != nil {
				return err
			}
			shipped = append(shipped, *item)
			out.Add(notify.Event{Action: "item.ship", EntityType: "item", EntityID: item.ID, OldValue: before, NewValue: *item, ActorID: actor, OccurredAt: now})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("items shipped", zap.Int("count", len(shipped)), zap.String("actor", actor))
	out.Flush(ctx, s.sink)
	return shipped, nil
}

// Get returns one item.
func (s *Service) Get(ctx context.Context, id string) (models.ProductionItem, error) {
	var item *models.ProductionItem
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		item, err = Load(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.ProductionItem{}, err
	}
	return *item, nil
}

// GetByBarcode looks an item up by its printed barcode. When the text does not match
// a stored barcode exactly, the decoded date, SKU and serial are used instead.
func (s *Service) GetByBarcode(ctx context.Context, text string) (models.ProductionItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ProductionItem{}, apperr.Validation("barcode", "is required")
	}
	var item models.ProductionItem
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		found, err := FindByBarcode(ctx, tx, text, false)
		if err != nil {
			return err
		}
		if found == nil {
			return apperr.NotFound("item", text)
		}
		item = *found
		return nil
	})
	if err != nil {
		return models.ProductionItem{}, err
	}
	return item, nil
}

// FindByBarcode resolves scanned text: an exact stored barcode first, then the
// decoded (sku, date, serial). It returns a ValidationError when the text matches no
// stored barcode and cannot be decoded, and nil when nothing matches.
func FindByBarcode(ctx context.Context, db bun.IDB, text string, excludeShipped bool) (*models.ProductionItem, error) {
	item := new(models.ProductionItem)
	q := db.NewSelect().Model(item).Where("pi.barcode = ?", text)
	if excludeShipped {
		q = q.Where("pi.status <> ?", models.ItemShipped)
	}
	err := q.Limit(1).Scan(ctx)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	code, err := barcode.Parse(text)
	if err != nil {
		return nil, err
	}
	return FindByCode(ctx, db, code, excludeShipped)
}

// FindByCode matches a decoded barcode on (sku, date, serial). Weight is not part of
// the identity. It returns nil when nothing matches.
func FindByCode(ctx context.Context, db bun.IDB, code barcode.Code, excludeShipped bool) (*models.ProductionItem, error) {
	item := new(models.ProductionItem)
	q := db.NewSelect().Model(item).
		Where("pi.product_sku = ?", code.SKU).
		Where("pi.production_date = ?", code.Date.Format(DateLayout)).
		Where("pi.serial_number = ?", code.Serial)
	if excludeShipped {
		q = q.Where("pi.status <> ?", models.ItemShipped)
	}
	err := q.OrderExpr("pi.created_at ASC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// List returns items matching f ordered by date, product and serial.
func (s *Service) List(ctx context.Context, f Filter) ([]models.ProductionItem, error) {
	rows := make([]models.ProductionItem, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&rows)
		if f.Status != "" {
			q = q.Where("pi.status = ?", f.Status)
		}
		if v := strings.TrimSpace(f.ProductName); v != "" {
			q = q.Where("pi.product_name = ? COLLATE NOCASE", v)
		}
		if v := strings.TrimSpace(f.Sort); v != "" {
			q = q.Where("pi.sort = ?", v)
		}
		if v := strings.TrimSpace(f.BatchID); v != "" {
			q = q.Where("pi.batch_id = ?", v)
		}
		if v := strings.TrimSpace(f.QuadID); v != "" {
			q = q.Where("pi.quad_id = ?", v)
		}
		return q.OrderExpr("pi.production_date ASC, pi.product_name ASC, pi.serial_number ASC").Scan(ctx)
	})
	return rows, err
}

// History returns the audit trail of one item, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]audit.Entry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []audit.Entry{}, nil
	}
	return s.history.List(ctx, "item", id)
}

type mutation func(ctx context.Context, tx bun.Tx, item *models.ProductionItem, at time.Time) error

func (s *Service) mutate(ctx context.Context, actor, id, action string, fn mutation) (models.ProductionItem, error) {
	now := s.Now()
	var (
		out  notify.Outbox
		item *models.ProductionItem
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		var err error
		item, err = Load(ctx, tx, id)
		if err != nil {
			return err
		}
		before := *item
		if err := fn(ctx, tx, item, now); err != nil {
			return err
		}
		out.Add(notify.Event{Action: action, EntityType: "item", EntityID: item.ID, OldValue: before, NewValue: *item, ActorID: actor, OccurredAt: now})
		return nil
	})
	if err != nil {
		return models.ProductionItem{}, err
	}
	out.Flush(ctx, s.sink)
	return *item, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
