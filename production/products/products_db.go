package products

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"baletrack/infrastructure/apperr"
	"baletrack/infrastructure/cache"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/models"
	"baletrack/production/barcode"
)

// ImportSummary counts the outcome of one CSV import.
type ImportSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// Service owns the product catalog.
type Service struct {
	db     *sqlite.DB
	cache  *cache.ProductCache
	sink   notify.Sink
	logger *zap.Logger
	Now    func() time.Time
}

func NewService(db *sqlite.DB, productCache *cache.ProductCache, sink notify.Sink, logger *zap.Logger) *Service {
	if productCache == nil {
		productCache = cache.NewProductCache()
	}
	if sink == nil {
		sink = notify.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, cache: productCache, sink: sink, logger: logger.Named("products"), Now: time.Now}
}

// List returns the catalog ordered by name.
func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	rows := make([]models.Product, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&rows).OrderExpr("name COLLATE NOCASE ASC").Scan(ctx)
	})
	return rows, err
}

// Get resolves a product by name.
func (s *Service) Get(ctx context.Context, name string) (models.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Product{}, apperr.Validation("productName", "is required")
	}
	if p, ok := s.cache.ByName(name); ok {
		return p, nil
	}
	var p models.Product
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&p).Where("name = ? COLLATE NOCASE", name).Limit(1).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Product{}, apperr.NotFound("product", name)
	}
	if err != nil {
		return models.Product{}, err
	}
	s.cache.Add(p)
	return p, nil
}

// Upsert creates or renames one catalog entry.
func (s *Service) Upsert(ctx context.Context, actor, sku, name string) (models.Product, error) {
	sku = strings.TrimSpace(sku)
	name = strings.TrimSpace(name)
	if !barcode.ValidSKU(sku) {
		return models.Product{}, apperr.Validation("sku", "%q must be non-empty and must not contain '-'", sku)
	}
	if name == "" {
		return models.Product{}, apperr.Validation("name", "is required")
	}
	var out notify.Outbox
	p := models.Product{SKU: sku, Name: name}
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		if _, err := upsert(ctx, tx, sku, name, s.Now()); err != nil {
			return err
		}
		if err := tx.NewSelect().Model(&p).WherePK().Scan(ctx); err != nil {
			return err
		}
		out.Add(notify.Event{Action: "product.upsert", EntityType: "product", EntityID: sku, NewValue: p, ActorID: actor, OccurredAt: s.Now()})
		return nil
	})
	if sqlite.IsUniqueViolation(err) {
		return models.Product{}, apperr.Conflict("product name %q is already used by another sku", name)
	}
	if err != nil {
		return models.Product{}, err
	}
	s.cache.Reset()
	out.Flush(ctx, s.sink)
	return p, nil
}

// ImportCSV upserts rows of a "sku,name" CSV. Rows with empty fields, unusable
// SKUs or conflicting names are counted as errors; the rest are applied in one
// transaction.
func (s *Service) ImportCSV(ctx context.Context, actor string, reader io.Reader) (ImportSummary, error) {
	summary := ImportSummary{}
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return summary, apperr.Validation("csv", "read header: %v", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "sku") || !strings.EqualFold(strings.TrimSpace(header[1]), "name") {
		return summary, apperr.Validation("csv", "invalid CSV header; expected sku,name")
	}

	var out notify.Outbox
	err = s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		summary = ImportSummary{}
		for {
			record, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil || len(record) < 2 {
				summary.Errors++
				continue
			}
			sku := strings.TrimSpace(record[0])
			name := strings.TrimSpace(record[1])
			if !barcode.ValidSKU(sku) || name == "" {
				summary.Errors++
				continue
			}

			inserted, err := upsert(ctx, tx, sku, name, s.Now())
			if sqlite.IsConstraintViolation(err) {
				summary.Errors++
				continue
			}
			if err != nil {
				return err
			}
			if inserted {
				summary.Inserted++
			} else {
				summary.Updated++
			}
		}
		out.Add(notify.Event{Action: "product.import", EntityType: "product", EntityID: "catalog", NewValue: summary, ActorID: actor, OccurredAt: s.Now()})
		return nil
	})
	if err != nil {
		return summary, err
	}
	s.cache.Reset()
	s.logger.Info("product catalog imported",
		zap.Int("inserted", summary.Inserted),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors))
	out.Flush(ctx, s.sink)
	return summary, nil
}

// upsert relies on sqlite aborting only the failing statement on a constraint
// error, so one bad row does not poison the surrounding import transaction.
func upsert(ctx context.Context, tx bun.Tx, sku, name string, now time.Time) (inserted bool, err error) {
	var exists int
	if err := tx.NewRaw("SELECT COUNT(1) FROM products WHERE sku = ?", sku).Scan(ctx, &exists); err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO products (sku, name, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(sku) DO UPDATE SET
  name = excluded.name,
  updated_at = excluded.updated_at`, sku, name, now.UTC(), now.UTC())
	if err != nil {
		return false, err
	}
	return exists == 0, nil
}
