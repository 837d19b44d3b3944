// Package stocktake reconciles physical scans against the expected in-stock population.
package stocktake

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"baletrack/infrastructure/apperr"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/models"
	"baletrack/production/barcode"
	"baletrack/production/items"
)

// Service runs inventory sessions. At most one session is Active at a time.
type Service struct {
	db     *sqlite.DB
	sink   notify.Sink
	logger *zap.Logger
	Now    func() time.Time
}

func NewService(db *sqlite.DB, sink notify.Sink, logger *zap.Logger) *Service {
	if sink == nil {
		sink = notify.Nop
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, sink: sink, logger: logger.Named("stocktake"), Now: time.Now}
}

// StartSession opens a session and snapshots the expected count.
func (s *Service) StartSession(ctx context.Context, actor, name string) (models.InventorySession, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.InventorySession{}, apperr.Validation("name", "is required")
	}
	now := s.Now()
	var (
		out     notify.Outbox
		session models.InventorySession
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		active, err := tx.NewSelect().Model((*models.InventorySession)(nil)).
			Where("s.status = ?", models.SessionActive).
			Exists(ctx)
		if err != nil {
			return err
		}
		if active {
			return errActiveSession
		}
		expected, err := tx.NewSelect().Model((*models.ProductionItem)(nil)).
			Where("pi.status IN (?)", bun.In(models.InStock)).
			Count(ctx)
		if err != nil {
			return err
		}
		session = models.InventorySession{
			ID:            uuid.NewString(),
			Name:          name,
			Status:        models.SessionActive,
			TotalExpected: int64(expected),
			StartedBy:     actor,
			StartedAt:     now.UTC(),
		}
		if _, err := tx.NewInsert().Model(&session).Exec(ctx); err != nil {
			return err
		}
		out.Add(notify.Event{Action: "inventory.start", EntityType: "inventory_session", EntityID: session.ID, NewValue: session, ActorID: actor, OccurredAt: now})
		return nil
	})
	if sqlite.IsUniqueViolation(err) {
		err = errActiveSession
	}
	if err != nil {
		return models.InventorySession{}, err
	}
	s.logger.Info("inventory session started",
		zap.String("session_id", session.ID),
		zap.Int64("expected", session.TotalExpected))
	out.Flush(ctx, s.sink)
	return session, nil
}

var errActiveSession = apperr.Conflict("another inventory session is already active")

// Scan classifies one barcode within an Active session. Repeating a barcode, or
// scanning an already recorded item under another spelling, returns the existing
// record with Duplicate set.
func (s *Service) Scan(ctx context.Context, actor, sessionID, text string, actualLocation *string) (ScanResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ScanResult{}, apperr.Validation("barcode", "is required")
	}
	var location *string
	if actualLocation != nil {
		if v := strings.TrimSpace(*actualLocation); v != "" {
			location = &v
		}
	}

	now := s.Now()
	var (
		out    notify.Outbox
		result ScanResult
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		session, err := load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionActive {
			return apperr.InvalidState("inventory session", session.ID, string(session.Status), "scan in")
		}

		existing, err := findRecord(ctx, tx, "sr.session_id = ? AND sr.barcode = ?", session.ID, text)
		if err != nil {
			return err
		}
		if existing != nil {
			result = ScanResult{Record: *existing, Duplicate: true}
			return nil
		}

		rec := models.InventoryScanRecord{
			SessionID:      session.ID,
			Barcode:        text,
			Status:         models.ScanExtra,
			ActualLocation: location,
			ScannedBy:      actor,
			CreatedAt:      now.UTC(),
		}
		item, err := items.FindByBarcode(ctx, tx, text, true)
		if err != nil && !errors.Is(err, apperr.ErrValidation) {
			return err
		}
		if item != nil {
			existing, err := findRecord(ctx, tx, "sr.session_id = ? AND sr.item_id = ?", session.ID, item.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				result = ScanResult{Record: *existing, Duplicate: true}
				return nil
			}
			classify(&rec, item, location)
		} else if code, perr := barcode.Parse(text); perr == nil {
			if err := describeUnknown(ctx, tx, &rec, code); err != nil {
				return err
			}
		}

		if _, err := tx.NewInsert().Model(&rec).Exec(ctx); err != nil {
			return err
		}
		upd := tx.NewUpdate().Model((*models.InventorySession)(nil)).
			Set("total_scanned = total_scanned + 1").
			Where("id = ?", session.ID)
		switch rec.Status {
		case models.ScanExtra:
			upd = upd.Set("total_extra = total_extra + 1")
		case models.ScanMismatch:
			upd = upd.Set("total_mismatch = total_mismatch + 1")
		}
		if _, err := upd.Exec(ctx); err != nil {
			return err
		}
		result = ScanResult{Record: rec}
		out.Add(notify.Event{Action: "inventory.scan", EntityType: "inventory_session", EntityID: session.ID, NewValue: rec, ActorID: actor, OccurredAt: now})
		return nil
	})
	if sqlite.IsUniqueViolation(err) {
		return ScanResult{}, apperr.Conflict("barcode %q was already scanned in session %s", text, sessionID)
	}
	if err != nil {
		return ScanResult{}, err
	}
	out.Flush(ctx, s.sink)
	return result, nil
}

// classify marks rec Found or Mismatch. A supplied location that differs from the
// item's recorded location, including an item with no location, is a Mismatch.
func classify(rec *models.InventoryScanRecord, item *models.ProductionItem, location *string) {
	id := item.ID
	serial := item.SerialNumber
	product := item.ProductName
	rec.ItemID = &id
	rec.SerialNumber = &serial
	rec.ProductName = &product
	rec.Weight = decimal.NewNullDecimal(item.Weight)
	rec.Sort = item.Sort
	rec.ExpectedLocation = item.LocationID
	rec.Status = models.ScanFound
	if location != nil && (item.LocationID == nil || *item.LocationID != *location) {
		rec.Status = models.ScanMismatch
	}
}

// describeUnknown fills what the barcode itself says about an unresolved item.
func describeUnknown(ctx context.Context, tx bun.Tx, rec *models.InventoryScanRecord, code barcode.Code) error {
	serial := code.Serial
	rec.SerialNumber = &serial
	rec.Weight = decimal.NewNullDecimal(code.Weight)
	var product models.Product
	err := tx.NewSelect().Model(&product).Where("pr.sku = ?", code.SKU).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	rec.ProductName = &product.Name
	return nil
}

// resolveExtras turns Extra records into Found or Mismatch when their barcode now
// names an in-stock item that has no record of its own in the session, e.g. a bale
// registered after it was scanned. Session counters follow.
func resolveExtras(ctx context.Context, tx bun.Tx, session *models.InventorySession) error {
	extras := make([]models.InventoryScanRecord, 0)
	err := tx.NewSelect().Model(&extras).
		Where("sr.session_id = ?", session.ID).
		Where("sr.status = ?", models.ScanExtra).
		Where("sr.item_id IS NULL").
		OrderExpr("sr.id ASC").
		Scan(ctx)
	if err != nil {
		return err
	}
	for i := range extras {
		rec := &extras[i]
		item, err := items.FindByBarcode(ctx, tx, rec.Barcode, true)
		if err != nil && !errors.Is(err, apperr.ErrValidation) {
			return err
		}
		if item == nil || !slices.Contains(models.InStock, item.Status) {
			continue
		}
		owned, err := findRecord(ctx, tx, "sr.session_id = ? AND sr.item_id = ?", session.ID, item.ID)
		if err != nil {
			return err
		}
		if owned != nil {
			continue
		}
		classify(rec, item, rec.ActualLocation)
		if _, err := tx.NewUpdate().Model(rec).WherePK().Exec(ctx); err != nil {
			return err
		}
		session.TotalExtra--
		if rec.Status == models.ScanMismatch {
			session.TotalMismatch++
		}
	}
	_, err = tx.NewUpdate().Model((*models.InventorySession)(nil)).
		Set("total_extra = ?", session.TotalExtra).
		Set("total_mismatch = ?", session.TotalMismatch).
		Where("id = ?", session.ID).
		Exec(ctx)
	return err
}

// CompleteSession records every in-stock item that was not found as Missing and
// closes the session.
func (s *Service) CompleteSession(ctx context.Context, actor, sessionID string) (Summary, error) {
	now := s.Now()
	var (
		out     notify.Outbox
		summary Summary
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		session, err := load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionActive {
			return apperr.InvalidState("inventory session", session.ID, string(session.Status), "complete")
		}
		before := session

		if err := resolveExtras(ctx, tx, &session); err != nil {
			return err
		}

		seen := tx.NewSelect().Model((*models.InventoryScanRecord)(nil)).
			Column("sr.item_id").
			Where("sr.session_id = ?", session.ID).
			Where("sr.item_id IS NOT NULL").
			Where("sr.status IN (?)", bun.In([]models.ScanStatus{models.ScanFound, models.ScanMismatch}))
		recorded := tx.NewSelect().Model((*models.InventoryScanRecord)(nil)).
			Column("sr.barcode").
			Where("sr.session_id = ?", session.ID)
		missing := make([]models.ProductionItem, 0)
		err = tx.NewSelect().Model(&missing).
			Where("pi.status IN (?)", bun.In(models.InStock)).
			Where("pi.id NOT IN (?)", seen).
			Where("pi.barcode NOT IN (?)", recorded).
			OrderExpr("pi.production_date ASC, pi.product_name ASC, pi.serial_number ASC").
			Scan(ctx)
		if err != nil {
			return err
		}

		completedAt := now.UTC()
		if len(missing) > 0 {
			records := make([]models.InventoryScanRecord, 0, len(missing))
			for _, item := range missing {
				id := item.ID
				serial := item.SerialNumber
				product := item.ProductName
				records = append(records, models.InventoryScanRecord{
					SessionID:        session.ID,
					Barcode:          item.Barcode,
					Status:           models.ScanMissing,
					ItemID:           &id,
					SerialNumber:     &serial,
					ProductName:      &product,
					Weight:           decimal.NewNullDecimal(item.Weight),
					Sort:             item.Sort,
					ExpectedLocation: item.LocationID,
					ScannedBy:        actor,
					CreatedAt:        completedAt,
				})
			}
			if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
				return err
			}
		}

		res, err := tx.NewUpdate().Model((*models.InventorySession)(nil)).
			Set("status = ?", models.SessionCompleted).
			Set("completed_at = ?", completedAt).
			Set("total_missing = ?", len(missing)).
			Where("id = ?", session.ID).
			Where("status = ?", models.SessionActive).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.Conflict("inventory session %s changed concurrently", session.ID)
		}

		summary, err = buildSummary(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		out.Add(notify.Event{Action: "inventory.complete", EntityType: "inventory_session", EntityID: session.ID, OldValue: before, NewValue: summary.Session, ActorID: actor, OccurredAt: now})
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	s.logger.Info("inventory session completed",
		zap.String("session_id", summary.Session.ID),
		zap.Int64("expected", summary.Session.TotalExpected),
		zap.Int("found", len(summary.FoundItems)),
		zap.Int("missing", len(summary.MissingItems)),
		zap.Int("extra", len(summary.ExtraItems)))
	out.Flush(ctx, s.sink)
	return summary, nil
}

// CancelSession abandons an Active session. Its records are kept.
func (s *Service) CancelSession(ctx context.Context, actor, sessionID string) (models.InventorySession, error) {
	now := s.Now()
	var (
		out     notify.Outbox
		session models.InventorySession
	)
	err := s.db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		out.Reset()
		var err error
		session, err = load(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionActive {
			return apperr.InvalidState("inventory session", session.ID, string(session.Status), "cancel")
		}
		before := session
		cancelledAt := now.UTC()
		res, err := tx.NewUpdate().Model((*models.InventorySession)(nil)).
			Set("status = ?", models.SessionCancelled).
			Set("cancelled_at = ?", cancelledAt).
			Where("id = ?", session.ID).
			Where("status = ?", models.SessionActive).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.Conflict("inventory session %s changed concurrently", session.ID)
		}
		session.Status = models.SessionCancelled
		session.CancelledAt = &cancelledAt
		out.Add(notify.Event{Action: "inventory.cancel", EntityType: "inventory_session", EntityID: session.ID, OldValue: before, NewValue: session, ActorID: actor, OccurredAt: now})
		return nil
	})
	if err != nil {
		return models.InventorySession{}, err
	}
	out.Flush(ctx, s.sink)
	return session, nil
}

// Summary groups the records of a session by outcome.
func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	var summary Summary
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		summary, err = buildSummary(ctx, tx, sessionID)
		return err
	})
	return summary, err
}

// Get returns one session.
func (s *Service) Get(ctx context.Context, sessionID string) (models.InventorySession, error) {
	var session models.InventorySession
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		session, err = load(ctx, tx, sessionID)
		return err
	})
	return session, err
}

// Active returns the Active session, or NotFound when there is none.
func (s *Service) Active(ctx context.Context) (models.InventorySession, error) {
	var session models.InventorySession
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&session).Where("s.status = ?", models.SessionActive).Limit(1).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.InventorySession{}, apperr.NotFound("inventory session", string(models.SessionActive))
	}
	return session, err
}

// List returns sessions, newest first.
func (s *Service) List(ctx context.Context) ([]models.InventorySession, error) {
	rows := make([]models.InventorySession, 0)
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&rows).OrderExpr("s.started_at DESC, s.id DESC").Scan(ctx)
	})
	return rows, err
}

// Records returns every record of a session in scan order.
func (s *Service) Records(ctx context.Context, sessionID string) ([]models.InventoryScanRecord, error) {
	var rows []models.InventoryScanRecord
	err := s.db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := load(ctx, tx, sessionID); err != nil {
			return err
		}
		var err error
		rows, err = records(ctx, tx, sessionID)
		return err
	})
	return rows, err
}

func load(ctx context.Context, db bun.IDB, id string) (models.InventorySession, error) {
	var session models.InventorySession
	err := db.NewSelect().Model(&session).Where("s.id = ?", strings.TrimSpace(id)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return models.InventorySession{}, apperr.NotFound("inventory session", id)
	}
	return session, err
}

func findRecord(ctx context.Context, db bun.IDB, where string, args ...any) (*models.InventoryScanRecord, error) {
	rec := new(models.InventoryScanRecord)
	err := db.NewSelect().Model(rec).Where(where, args...).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func records(ctx context.Context, db bun.IDB, sessionID string) ([]models.InventoryScanRecord, error) {
	rows := make([]models.InventoryScanRecord, 0)
	err := db.NewSelect().Model(&rows).
		Where("sr.session_id = ?", sessionID).
		OrderExpr("sr.id ASC").
		Scan(ctx)
	return rows, err
}

func buildSummary(ctx context.Context, db bun.IDB, sessionID string) (Summary, error) {
	session, err := load(ctx, db, sessionID)
	if err != nil {
		return Summary{}, err
	}
	rows, err := records(ctx, db, session.ID)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		Session:      session,
		FoundItems:   []models.InventoryScanRecord{},
		MissingItems: []models.InventoryScanRecord{},
		ExtraItems:   []models.InventoryScanRecord{},
	}
	for _, rec := range rows {
		switch rec.Status {
		case models.ScanFound, models.ScanMismatch:
			summary.FoundItems = append(summary.FoundItems, rec)
		case models.ScanMissing:
			summary.MissingItems = append(summary.MissingItems, rec)
		case models.ScanExtra:
			summary.ExtraItems = append(summary.ExtraItems, rec)
		}
	}
	return summary, nil
}
