package items

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"baletrack/infrastructure/apperr"
	"baletrack/infrastructure/notify"
	"baletrack/models"
)

// transitions lists every permitted status change. Graded->Graded is a grade correction.
var transitions = map[models.ItemStatus][]models.ItemStatus{
	models.ItemCreated:    {models.ItemGraded},
	models.ItemGraded:     {models.ItemGraded, models.ItemCreated, models.ItemPalletized, models.ItemPacked},
	models.ItemPalletized: {models.ItemGraded, models.ItemShipped},
	models.ItemPacked:     {models.ItemGraded, models.ItemWarehouse, models.ItemShipped},
	models.ItemWarehouse:  {models.ItemShipped},
	models.ItemShipped:    nil,
}

// CanTransition reports whether an item may move from one status to another.
func CanTransition(from, to models.ItemStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Load reads one item inside tx.
func Load(ctx context.Context, db bun.IDB, id string) (*models.ProductionItem, error) {
	item := new(models.ProductionItem)
	err := db.NewSelect().Model(item).Where("pi.id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("item", id)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// setFunc adds column assignments to a guarded item update.
type setFunc func(q *bun.UpdateQuery) *bun.UpdateQuery

// transition moves item to status "to", guarded by the item's status and version as
// read in the same transaction. On success item is reloaded.
func transition(ctx context.Context, tx bun.Tx, item *models.ProductionItem, to models.ItemStatus, op string, at time.Time, sets ...setFunc) error {
	if !CanTransition(item.Status, to) {
		return apperr.InvalidState("item", item.ID, string(item.Status), op)
	}
	return update(ctx, tx, item, to, at, sets...)
}

func update(ctx context.Context, tx bun.Tx, item *models.ProductionItem, to models.ItemStatus, at time.Time, sets ...setFunc) error {
	q := tx.NewUpdate().Model((*models.ProductionItem)(nil)).
		Set("status = ?", to).
		Set("version = version + 1").
		Set("updated_at = ?", at.UTC())
	for _, set := range sets {
		q = set(q)
	}
	res, err := q.
		Where("id = ?", item.ID).
		Where("status = ?", item.Status).
		Where("version = ?", item.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Conflict("item %s changed concurrently", item.ID)
	}
	return tx.NewSelect().Model(item).WherePK().Scan(ctx)
}

// Mover applies container transitions on behalf of the batch and quad aggregators.
// It is the only writer of batch_id and quad_id, and writes them together with status.
type Mover struct {
	Tx    bun.Tx
	Out   *notify.Outbox
	Actor string
	At    time.Time
}

// EnterBatch palletizes a Graded item at position within batchID.
func (m Mover) EnterBatch(ctx context.Context, item *models.ProductionItem, batchID string, position int64) error {
	return m.move(ctx, item, models.ItemPalletized, "item.palletize", "palletize",
		func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("batch_id = ?", batchID).Set("batch_position = ?", position)
		})
}

// LeaveBatch returns a Palletized item to Graded. The sort is kept.
func (m Mover) LeaveBatch(ctx context.Context, item *models.ProductionItem) error {
	if item.Status != models.ItemPalletized {
		return apperr.InvalidState("item", item.ID, string(item.Status), "remove from batch")
	}
	return m.move(ctx, item, models.ItemGraded, "item.unpalletize", "remove from batch",
		func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("batch_id = NULL").Set("batch_position = NULL")
		})
}

// EnterQuad packs a Graded item into quadID.
func (m Mover) EnterQuad(ctx context.Context, item *models.ProductionItem, quadID string) error {
	return m.move(ctx, item, models.ItemPacked, "item.pack", "pack",
		func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("quad_id = ?", quadID)
		})
}

// LeaveQuad returns a Packed item to Graded.
func (m Mover) LeaveQuad(ctx context.Context, item *models.ProductionItem) error {
	if item.Status != models.ItemPacked {
		return apperr.InvalidState("item", item.ID, string(item.Status), "remove from quad")
	}
	return m.move(ctx, item, models.ItemGraded, "item.unpack", "remove from quad",
		func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("quad_id = NULL")
		})
}

// Store moves a Packed item to Warehouse. A nil location leaves the current slot.
func (m Mover) Store(ctx context.Context, item *models.ProductionItem, location *string) error {
	return m.move(ctx, item, models.ItemWarehouse, "item.store", "store",
		func(q *bun.UpdateQuery) *bun.UpdateQuery {
			if location == nil {
				return q
			}
			return q.Set("location_id = ?", *location)
		})
}

func (m Mover) move(ctx context.Context, item *models.ProductionItem, to models.ItemStatus, action, op string, set setFunc) error {
	before := *item
	if err := transition(ctx, m.Tx, item, to, op, m.At, set); err != nil {
		return err
	}
	if m.Out != nil {
		m.Out.Add(notify.Event{
			Action:     action,
			EntityType: "item",
			EntityID:   item.ID,
			OldValue:   before,
			NewValue:   *item,
			ActorID:    m.Actor,
			OccurredAt: m.At,
		})
	}
	return nil
}
