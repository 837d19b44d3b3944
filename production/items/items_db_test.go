package items

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"baletrack/infrastructure/apperr"
	"baletrack/infrastructure/audit"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/infrastructure/sqlite/sqlitetest"
	"baletrack/models"
	"baletrack/production/products"
)

var fixedNow = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db      *sqlite.DB
	catalog *products.Service
	svc     *Service
	rec     *notify.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := sqlitetest.Open(t)
	catalog := products.NewService(db, nil, nil, nil)
	_, err := catalog.Upsert(ctx, "admin", "LF", "Long Fibre")
	require.NoError(t, err)

	rec := &notify.Recorder{}
	history := audit.NewService(db, nil)
	svc := NewService(db, catalog, history, notify.Fanout(rec, history), nil, time.UTC)
	svc.Now = func() time.Time { return fixedNow }
	return fixture{db: db, catalog: catalog, svc: svc, rec: rec}
}

func (f fixture) create(t *testing.T, weight string) models.ProductionItem {
	t.Helper()
	item, err := f.svc.Create(context.Background(), "operator-1", CreateInput{
		ProductName: "Long Fibre",
		Weight:      decimal.RequireFromString(weight),
	})
	require.NoError(t, err)
	return item
}

func (f fixture) graded(t *testing.T, sort string) models.ProductionItem {
	t.Helper()
	item := f.create(t, "250")
	item, err := f.svc.Grade(context.Background(), "lab-1", item.ID, sort)
	require.NoError(t, err)
	return item
}

func (f fixture) palletize(t *testing.T, item models.ProductionItem, batchID string) {
	t.Helper()
	sqlitetest.Exec(t, f.db, `INSERT OR IGNORE INTO batches (id, sort, status, created_by) VALUES (?, ?, 'open', 't')`, batchID, item.SortValue())
	err := f.db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		it, err := Load(ctx, tx, item.ID)
		if err != nil {
			return err
		}
		return Mover{Tx: tx, Actor: "t", At: fixedNow}.EnterBatch(ctx, it, batchID, 1)
	})
	require.NoError(t, err)
}

func TestCreateAllocatesSerialAndBarcode(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, "250.50")
	second := f.create(t, "248")

	assert.Equal(t, int64(1), first.SerialNumber)
	assert.Equal(t, int64(2), second.SerialNumber)
	assert.Equal(t, "2026-03-05", first.ProductionDate)
	assert.Equal(t, "05.03.2026-LF-1-250.5", first.Barcode)
	assert.Equal(t, models.ItemCreated, first.Status)
	assert.Nil(t, first.Sort)
	assert.Equal(t, []string{"item.create", "item.create"}, f.rec.Actions())
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	serial := int64(7)

	_, err := f.svc.Create(ctx, "op", CreateInput{ProductName: "Long Fibre", SerialNumber: &serial, Weight: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "op", CreateInput{ProductName: "Long Fibre", SerialNumber: &serial, Weight: decimal.NewFromInt(101)})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Create(ctx, "op", CreateInput{ProductName: "Short Fibre", Weight: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Create(ctx, "op", CreateInput{ProductName: "Long Fibre", Weight: decimal.Zero})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Create(ctx, "op", CreateInput{ProductName: "Long Fibre", Date: "05.03.2026", Weight: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateWithExplicitDate(t *testing.T) {
	f := newFixture(t)
	item, err := f.svc.Create(context.Background(), "op", CreateInput{
		ProductName: "long fibre",
		Date:        "2026-01-31",
		Weight:      decimal.RequireFromString("99.90"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Long Fibre", item.ProductName)
	assert.Equal(t, "31.01.2026-LF-1-99.9", item.Barcode)
}

func TestGradeAndRevert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, "250")

	_, err := f.svc.Grade(ctx, "lab-1", item.ID, "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	graded, err := f.svc.Grade(ctx, "lab-1", item.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, models.ItemGraded, graded.Status)
	assert.Equal(t, "A", graded.SortValue())
	require.NotNil(t, graded.GradedBy)
	assert.Equal(t, "lab-1", *graded.GradedBy)
	assert.Equal(t, item.Version+1, graded.Version)

	regraded, err := f.svc.Grade(ctx, "lab-2", item.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", regraded.SortValue())

	reverted, err := f.svc.Revert(ctx, "lab-2", item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemCreated, reverted.Status)
	assert.Nil(t, reverted.Sort)
	assert.Nil(t, reverted.GradedBy)
	assert.Nil(t, reverted.GradedAt)

	_, err = f.svc.Revert(ctx, "lab-2", item.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.Grade(ctx, "lab-1", "missing", "A")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGradeRejectedInsideContainer(t *testing.T) {
	f := newFixture(t)
	item := f.graded(t, "A")
	f.palletize(t, item, "P-20260305-001")

	_, err := f.svc.Grade(context.Background(), "lab-1", item.ID, "B")
	var stateErr *apperr.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, string(models.ItemPalletized), stateErr.State)
}

func TestShipIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	palletized := f.graded(t, "A")
	f.palletize(t, palletized, "P-20260305-001")
	loose := f.graded(t, "A")

	_, err := f.svc.Ship(ctx, "dispatch", []string{palletized.ID, loose.ID})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	still, err := f.svc.Get(ctx, palletized.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemPalletized, still.Status)

	shipped, err := f.svc.Ship(ctx, "dispatch", []string{palletized.ID, palletized.ID})
	require.NoError(t, err)
	require.Len(t, shipped, 1)
	assert.Equal(t, models.ItemShipped, shipped[0].Status)
	require.NotNil(t, shipped[0].BatchID)
	assert.Equal(t, "P-20260305-001", *shipped[0].BatchID)
	assert.NotNil(t, shipped[0].ShippedAt)

	_, err = f.svc.Ship(ctx, "dispatch", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Ship(ctx, "dispatch", []string{"nope"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStaleVersionIsConflict(t *testing.T) {
	f := newFixture(t)
	item := f.graded(t, "A")
	stale := item

	_, err := f.svc.Grade(context.Background(), "lab-1", item.ID, "B")
	require.NoError(t, err)

	err = f.db.WithWriteTx(context.Background(), func(ctx context.Context, tx bun.Tx) error {
		return transition(ctx, tx, &stale, models.ItemCreated, "revert", fixedNow)
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSetLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, "250")

	located, err := f.svc.SetLocation(ctx, "wh", item.ID, " R1-S2 ")
	require.NoError(t, err)
	require.NotNil(t, located.LocationID)
	assert.Equal(t, "R1-S2", *located.LocationID)
	assert.Equal(t, models.ItemCreated, located.Status)

	cleared, err := f.svc.SetLocation(ctx, "wh", item.ID, "")
	require.NoError(t, err)
	assert.Nil(t, cleared.LocationID)
}

func TestGetByBarcodeIgnoresWeightSpelling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.create(t, "250.5")

	got, err := f.svc.GetByBarcode(ctx, item.Barcode)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	got, err = f.svc.GetByBarcode(ctx, "05.03.2026-LF-1-250.50")
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)

	_, err = f.svc.GetByBarcode(ctx, "05.03.2026-LF-9-250.5")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.GetByBarcode(ctx, "garbage")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSerialsAreAllocatedPerSKU(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "250")

	_, err := f.catalog.Upsert(ctx, "admin", "LF", "Long Fibre Premium")
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, "operator-1", CreateInput{ProductName: "Long Fibre Premium", Weight: decimal.NewFromInt(260)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SerialNumber)
	assert.Equal(t, "LF", second.ProductSKU)
	assert.Equal(t, "05.03.2026-LF-2-260", second.Barcode)

	one := int64(1)
	_, err = f.svc.Create(ctx, "operator-1", CreateInput{ProductName: "Long Fibre Premium", Weight: decimal.NewFromInt(251), SerialNumber: &one})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.svc.GetByBarcode(ctx, first.Barcode)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, "Long Fibre", got.ProductName)
}

func TestListAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.graded(t, "A")
	f.graded(t, "B")
	f.create(t, "240")

	rows, err := f.svc.List(ctx, Filter{Status: models.ItemGraded})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = f.svc.List(ctx, Filter{Sort: "A", ProductName: "long fibre"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)

	entries, err := f.svc.History(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "item.create", entries[0].Action)
	assert.Equal(t, "item.grade", entries[1].Action)

	_, err = f.svc.History(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.ItemStatus
		ok       bool
	}{
		{models.ItemCreated, models.ItemGraded, true},
		{models.ItemGraded, models.ItemGraded, true},
		{models.ItemGraded, models.ItemCreated, true},
		{models.ItemGraded, models.ItemPalletized, true},
		{models.ItemGraded, models.ItemPacked, true},
		{models.ItemPalletized, models.ItemShipped, true},
		{models.ItemPacked, models.ItemWarehouse, true},
		{models.ItemWarehouse, models.ItemShipped, true},
		{models.ItemCreated, models.ItemPalletized, false},
		{models.ItemGraded, models.ItemShipped, false},
		{models.ItemWarehouse, models.ItemGraded, false},
		{models.ItemShipped, models.ItemGraded, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
