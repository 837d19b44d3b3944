package quads

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baletrack/infrastructure/apperr"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/infrastructure/sqlite/sqlitetest"
	"baletrack/models"
	"baletrack/production/items"
	"baletrack/production/products"
)

var fixedNow = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db    *sqlite.DB
	items *items.Service
	svc   *Service
	rec   *notify.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db := sqlitetest.Open(t)
	catalog := products.NewService(db, nil, nil, nil)
	_, err := catalog.Upsert(ctx, "admin", "LF", "Long Fibre")
	require.NoError(t, err)
	_, err = catalog.Upsert(ctx, "admin", "SF", "Short Fibre")
	require.NoError(t, err)

	rec := &notify.Recorder{}
	itemSvc := items.NewService(db, catalog, nil, nil, nil, time.UTC)
	itemSvc.Now = func() time.Time { return fixedNow }
	svc := NewService(db, rec, nil, time.UTC)
	svc.Now = func() time.Time { return fixedNow }
	return fixture{db: db, items: itemSvc, svc: svc, rec: rec}
}

func (f fixture) graded(t *testing.T, product, sort string, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		item, err := f.items.Create(ctx, "op", items.CreateInput{ProductName: product, Weight: decimal.NewFromInt(int64(240 + i))})
		require.NoError(t, err)
		_, err = f.items.Grade(ctx, "lab", item.ID, sort)
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}
	return ids
}

func TestCreateRequiresExactlyFour(t *testing.T) {
	f := newFixture(t)
	ids := f.graded(t, "Long Fibre", "A", 5)

	_, err := f.svc.Create(context.Background(), "packer", ids[:3])
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "quad requires exactly 4 items")

	_, err = f.svc.Create(context.Background(), "packer", ids)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Create(context.Background(), "packer", []string{ids[0], ids[1], ids[2], ids[0]})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, 0, sqlitetest.Count(t, f.db, `SELECT COUNT(1) FROM quads`))
}

func TestCreatePacksFourItems(t *testing.T) {
	f := newFixture(t)
	ids := f.graded(t, "Long Fibre", "A", 4)

	view, err := f.svc.Create(context.Background(), "packer", ids)
	require.NoError(t, err)
	assert.Equal(t, "Q-20260305-001", view.ID)
	assert.Equal(t, models.QuadCreated, view.Status)
	assert.Equal(t, "Long Fibre", view.ProductName)
	assert.Equal(t, "A", view.Sort)
	require.Len(t, view.Items, 4)
	for _, it := range view.Items {
		assert.Equal(t, models.ItemPacked, it.Status)
		require.NotNil(t, it.QuadID)
		assert.Equal(t, view.ID, *it.QuadID)
	}
	assert.True(t, decimal.NewFromInt(966).Equal(view.TotalWeight))
	assert.Equal(t, "quad.create", f.rec.Actions()[len(f.rec.Actions())-1])
}

func TestCreateRejectsMixedOrUngraded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	longA := f.graded(t, "Long Fibre", "A", 3)
	shortA := f.graded(t, "Short Fibre", "A", 1)
	longB := f.graded(t, "Long Fibre", "B", 1)

	_, err := f.svc.Create(ctx, "packer", append(append([]string{}, longA...), shortA[0]))
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "mixed product/sort")

	_, err = f.svc.Create(ctx, "packer", append(append([]string{}, longA...), longB[0]))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Create(ctx, "packer", append(append([]string{}, longA...), "missing"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	created, err := f.items.Create(ctx, "op", items.CreateInput{ProductName: "Long Fibre", Weight: decimal.NewFromInt(250)})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "packer", append(append([]string{}, longA...), created.ID))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	assert.Equal(t, 0, sqlitetest.Count(t, f.db, `SELECT COUNT(1) FROM production_items WHERE quad_id IS NOT NULL`))
	assert.Equal(t, 0, sqlitetest.Count(t, f.db, `SELECT COUNT(1) FROM daily_sequences WHERE scope = 'quad'`))
}

func TestSendToWarehouse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, "packer", f.graded(t, "Long Fibre", "A", 4))
	require.NoError(t, err)

	loc := " R3-B1 "
	stored, err := f.svc.SendToWarehouse(ctx, "wh", view.ID, &loc)
	require.NoError(t, err)
	assert.Equal(t, models.QuadWarehouse, stored.Status)
	require.NotNil(t, stored.LocationID)
	assert.Equal(t, "R3-B1", *stored.LocationID)
	assert.NotNil(t, stored.WarehousedAt)
	for _, it := range stored.Items {
		assert.Equal(t, models.ItemWarehouse, it.Status)
		require.NotNil(t, it.LocationID)
		assert.Equal(t, "R3-B1", *it.LocationID)
	}

	_, err = f.svc.SendToWarehouse(ctx, "wh", view.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = f.svc.Disband(ctx, "wh", view.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.items.Ship(ctx, "dispatch", []string{stored.Items[0].ID})
	require.NoError(t, err)
}

func TestDisbandReturnsItemsToGraded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view, err := f.svc.Create(ctx, "packer", f.graded(t, "Long Fibre", "A", 4))
	require.NoError(t, err)

	freed, err := f.svc.Disband(ctx, "packer", view.ID)
	require.NoError(t, err)
	require.Len(t, freed, 4)
	for _, it := range freed {
		assert.Equal(t, models.ItemGraded, it.Status)
		assert.Nil(t, it.QuadID)
		assert.Equal(t, "A", it.SortValue())
	}
	_, err = f.svc.Get(ctx, view.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.graded(t, "Long Fibre", "A", 5)
	f.graded(t, "Long Fibre", "B", 2)
	f.graded(t, "Short Fibre", "A", 1)

	_, err := f.svc.Create(ctx, "packer", a[:4])
	require.NoError(t, err)

	rows, err := f.svc.ListAvailable(ctx, "long fibre", "")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = f.svc.ListAvailable(ctx, "Long Fibre", "A")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a[4], rows[0].ID)

	_, err = f.svc.ListAvailable(ctx, "", "A")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	all, err := f.svc.List(ctx, models.QuadCreated)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
