package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baletrack/infrastructure/audit"
	"baletrack/infrastructure/cache"
	"baletrack/infrastructure/notify"
	"baletrack/infrastructure/sqlite"
	"baletrack/production/batches"
	"baletrack/production/items"
	"baletrack/production/products"
	"baletrack/production/quads"
	actorctx "baletrack/production/shared/context"
	"baletrack/production/stocktake"
)

type integrationEnv struct {
	server *httptest.Server
	db     *sqlite.DB
	rec    *notify.Recorder
}

func setupIntegrationServer(t *testing.T) *integrationEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "server-integration.db")
	db, err := sqlite.OpenDB(dbPath)
	require.NoError(t, err)

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime caller unavailable")
	migrationsDir := filepath.Join(filepath.Dir(file), "..", "sqlite", "migrations")
	require.NoError(t, sqlite.ApplyMigrations(context.Background(), db, migrationsDir))

	rec := &notify.Recorder{}
	auditSvc := audit.NewService(db, nil)
	sink := notify.Fanout(auditSvc, rec)

	productSvc := products.NewService(db, cache.NewProductCache(), sink, nil)
	itemSvc := items.NewService(db, productSvc, auditSvc, sink, nil, time.UTC)
	svc := Services{
		Products:  productSvc,
		Items:     itemSvc,
		Batches:   batches.NewService(db, itemSvc, sink, nil, time.UTC),
		Quads:     quads.NewService(db, sink, nil, time.UTC),
		Stocktake: stocktake.NewService(db, sink, nil),
	}

	s := NewServer("127.0.0.1:0", db, svc, nil)
	env := &integrationEnv{server: httptest.NewServer(s.Handler()), db: db, rec: rec}
	t.Cleanup(func() {
		env.server.Close()
		_ = env.db.Close()
	})
	return env
}

func (e *integrationEnv) do(t *testing.T, method, path, actor string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
		contentType = "text/csv"
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if actor != "" {
		req.Header.Set(actorctx.ActorHeader, actor)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (e *integrationEnv) doJSON(t *testing.T, method, path, actor string, body any, wantStatus int, out any) {
	t.Helper()
	status, raw := e.do(t, method, path, actor, body)
	require.Equal(t, wantStatus, status, "%s %s: %s", method, path, raw)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
}

type itemDTO struct {
	ID      string `json:"id"`
	Barcode string `json:"barcode"`
	Status  string `json:"status"`
	BatchID string `json:"batchId"`
	QuadID  string `json:"quadId"`
}

func TestHealth(t *testing.T) {
	env := setupIntegrationServer(t)

	status, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", string(body))
}

func TestProductionToStocktakeFlow(t *testing.T) {
	env := setupIntegrationServer(t)

	var imported products.ImportSummary
	env.doJSON(t, http.MethodPost, "/api/products/import", "admin", "sku,name\nLF,Long Fibre\n", http.StatusOK, &imported)
	assert.Equal(t, 1, imported.Inserted)

	bales := make([]itemDTO, 6)
	for i := range bales {
		env.doJSON(t, http.MethodPost, "/api/items", "operator-1",
			map[string]any{"productName": "Long Fibre", "weight": 250.5}, http.StatusCreated, &bales[i])
		assert.Equal(t, "created", bales[i].Status)
		env.doJSON(t, http.MethodPost, "/api/items/"+bales[i].ID+"/grade", "lab-1",
			map[string]string{"sort": "A"}, http.StatusOK, &bales[i])
		assert.Equal(t, "graded", bales[i].Status)
	}

	var byBarcode itemDTO
	env.doJSON(t, http.MethodGet, "/api/items/by-barcode/"+bales[0].Barcode, "", nil, http.StatusOK, &byBarcode)
	assert.Equal(t, bales[0].ID, byBarcode.ID)

	// Pallet two bales, one by id and one by scanned barcode.
	var batch struct {
		ID        string    `json:"id"`
		Status    string    `json:"status"`
		ItemCount int       `json:"itemCount"`
		Items     []itemDTO `json:"items"`
	}
	env.doJSON(t, http.MethodPost, "/api/batches", "operator-1", map[string]string{"sort": "A"}, http.StatusCreated, &batch)
	assert.True(t, strings.HasPrefix(batch.ID, "P-"), batch.ID)
	env.doJSON(t, http.MethodPost, "/api/batches/"+batch.ID+"/items", "operator-1", map[string]string{"itemId": bales[0].ID}, http.StatusOK, &batch)
	env.doJSON(t, http.MethodPost, "/api/batches/"+batch.ID+"/items", "operator-1", map[string]string{"barcode": bales[1].Barcode}, http.StatusOK, &batch)
	require.Equal(t, 2, batch.ItemCount)
	env.doJSON(t, http.MethodPost, "/api/batches/"+batch.ID+"/close", "operator-1", nil, http.StatusOK, &batch)
	assert.Equal(t, "closed", batch.Status)

	status, body := env.do(t, http.MethodPost, "/api/batches/"+batch.ID+"/items", "operator-1", map[string]string{"itemId": bales[2].ID})
	assert.Equal(t, http.StatusUnprocessableEntity, status, string(body))

	status, body = env.do(t, http.MethodGet, "/api/batches/"+batch.ID+"/label.pdf", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))

	// Pack the remaining four into a quad and send it to the warehouse.
	var quad struct {
		ID         string    `json:"id"`
		Status     string    `json:"status"`
		LocationID string    `json:"locationId"`
		Items      []itemDTO `json:"items"`
	}
	ids := []string{bales[2].ID, bales[3].ID, bales[4].ID, bales[5].ID}
	status, body = env.do(t, http.MethodPost, "/api/quads", "packer-1", map[string]any{"itemIds": ids[:3]})
	assert.Equal(t, http.StatusBadRequest, status, string(body))
	env.doJSON(t, http.MethodPost, "/api/quads", "packer-1", map[string]any{"itemIds": ids}, http.StatusCreated, &quad)
	assert.True(t, strings.HasPrefix(quad.ID, "Q-"), quad.ID)
	env.doJSON(t, http.MethodPost, "/api/quads/"+quad.ID+"/warehouse", "packer-1", map[string]string{"location": "R1"}, http.StatusOK, &quad)
	assert.Equal(t, "warehouse", quad.Status)
	assert.Equal(t, "R1", quad.LocationID)
	for _, it := range quad.Items {
		assert.Equal(t, "warehouse", it.Status)
	}

	// Stocktake expects the two palletized bales.
	var session struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		TotalExpected int64  `json:"totalExpected"`
		TotalMissing  int64  `json:"totalMissing"`
		TotalExtra    int64  `json:"totalExtra"`
	}
	env.doJSON(t, http.MethodPost, "/api/inventory/sessions", "auditor-1", map[string]string{"name": "March count"}, http.StatusCreated, &session)
	assert.Equal(t, int64(2), session.TotalExpected)
	status, _ = env.do(t, http.MethodPost, "/api/inventory/sessions", "auditor-1", map[string]string{"name": "second"})
	assert.Equal(t, http.StatusConflict, status)

	var active struct {
		ID string `json:"id"`
	}
	env.doJSON(t, http.MethodGet, "/api/inventory/sessions/active", "", nil, http.StatusOK, &active)
	assert.Equal(t, session.ID, active.ID)

	var scan stocktake.ScanResult
	scanPath := "/api/inventory/sessions/" + session.ID + "/scans"
	env.doJSON(t, http.MethodPost, scanPath, "auditor-1", map[string]string{"barcode": bales[0].Barcode}, http.StatusCreated, &scan)
	assert.Equal(t, "found", string(scan.Record.Status))
	env.doJSON(t, http.MethodPost, scanPath, "auditor-1", map[string]string{"barcode": bales[0].Barcode}, http.StatusOK, &scan)
	assert.True(t, scan.Duplicate)
	env.doJSON(t, http.MethodPost, scanPath, "auditor-1", map[string]string{"barcode": "not-a-bale"}, http.StatusCreated, &scan)
	assert.Equal(t, "extra", string(scan.Record.Status))

	var summary stocktake.Summary
	env.doJSON(t, http.MethodPost, "/api/inventory/sessions/"+session.ID+"/complete", "auditor-1", nil, http.StatusOK, &summary)
	assert.Equal(t, "completed", string(summary.Session.Status))
	assert.Len(t, summary.FoundItems, 1)
	assert.Len(t, summary.ExtraItems, 1)
	require.Len(t, summary.MissingItems, 1)
	require.NotNil(t, summary.MissingItems[0].ItemID)
	assert.Equal(t, bales[1].ID, *summary.MissingItems[0].ItemID)

	status, _ = env.do(t, http.MethodPost, scanPath, "auditor-1", map[string]string{"barcode": bales[1].Barcode})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	// Ship the pallet and read the audit history back.
	var shipped []itemDTO
	env.doJSON(t, http.MethodPost, "/api/items/ship", "driver-1", map[string]any{"itemIds": []string{bales[0].ID, bales[1].ID}}, http.StatusOK, &shipped)
	require.Len(t, shipped, 2)
	assert.Equal(t, "shipped", shipped[0].Status)
	assert.Equal(t, batch.ID, shipped[0].BatchID)

	var history []audit.Entry
	env.doJSON(t, http.MethodGet, "/api/items/"+bales[0].ID+"/history", "", nil, http.StatusOK, &history)
	actions := make([]string, 0, len(history))
	for _, h := range history {
		actions = append(actions, h.Action)
	}
	assert.Equal(t, []string{"item.create", "item.grade", "item.palletize", "item.ship"}, actions)
	assert.Equal(t, "driver-1", history[len(history)-1].ActorID)
	assert.NotEmpty(t, env.rec.Events())
}

func TestErrorResponses(t *testing.T) {
	env := setupIntegrationServer(t)

	status, body := env.do(t, http.MethodGet, "/api/items/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), `"error":"not_found"`)

	status, _ = env.do(t, http.MethodPost, "/api/items", "", map[string]any{"productName": "Unknown", "weight": 10})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodGet, "/api/items?status=lost", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/items/ship", "", `{"itemIds": [}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
