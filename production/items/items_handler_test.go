package items

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baletrack/models"
	"baletrack/production/shared/context"
	"baletrack/production/shared/respond"
)

func newItemRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(context.ActorMiddleware)
	r.Post("/api/items", CreateItemCommandHandler(svc, nil))
	r.Get("/api/items", ListItemsQueryHandler(svc, nil))
	r.Get("/api/items/{id}", GetItemQueryHandler(svc, nil))
	r.Post("/api/items/{id}/grade", GradeItemCommandHandler(svc, nil))
	r.Post("/api/items/ship", ShipItemsCommandHandler(svc, nil))
	return r
}

func TestItemHandlersCreateAndGrade(t *testing.T) {
	f := newFixture(t)
	router := newItemRouter(f.svc)

	req := httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader(`{"productName":"Long Fibre","weight":"251.25"}`))
	req.Header.Set(context.ActorHeader, "operator-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created models.ProductionItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "operator-7", created.CreatedBy)
	assert.Equal(t, "05.03.2026-LF-1-251.25", created.Barcode)

	req = httptest.NewRequest(http.MethodPost, "/api/items/"+created.ID+"/grade", strings.NewReader(`{"sort":"A"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var graded models.ProductionItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &graded))
	require.NotNil(t, graded.GradedBy)
	assert.Equal(t, context.AnonymousActor, *graded.GradedBy)

	req = httptest.NewRequest(http.MethodGet, "/api/items?status=GRADED", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var rows []models.ProductionItem
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)
}

func TestItemHandlersMapErrors(t *testing.T) {
	f := newFixture(t)
	router := newItemRouter(f.svc)
	item := f.create(t, "250")

	cases := []struct {
		method, path, body string
		status             int
		kind               string
	}{
		{http.MethodGet, "/api/items/unknown", "", http.StatusNotFound, "not_found"},
		{http.MethodGet, "/api/items?status=lost", "", http.StatusBadRequest, "validation"},
		{http.MethodPost, "/api/items", `{"productName":"Long Fibre","weight":"0"}`, http.StatusBadRequest, "validation"},
		{http.MethodPost, "/api/items/ship", `{"itemIds":["` + item.ID + `"]}`, http.StatusUnprocessableEntity, "invalid_state"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, tc.status, rr.Code, tc.path)

		var errBody respond.ErrorBody
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errBody))
		assert.Equal(t, tc.kind, errBody.Error, tc.path)
	}
}
