package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baletrack/infrastructure/apperr"
)

func TestErrorMapsTaxonomy(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{apperr.NotFound("item", "x"), http.StatusNotFound, "not_found"},
		{apperr.Validation("sort", "is required"), http.StatusBadRequest, "validation"},
		{apperr.Conflict("duplicate"), http.StatusConflict, "conflict"},
		{apperr.InvalidState("batch", "P-1", "closed", "edit"), http.StatusUnprocessableEntity, "invalid_state"},
		{errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		Error(rr, nil, tt.err)
		assert.Equal(t, tt.status, rr.Code)

		var body ErrorBody
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, tt.kind, body.Error)
		if tt.status == http.StatusInternalServerError {
			assert.Equal(t, "internal error", body.Message)
		}
	}
}

func TestDecode(t *testing.T) {
	var v struct {
		Sort string `json:"sort"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sort":"A"}`))
	require.NoError(t, Decode(req, &v))
	assert.Equal(t, "A", v.Sort)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"grade":"A"}`))
	assert.ErrorIs(t, Decode(req, &v), apperr.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	assert.ErrorIs(t, Decode(req, &v), apperr.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sort":"A"}{}`))
	assert.ErrorIs(t, Decode(req, &v), apperr.ErrValidation)
}
