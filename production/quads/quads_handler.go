package quads

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"baletrack/infrastructure/apperr"
	"baletrack/models"
	"baletrack/production/shared/context"
	"baletrack/production/shared/respond"
)

// CreateQuadCommandHandler packs {"itemIds": [4 ids]}.
func CreateQuadCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		view, err := svc.Create(r.Context(), context.Actor(r.Context()), req.ItemIDs)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusCreated, view)
	}
}

func ListQuadsQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status models.QuadStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := models.ParseQuadStatus(raw)
			if err != nil {
				respond.Error(w, logger, apperr.Validation("status", "%v", err))
				return
			}
			status = parsed
		}
		views, err := svc.List(r.Context(), status)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, views)
	}
}

// AvailableItemsQueryHandler lists packable items for ?product=&sort=.
func AvailableItemsQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rows, err := svc.ListAvailable(r.Context(), q.Get("product"), q.Get("sort"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, rows)
	}
}

func GetQuadQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, view)
	}
}

// SendQuadToWarehouseCommandHandler accepts an optional {"location": "..."} body.
func SendQuadToWarehouseCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req warehouseRequest
		if r.ContentLength != 0 {
			if err := respond.Decode(r, &req); err != nil {
				respond.Error(w, logger, err)
				return
			}
		}
		view, err := svc.SendToWarehouse(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"), req.Location)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, view)
	}
}

func DisbandQuadCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		freed, err := svc.Disband(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, freed)
	}
}
