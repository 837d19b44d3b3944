package items

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

// CreateItemCommandHandler registers a bale from a JSON CreateInput.
func CreateItemCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in CreateInput
		if err := respond.Decode(r, &in); err != nil {
			respond.Error(w, logger, err)
			return
		}
		item, err := svc.Create(r.Context(), context.Actor(r.Context()), in)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusCreated, item)
	}
}

// ListItemsQueryHandler lists items filtered by ?status=&product=&sort=&batch=&quad=.
func ListItemsQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := Filter{
			ProductName: q.Get("product"),
			Sort:        q.Get("sort"),
			BatchID:     q.Get("batch"),
			QuadID:      q.Get("quad"),
		}
		if raw := strings.TrimSpace(q.Get("status")); raw != "" {
			status, err := models.ParseItemStatus(raw)
			if err != nil {
				respond.Error(w, logger, apperr.Validation("status", "%v", err))
				return
			}
			f.Status = status
		}
		rows, err := svc.List(r.Context(), f)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, rows)
	}
}

func GetItemQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, item)
	}
}

func GetItemByBarcodeQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.GetByBarcode(r.Context(), chi.URLParam(r, "barcode"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, item)
	}
}

func GradeItemCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gradeRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		item, err := svc.Grade(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"), req.Sort)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, item)
	}
}

func RevertItemCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Revert(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, item)
	}
}

func SetItemLocationCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req locationRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		item, err := svc.SetLocation(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"), req.Location)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, item)
	}
}

// ShipItemsCommandHandler ships {"itemIds": [...]} all-or-nothing.
func ShipItemsCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req shipRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		shipped, err := svc.Ship(r.Context(), context.Actor(r.Context()), req.ItemIDs)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, shipped)
	}
}

func ItemHistoryQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, entries)
	}
}
