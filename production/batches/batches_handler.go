package batches

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"baletrack/infrastructure/apperr"
	"baletrack/models"
	"baletrack/production/shared/context"
	"baletrack/production/shared/respond"
)

// CreateBatchCommandHandler opens a batch from {"sort": "..."}.
func CreateBatchCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		view, err := svc.Create(r.Context(), context.Actor(r.Context()), req.Sort)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusCreated, view)
	}
}

func ListBatchesQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status models.BatchStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := models.ParseBatchStatus(raw)
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

func GetBatchQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, view)
	}
}

// AddBatchItemCommandHandler accepts {"itemId": "..."} or {"barcode": "..."}.
func AddBatchItemCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		ctx := r.Context()
		batchID := chi.URLParam(r, "id")
		var (
			view View
			err  error
		)
		switch {
		case strings.TrimSpace(req.ItemID) != "":
			view, err = svc.AddItem(ctx, context.Actor(ctx), batchID, strings.TrimSpace(req.ItemID))
		case strings.TrimSpace(req.Barcode) != "":
			view, err = svc.AddItemByBarcode(ctx, context.Actor(ctx), batchID, req.Barcode)
		default:
			err = apperr.Validation("itemId", "itemId or barcode is required")
		}
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, view)
	}
}

func RemoveBatchItemCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serial, err := strconv.ParseInt(chi.URLParam(r, "serial"), 10, 64)
		if err != nil || serial <= 0 {
			respond.Error(w, logger, apperr.Validation("serial", "must be a positive integer"))
			return
		}
		view, err := svc.RemoveItem(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"), serial)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, view)
	}
}

func CloseBatchCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Close(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, view)
	}
}

func DisbandBatchCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.Disband(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, result)
	}
}
