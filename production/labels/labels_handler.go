package labels

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"baletrack/models"
	"baletrack/production/batches"
	"baletrack/production/quads"
	"baletrack/production/shared/respond"
)

// ItemGetter loads one item.
type ItemGetter interface {
	Get(ctx context.Context, id string) (models.ProductionItem, error)
}

func ItemLabelQueryHandler(svc ItemGetter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		pdf, err := ItemLabelPDF(item, time.Now())
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		writePDF(w, "bale-"+item.ID+".pdf", pdf)
	}
}

func BatchLabelQueryHandler(svc *batches.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		pdf, err := BatchLabelPDF(view, time.Now())
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		writePDF(w, view.ID+".pdf", pdf)
	}
}

func QuadLabelQueryHandler(svc *quads.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		pdf, err := QuadLabelPDF(view, time.Now())
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		writePDF(w, view.ID+".pdf", pdf)
	}
}

func writePDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
