package products

import (
	"net/http"

	"go.uber.org/zap"

	"baletrack/production/shared/context"
	"baletrack/production/shared/respond"
)

const maxImportBytes = 10 << 20

func ListProductsQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.List(r.Context())
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, rows)
	}
}

// ImportProductsCommandHandler reads a "sku,name" CSV from the request body.
func ImportProductsCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
		summary, err := svc.ImportCSV(r.Context(), context.Actor(r.Context()), r.Body)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, summary)
	}
}
