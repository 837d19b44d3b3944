package stocktake

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"baletrack/production/shared/context"
	"baletrack/production/shared/respond"
)

// StartSessionCommandHandler opens a session from {"name": "..."}.
func StartSessionCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		session, err := svc.StartSession(r.Context(), context.Actor(r.Context()), req.Name)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusCreated, session)
	}
}

func ListSessionsQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.List(r.Context())
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, rows)
	}
}

func GetSessionQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, session)
	}
}

// ScanCommandHandler records {"barcode": "...", "location": "..."}. A repeated scan
// answers 200 with the existing record, a new one 201.
func ScanCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scanRequest
		if err := respond.Decode(r, &req); err != nil {
			respond.Error(w, logger, err)
			return
		}
		result, err := svc.Scan(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"), req.Barcode, req.Location)
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		respond.JSON(w, status, result)
	}
}

func ListRecordsQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := svc.Records(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, rows)
	}
}

func CompleteSessionCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.CompleteSession(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, summary)
	}
}

func CancelSessionCommandHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := svc.CancelSession(r.Context(), context.Actor(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, session)
	}
}

func SummaryQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Summary(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, summary)
	}
}

// ActiveSessionQueryHandler returns the Active session or 404.
func ActiveSessionQueryHandler(svc *Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := svc.Active(r.Context())
		if err != nil {
			respond.Error(w, logger, err)
			return
		}
		respond.JSON(w, http.StatusOK, session)
	}
}
