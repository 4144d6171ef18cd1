package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dvloznov/statement-insights/internal/api/middleware"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/jobs"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/rows"
)

// UploadsHandler accepts uploads and serves their results. Analysis runs as
// an asynchronous job.
type UploadsHandler struct {
	svc       Service
	publisher jobs.Publisher
}

// NewUploadsHandler creates an uploads handler.
func NewUploadsHandler(svc Service, publisher jobs.Publisher) *UploadsHandler {
	return &UploadsHandler{svc: svc, publisher: publisher}
}

type deliveryOptions struct {
	PublishReport   bool `json:"publish_report"`
	ExportWarehouse bool `json:"export_warehouse"`
}

type createUploadRequest struct {
	Filename string     `json:"filename"`
	Rows     []rows.Row `json:"rows"`
	deliveryOptions
}

type uploadAccepted struct {
	Upload domain.Upload `json:"upload"`
	JobID  string        `json:"job_id"`
}

// CreateUpload handles POST /api/uploads
func (h *UploadsHandler) CreateUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteServiceError(ctx, w, err, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "rows are required")
		return
	}
	txns, err := rows.Transactions(req.Rows)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	upload, err := h.svc.CreateUpload(ctx, domain.Upload{Filename: req.Filename, FileType: "json"}, txns)
	if err != nil {
		middleware.WriteServiceError(ctx, w, err, "Failed to create upload")
		return
	}

	jobID, err := h.enqueue(ctx, upload.ID, req.deliveryOptions)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("upload_id", upload.ID).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusInternalServerError, "Upload stored but analysis could not be queued")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, uploadAccepted{Upload: upload, JobID: jobID})
}

// AnalyzeUpload handles POST /api/uploads/{id}/analyze, re-running analysis
// after rule changes.
func (h *UploadsHandler) AnalyzeUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var opts deliveryOptions
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &opts); err != nil {
			middleware.WriteServiceError(ctx, w, err, "Invalid request body")
			return
		}
	}

	upload, err := h.svc.GetUpload(ctx, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(ctx, w, err, "Failed to load upload")
		return
	}
	jobID, err := h.enqueue(ctx, upload.ID, opts)
	if err != nil {
		middleware.WriteServiceError(ctx, w, err, "Failed to enqueue analysis job")
		return
	}
	middleware.WriteJSON(w, http.StatusAccepted, uploadAccepted{Upload: upload, JobID: jobID})
}

func (h *UploadsHandler) enqueue(ctx context.Context, uploadID string, opts deliveryOptions) (string, error) {
	job := &jobs.AnalyzeUploadJob{
		UploadID:        uploadID,
		PublishReport:   opts.PublishReport,
		ExportWarehouse: opts.ExportWarehouse,
	}
	if err := h.publisher.PublishAnalyzeUpload(ctx, job); err != nil {
		return "", err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("upload_id", uploadID).Str("job_id", job.JobID).Msg("Analysis job queued")
	return job.JobID, nil
}

// GetUpload handles GET /api/uploads/{id}
func (h *UploadsHandler) GetUpload(w http.ResponseWriter, r *http.Request) {
	upload, err := h.svc.GetUpload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to load upload")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, upload)
}

// GetSummary handles GET /api/uploads/{id}/summary
func (h *UploadsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.UploadSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to summarize upload")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}

// GetReport handles GET /api/uploads/{id}/report
func (h *UploadsHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.UploadReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to build report")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// ListTransactions handles GET /api/uploads/{id}/transactions
func (h *UploadsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txns, err := h.svc.UploadTransactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to list transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txns,
		"count":        len(txns),
	})
}

// ListAnomalies handles GET /api/uploads/{id}/anomalies
func (h *UploadsHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.UploadAnomalies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to list anomalies")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"anomalies": list,
		"count":     len(list),
	})
}
