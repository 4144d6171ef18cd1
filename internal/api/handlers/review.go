package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dvloznov/statement-insights/internal/api/middleware"
)

// ReviewHandler serves the manual review operations.
type ReviewHandler struct {
	svc Service
}

// NewReviewHandler creates a review handler.
func NewReviewHandler(svc Service) *ReviewHandler {
	return &ReviewHandler{svc: svc}
}

// ReviewAnomaly handles PATCH /api/anomalies/{id}/status. The decision comes
// from ?status= or a {"status": ...} body.
func (h *ReviewHandler) ReviewAnomaly(w http.ResponseWriter, r *http.Request) {
	decision := r.URL.Query().Get("status")
	if decision == "" {
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteServiceError(r.Context(), w, err, "Invalid request body")
			return
		}
		decision = req.Status
	}

	a, err := h.svc.ReviewAnomaly(r.Context(), chi.URLParam(r, "id"), decision)
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to review anomaly")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, a)
}

// OverrideCategory handles PATCH /api/transactions/{id}/category
func (h *ReviewHandler) OverrideCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryID int64 `json:"category_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Invalid request body")
		return
	}
	txn, err := h.svc.OverrideCategory(r.Context(), chi.URLParam(r, "id"), req.CategoryID)
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to override category")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, txn)
}
