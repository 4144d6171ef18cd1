package handlers

import (
	"net/http"

	"github.com/dvloznov/statement-insights/internal/api/middleware"
	"github.com/dvloznov/statement-insights/internal/domain"
)

// RulesHandler serves rules and categories.
type RulesHandler struct {
	svc Service
}

// NewRulesHandler creates a rules handler.
func NewRulesHandler(svc Service) *RulesHandler {
	return &RulesHandler{svc: svc}
}

type ruleRequest struct {
	Keyword    string `json:"keyword"`
	CategoryID int64  `json:"category_id"`
	Priority   *int   `json:"priority"`
}

// ListRules handles GET /api/rules
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to list rules")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateRule handles POST /api/rules
func (h *RulesHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Invalid request body")
		return
	}
	rule, err := h.svc.AddRule(r.Context(), req.Keyword, req.CategoryID, req.Priority)
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to create rule")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /api/rules/{id}
func (h *RulesHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Invalid rule id")
		return
	}
	var req ruleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Invalid request body")
		return
	}
	rule, err := h.svc.UpdateRule(r.Context(), id, req.Keyword, req.CategoryID, req.Priority)
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to update rule")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/rules/{id}
func (h *RulesHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Invalid rule id")
		return
	}
	if err := h.svc.DeleteRule(r.Context(), id); err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DryRun handles POST /api/rules/dry-run
func (h *RulesHandler) DryRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Invalid request body")
		return
	}
	res, rule, err := h.svc.DryRun(r.Context(), req.Description)
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to evaluate rules")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, struct {
		Description string       `json:"description"`
		CategoryID  *int64       `json:"category_id"`
		Rule        *domain.Rule `json:"rule"`
	}{req.Description, res.CategoryID, rule})
}

// ListCategories handles GET /api/categories
func (h *RulesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.ListCategories(r.Context())
	if err != nil {
		middleware.WriteServiceError(r.Context(), w, err, "Failed to list categories")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"count":      len(categories),
	})
}
