// Package api assembles the HTTP router of the insights API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-insights/internal/api/handlers"
	"github.com/dvloznov/statement-insights/internal/api/middleware"
	"github.com/dvloznov/statement-insights/internal/jobs"
)

// Deps are the collaborators of the router.
type Deps struct {
	Service   handlers.Service
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Log       zerolog.Logger
}

// NewRouter wires every endpoint behind the standard middleware chain.
func NewRouter(deps Deps) *chi.Mux {
	rules := handlers.NewRulesHandler(deps.Service)
	uploads := handlers.NewUploadsHandler(deps.Service, deps.Publisher)
	review := handlers.NewReviewHandler(deps.Service)
	jobsH := handlers.NewJobsHandler(deps.JobStore)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Log))
	r.Use(middleware.Recovery(deps.Log))
	r.Use(middleware.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rules", rules.ListRules)
		r.Post("/rules", rules.CreateRule)
		r.Post("/rules/dry-run", rules.DryRun)
		r.Put("/rules/{id}", rules.UpdateRule)
		r.Delete("/rules/{id}", rules.DeleteRule)

		r.Get("/categories", rules.ListCategories)

		r.Post("/uploads", uploads.CreateUpload)
		r.Get("/uploads/{id}", uploads.GetUpload)
		r.Post("/uploads/{id}/analyze", uploads.AnalyzeUpload)
		r.Get("/uploads/{id}/summary", uploads.GetSummary)
		r.Get("/uploads/{id}/report", uploads.GetReport)
		r.Get("/uploads/{id}/transactions", uploads.ListTransactions)
		r.Get("/uploads/{id}/anomalies", uploads.ListAnomalies)

		r.Patch("/anomalies/{id}/status", review.ReviewAnomaly)
		r.Patch("/transactions/{id}/category", review.OverrideCategory)

		r.Get("/jobs", jobsH.ListJobs)
		r.Get("/jobs/{id}", jobsH.GetJob)
	})

	return r
}
