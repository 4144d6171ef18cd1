// Package handlers implements the HTTP endpoints over the insights service.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dvloznov/statement-insights/internal/categorizer"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/insights"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// Service is the part of insights.Service the API exposes.
type Service interface {
	ListRules(ctx context.Context) ([]domain.Rule, error)
	AddRule(ctx context.Context, keyword string, categoryID int64, priority *int) (domain.Rule, error)
	UpdateRule(ctx context.Context, id int64, keyword string, categoryID int64, priority *int) (domain.Rule, error)
	DeleteRule(ctx context.Context, id int64) error
	DryRun(ctx context.Context, description string) (categorizer.Result, *domain.Rule, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	CreateUpload(ctx context.Context, upload domain.Upload, txns []domain.Transaction) (domain.Upload, error)
	GetUpload(ctx context.Context, uploadID string) (domain.Upload, error)
	UploadTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error)
	UploadAnomalies(ctx context.Context, uploadID string) ([]domain.Anomaly, error)
	UploadSummary(ctx context.Context, uploadID string) (domain.Summary, error)
	UploadReport(ctx context.Context, uploadID string) (summary.Report, error)

	OverrideCategory(ctx context.Context, txnID string, categoryID int64) (domain.Transaction, error)
	ReviewAnomaly(ctx context.Context, id, decision string) (domain.Anomaly, error)
}

var _ Service = (*insights.Service)(nil)

// maxBodyBytes bounds request bodies, upload rows included.
const maxBodyBytes = 10 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: name, Reason: fmt.Sprintf("%q is not a valid id", raw)}
	}
	return id, nil
}
