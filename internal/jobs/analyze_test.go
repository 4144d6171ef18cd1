package jobs_test

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/insights"
	"github.com/dvloznov/statement-insights/internal/jobs"
	"github.com/dvloznov/statement-insights/internal/pipeline"
)

type otherJob struct{}

func (otherJob) GetID() string             { return "x" }
func (otherJob) GetType() jobs.JobType     { return "other" }
func (otherJob) GetStatus() jobs.JobStatus { return jobs.JobStatusPending }

func txn(day int, description, amount string) domain.Transaction {
	return domain.Transaction{
		TxnDate:     civil.Date{Year: 2025, Month: 1, Day: day},
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "THB",
	}
}

func setup(t *testing.T) (*insights.Service, jobs.JobHandler, *[][2]bool) {
	t.Helper()
	ctx := context.Background()
	svc, err := insights.NewMemoryService(ctx, anomaly.NewDetector(anomaly.DefaultConfig()))
	require.NoError(t, err)

	var calls [][2]bool
	handler := jobs.NewAnalyzeHandler(func(publish, export bool) *pipeline.Pipeline {
		calls = append(calls, [2]bool{publish, export})
		return pipeline.NewAnalysisPipeline(pipeline.Options{Service: svc})
	})
	return svc, handler, &calls
}

func TestAnalyzeHandler(t *testing.T) {
	ctx := context.Background()
	svc, handler, calls := setup(t)

	upload, err := svc.CreateUpload(ctx, domain.Upload{Filename: "jan.csv"}, []domain.Transaction{
		txn(2, "Grab Ride", "-100"),
		txn(9, "Grab Ride", "-50"),
		txn(15, "Unknown Shop", "-5000"),
		txn(25, "Salary", "10000"),
	})
	require.NoError(t, err)

	job := &jobs.AnalyzeUploadJob{JobID: "j1", UploadID: upload.ID, PublishReport: true}
	require.NoError(t, handler(ctx, job))
	assert.Equal(t, [][2]bool{{true, false}}, *calls)
	assert.Equal(t, 1, job.NewAnomalies)

	got, err := svc.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusProcessed, got.Status)
}

func TestAnalyzeHandler_UnknownUploadIsPermanent(t *testing.T) {
	_, handler, _ := setup(t)
	err := handler(context.Background(), &jobs.AnalyzeUploadJob{JobID: "j1", UploadID: "missing"})
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyzeHandler_UnsupportedJob(t *testing.T) {
	_, handler, _ := setup(t)
	err := handler(context.Background(), otherJob{})
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, jobs.Permanent(nil))
	assert.False(t, jobs.IsPermanent(assert.AnError))
	assert.True(t, jobs.IsPermanent(jobs.Permanent(assert.AnError)))
	assert.ErrorIs(t, jobs.Permanent(assert.AnError), assert.AnError)
}
