package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-insights/internal/jobs"
)

func TestStore_SaveAndGetCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	started := time.Now()
	job := &jobs.AnalyzeUploadJob{JobID: "j1", UploadID: "u1", Status: jobs.JobStatusRunning, StartedAt: &started}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusFailed
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusRunning, got.Status)

	got.StartedAt = nil
	again, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.NotNil(t, again.StartedAt)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	assert.Error(t, s.SaveJob(ctx, &jobs.AnalyzeUploadJob{}))

	_, err := s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
	assert.ErrorIs(t, s.UpdateJobStatus(ctx, "missing", jobs.JobStatusFailed, "x"), jobs.ErrJobNotFound)
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, j := range []*jobs.AnalyzeUploadJob{
		{JobID: "c", UploadID: "u1", Status: jobs.JobStatusCompleted},
		{JobID: "a", UploadID: "u1", Status: jobs.JobStatusPending},
		{JobID: "b", UploadID: "u2", Status: jobs.JobStatusPending},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveJob(ctx, j))
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all oldest first", jobs.JobFilter{}, []string{"c", "a", "b"}},
		{"by upload", jobs.JobFilter{UploadID: "u1"}, []string{"c", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusPending}, []string{"a", "b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 2}, []string{"b"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			require.NoError(t, err)
			ids := []string{}
			for _, j := range got {
				ids = append(ids, j.JobID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestStore_UpdateJobStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.SaveJob(ctx, &jobs.AnalyzeUploadJob{JobID: "j1", Error: "old"}))

	require.NoError(t, s.UpdateJobStatus(ctx, "j1", jobs.JobStatusCompleted, ""))
	got, err := s.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, got.Status)
	assert.Equal(t, "old", got.Error)
}
