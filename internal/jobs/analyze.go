package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/pipeline"
)

// Pipelines builds the analysis pipeline for a job's delivery flags.
type Pipelines func(publishReport, exportWarehouse bool) *pipeline.Pipeline

// NewAnalyzeHandler runs AnalyzeUploadJobs through the pipeline and records
// their outputs on the job. Unknown uploads and invalid data are not retried.
func NewAnalyzeHandler(pipelines Pipelines) JobHandler {
	return func(ctx context.Context, job Job) error {
		j, ok := job.(*AnalyzeUploadJob)
		if !ok {
			return Permanent(fmt.Errorf("unsupported job type %s", job.GetType()))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", j.JobID).
			Str("upload_id", j.UploadID).
			Int("attempt", j.RetryCount+1).
			Logger()
		ctx = logger.WithContext(ctx, log)

		state := &pipeline.State{UploadID: j.UploadID}
		if err := pipelines(j.PublishReport, j.ExportWarehouse).Execute(ctx, state); err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
				return Permanent(err)
			}
			return err
		}

		j.NewAnomalies = len(state.Result.NewAnomalies)
		j.ReportURI = state.ReportURI
		j.ExportID = state.ExportID
		log.Info().Int("new_anomalies", j.NewAnomalies).Msg("Analysis job finished")
		return nil
	}
}
