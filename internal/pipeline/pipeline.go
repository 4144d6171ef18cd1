// Package pipeline chains the steps that turn a rows file into an analyzed,
// reported and exported upload.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/insights"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// Step is a single step of a pipeline.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// State is shared across the steps of one run.
type State struct {
	// Source is the local path or gs:// URI of the rows file.
	Source   string
	Filename string

	UploadID     string
	Transactions []domain.Transaction

	Result    insights.AnalysisResult
	Report    summary.Report
	ReportURI string
	ExportID  string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs all steps sequentially and stops at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		log.Debug().Int("step", i+1).Str("name", step.Name()).Str("upload_id", state.UploadID).Msg("Pipeline step")
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}

// Options selects the optional steps of the standard pipelines.
type Options struct {
	Service UploadService
	// Objects reads gs:// sources and receives reports.
	Objects ObjectStore
	// ReportBucket enables report publishing when set.
	ReportBucket string
	ReportPrefix string
	// Warehouse enables BigQuery export when set.
	Warehouse Warehouse
}

// NewAnalysisPipeline analyzes an existing upload and delivers its report.
func NewAnalysisPipeline(opts Options) *Pipeline {
	steps := []Step{
		&AnalyzeStep{Service: opts.Service},
		&BuildReportStep{Service: opts.Service},
	}
	if opts.ReportBucket != "" && opts.Objects != nil {
		steps = append(steps, &PublishReportStep{Objects: opts.Objects, Bucket: opts.ReportBucket, Prefix: opts.ReportPrefix})
	}
	if opts.Warehouse != nil {
		steps = append(steps, &ExportStep{Service: opts.Service, Warehouse: opts.Warehouse})
	}
	return NewPipeline(steps...)
}

// NewIngestPipeline loads a rows file into a new upload, then runs the
// analysis pipeline over it.
func NewIngestPipeline(opts Options) *Pipeline {
	steps := []Step{
		&LoadRowsStep{Objects: opts.Objects},
		&CreateUploadStep{Service: opts.Service},
	}
	steps = append(steps, NewAnalysisPipeline(opts).steps...)
	return NewPipeline(steps...)
}
