package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-insights/internal/config"
	"github.com/dvloznov/statement-insights/internal/pipeline"
)

func memoryConfig() config.Config {
	var c config.Config
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Detector.K = 2
	c.Detector.MinOutflows = 3
	c.Detector.DuplicateWindowDays = 3
	c.Detector.DuplicateSimilarity = 0.9
	c.Detector.LargeAmountThreshold = "10000"
	return c
}

func TestNew_InMemory(t *testing.T) {
	var buf bytes.Buffer
	a, err := New(context.Background(), memoryConfig(), Options{Service: "test", LogOut: &buf})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Service)
	assert.Nil(t, a.Objects)
	assert.Nil(t, a.Warehouse)
	assert.Contains(t, buf.String(), "in-memory stores")
	assert.Contains(t, buf.String(), `"service":"test"`)

	cats, err := a.Service.ListCategories(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, cats)
}

func TestNew_InvalidThreshold(t *testing.T) {
	c := memoryConfig()
	c.Detector.LargeAmountThreshold = "lots"

	_, err := New(context.Background(), c, Options{LogOut: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "large_amount_threshold")
}

func TestPipelineOptions_WithoutIntegrations(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), Options{LogOut: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Close()

	opts := a.PipelineOptions(true, true)
	assert.Nil(t, opts.Objects)
	assert.Nil(t, opts.Warehouse)
	assert.Empty(t, opts.ReportBucket)

	p := a.Pipelines()(true, true)
	assert.Equal(t, []string{"analyze", "build_report"}, p.Steps())

	ingest := pipeline.NewIngestPipeline(opts)
	assert.Equal(t, []string{"load_rows", "create_upload", "analyze", "build_report"}, ingest.Steps())
}
