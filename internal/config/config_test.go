package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INSIGHTS_CONFIG", "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "8080", c.HTTP.Port)
	assert.Equal(t, "", c.Database.URL)
	assert.Equal(t, 5, c.Jobs.Workers)
	assert.False(t, c.WarehouseEnabled())
	assert.False(t, c.ReportsEnabled())

	ac, err := c.AnomalyConfig()
	require.NoError(t, err)
	assert.Equal(t, 2.0, ac.K)
	assert.Equal(t, 3, ac.MinOutflows)
	assert.Equal(t, 3, ac.DuplicateWindowDays)
	assert.Equal(t, "10000", ac.LargeAmountThreshold.String())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[http]
port = "9090"

[detector]
k = 2.5
large_amount_threshold = "0"

[bigquery]
dataset = "insights"
`), 0o600))

	t.Setenv("INSIGHTS_GCP_PROJECT_ID", "proj")
	t.Setenv("INSIGHTS_HTTP_PORT", "7070")
	t.Setenv("INSIGHTS_STORAGE_REPORT_BUCKET", "reports")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", c.HTTP.Port, "env beats file")
	assert.Equal(t, 2.5, c.Detector.K)
	assert.True(t, c.WarehouseEnabled())
	assert.True(t, c.ReportsEnabled())

	ac, err := c.AnomalyConfig()
	require.NoError(t, err)
	assert.True(t, ac.LargeAmountThreshold.IsZero())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("INSIGHTS_CONFIG", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("INSIGHTS_NOTION_DATABASE_ID=db-from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("INSIGHTS_NOTION_DATABASE_ID") })

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "db-from-dotenv", c.Notion.DatabaseID)
}

func TestLoad_Errors(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INSIGHTS_CONFIG", "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	t.Setenv("INSIGHTS_DETECTOR_LARGE_AMOUNT_THRESHOLD", "lots")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("INSIGHTS_DETECTOR_LARGE_AMOUNT_THRESHOLD", "-5")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("INSIGHTS_DETECTOR_LARGE_AMOUNT_THRESHOLD", "")
	t.Setenv("INSIGHTS_LOG_LEVEL", "loud")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoggerOptions(t *testing.T) {
	c := Config{Log: LogConfig{Level: "debug", Format: "json"}}
	opts := c.LoggerOptions("insights-cli")
	assert.Equal(t, "debug", opts.Level)
	assert.Equal(t, "json", opts.Format)
	assert.Equal(t, "insights-cli", opts.Service)
}
