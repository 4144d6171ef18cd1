// Package config loads settings from an optional TOML file, a .env file and
// INSIGHTS_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. INSIGHTS_DATABASE_URL.
const EnvPrefix = "INSIGHTS"

// Config holds application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GCP      GCPConfig      `mapstructure:"gcp"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Detector DetectorConfig `mapstructure:"detector"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig selects Postgres; an empty URL keeps all state in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type GCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// BigQueryConfig enables warehouse export when Dataset is set.
type BigQueryConfig struct {
	Dataset string `mapstructure:"dataset"`
}

// StorageConfig enables report publishing when ReportBucket is set.
type StorageConfig struct {
	ReportBucket string `mapstructure:"report_bucket"`
	ReportPrefix string `mapstructure:"report_prefix"`
}

type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

// DetectorConfig mirrors anomaly.Config with the threshold as text so it
// stays exact.
type DetectorConfig struct {
	K                    float64 `mapstructure:"k"`
	MinOutflows          int     `mapstructure:"min_outflows"`
	DuplicateWindowDays  int     `mapstructure:"duplicate_window_days"`
	DuplicateSimilarity  float64 `mapstructure:"duplicate_similarity"`
	LargeAmountThreshold string  `mapstructure:"large_amount_threshold"`
}

type JobsConfig struct {
	Workers    int `mapstructure:"workers"`
	BufferSize int `mapstructure:"buffer_size"`
}

// Load reads configuration. path may be empty, in which case INSIGHTS_CONFIG
// or ./insights.toml is used if present.
func Load(path string) (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("insights")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if _, err := c.AnomalyConfig(); err != nil {
		return Config{}, err
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	def := anomaly.DefaultConfig()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatConsole)
	v.SetDefault("database.url", "")
	v.SetDefault("http.port", "8080")
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("bigquery.dataset", "")
	v.SetDefault("storage.report_bucket", "")
	v.SetDefault("storage.report_prefix", "insights")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("detector.k", def.K)
	v.SetDefault("detector.min_outflows", def.MinOutflows)
	v.SetDefault("detector.duplicate_window_days", def.DuplicateWindowDays)
	v.SetDefault("detector.duplicate_similarity", def.DuplicateSimilarity)
	v.SetDefault("detector.large_amount_threshold", "10000")
	v.SetDefault("jobs.workers", 5)
	v.SetDefault("jobs.buffer_size", 100)
}

// AnomalyConfig converts the detector settings.
func (c Config) AnomalyConfig() (anomaly.Config, error) {
	threshold := decimal.Zero
	if s := strings.TrimSpace(c.Detector.LargeAmountThreshold); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return anomaly.Config{}, fmt.Errorf("detector.large_amount_threshold: %w", err)
		}
		if d.IsNegative() {
			return anomaly.Config{}, fmt.Errorf("detector.large_amount_threshold must not be negative, got %s", s)
		}
		threshold = d
	}
	return anomaly.Config{
		K:                    c.Detector.K,
		MinOutflows:          c.Detector.MinOutflows,
		DuplicateWindowDays:  c.Detector.DuplicateWindowDays,
		DuplicateSimilarity:  c.Detector.DuplicateSimilarity,
		LargeAmountThreshold: threshold,
	}, nil
}

// LoggerOptions converts the log settings for service.
func (c Config) LoggerOptions(service string) logger.Options {
	return logger.Options{Level: c.Log.Level, Format: c.Log.Format, Service: service}
}

// WarehouseEnabled reports whether BigQuery export is configured.
func (c Config) WarehouseEnabled() bool {
	return c.GCP.ProjectID != "" && c.BigQuery.Dataset != ""
}

// ReportsEnabled reports whether report publishing is configured.
func (c Config) ReportsEnabled() bool {
	return c.Storage.ReportBucket != ""
}
