// Package config loads sieve settings from a YAML file and SIEVE_ environment
// variables.
package config

import (
	"time"

	"github.com/japaniel/sieve/pkg/knowledge"
	"github.com/japaniel/sieve/pkg/known"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Language LanguageConfig `mapstructure:"language"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Anki     AnkiConfig     `mapstructure:"anki"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
}

// LanguageConfig names the language being learned and the ones already
// spoken, which select cognates.
type LanguageConfig struct {
	Target   string   `mapstructure:"target" validate:"required"`
	Known    []string `mapstructure:"known"`
	Splitter string   `mapstructure:"splitter" validate:"oneof=auto prose terminator"`
}

type TrackingConfig struct {
	Weights          known.Weights `mapstructure:"weights"`
	Threshold        int           `mapstructure:"threshold" validate:"gt=0"`
	CognateThreshold int           `mapstructure:"cognate_threshold" validate:"gt=0,ltefield=Threshold"`
	LifetimeSeconds  int           `mapstructure:"lifetime_seconds" validate:"gt=0"`
	CognatesPath     string        `mapstructure:"cognates_path"`
	// CognatesURL, when set, is downloaded to CognatesPath if that file is missing.
	CognatesURL string `mapstructure:"cognates_url" validate:"omitempty,url"`
}

// Thresholds returns the classifier thresholds.
func (t TrackingConfig) Thresholds() known.Thresholds {
	return known.Thresholds{Known: t.Threshold, Cognate: t.CognateThreshold}
}

// Lifetime is how long a knowledge snapshot is served before it is rebuilt.
func (t TrackingConfig) Lifetime() time.Duration {
	return time.Duration(t.LifetimeSeconds) * time.Second
}

type AnkiConfig struct {
	Enabled        bool               `mapstructure:"enabled"`
	URL            string             `mapstructure:"url" validate:"omitempty,url"`
	TimeoutSeconds int                `mapstructure:"timeout_seconds" validate:"gt=0"`
	QueryMature    string             `mapstructure:"query_mature"`
	QueryYoung     string             `mapstructure:"query_young"`
	FieldMap       knowledge.FieldMap `mapstructure:"fieldmap"`
}

func (a AnkiConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type AnalyzerConfig struct {
	SentenceWindow int     `mapstructure:"sentence_window" validate:"gt=0"`
	WordWindow     int     `mapstructure:"word_window" validate:"gt=0"`
	WordStep       int     `mapstructure:"word_step" validate:"gt=0"`
	LearningRate   float64 `mapstructure:"learning_rate" validate:"gte=0,lte=1"`
	Seed           uint64  `mapstructure:"seed"`
	Workers        int     `mapstructure:"workers" validate:"gt=0"`
}

type MetricsConfig struct {
	// Textfile, when set, receives the metrics in Prometheus text format
	// after every command.
	Textfile string `mapstructure:"textfile"`
}
