// Package config defines the pipeline document that drives a batch run.
//
// A pipeline is JSON or YAML (chosen by file extension). Fields absent from
// the document keep the values from Default, so a config only has to name
// what it changes.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Runtime failure policies.
const (
	OnFileErrorAbort = "abort"
	OnFileErrorSkip  = "skip"
)

// Metrics backends.
const (
	MetricsNone        = "none"
	MetricsPushgateway = "pushgateway"
	MetricsDatadog     = "datadog"
)

// Pipeline is the top-level run configuration.
type Pipeline struct {
	Job       string    `json:"job" yaml:"job"`
	Source    Source    `json:"source" yaml:"source"`
	Storage   Storage   `json:"storage" yaml:"storage"`
	Transform Transform `json:"transform" yaml:"transform"`
	Runtime   Runtime   `json:"runtime" yaml:"runtime"`
	Metrics   Metrics   `json:"metrics" yaml:"metrics"`
	Log       Log       `json:"log" yaml:"log"`
}

// Source names the two input trees. Every *.json file at any depth is read.
type Source struct {
	SongData string `json:"song_data" yaml:"song_data"`
	LogData  string `json:"log_data" yaml:"log_data"`
}

// Storage selects the backend registered under Kind.
type Storage struct {
	// Backend kind: "postgres" | "sqlite" | "mssql" | "mysql"
	Kind string `json:"kind" yaml:"kind"`
	DSN  string `json:"dsn" yaml:"dsn"`

	// AutoCreateTable runs idempotent DDL for the five tables before loading.
	AutoCreateTable bool `json:"auto_create_table" yaml:"auto_create_table"`
}

type Transform struct {
	// NormalizeText applies Unicode NFC to song titles and artist names.
	// Off by default; when set, stored text may differ from the source bytes.
	NormalizeText bool `json:"normalize_text" yaml:"normalize_text"`

	// DurationTolerance is the maximum |duration - length| for a catalog
	// match, in seconds. 0 means exact equality.
	DurationTolerance float64 `json:"duration_tolerance" yaml:"duration_tolerance"`
}

type Runtime struct {
	// OnFileError is "abort" (stop at the first failed file) or "skip"
	// (log, continue, and fail the run at the end).
	OnFileError string `json:"on_file_error" yaml:"on_file_error"`
}

type Metrics struct {
	Backend        string   `json:"backend" yaml:"backend"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url"`
	Tags           []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// FlushEvery is a Go duration string ("60s"); empty means the backend default.
	FlushEvery string `json:"flush_every,omitempty" yaml:"flush_every,omitempty"`
}

type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Pipeline {
	return Pipeline{
		Job: "sparkify",
		Source: Source{
			SongData: filepath.Join("data", "song_data"),
			LogData:  filepath.Join("data", "log_data"),
		},
		Storage: Storage{
			Kind:            "postgres",
			DSN:             "host=127.0.0.1 dbname=sparkifydb user=student password=student",
			AutoCreateTable: true,
		},
		Runtime:   Runtime{OnFileError: OnFileErrorAbort},
		Metrics:   Metrics{Backend: MetricsNone},
		Log:       Log{Level: "info", Format: "console"},
	}
}

// Load reads a pipeline file over Default. Unknown fields are rejected.
// ${VAR} references in the DSN are expanded from the environment.
func Load(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read config: %w", err)
	}

	p := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	p.Storage.DSN = os.ExpandEnv(p.Storage.DSN)
	return p, nil
}

// FlushInterval parses Metrics.FlushEvery. Empty yields 0.
func (m Metrics) FlushInterval() (time.Duration, error) {
	if strings.TrimSpace(m.FlushEvery) == "" {
		return 0, nil
	}
	return time.ParseDuration(m.FlushEvery)
}
