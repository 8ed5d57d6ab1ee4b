package config

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap/zapcore"
)

// IssueSeverity classifies a validation finding.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one validation finding. Path is the dotted config path.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

var storageKinds = []string{"mssql", "mysql", "postgres", "sqlite"}

// ValidatePipeline reports every problem in p. Any SeverityError blocks a run.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue
	errorf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		warnf("job", "empty; metrics will use the default job name")
	}

	if p.Source.SongData == "" {
		errorf("source.song_data", "required")
	}
	if p.Source.LogData == "" {
		errorf("source.log_data", "required")
	}
	if p.Source.SongData != "" && filepath.Clean(p.Source.SongData) == filepath.Clean(p.Source.LogData) {
		warnf("source.log_data", "same directory as source.song_data; every file will be read twice")
	}

	switch {
	case p.Storage.Kind == "":
		errorf("storage.kind", "required (one of %s)", strings.Join(storageKinds, ", "))
	case !slices.Contains(storageKinds, p.Storage.Kind):
		errorf("storage.kind", "unknown backend %q (one of %s)", p.Storage.Kind, strings.Join(storageKinds, ", "))
	}
	if strings.TrimSpace(p.Storage.DSN) == "" {
		errorf("storage.dsn", "required")
	}
	if !p.Storage.AutoCreateTable {
		warnf("storage.auto_create_table", "false; the five tables must already exist")
	}

	tol := p.Transform.DurationTolerance
	if math.IsNaN(tol) || math.IsInf(tol, 0) || tol < 0 {
		errorf("transform.duration_tolerance", "must be a finite number >= 0, got %v", tol)
	}

	switch p.Runtime.OnFileError {
	case OnFileErrorAbort, OnFileErrorSkip:
	default:
		errorf("runtime.on_file_error", "must be %q or %q, got %q", OnFileErrorAbort, OnFileErrorSkip, p.Runtime.OnFileError)
	}

	switch p.Metrics.Backend {
	case "", MetricsNone, MetricsDatadog:
	case MetricsPushgateway:
		if p.Metrics.PushgatewayURL == "" {
			errorf("metrics.pushgateway_url", "required when metrics.backend is %q", MetricsPushgateway)
		}
	default:
		errorf("metrics.backend", "unknown backend %q", p.Metrics.Backend)
	}
	if d, err := p.Metrics.FlushInterval(); err != nil {
		errorf("metrics.flush_every", "%v", err)
	} else if d < 0 {
		errorf("metrics.flush_every", "must not be negative")
	}

	if p.Log.Level != "" {
		if _, err := zapcore.ParseLevel(p.Log.Level); err != nil {
			errorf("log.level", "%v", err)
		}
	}
	switch p.Log.Format {
	case "", "json", "console":
	default:
		errorf("log.format", "must be \"json\" or \"console\", got %q", p.Log.Format)
	}

	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
