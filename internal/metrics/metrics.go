// Package metrics is a backend-agnostic recorder for operational metrics of
// an ETL run.
//
// Callers record against a global backend that defaults to a no-op, so
// instrumentation is always safe even when nothing is configured. Concrete
// metric systems live in subpackages (datadog, prompush).
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by the backends.
const (
	StepTotal       = "etl_step_total"
	StepDuration    = "etl_step_duration_seconds"
	RecordsTotal    = "etl_records_total"
	FilesTotal      = "etl_files_total"
	statusSuccess   = "success"
	statusFailure   = "failure"
	defaultLabelJob = "job"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep records one execution of an ETL step with its outcome and
// latency. Steps are "song_file", "log_file" and "ensure_tables".
func RecordStep(job, step string, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}

	lbls := Labels{
		defaultLabelJob: job,
		"step":          step,
		"status":        status,
	}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter. Kinds mirror the run summary:
// songs, artists, users, time, songplays, songplays_unmatched,
// events_skipped and files_failed.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		defaultLabelJob: job,
		"kind":          kind,
	})
}

// RecordFiles increments the count of committed files for the given dataset
// ("song_data" or "log_data").
func RecordFiles(job, dataset string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(FilesTotal, float64(delta), Labels{
		defaultLabelJob: job,
		"dataset":       dataset,
	})
}
