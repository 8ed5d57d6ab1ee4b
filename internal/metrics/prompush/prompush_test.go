package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"sparkify/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write: %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain a counter")
	}
	return m.GetCounter().GetValue()
}

func summaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("summary observer is not a prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write: %v", err)
	}
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     string
		url     string
		wantErr bool
		wantJob string
	}{
		{name: "missing_url", job: "x", wantErr: true},
		{name: "default_job", url: "http://pushgateway:9091", wantJob: "sparkify"},
		{name: "explicit_job", job: "nightly", url: "http://pushgateway:9091", wantJob: "nightly"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tc.job, tc.url)
			if tc.wantErr {
				if err == nil || b != nil {
					t.Fatalf("NewBackend(%q, %q)=(%v, %v), want error", tc.job, tc.url, b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend: %v", err)
			}
			if b.jobName != tc.wantJob {
				t.Fatalf("jobName=%q, want %q", b.jobName, tc.wantJob)
			}
		})
	}
}

func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("sparkify", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "log_file", "status": "success"})
	b.IncCounter(metrics.StepTotal, 2, metrics.Labels{"step": "log_file", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 7, metrics.Labels{"kind": "songplays"})
	b.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"dataset": "song_data"})
	b.IncCounter("unknown_metric", 99, nil)

	if got := counterValue(t, b.stepCounter.WithLabelValues("log_file", "success")); got != 3 {
		t.Fatalf("step counter=%v, want 3", got)
	}
	if got := counterValue(t, b.recordCounter.WithLabelValues("songplays")); got != 7 {
		t.Fatalf("record counter=%v, want 7", got)
	}
	if got := counterValue(t, b.fileCounter.WithLabelValues("song_data")); got != 1 {
		t.Fatalf("file counter=%v, want 1", got)
	}
}

func TestIncCounter_NilCollectors(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "songs"})
	b.IncCounter(metrics.FilesTotal, 1, metrics.Labels{"dataset": "log_data"})
	b.ObserveHistogram(metrics.StepDuration, 1, nil)
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("sparkify", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.ObserveHistogram(metrics.StepDuration, 0.5, metrics.Labels{"step": "song_file", "status": "success"})
	b.ObserveHistogram(metrics.StepDuration, 1.5, metrics.Labels{"step": "song_file", "status": "success"})
	b.ObserveHistogram("other_histogram", 10, metrics.Labels{"step": "song_file", "status": "success"})

	n, sum := summaryCountSum(t, b.stepDuration, "song_file", "success")
	if n != 2 || sum != 2.0 {
		t.Fatalf("summary count=%d sum=%v, want 2/2.0", n, sum)
	}
}

func TestFlush(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method string
		path   string
		body   string
	}
	reqCh := make(chan pushed, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{method: r.Method, path: r.URL.Path, body: string(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("sparkify", server.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": "songs"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case got := <-reqCh:
		if got.method != http.MethodPut {
			t.Fatalf("method=%s, want PUT", got.method)
		}
		if !strings.Contains(got.path, "/job/sparkify") {
			t.Fatalf("path=%s, want job grouping key", got.path)
		}
		if got.body == "" {
			t.Fatalf("empty push body")
		}
	default:
		t.Fatalf("Flush did not reach the gateway")
	}
}

func TestFlush_GatewayError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	b, err := NewBackend("sparkify", server.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if err := b.Flush(); err == nil {
		t.Fatalf("expected error from failing gateway")
	}
}
