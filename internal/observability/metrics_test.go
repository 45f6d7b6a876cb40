package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordToolExecution(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_tool_executions_total", Help: "test"},
		[]string{"tool_name", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("files_read", "success").Inc()
	counter.WithLabelValues("files_read", "success").Inc()
	counter.WithLabelValues("process_run", "error").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestRecordLLMRequest(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_llm_requests_total", Help: "test"},
		[]string{"provider", "model", "status"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("anthropic", "claude-sonnet", "success").Inc()
	counter.WithLabelValues("google", "gemini-pro", "success").Inc()
	counter.WithLabelValues("anthropic", "claude-sonnet", "error").Inc()

	if count := testutil.CollectAndCount(counter); count != 3 {
		t.Errorf("expected 3 label combinations, got %d", count)
	}
}

func TestRecordError(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_errors_total", Help: "test"},
		[]string{"component", "error_type"},
	)
	registry.MustRegister(counter)

	counter.WithLabelValues("scheduler", "timed_out").Inc()
	counter.WithLabelValues("scheduler", "timed_out").Inc()
	counter.WithLabelValues("boundary", "exec_failed").Inc()

	if count := testutil.CollectAndCount(counter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
}

func TestSessionLifecycleGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_active_sessions", Help: "test"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_session_duration_seconds",
		Help:    "test",
		Buckets: []float64{60, 300, 600},
	})
	registry.MustRegister(gauge, histogram)

	gauge.Inc()
	gauge.Inc()
	gauge.Dec()
	histogram.Observe(300.0)

	if got := testutil.ToFloat64(gauge); got != 1 {
		t.Errorf("expected active sessions gauge to be 1, got %v", got)
	}
	if testutil.CollectAndCount(histogram) < 1 {
		t.Error("expected session duration histogram to have observations")
	}
}

func TestConcurrentMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_concurrent_total", Help: "test"},
		[]string{"label"},
	)
	registry.MustRegister(counter)

	done := make(chan bool)
	const iterations = 100

	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("a").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()
	go func() {
		for i := 0; i < iterations; i++ {
			counter.WithLabelValues("b").Inc()
			time.Sleep(time.Microsecond)
		}
		done <- true
	}()
	<-done
	<-done

	if testutil.CollectAndCount(counter) < 1 {
		t.Error("expected concurrent metric recording to work")
	}
}
