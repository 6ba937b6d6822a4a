package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeInvalidPlan = "invalid_plan"
	OutcomeRateLimited = "rate_limited"
)

// Auth outcomes.
const (
	AuthLoginOK        = "login_ok"
	AuthLoginFailed    = "login_failed"
	AuthSignupOK       = "signup_ok"
	AuthSignupConflict = "signup_conflict"
)

// Recorder is what handlers and services report to.
type Recorder interface {
	RecordGenerationAttempt(failed bool, latency time.Duration)
	RecordGeneration(outcome string)
	RecordSummarySaved()
	RecordAuth(outcome string)
}

// Collector implements Recorder on Prometheus metrics.
type Collector struct {
	attempts        *prometheus.CounterVec
	generations     *prometheus.CounterVec
	summariesSaved  prometheus.Counter
	auth            *prometheus.CounterVec
	providerLatency prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics, the Go runtime
// collectors and a gauge reporting the size of dataDir.
func NewCollector(reg prometheus.Registerer, dataDir string) *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diet_planner_generation_attempts_total",
			Help: "Provider calls made while generating plans.",
		}, []string{"result"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diet_planner_generations_total",
			Help: "Plan generation requests by outcome.",
		}, []string{"outcome"}),
		summariesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diet_planner_summaries_saved_total",
			Help: "Daily summaries saved.",
		}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "diet_planner_auth_total",
			Help: "Login and signup attempts by outcome.",
		}, []string{"outcome"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "diet_planner_provider_latency_seconds",
			Help:    "Latency of text-completion provider calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}),
	}

	reg.MustRegister(
		c.attempts,
		c.generations,
		c.summariesSaved,
		c.auth,
		c.providerLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "diet_planner_data_dir_bytes",
			Help: "Total size of the files in the data directory.",
		}, func() float64 {
			return float64(DirSize(dataDir))
		}),
	)

	return c
}

// RecordGenerationAttempt records one provider call.
func (c *Collector) RecordGenerationAttempt(failed bool, latency time.Duration) {
	result := "ok"
	if failed {
		result = "error"
	}
	c.attempts.WithLabelValues(result).Inc()
	c.providerLatency.Observe(latency.Seconds())
}

// RecordGeneration records the outcome of a plan request.
func (c *Collector) RecordGeneration(outcome string) {
	c.generations.WithLabelValues(outcome).Inc()
}

// RecordSummarySaved records a saved daily summary.
func (c *Collector) RecordSummarySaved() {
	c.summariesSaved.Inc()
}

// RecordAuth records a login or signup outcome.
func (c *Collector) RecordAuth(outcome string) {
	c.auth.WithLabelValues(outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordGenerationAttempt(bool, time.Duration) {}
func (Noop) RecordGeneration(string)                     {}
func (Noop) RecordSummarySaved()                         {}
func (Noop) RecordAuth(string)                           {}
