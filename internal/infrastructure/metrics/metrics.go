// Package metrics exposes pipeline counters and model latency on a Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meridiano"

// Recorder holds the collectors on a private registry so tests can create many.
type Recorder struct {
	registry *prometheus.Registry

	ingested      *prometheus.CounterVec
	enriched      *prometheus.CounterVec
	rated         *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	briefs        *prometheus.CounterVec
	modelLatency  *prometheus.HistogramVec
	modelFailures *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_ingested_total",
			Help:      "Articles stored by the feed ingestion stage.",
		}, []string{"profile"}),
		enriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_enriched_total",
			Help:      "Articles given a summary and embedding.",
		}, []string{"profile"}),
		rated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_rated_total",
			Help:      "Articles given an impact score.",
		}, []string{"profile"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Items skipped by a stage, by reason.",
		}, []string{"stage", "reason"}),
		briefs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brief_runs_total",
			Help:      "Brief generation runs by outcome.",
		}, []string{"profile", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Latency of chat and embedding calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		modelFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_call_failures_total",
			Help:      "Chat and embedding calls that returned an error.",
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ingested, r.enriched, r.rated, r.skipped, r.briefs, r.modelLatency, r.modelFailures,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ArticleIngested, ArticleEnriched and ArticleRated count stored stage results per profile.
func (r *Recorder) ArticleIngested(profile string) { r.ingested.WithLabelValues(profile).Inc() }
func (r *Recorder) ArticleEnriched(profile string) { r.enriched.WithLabelValues(profile).Inc() }
func (r *Recorder) ArticleRated(profile string)    { r.rated.WithLabelValues(profile).Inc() }

// ItemSkipped counts one item a stage left for a later run.
func (r *Recorder) ItemSkipped(stage, reason string) {
	r.skipped.WithLabelValues(stage, reason).Inc()
}

// BriefOutcome counts one brief run by its outcome.
func (r *Recorder) BriefOutcome(profile, outcome string) {
	r.briefs.WithLabelValues(profile, outcome).Inc()
}

// ObserveModelCall records one chat or embedding call.
func (r *Recorder) ObserveModelCall(kind string, elapsed time.Duration, err error) {
	r.modelLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil {
		r.modelFailures.WithLabelValues(kind).Inc()
	}
}

// NewServer returns an HTTP server exposing /metrics on addr.
func (r *Recorder) NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
