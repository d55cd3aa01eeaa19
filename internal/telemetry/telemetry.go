// Package telemetry exposes run-level prometheus metrics for long simulations: round throughput,
// client update counts, and the latest evaluation metrics, served on an optional HTTP listener.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/AbdulmoneamAli/federated/internal/fedavg"
)

// Reporter registers and serves the harness metrics. A nil Reporter is a no-op, so callers can
// thread it through unconditionally.
type Reporter struct {
	registry *prometheus.Registry
	echo     *echo.Echo

	roundsCompleted prometheus.Counter
	clientUpdates   prometheus.Counter
	failedUpdates   prometheus.Counter
	examples        prometheus.Counter
	roundSeconds    prometheus.Histogram
	trainLoss       prometheus.Gauge
	evalMetrics     *prometheus.GaugeVec
}

// New builds a Reporter with all collectors registered.
func New() *Reporter {
	r := &Reporter{
		registry: prometheus.NewRegistry(),
		roundsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fed_rounds_completed_total",
			Help: "Completed federated averaging rounds.",
		}),
		clientUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fed_client_updates_total",
			Help: "Client updates folded into the global model.",
		}),
		failedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fed_client_updates_failed_total",
			Help: "Client updates that failed or were discarded.",
		}),
		examples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fed_examples_processed_total",
			Help: "Training examples processed across all clients.",
		}),
		roundSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fed_round_duration_seconds",
			Help:    "Wall-clock duration of a federated round.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		trainLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fed_train_loss",
			Help: "Example-weighted mean client training loss of the last round.",
		}),
		evalMetrics: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fed_eval_metric",
			Help: "Latest centralized evaluation metrics.",
		}, []string{"metric"}),
	}
	r.registry.MustRegister(r.roundsCompleted, r.clientUpdates, r.failedUpdates,
		r.examples, r.roundSeconds, r.trainLoss, r.evalMetrics)
	return r
}

// ObserveRound records one completed round.
func (r *Reporter) ObserveRound(m fedavg.RoundMetrics, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.roundsCompleted.Inc()
	r.clientUpdates.Add(float64(m.NumClients))
	r.failedUpdates.Add(float64(m.FailedClients))
	r.examples.Add(float64(m.NumExamples))
	r.roundSeconds.Observe(elapsed.Seconds())
	r.trainLoss.Set(m.Loss)
}

// ObserveEval records the latest evaluation metrics.
func (r *Reporter) ObserveEval(report map[string]float64) {
	if r == nil {
		return
	}
	for name, value := range report {
		r.evalMetrics.WithLabelValues(name).Set(value)
	}
}

// Serve starts the metrics endpoint on addr. It returns immediately; the server runs until
// Close is called.
func (r *Reporter) Serve(addr string) {
	if r == nil || addr == "" {
		return
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(
		promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})))
	r.echo = e
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("telemetry server exited")
		}
	}()
	log.WithField("addr", addr).Info("serving telemetry")
}

// Close shuts the metrics endpoint down.
func (r *Reporter) Close(ctx context.Context) error {
	if r == nil || r.echo == nil {
		return nil
	}
	return r.echo.Shutdown(ctx)
}
