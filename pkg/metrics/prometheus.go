package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry              *prometheus.Registry
	transactionsScored    prometheus.Counter
	alertsEmitted         prometheus.Counter
	ruleConfigWarnings    prometheus.Counter
	scoringDuration       prometheus.Histogram
	riskScoreDistribution prometheus.Histogram
	logger                *slog.Logger
}

func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		transactionsScored: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "transactions_scored_total",
			Help: "Total number of transactions scored",
		}),
		alertsEmitted: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "fraud_alerts_emitted_total",
			Help: "Total number of fraud alerts emitted",
		}),
		ruleConfigWarnings: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "rule_config_warnings_total",
			Help: "Total number of malformed rules skipped during evaluation",
		}),
		scoringDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "transaction_scoring_duration_seconds",
			Help:    "Time taken to score a transaction",
			Buckets: prometheus.DefBuckets,
		}),
		riskScoreDistribution: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "transaction_risk_score_distribution",
			Help:    "Distribution of transaction risk scores",
			Buckets: []float64{0, 20, 40, 60, 80, 100},
		}),
		logger: logger,
	}
}

func (c *Collector) RecordScoring(duration time.Duration, riskScore int, alertRaised bool) {
	c.transactionsScored.Inc()
	c.scoringDuration.Observe(duration.Seconds())
	c.riskScoreDistribution.Observe(float64(riskScore))
	if alertRaised {
		c.alertsEmitted.Inc()
	}
}

func (c *Collector) RecordRuleWarnings(count int) {
	if count > 0 {
		c.ruleConfigWarnings.Add(float64(count))
	}
}

func (c *Collector) GetHandler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.GetHandler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		c.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (c *Collector) Shutdown(ctx context.Context) error {
	c.logger.Info("Metrics collector shutdown complete")
	return nil
}
