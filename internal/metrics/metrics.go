package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentfi_intents_processed_total",
		Help: "Utterances processed by the pipeline, by outcome kind",
	}, []string{"kind"})

	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentfi_pipeline_seconds",
		Help:    "Time taken to turn an utterance into a plan",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"source"})

	PlanProviderAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentfi_plan_provider_attempts_total",
		Help: "Plan generation attempts by provider tier and result",
	}, []string{"provider", "result"})

	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentfi_dispatch_total",
		Help: "Dispatched operations by operation and resulting step status",
	}, []string{"operation", "status"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentfi_dispatch_seconds",
		Help:    "Time taken by integration calls",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"operation"})

	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentfi_wallet_transfers_total",
		Help: "Client-side transfers by final state and failure reason",
	}, []string{"state", "reason"})

	NonceRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intentfi_wallet_nonce_retries_total",
		Help: "Transfer submissions retried after a nonce conflict",
	})

	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentfi_storage_errors_total",
		Help: "Intent storage failures by operation",
	}, []string{"op"})

	StorageDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "intentfi_storage_degraded",
		Help: "1 while intent storage is served from the in-memory fallback",
	})

	BalanceRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentfi_balance_refreshes_total",
		Help: "Token balance refresh rounds by result",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intentfi_http_requests_total",
		Help: "HTTP requests served by route and status code",
	}, []string{"route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intentfi_http_request_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// BoolLabel renders a success flag as a metric label value.
func BoolLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
