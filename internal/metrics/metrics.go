package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_sent_total",
			Help: "Total number of messages accepted by a provider.",
		},
		[]string{"provider"},
	)
	messagesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_messages_failed_total",
			Help: "Total number of provider-reported send failures.",
		},
		[]string{"provider", "code"},
	)
	messagesQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_messages_queued_total",
			Help: "Total number of messages deferred to the queue.",
		},
	)
	retriesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_retries_scheduled_total",
			Help: "Total number of retries scheduled after a failed send.",
		},
	)
	optOuts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_optouts_total",
			Help: "Total number of registered opt-outs.",
		},
	)
	providerSendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_provider_send_seconds",
			Help:    "Provider send round-trip duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
	drainedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_drained_messages_total",
			Help: "Total number of queued messages picked up by the drain loop.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		messagesSent,
		messagesFailed,
		messagesQueued,
		retriesScheduled,
		optOuts,
		providerSendDuration,
		drainedMessages,
	)
}

func SendSucceeded(provider string) {
	messagesSent.WithLabelValues(provider).Inc()
}

func SendFailed(provider, code string) {
	messagesFailed.WithLabelValues(provider, code).Inc()
}

func Queued() {
	messagesQueued.Inc()
}

func RetryScheduled() {
	retriesScheduled.Inc()
}

func OptOutRegistered() {
	optOuts.Inc()
}

func ObserveSendDuration(provider string, d time.Duration) {
	providerSendDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func Drained(n int) {
	drainedMessages.Add(float64(n))
}

func Handler() http.Handler {
	return promhttp.Handler()
}
