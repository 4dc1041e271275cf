package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the counters below.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
	OutcomeDuplicate = "duplicate"
	OutcomeMissing   = "missing"
	OutcomeGap       = "gap"
)

var (
	CommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcard_commands_total",
		Help: "Commands handled, by command and outcome",
	}, []string{"command", "outcome"})
	CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftcard_command_duration_seconds",
		Help:    "Time from load to append for one command",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})
	EventsAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcard_events_appended_total",
		Help: "Events appended to the event store",
	}, []string{"event_type"})
	EventsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "giftcard_events_published_total",
		Help: "Events handed to the event channel by the outbox relay",
	})
	RelayFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "giftcard_relay_failures_total",
		Help: "Outbox relay publish failures",
	})
	ProjectedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcard_projected_events_total",
		Help: "Events seen by the read model projection, by outcome",
	}, []string{"event_type", "outcome"})
	ExpirySweep = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "giftcard_expiry_sweep_total",
		Help: "Cards visited by the expiry sweep, by outcome",
	}, []string{"outcome"})
	DBLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftcard_db_latency_seconds",
		Help:    "Database operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "success"})
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		CommandDuration,
		EventsAppended,
		EventsPublished,
		RelayFailures,
		ProjectedEvents,
		ExpirySweep,
		DBLatency,
	)
}

// Handler exposes the default registry for gin.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
