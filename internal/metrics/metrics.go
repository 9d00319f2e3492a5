package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "powermeter_gateway_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Gateway holds the counters of the gateway control loop.
type Gateway struct {
	GroupsReceived  prometheus.Counter
	GroupsPersisted prometheus.Counter
	PersistFailures prometheus.Counter
	Confirmations   *prometheus.CounterVec
	Replays         *prometheus.CounterVec
	ReplayedBytes   prometheus.Counter
	Telemetry       *prometheus.CounterVec
}

var (
	registerOnce sync.Once
	defaultSet   *Gateway
)

// Default returns the counters registered with the default registry.
func Default() *Gateway {
	registerOnce.Do(func() {
		defaultSet = NewGateway(prometheus.DefaultRegisterer)
	})
	return defaultSet
}

// NewGateway creates the counters and registers them with reg.
func NewGateway(reg prometheus.Registerer) *Gateway {
	g := &Gateway{
		GroupsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "groups_received_total",
			Help: "Field-groups received over the radio",
		}),
		GroupsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "groups_persisted_total",
			Help: "Field-groups appended to the log",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "persist_failures_total",
			Help: "Field-groups that could not be appended",
		}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "confirmations_total",
			Help: "Confirmation replies by result",
		}, []string{"result"}),
		Replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "replays_total",
			Help: "Replay requests served by result",
		}, []string{"result"}),
		ReplayedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "replayed_bytes_total",
			Help: "Log bytes sent by replays",
		}),
		Telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "telemetry_published_total",
			Help: "Decoded readings forwarded over MQTT by result",
		}, []string{"result"}),
	}
	reg.MustRegister(
		g.GroupsReceived,
		g.GroupsPersisted,
		g.PersistFailures,
		g.Confirmations,
		g.Replays,
		g.ReplayedBytes,
		g.Telemetry,
	)
	return g
}
