package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "focushub_ws_connections_active",
		Help: "Currently open websocket connections.",
	})

	joinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focushub_joins_total",
		Help: "Sessions successfully joined through the gateway.",
	})

	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focushub_messages_sent_total",
		Help: "Chat messages accepted for append.",
	})

	noticesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focushub_store_notices_total",
		Help: "Asynchronous store failures surfaced to clients.",
	}, []string{"kind"})

	commandErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focushub_command_errors_total",
		Help: "Client commands rejected by validation.",
	})
)
