package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedClients tracks the number of live WebSocket connections.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "statusgarden",
			Subsystem: "realtime",
			Name:      "connected_clients",
			Help:      "Number of connected WebSocket clients",
		},
	)

	// BroadcastsTotal counts published broadcast frames by event name.
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statusgarden",
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Number of broadcast frames published",
		},
		[]string{"event"},
	)

	// DroppedMessages counts frames dropped due to full queues.
	DroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "statusgarden",
			Subsystem: "realtime",
			Name:      "dropped_messages_total",
			Help:      "Number of frames dropped because a queue was full",
		},
	)
)
