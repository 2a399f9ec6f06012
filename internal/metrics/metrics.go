package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dicearena_rooms_active",
			Help: "Rooms currently held by the directory",
		},
	)
	RoomsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dicearena_rooms_created_total",
			Help: "Rooms created, by createRoom or quickMatch",
		},
	)
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dicearena_connections_active",
			Help: "Open websocket connections",
		},
	)
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dicearena_inbound_events_total",
			Help: "Client events received, by event type",
		},
		[]string{"event"},
	)
	RejectedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dicearena_rejected_events_total",
			Help: "Client events answered with an error, by event type and error code",
		},
		[]string{"event", "code"},
	)
	MatchesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dicearena_matches_started_total",
			Help: "Matches started",
		},
	)
	MatchesFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dicearena_matches_finished_total",
			Help: "Matches that produced a winner",
		},
	)
	DroppedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dicearena_dropped_messages_total",
			Help: "Outbound messages dropped because a client outbox was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RoomsActive,
		RoomsCreated,
		ConnectionsActive,
		InboundEvents,
		RejectedEvents,
		MatchesStarted,
		MatchesFinished,
		DroppedMessages,
	)
}
