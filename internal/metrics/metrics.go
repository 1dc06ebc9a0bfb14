// Package metrics holds the Prometheus collectors shared by the three
// services and the ops listener that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth service.
var (
	AuthPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironrift_auth_packets_total",
		Help: "Auth datagrams processed, labeled by packet type.",
	}, []string{"type"})

	AuthResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironrift_auth_results_total",
		Help: "Auth operation outcomes, labeled by operation and result.",
	}, []string{"op", "result"})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ironrift_auth_sessions_swept_total",
		Help: "Expired sessions removed by the cleanup sweep.",
	})
)

// Matchmaking coordinator.
var (
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ironrift_mm_queue_depth",
		Help: "Players currently admitted to the matchmaking queue.",
	})

	ValidationsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ironrift_mm_validations_pending",
		Help: "Queue admissions waiting for an auth service verdict.",
	})

	LobbiesForming = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ironrift_mm_lobbies_forming",
		Help: "Lobbies currently inside the accept window.",
	})

	ServersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ironrift_mm_servers_online",
		Help: "Game servers with a live heartbeat.",
	})

	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ironrift_mm_active_games",
		Help: "Matches currently tracked for reconnect.",
	})

	MatchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ironrift_mm_matches_started_total",
		Help: "Lobbies that reached a game server.",
	})

	MatchesCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ironrift_mm_matches_cancelled_total",
		Help: "Lobbies dissolved before start, labeled by cause.",
	}, []string{"cause"})
)

// Game server.
var (
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ironrift_game_tick_seconds",
		Help:    "Wall time spent advancing one simulation tick.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	ClientsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ironrift_game_clients",
		Help: "Client sessions currently connected.",
	})

	SnapshotsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ironrift_game_snapshots_sent_total",
		Help: "World snapshot packets broadcast to clients.",
	})

	InputsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ironrift_game_inputs_discarded_total",
		Help: "Client inputs dropped as stale or out of order.",
	})
)

// Shared.
var (
	DatagramsDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ironrift_udp_dropped",
		Help: "Datagrams discarded because a receive queue was full.",
	}, []string{"endpoint"})
)
