package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission metrics
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrelay_logins_total",
			Help: "Login attempts by admission result",
		},
		[]string{"result"}, // "allowed", "needs_link", "left_discord", "error"
	)

	LinkSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrelay_link_submissions_total",
			Help: "Link code submissions by outcome",
		},
		[]string{"outcome"},
	)

	// Relay metrics
	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrelay_messages_relayed_total",
			Help: "Chat messages relayed",
		},
		[]string{"direction"}, // "to_minecraft" or "to_discord"
	)

	PrivateMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrelay_private_messages_total",
			Help: "Private messages by delivery path",
		},
		[]string{"delivery"}, // "in_game", "discord_dm", "unknown_player"
	)

	DeathAlertsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockrelay_death_alerts_sent_total",
			Help: "Death alerts delivered to Discord",
		},
	)

	PlayersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockrelay_players_online",
			Help: "Players currently connected to the network",
		},
	)

	// Platform metrics
	DiscordErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrelay_discord_errors_total",
			Help: "Failed Discord API calls",
		},
		[]string{"op"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockrelay_http_requests_total",
			Help: "Total status API requests",
		},
		[]string{"method", "path", "status"},
	)
)
