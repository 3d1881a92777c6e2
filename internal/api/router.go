package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/blockrelay/blockrelay/internal/auth"
	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/storage"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Accounts is the read side of the account store
type Accounts interface {
	AccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	AccountByName(ctx context.Context, name string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	CountAccounts(ctx context.Context) (storage.AccountCounts, error)
}

// Players lists live sessions
type Players interface {
	Online() []domain.Player
}

// Status reports the health of the bridge's moving parts
type Status interface {
	BreakerState() string
	PendingAlerts() int
}

// Options configures a Router
type Options struct {
	Accounts Accounts
	Players  Players
	Status   Status
	Auth     *auth.Service
	Logger   *slog.Logger
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux     *http.ServeMux
	api     http.Handler
	store   Accounts
	players Players
	status  Status
	wsHub   *WebSocketHub
	auth    *auth.Service
	logger  *slog.Logger
}

// NewRouter creates a new HTTP router
func NewRouter(opts Options) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		store:   opts.Accounts,
		players: opts.Players,
		status:  opts.Status,
		wsHub:   NewWebSocketHub(opts.Logger),
		auth:    opts.Auth,
		logger:  opts.Logger,
	}

	// JSON routes, compressed
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", r.handleGetStatus)
	api.HandleFunc("GET /api/players", r.handleGetPlayers)
	api.HandleFunc("GET /api/accounts", r.requireAuth(r.handleListAccounts))
	api.HandleFunc("GET /api/accounts/{name}", r.requireAuth(r.handleGetAccount))
	r.api = gzhttp.GzipHandler(api)
	r.mux.Handle("/api/", r.api)

	// Upgraded and self-compressing routes bypass gzip
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	countRequests(r.mux).ServeHTTP(w, req)
}

// StartWebSocketHub starts broadcasting events to WebSocket clients until ctx is done
func (r *Router) StartWebSocketHub(ctx context.Context, events <-chan domain.Event) {
	go r.wsHub.Run(ctx)

	// Forward events from the bridge to the WebSocket hub
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				r.wsHub.Broadcast(event)
			}
		}
	}()
}
