package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/blockrelay/blockrelay/internal/domain"
	"github.com/blockrelay/blockrelay/internal/storage"
	"github.com/google/uuid"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	PlayersOnline      int                   `json:"players_online"`
	Accounts           storage.AccountCounts `json:"accounts"`
	Discord            string                `json:"discord"`
	PendingDeathAlerts int                   `json:"pending_death_alerts"`
	WebSocketClients   int                   `json:"websocket_clients"`
}

// AccountView is an account as shown to operators. Pending link codes are never exposed.
type AccountView struct {
	ID                 uuid.UUID         `json:"id"`
	Username           string            `json:"username"`
	Nickname           string            `json:"nickname"`
	Link               domain.LinkStatus `json:"link"`
	DiscordID          string            `json:"discord_id,omitempty"`
	NotifyWhileOnline  bool              `json:"notify_while_online"`
	NotifyWhileOffline bool              `json:"notify_while_offline"`
	DeathAlertDelay    float64           `json:"death_alert_delay_seconds"`
	Online             bool              `json:"online"`
	CreatedAt          time.Time         `json:"created_at"`
}

func (r *Router) accountView(acct *domain.Account, online map[uuid.UUID]bool) AccountView {
	return AccountView{
		ID:                 acct.ID,
		Username:           acct.Username,
		Nickname:           acct.Nickname,
		Link:               acct.Link.Status,
		DiscordID:          acct.DiscordID(),
		NotifyWhileOnline:  acct.NotifyWhileOnline,
		NotifyWhileOffline: acct.NotifyWhileOffline,
		DeathAlertDelay:    acct.DeathAlertDelay.Seconds(),
		Online:             online[acct.ID],
		CreatedAt:          acct.CreatedAt,
	}
}

func (r *Router) onlineSet() map[uuid.UUID]bool {
	online := make(map[uuid.UUID]bool)
	for _, p := range r.players.Online() {
		online[p.ID] = true
	}
	return online
}

// handleGetStatus returns a summary of the bridge
func (r *Router) handleGetStatus(w http.ResponseWriter, req *http.Request) {
	counts, err := r.store.CountAccounts(req.Context())
	if err != nil {
		r.logger.Error("count_accounts_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count accounts")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		PlayersOnline:      len(r.players.Online()),
		Accounts:           counts,
		Discord:            r.status.BreakerState(),
		PendingDeathAlerts: r.status.PendingAlerts(),
		WebSocketClients:   r.wsHub.ClientCount(),
	})
}

// handleGetPlayers returns online players with their link state
func (r *Router) handleGetPlayers(w http.ResponseWriter, req *http.Request) {
	online := r.players.Online()
	out := make([]domain.PlayerStatus, 0, len(online))
	for _, p := range online {
		status := domain.PlayerStatus{Player: p, Link: domain.LinkUnlinked}
		acct, err := r.store.AccountByID(req.Context(), p.ID)
		if err != nil {
			r.logger.Error("account_lookup_failed", "minecraft_id", p.ID.String(), "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get players")
			return
		}
		if acct != nil {
			status.Nickname = acct.Nickname
			status.Link = acct.Link.Status
		}
		out = append(out, status)
	}
	slices.SortFunc(out, func(a, b domain.PlayerStatus) int {
		return strings.Compare(strings.ToLower(a.Username), strings.ToLower(b.Username))
	})

	writeJSON(w, http.StatusOK, out)
}

// handleListAccounts returns known accounts, optionally filtered by link state
func (r *Router) handleListAccounts(w http.ResponseWriter, req *http.Request) {
	link := req.URL.Query().Get("link")
	if link != "" && !validateLinkStatus(link) {
		writeError(w, http.StatusBadRequest, "invalid link filter")
		return
	}
	limit := parseLimit(req, 50, 500)
	offset := parseOffset(req)

	accounts, err := r.store.ListAccounts(req.Context())
	if err != nil {
		r.logger.Error("list_accounts_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	online := r.onlineSet()
	views := []AccountView{}
	for i := range accounts {
		if link != "" && string(accounts[i].Link.Status) != link {
			continue
		}
		views = append(views, r.accountView(&accounts[i], online))
	}
	total := len(views)
	views = views[min(offset, total):min(offset+limit, total)]

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": views,
		"total":    total,
	})
}

// handleGetAccount returns one account by nickname or username
func (r *Router) handleGetAccount(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	if !validateName(name) {
		writeError(w, http.StatusBadRequest, "invalid account name")
		return
	}

	acct, err := r.store.AccountByName(req.Context(), name)
	if err != nil {
		r.logger.Error("account_lookup_failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	if acct == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	writeJSON(w, http.StatusOK, r.accountView(acct, r.onlineSet()))
}

// handleHealth returns health status
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
