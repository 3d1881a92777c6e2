package api

import (
	"net/http"
	"strings"

	"github.com/blockrelay/blockrelay/internal/auth"
)

// requireAuth is middleware that validates JWT before calling the handler
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		claims := r.getAuthClaims(req)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, req)
	}
}

// getAuthClaims extracts and validates JWT from the Authorization header.
// Browsers cannot set headers on websocket handshakes, so /ws may pass ?token= instead.
func (r *Router) getAuthClaims(req *http.Request) *auth.Claims {
	if r.auth == nil {
		return nil
	}

	token := ""
	if header := req.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	} else if req.URL.Path == "/ws" {
		token = req.URL.Query().Get("token")
	}
	if token == "" {
		return nil
	}

	claims, err := r.auth.ValidateToken(token)
	if err != nil {
		r.logger.Debug("api_token_rejected", "path", req.URL.Path, "client_ip", clientIP(req))
		return nil
	}
	return claims
}

// authEnabled reports whether routes that are open without a secret must check tokens
func (r *Router) authEnabled() bool {
	return r.auth != nil && r.auth.Enabled()
}
