package api

import (
	"net/http"
	"strconv"
)

var validLinkStatuses = map[string]bool{
	"unlinked": true, "pending": true, "linked": true,
}

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// parseOffset parses and validates an offset parameter
func parseOffset(r *http.Request) int {
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return 0
}

// validateLinkStatus checks if a link filter is valid
func validateLinkStatus(status string) bool {
	return validLinkStatuses[status]
}

// validateName accepts Minecraft usernames and the UUID strings used as fallback nicknames
func validateName(name string) bool {
	if name == "" || len(name) > 36 {
		return false
	}
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
