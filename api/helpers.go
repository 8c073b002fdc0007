package api

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"log/slog"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, errorResponse{Error: msg}, status)
}

// isoTime formats timestamps for responses, always UTC with a Z suffix.
func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// clientIP extracts the peer address without the port. Used as the rate
// limit key.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
