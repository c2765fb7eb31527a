package http

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// rangeLayout is the wire format of filter bounds (HTML date inputs).
const rangeLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseRange reads start/end query parameters. Missing bounds default to
// the first of the current month through today; the end date is inclusive.
func parseRange(r *http.Request) (start, end time.Time, err error) {
	now := time.Now()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if v := strings.TrimSpace(r.URL.Query().Get("start")); v != "" {
		start, err = time.Parse(rangeLayout, v)
		if err != nil {
			return start, end, err
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("end")); v != "" {
		end, err = time.Parse(rangeLayout, v)
		if err != nil {
			return start, end, err
		}
	}
	return start, end, nil
}

// clientIP extracts the caller address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
