// Package api exposes the operator station to other processes: a gRPC
// Operator service (control updates, status, telemetry stream) and a small
// HTTP JSON API over the same state.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/erov.guidance/internal/control"
	"github.com/banshee-data/erov.guidance/internal/guidance"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

// ANSI escape codes for request logging
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// defaultRecent is the number of records /telemetry/recent returns when no
// n is given.
const defaultRecent = 50

// maxControlBody bounds POST /control bodies.
const maxControlBody = 1 << 16

// Server is the HTTP JSON API.
type Server struct {
	control *control.Store
	hub     *telemetry.Hub
	status  func() guidance.Status
}

// NewServer returns a Server. hub and status may be nil; the matching
// endpoints then report 503.
func NewServer(store *control.Store, hub *telemetry.Hub, status func() guidance.Status) *Server {
	return &Server{control: store, hub: hub, status: status}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status and duration of each request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		opsf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/control", s.handleControl)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/telemetry/recent", s.handleRecent)
	return mux
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.control.Snapshot())

	case http.MethodPost:
		var u control.Update
		dec := json.NewDecoder(io.LimitReader(r.Body, maxControlBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&u); err != nil {
			if errors.Is(err, io.EOF) {
				writeJSONError(w, http.StatusBadRequest, "empty body")
				return
			}
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if u.Empty() {
			writeJSONError(w, http.StatusBadRequest, "empty control update")
			return
		}
		st := s.control.Apply(u)
		opsf("control v%d via HTTP: mode=%s armed=%t", st.Version, st.Mode, st.Armed)
		writeJSON(w, http.StatusOK, st)

	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.status == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "guidance loop not running")
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.hub == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "telemetry not available")
		return
	}
	n := defaultRecent
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, s.hub.Recent(n))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		opsf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
