// Package api exposes a tiny JSON-over-HTTP API for the dnsqd daemon.
// It listens on a Unix domain socket (path comes from config) and
// delegates all resolution to internal/engine.Engine. No third-party
// HTTP framework is used — just net/http + encoding/json — keeping the
// binary small.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lc/dnsq/internal/buildinfo"
	"github.com/lc/dnsq/internal/dnsclient"
	"github.com/lc/dnsq/internal/engine"
	"github.com/lc/dnsq/internal/socket"
)

// ResolveRequest asks for all records of one type.
type ResolveRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResolveResponse carries the ordered answers.
type ResolveResponse struct {
	Answers []engine.Answer `json:"answers"`
}

// LookupRequest asks for the first address of any family.
type LookupRequest struct {
	Name string `json:"name"`
}

// LookupResponse carries the resolved address.
type LookupResponse struct {
	Address string `json:"address"`
}

// ReverseRequest asks for the PTR name of a literal IP address.
type ReverseRequest struct {
	Address string `json:"address"`
}

// ReverseResponse carries the PTR target.
type ReverseResponse struct {
	Name string `json:"name"`
}

// StatusResponse represents the daemon status.
type StatusResponse struct {
	InFlight int64         `json:"in_flight"`
	Served   int64         `json:"served"`
	Uptime   time.Duration `json:"uptime"`
	Version  string        `json:"version"`
	Commit   string        `json:"commit"`
}

// -------- server -----------------------------------------------------

// Server handles HTTP API requests over a Unix domain socket.
type Server struct {
	eng   *engine.Engine
	start time.Time
	mux   *http.ServeMux
	srv   *http.Server
}

// New creates a new API server with the given engine.
// It sets up the HTTP routes and returns a server ready to listen.
func New(eng *engine.Engine) *Server {
	s := &Server{
		eng:   eng,
		start: time.Now(),
		mux:   http.NewServeMux(),
	}

	s.mux.HandleFunc("/v1/resolve", s.handleResolve)
	s.mux.HandleFunc("/v1/lookup", s.handleLookup)
	s.mux.HandleFunc("/v1/reverse", s.handleReverse)
	s.mux.HandleFunc("/v1/status", s.handleStatus)

	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe starts the Unix-socket HTTP server.
func (s *Server) ListenAndServe(path string) error {
	ln, err := socket.Listen(path)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

// handleResolve returns every record of the requested type.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	answers, err := s.eng.Resolve(r.Context(), req.Type, req.Name)
	if err != nil {
		writeResolutionError(w, err)
		return
	}
	writeJSON(w, ResolveResponse{Answers: answers})
}

// handleLookup returns the first address of any family.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	addr, err := s.eng.Lookup(r.Context(), req.Name)
	if err != nil {
		writeResolutionError(w, err)
		return
	}
	writeJSON(w, LookupResponse{Address: addr})
}

// handleReverse returns the PTR name of a literal address.
func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ReverseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Address == "" {
		http.Error(w, "address required", http.StatusBadRequest)
		return
	}
	name, err := s.eng.Reverse(r.Context(), req.Address)
	if err != nil {
		writeResolutionError(w, err)
		return
	}
	writeJSON(w, ReverseResponse{Name: name})
}

// handleStatus returns the daemon status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats := s.eng.Stats()
	writeJSON(w, StatusResponse{
		InFlight: stats.InFlight,
		Served:   stats.Served,
		Uptime:   time.Since(s.start),
		Version:  buildinfo.Version,
		Commit:   buildinfo.Commit,
	})
}

// writeResolutionError maps client failures onto HTTP statuses so
// callers can tell a missing name from an upstream problem.
func writeResolutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dnsclient.ErrMissingName),
		errors.Is(err, dnsclient.ErrInvalidAddress):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, dnsclient.ErrNotFound), dnsclient.IsNXDomain(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, dnsclient.ErrTimeout):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Error encoding response: %v", err), http.StatusInternalServerError)
	}
}
