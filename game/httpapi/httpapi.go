// Package httpapi is an HTTP/JSON front end for the Game Supervisor's
// Build/State/Kill triad (spec.md §4.5, §6), so a control plane can
// drive the runtime out-of-process without a protobuf toolchain. It
// marshals the same request/reply triad the supervisor's Go API
// exposes; it never reaches into reactor internals.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/oakmoth/reactorium/game"
	"github.com/oakmoth/reactorium/log"
)

func parseMatchID(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}

// ControllerFactory builds a fresh game.GameController for one match.
// Registered by name since a func value cannot cross the wire.
type ControllerFactory func() game.GameController

// Server wraps a *game.Supervisor with an HTTP handler for the
// control-plane API.
type Server struct {
	sv         *game.Supervisor
	factories  map[string]ControllerFactory
	bufferCap  int
	logger     log.Logger
	mux        *http.ServeMux
}

// NewServer builds an httpapi.Server over sv. factories maps a match
// "kind" name (as sent in a build request) to the controller it
// builds; controllerBufferBytes is the default client controller FIFO
// cap passed through to every match this server builds (zero selects
// client.DefaultBufferBytes).
func NewServer(sv *game.Supervisor, factories map[string]ControllerFactory, controllerBufferBytes int, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{sv: sv, factories: factories, bufferCap: controllerBufferBytes, logger: logger}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /matches", s.handleBuild)
	s.mux.HandleFunc("GET /matches/{id}", s.handleState)
	s.mux.HandleFunc("DELETE /matches/{id}", s.handleKill)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type buildRequest struct {
	Kind          string `json:"kind"`
	Players       int    `json:"players"`
	StepTimeoutMS int64  `json:"step_timeout_ms"`
}

type buildResponse struct {
	MatchID uint64 `json:"match_id"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed build request")
		return
	}
	factory, ok := s.factories[req.Kind]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown match kind")
		return
	}
	if req.Players <= 0 {
		writeError(w, http.StatusBadRequest, "players must be positive")
		return
	}

	spec := game.BuildSpec{
		NewController:         factory,
		PlayerCount:           req.Players,
		StepTimeout:           req.StepTimeoutMS * int64(1e6),
		ControllerBufferBytes: s.bufferCap,
	}

	matchID, err := s.sv.Build(r.Context(), spec)
	if err != nil {
		s.logger.Error("build request failed", "err", err.Error())
		writeError(w, http.StatusInternalServerError, "build failed")
		return
	}
	writeJSON(w, http.StatusOK, buildResponse{MatchID: matchID})
}

type stateResponse struct {
	Value any `json:"value"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseMatchID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed match id")
		return
	}
	value, found, err := s.sv.State(r.Context(), matchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "state request failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown match id")
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{Value: value})
}

type killResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseMatchID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed match id")
		return
	}
	ok, err := s.sv.Kill(r.Context(), matchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "kill request failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown match id")
		return
	}
	writeJSON(w, http.StatusOK, killResponse{OK: true})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
