// Package web provides the HTTP status and control server for the garage door daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/sweeney/garage-door/internal/garage"
	"github.com/sweeney/garage-door/internal/history"
	"github.com/sweeney/garage-door/internal/logic"
	"github.com/sweeney/garage-door/internal/status"
)

// Commander accepts door commands.
type Commander interface {
	SetTarget(door string, target logic.Target) error
}

// HistorySource provides the recorded door history.
type HistorySource interface {
	All() map[string][]history.Entry
}

// Server serves the status page, JSON, the live websocket feed and door commands.
// It is also an event sink feeding the websocket clients.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    HistorySource
	commander  Commander
	hub        *Hub
	log        *slog.Logger
}

// New creates a Server that reads state from the given tracker. history and
// commander may be nil.
func New(addr string, tracker *status.Tracker, hist HistorySource, commander Commander, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tracker:   tracker,
		history:   hist,
		commander: commander,
		hub:       NewHub(logger),
		log:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /history.json", s.handleHistory)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /doors/{id}/{target}", s.handleCommand)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Notify forwards a door event to the websocket clients.
func (s *Server) Notify(door string, ev logic.Event) {
	s.hub.Notify(door, ev)
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.commander != nil); err != nil {
		s.log.Warn("render status page", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries := map[string][]history.Entry{}
	if s.history != nil {
		entries = s.history.All()
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	initial := status.FormatStatusEvent(s.tracker.Snapshot(), "SNAPSHOT", "")
	s.hub.serve(w, r, initial, s.wsCommand)
}

func (s *Server) wsCommand(cmd wsCommand) wsReply {
	reply := wsReply{Door: cmd.Door}
	target, err := logic.ParseTarget(cmd.Target)
	if err == nil {
		reply.Target = string(target)
		err = s.command(cmd.Door, target)
	}
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	door := r.PathValue("id")
	target, err := logic.ParseTarget(r.PathValue("target"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, wsReply{Door: door, Error: err.Error()})
		return
	}

	err = s.command(door, target)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, wsReply{Door: door, Target: string(target)})
	case errors.Is(err, garage.ErrUnknownDoor):
		writeJSON(w, http.StatusNotFound, wsReply{Door: door, Error: err.Error()})
	case errors.Is(err, errNoCommander):
		writeJSON(w, http.StatusServiceUnavailable, wsReply{Door: door, Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, wsReply{Door: door, Error: err.Error()})
	}
}

var errNoCommander = errors.New("door control disabled")

func (s *Server) command(door string, target logic.Target) error {
	if s.commander == nil {
		return errNoCommander
	}
	s.log.Info("http: command received", "door", door, "target", target)
	return s.commander.SetTarget(door, target)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
