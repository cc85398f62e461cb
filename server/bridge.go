// Package server exposes the client to a local UI over a websocket control
// channel and a few HTTP endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/room4-2/roleplay-live/client"
	"github.com/room4-2/roleplay-live/codec"
	"github.com/room4-2/roleplay-live/config"
	"github.com/room4-2/roleplay-live/messages"
	"github.com/room4-2/roleplay-live/roleplay"
	"github.com/room4-2/roleplay-live/store"
)

var json = sonic.ConfigStd

const (
	writeTimeout    = 10 * time.Second
	subscriberQueue = 256
	maxCommandSize  = 512 * 1024
	generateTimeout = 60 * time.Second
)

// Controller is the client surface driven by UI commands
type Controller interface {
	SendText(text string)
	StartAudio()
	StopAudio()
	StartVideo(source codec.Source)
	StopVideo()
	StartRolePlay(s roleplay.Scenario)
	EndRolePlay()
	Calibrate()
	Snapshot(ctx context.Context) (client.Status, error)
}

// ScenarioGenerator turns a free-text request into a scenario. On failure it
// still returns a usable fallback scenario alongside the error.
type ScenarioGenerator interface {
	Generate(ctx context.Context, prompt string) (roleplay.Scenario, error)
}

// ReportReader loads saved analysis reports
type ReportReader interface {
	GetReport(ctx context.Context, id string) (store.Report, error)
	ListReports(ctx context.Context) ([]string, error)
}

// Server is the local control bridge. It implements client.Notifier by
// fanning messages out to every connected UI.
type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	config     *config.Config

	ctrl      Controller
	generator ScenarioGenerator
	reports   ReportReader

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewServer creates the bridge. ctrl is set later with Attach when the
// client needs the server as its notifier. generator and reports may be nil.
func NewServer(cfg *config.Config, generator ScenarioGenerator, reports ReportReader) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:    cfg,
		generator: generator,
		reports:   reports,
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.ControlPort),
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	return s
}

// Attach sets the client the commands are forwarded to
func (s *Server) Attach(ctrl Controller) {
	s.mu.Lock()
	s.ctrl = ctrl
	s.mu.Unlock()
}

func (s *Server) controller() Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctrl
}

// Handler returns the bridge routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /roleplay", s.handleGenerateScenario)
	mux.HandleFunc("GET /reports", s.handleListReports)
	mux.HandleFunc("GET /reports/{id}", s.handleGetReport)
	return mux
}

// Start begins listening for UI connections
func (s *Server) Start() error {
	log.Printf("🚀 Control bridge starting on %s", s.httpServer.Addr)
	log.Printf("📡 UI endpoint: ws://%s/ws", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown disconnects every UI and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down control bridge...")
	s.cancel()

	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[*subscriber]struct{})
	s.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
	return s.httpServer.Shutdown(ctx)
}

// Notify sends msg to every connected UI. Slow subscribers drop messages.
func (s *Server) Notify(msg *messages.ServerMessage) {
	data, err := msg.Encode()
	if err != nil {
		log.Printf("❌ Failed to encode %s message: %v", msg.Type, err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		sub.queue(data)
	}
}

// Subscribers returns the number of connected UIs
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxCommandSize)

	sub := newSubscriber(conn)
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	log.Printf("✅ UI connected from %s", r.RemoteAddr)

	go sub.writePump()
	s.readCommands(sub)

	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
	sub.close()
	log.Printf("🔌 UI disconnected from %s", r.RemoteAddr)
}

func (s *Server) readCommands(sub *subscriber) {
	for {
		messageType, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			sub.send(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Binary commands are not supported"))
			continue
		}

		cmd, err := messages.DecodeClientMessage(data)
		if err != nil {
			sub.send(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, "Invalid message format"))
			continue
		}
		if err := s.processCommand(cmd); err != nil {
			sub.send(messages.NewErrorMessage("", messages.ErrCodeInvalidMessage, err.Error()))
		}
	}
}

func (s *Server) processCommand(cmd *messages.ClientMessage) error {
	ctrl := s.controller()
	if ctrl == nil {
		return errors.New("client is not running")
	}

	switch cmd.Type {
	case messages.CmdText:
		var p messages.TextPayload
		if err := cmd.DecodePayload(&p); err != nil {
			return err
		}
		ctrl.SendText(p.Text)

	case messages.CmdAudio:
		var p messages.ToggleAudioPayload
		if err := cmd.DecodePayload(&p); err != nil {
			return err
		}
		switch p.Action {
		case "start":
			ctrl.StartAudio()
		case "stop":
			ctrl.StopAudio()
		default:
			return fmt.Errorf("unknown audio action: %s", p.Action)
		}

	case messages.CmdVideo:
		var p messages.ToggleVideoPayload
		if err := cmd.DecodePayload(&p); err != nil {
			return err
		}
		switch p.Action {
		case "start":
			source := codec.Source(p.Source)
			if source != codec.SourceCamera && source != codec.SourceScreen {
				return fmt.Errorf("unknown video source: %s", p.Source)
			}
			ctrl.StartVideo(source)
		case "stop":
			ctrl.StopVideo()
		default:
			return fmt.Errorf("unknown video action: %s", p.Action)
		}

	case messages.CmdRolePlayStart:
		var p messages.RolePlayStartPayload
		if err := cmd.DecodePayload(&p); err != nil {
			return err
		}
		return s.startRolePlay(ctrl, p)

	case messages.CmdRolePlayEnd:
		ctrl.EndRolePlay()

	case messages.CmdCalibrate:
		ctrl.Calibrate()

	default:
		return fmt.Errorf("unknown message type: %s", cmd.Type)
	}
	return nil
}

func (s *Server) startRolePlay(ctrl Controller, p messages.RolePlayStartPayload) error {
	if len(p.Scenario) > 0 {
		var sc roleplay.Scenario
		if err := json.Unmarshal(p.Scenario, &sc); err != nil {
			return fmt.Errorf("invalid scenario: %w", err)
		}
		ctrl.StartRolePlay(sc)
		return nil
	}

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, generateTimeout)
		defer cancel()
		sc, _ := s.scenario(ctx, p.Prompt)
		ctrl.StartRolePlay(sc)
	}()
	return nil
}

// scenario generates a scenario for prompt. fallback is true when the
// default scenario had to be used.
func (s *Server) scenario(ctx context.Context, prompt string) (sc roleplay.Scenario, fallback bool) {
	if s.generator == nil {
		return roleplay.DefaultScenario(prompt), true
	}
	sc, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		log.Printf("⚠️ Scenario generation failed, using default: %v", err)
		s.Notify(messages.NewErrorMessage("", messages.ErrCodeScenarioFailed, "Scenario generation failed, using a default scenario."))
		return sc, true
	}
	return sc, false
}

// ScenarioResponse is the body returned by POST /roleplay
type ScenarioResponse struct {
	Scenario roleplay.Scenario `json:"scenario"`
	Fallback bool              `json:"fallback"`
}

type scenarioRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleGenerateScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()
	sc, fallback := s.scenario(ctx, req.Prompt)
	writeJSON(w, http.StatusOK, ScenarioResponse{Scenario: sc, Fallback: fallback})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report storage is not configured")
		return
	}

	report, err := s.reports.GetReport(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "report storage is unavailable")
	case err != nil:
		log.Printf("❌ Failed to load report: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

type reportList struct {
	Reports []string `json:"reports"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report storage is not configured")
		return
	}

	ids, err := s.reports.ListReports(r.Context())
	switch {
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "report storage is unavailable")
	case err != nil:
		log.Printf("❌ Failed to list reports: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
	default:
		if ids == nil {
			ids = []string{}
		}
		sort.Strings(ids)
		writeJSON(w, http.StatusOK, reportList{Reports: ids})
	}
}

type healthResponse struct {
	Status      string         `json:"status"`
	Subscribers int            `json:"subscribers"`
	Client      *client.Status `json:"client,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Subscribers: s.Subscribers()}
	if ctrl := s.controller(); ctrl != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := ctrl.Snapshot(ctx)
		if err != nil {
			resp.Status = "degraded"
		} else {
			resp.Client = &st
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
