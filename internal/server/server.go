// Package server provides the HTTP and WebSocket surface of BioTwin.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/biotwin/internal/app"
	"github.com/ayusman/biotwin/internal/detector"
	"github.com/ayusman/biotwin/internal/segment"
	"github.com/ayusman/biotwin/internal/server/api"
	"github.com/ayusman/biotwin/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
	// Landmarks receives frames posted to /api/landmarks. Nil disables the
	// endpoint.
	Landmarks *detector.ChannelProvider
	Detector  detector.Config
	Log       zerolog.Logger
}

// Server represents the HTTP server for the BioTwin application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	events *EventsHandler
}

// New creates a new Server with the given configuration. When an App is
// configured its frame and result handlers are replaced so that output is
// broadcast on /api/events.
func New(config Config) *Server {
	if config.Detector.MaxHands == 0 {
		config.Detector = detector.DefaultConfig()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		events: NewEventsHandler(config.Log),
	}

	if config.App != nil {
		config.App.SetHandlers(app.Handlers{
			OnFrame: func(ev app.FrameEvent) {
				s.events.Broadcast(MessageFrame, ev)
			},
			OnResult: func(res segment.Result) {
				s.events.Broadcast(MessageSegmentation, res)
			},
		})
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/api/events", s.events)

	if s.config.Landmarks != nil {
		s.mux.Handle("/api/landmarks", NewLandmarksHandler(s.config.Landmarks, s.config.Detector, s.config.Log))
	}

	if s.config.Store != nil {
		scenes := api.NewScenesHandler(s.config.Store)
		s.mux.Handle("/api/scenes", scenes)
		s.mux.Handle("/api/scenes/", scenes)
	}

	if s.config.App != nil {
		s.mux.Handle("/api/images", api.NewImagesHandler(s.config.App))
		s.mux.Handle("/api/segment", api.NewSegmentHandler(s.config.App))
		s.mux.Handle("/api/settings", api.NewSettingsHandler(s.config.App))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Events returns the event broadcaster.
func (s *Server) Events() *EventsHandler {
	return s.events
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.start).String(),
		"clients": s.events.Clients(),
	}
	if s.config.App != nil {
		if p := s.config.App.Pipeline(); p != nil {
			response["segmentation"] = map[string]any{
				"status":  p.Status(),
				"ready":   p.Ready(),
				"version": p.Version(),
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
