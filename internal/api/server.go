package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/focuswatch/internal/config"
	"github.com/bryanchriswhite/focuswatch/internal/logger"
	"github.com/bryanchriswhite/focuswatch/internal/window"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// TitleSource is what the server streams from (a *window.Monitor)
type TitleSource interface {
	Current() string
	SubscribeChan(buffer int) (<-chan window.TitleUpdate, func())
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	titles    TitleSource
	configMgr *config.Manager
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	httpSrv  *http.Server
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates a new API server
func NewServer(titles TitleSource, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		titles:    titles,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tool, any origin may read titles
			},
		},
		done: make(chan struct{}),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Title state
	api.HandleFunc("/title", s.handleGetTitle).Methods("GET")
	api.HandleFunc("/title/stream", s.handleTitleStream)

	// Configuration
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/config", s.handleUpdateConfig).Methods("PUT")
	api.HandleFunc("/config/ignore-patterns", s.handleAddIgnorePattern).Methods("POST")
	api.HandleFunc("/config/ignore-patterns", s.handleRemoveIgnorePattern).Methods("DELETE")

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS headers
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on addr until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	logger.WithComponent("api").Info().Str("addr", addr).Msg("Starting title stream server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and ends open title streams
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Failed to write response")
	}
}

// HTTP Handlers

func (s *Server) handleGetTitle(w http.ResponseWriter, r *http.Request) {
	title := s.titles.Current()
	if title == "" {
		http.Error(w, "No title observed yet", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

func (s *Server) handleTitleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	// Subscribe before reading the current title so nothing falls in between
	updates, cancel := s.titles.SubscribeChan(s.configMgr.Get().StreamBuffer)
	defer cancel()

	// Send initial title
	initial := s.titles.Current()
	if initial != "" {
		if err := conn.WriteJSON(window.TitleUpdate{Title: initial, Time: time.Now()}); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	// Reads only detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug().Str("remote", r.RemoteAddr).Msg("Title stream opened")
	defer log.Debug().Str("remote", r.RemoteAddr).Msg("Title stream closed")

	first := true
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "monitor stopped"))
				return
			}
			// A publish between subscribing and reading Current arrives twice
			if first {
				first = false
				if initial != "" && u.Title == initial {
					continue
				}
			}
			if err := conn.WriteJSON(u); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-closed:
			return
		case <-s.done:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.configMgr.Get())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.configMgr.Get()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.Update(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type patternRequest struct {
	Pattern string `json:"pattern"`
}

// handleAddIgnorePattern saves the pattern. Running title logs pick it up
// through the config manager's OnChange callbacks.
func (s *Server) handleAddIgnorePattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.AddIgnorePattern(req.Pattern); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleRemoveIgnorePattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.configMgr.RemoveIgnorePattern(req.Pattern); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}
