// Package server is the HTTP/WebSocket front of the relay: one listening
// socket, path-routed. Websocket paths (/call, /webrtc, /logs) feed the
// session relay; the remaining endpoints are thin request/response wrappers
// around external collaborators.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	twilio "github.com/twilio/twilio-go"

	"github.com/voxwire/voxwire-go/internal/config"
	"github.com/voxwire/voxwire-go/relay"
)

type Server struct {
	cfg      config.Config
	relay    *relay.Relay
	logger   *slog.Logger
	upgrader websocket.Upgrader
	twilio   *twilio.RestClient
	openai   openai.Client
}

func New(cfg config.Config, r *relay.Relay, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		relay:  r,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		openai: openai.NewClient(option.WithAPIKey(cfg.OpenAIKey)),
	}
	if cfg.TwilioAccountSid != "" && cfg.TwilioAuthToken != "" {
		s.twilio = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.TwilioAccountSid,
			Password: cfg.TwilioAuthToken,
		})
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/call", s.handleCallSocket(relay.TransportTwilio))
	mux.HandleFunc("/webrtc", s.handleCallSocket(relay.TransportBrowser))
	mux.HandleFunc("/logs", s.handleObserverSocket)

	mux.HandleFunc("/twiml", s.handleTwiml)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/public-url", s.handlePublicURL)
	mux.HandleFunc("/tools", s.handleTools)
	mux.HandleFunc("/dial", s.handleDial)
	mux.HandleFunc("/chat", s.handleChat)

	return CORS(mux)
}

func (s *Server) handleCallSocket(transport relay.Transport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("call upgrade failed", slog.Any("err", err))
			return
		}
		s.logger.Info("call connection established",
			slog.String("transport", string(transport)),
			slog.String("remote", r.RemoteAddr),
		)
		s.relay.HandleCall(conn, transport)
	}
}

func (s *Server) handleObserverSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("observer upgrade failed", slog.Any("err", err))
		return
	}
	s.relay.HandleObserver(conn)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"publicUrl": s.cfg.PublicURL,
	})
}

func (s *Server) handlePublicURL(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"publicUrl": s.cfg.PublicURL})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.relay.Registry().List())
}

// callStreamURL derives the wss endpoint Twilio should stream media to.
func (s *Server) callStreamURL() (string, error) {
	if s.cfg.PublicURL == "" {
		return "", fmt.Errorf("PUBLIC_URL not configured")
	}
	u, err := url.Parse(s.cfg.PublicURL)
	if err != nil {
		return "", fmt.Errorf("parse PUBLIC_URL: %w", err)
	}
	u.Scheme = "wss"
	u.Path = "/call"
	return u.String(), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
