// Package webhealth exposes the health endpoint and a websocket feed of
// orchestrator events, for operator tooling.
package webhealth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/nanogridbot/nanogridbot/internal/config"
	"github.com/nanogridbot/nanogridbot/internal/eventbus"
)

// HealthProvider supplies the current health snapshot; implemented by
// *orchestrator.Orchestrator.
type HealthProvider interface {
	HealthSnapshot() any
}

type Server struct {
	health    HealthProvider
	publisher *eventbus.Publisher
	hub       *Hub
	cfg       config.WebConfig
	version   string
}

func NewServer(health HealthProvider, publisher *eventbus.Publisher, cfg config.WebConfig, version string) *Server {
	return &Server{
		health:    health,
		publisher: publisher,
		hub:       NewHub(),
		cfg:       cfg,
		version:   version,
	}
}

func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	s.subscribeEvents()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.withAuth(mux)}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	slog.Info("webhealth server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.Auth == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.Auth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.health.HealthSnapshot()); err != nil {
		slog.Error("webhealth: encode health response failed", "error", err)
	}
}

// subscribeEvents forwards operator-visibility events from the embedded bus
// to connected websocket clients.
func (s *Server) subscribeEvents() {
	if s.publisher == nil {
		return
	}

	topics := []string{
		eventbus.TopicHealth,
		eventbus.TopicContainerStarted,
		eventbus.TopicContainerEnded,
		eventbus.TopicTaskExecuted,
	}
	for _, topic := range topics {
		topic := topic
		_, err := s.publisher.Subscribe(topic, func(msg *nats.Msg) {
			var payload any
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				return
			}
			s.hub.Broadcast(Event{Type: topic, Payload: payload})
		})
		if err != nil {
			slog.Warn("webhealth: subscribe failed", "topic", topic, "error", err)
		}
	}
}
