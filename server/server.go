// Package server exposes the operator dashboard: a JSON API over the
// engine's state plus a WebSocket stream of events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kiwiquant/kiwitrader/broker"
	"github.com/kiwiquant/kiwitrader/engine"
)

// Server serves the operator API for one engine.
type Server struct {
	engine  *engine.Engine
	broker  broker.Broker
	hub     *Hub
	httpSrv *http.Server
	log     zerolog.Logger
}

// New builds the server and wires the event log into the WebSocket hub.
func New(port int, eng *engine.Engine, brk broker.Broker, logger zerolog.Logger) *Server {
	s := &Server{
		engine: eng,
		broker: brk,
		hub:    NewHub(logger),
		log:    logger.With().Str("component", "server").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", corsMiddleware(s.handleStatus))
	mux.HandleFunc("/api/events", corsMiddleware(s.handleEvents))
	mux.HandleFunc("/api/performance", corsMiddleware(s.handlePerformance))
	mux.HandleFunc("/api/positions", corsMiddleware(s.handlePositions))
	mux.HandleFunc("/api/account", corsMiddleware(s.handleAccount))
	mux.HandleFunc("/api/risk", corsMiddleware(s.handleRisk))
	mux.HandleFunc("/api/recommendation", corsMiddleware(s.handleRecommendation))
	mux.HandleFunc("/api/orders/", corsMiddleware(s.handleOrderStatus))
	mux.HandleFunc("/api/control/", corsMiddleware(s.handleControl))
	mux.HandleFunc("/ws", s.hub.ServeWs)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Every recorded event reaches connected dashboards.
	eng.Events().OnEvent(func(ev engine.Event) {
		if payload, err := json.Marshal(ev); err == nil {
			s.hub.Broadcast(payload)
		}
	})
	return s
}

// Start runs the HTTP listener and the hub until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	done := make(chan struct{})
	go s.hub.Run(done)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpSrv.Addr).Msg("operator API listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		close(done)
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		close(done)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.GetStatus())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if sev := r.URL.Query().Get("severity"); sev != "" {
		writeJSON(w, s.engine.Events().EventsBySeverity(engine.EventSeverity(sev)))
		return
	}
	writeJSON(w, s.engine.Events().Events())
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.GetStatus().Performance)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.broker.GetOpenPositions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, positions)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.broker.GetAccount(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, account)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.RiskSummary(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Recommend(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, rec)
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Path[len("/api/orders/"):]
	if orderID == "" {
		http.Error(w, "order id required", http.StatusBadRequest)
		return
	}
	order, err := s.broker.GetOrderStatus(r.Context(), orderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, order)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	action := r.URL.Path[len("/api/control/"):]
	switch action {
	case "pause":
		s.engine.Pause()
	case "resume":
		s.engine.Resume()
	default:
		http.Error(w, fmt.Sprintf("unknown action %q", action), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"action": action, "status": "ok"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// corsMiddleware allows dashboard frontends on other origins.
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}
