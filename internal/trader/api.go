package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// APIServer receives webhook signals and exposes the bot's status over HTTP.
type APIServer struct {
	server    *http.Server
	engine    *Engine
	logger    *zap.Logger
	uuid      string
	startTime time.Time
}

// NewAPIServer creates a new APIServer listening on the given port.
func NewAPIServer(engine *Engine, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine:    engine,
		logger:    logger.Named("api-server"),
		uuid:      uuid.NewString(),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/positions", s.positionsHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// webhookHandler accepts one raw signal string per POST. The body is parsed
// synchronously so the alerting source gets an immediate malformed/accepted
// answer; the trading decision itself runs asynchronously.
func (s *APIServer) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("Failed to read webhook body", zap.Error(err))
		http.Error(w, "Error processing webhook", http.StatusBadRequest)
		return
	}

	sig, err := ParseSignal(string(body))
	if err != nil {
		if errors.Is(err, ErrMalformedSignal) {
			s.logger.Warn("Dropping malformed signal", zap.String("payload", string(body)), zap.Error(err))
		} else {
			s.logger.Error("Failed to parse signal", zap.Error(err))
		}
		http.Error(w, "Error processing webhook", http.StatusBadRequest)
		return
	}

	go func() {
		if err := s.engine.OnSignal(context.Background(), sig); err != nil {
			s.logger.Error("Signal processing failed",
				zap.String("pair", sig.Pair),
				zap.String("action", sig.Action),
				zap.Error(err),
			)
		}
	}()

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Webhook received successfully")
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := struct {
		UUID          string `json:"uuid"`
		Name          string `json:"name"`
		StartTime     string `json:"start_time"`
		Uptime        string `json:"uptime"`
		OpenPositions int    `json:"open_positions"`
	}{
		UUID:          s.uuid,
		Name:          "kraken-trade-bot",
		StartTime:     s.startTime.Format(time.RFC3339),
		Uptime:        time.Since(s.startTime).String(),
		OpenPositions: len(s.engine.OpenPositions()),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to write status response", zap.Error(err))
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.engine.OpenPositions()); err != nil {
		s.logger.Error("Failed to write positions response", zap.Error(err))
		http.Error(w, "Failed to encode positions", http.StatusInternalServerError)
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
