// Package gateway exposes the chat service over HTTP and WebSocket.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/basedagent/basedagent/pkg/config"
	"github.com/basedagent/basedagent/pkg/logger"
)

const (
	component = "gateway"

	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-ID"

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second

	detailForbidden = "Could not validate API key"
)

// Chatter answers one prompt for one user.
type Chatter interface {
	Chat(ctx context.Context, userID, prompt string) (string, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ChatRequest struct {
	Prompt string `json:"prompt"`
	User   string `json:"user"`
}

type ChatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type Server struct {
	chat           Chatter
	stores         []Pinger
	apiKey         string
	enforceKey     bool
	requestTimeout time.Duration
	address        string

	ready chan struct{}
	addr  net.Addr
}

func NewServer(cfg config.ServerConfig, chat Chatter, stores ...Pinger) *Server {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	return &Server{
		chat:           chat,
		stores:         stores,
		apiKey:         cfg.APIKey,
		enforceKey:     strings.TrimSpace(cfg.APIKey) != "",
		requestTimeout: timeout,
		address:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ready:          make(chan struct{}),
	}
}

// Handler returns the routed handler with request ids attached.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return withRequestID(mux)
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address; valid after Ready is closed.
func (s *Server) Addr() net.Addr { return s.addr }

// Serve blocks until ctx is cancelled, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.InfoCF(component, "Gateway listening",
		map[string]interface{}{
			"address":     s.addr.String(),
			"api_key_set": s.enforceKey,
		})

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		logger.InfoC(component, "Gateway shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	logger.InfoC(component, "Gateway stopped")
	return nil
}

// authorized checks X-API-Key. Without a configured key every request passes.
func (s *Server) authorized(r *http.Request) bool {
	if !s.enforceKey {
		return true
	}
	got := r.Header.Get(apiKeyHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) == 1
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		logger.WarnCF(component, "Rejected chat request with bad API key",
			map[string]interface{}{"request_id": requestID(r)})
		writeError(w, http.StatusForbidden, detailForbidden)
		return
	}

	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if detail := validate(req); detail != "" {
		writeError(w, http.StatusUnprocessableEntity, detail)
		return
	}

	reply, err := s.reply(r.Context(), requestID(r), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: reply})
}

// reply runs one chat turn under the configured request timeout.
func (s *Server) reply(ctx context.Context, reqID string, req ChatRequest) (string, error) {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.chat.Chat(ctx, req.User, req.Prompt)
	fields := map[string]interface{}{
		"request_id":  reqID,
		"user":        req.User,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		logger.ErrorCF(component, "Chat request failed", fields)
		return "", err
	}
	logger.InfoCF(component, "Chat request completed", fields)
	return reply, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, store := range s.stores {
		if err := store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"detail": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func validate(req ChatRequest) string {
	var missing []string
	if strings.TrimSpace(req.Prompt) == "" {
		missing = append(missing, "prompt")
	}
	if strings.TrimSpace(req.User) == "" {
		missing = append(missing, "user")
	}
	if len(missing) == 0 {
		return ""
	}
	return "missing required field(s): " + strings.Join(missing, ", ")
}

type requestIDKey struct{}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WarnCF(component, "Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
