// Package http serves the JSON, SSE and WebSocket API over the workspace.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/0xcro3dile/localrag-agent/internal/config"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/ndjson"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/workspace"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// Server is the HTTP server for the query API.
type Server struct {
	ws       *workspace.Workspace
	rpc      *ndjson.Server
	cfg      config.HTTPConfig
	upgrader websocket.Upgrader
}

// NewServer creates a new HTTP server. rpc serves the WebSocket protocol.
func NewServer(ws *workspace.Workspace, rpc *ndjson.Server, cfg config.HTTPConfig) *Server {
	return &Server{
		ws:  ws,
		rpc: rpc,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)
	r.Use(metrics.Middleware())

	r.Get("/api/health", s.handleHealth)
	r.Route("/api/directories", func(r chi.Router) {
		r.Get("/", s.handleListDirectories)
		r.Post("/", s.handleAddDirectory)
		r.Delete("/{id}", s.handleRemoveDirectory)
		r.Post("/{id}/reindex", s.handleReindex)
	})
	r.Post("/api/query", s.handleQuery)
	r.Get("/api/query/stream", s.handleQueryStream) // SSE streaming
	r.Get("/api/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout, // Longer for streaming
	}

	logx.Info().Str("addr", s.cfg.Addr).Msg("HTTP server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logx.Error().Err(err).Msg("HTTP shutdown")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"state":       s.rpc.State(),
		"directories": len(s.ws.List()),
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"directories": s.ws.List()})
}

func (s *Server) handleAddDirectory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DataDir string `json:"dataDir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DataDir == "" {
		writeError(w, http.StatusBadRequest, "dataDir required")
		return
	}
	d, err := s.ws.Add(req.DataDir)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, d.Info())
}

func (s *Server) handleRemoveDirectory(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	d, err := s.ws.Reindex(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, d.Info())
}

// handleQuery processes a non-streaming query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text        string `json:"text"`
		DirectoryID string `json:"directoryId"`
		SearchAll   bool   `json:"searchAll"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	opts := workspace.QueryOptions{DirectoryID: req.DirectoryID}
	if req.SearchAll {
		results, err := s.ws.QueryAll(r.Context(), req.Text, opts)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
		return
	}

	res, err := s.ws.Query(r.Context(), req.Text, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleQueryStream handles SSE streaming queries.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if err := workspace.ValidateQuery(query); err != nil {
		writeDomainError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := &sseStream{w: w, flusher: flusher}
	defer stream.close()

	res, err := s.ws.Query(r.Context(), query, workspace.QueryOptions{
		DirectoryID: r.URL.Query().Get("directoryId"),
		OnToken: func(text string) {
			stream.send("token", map[string]string{"text": text})
		},
		OnStep: func(step entities.AgentStep) {
			stream.send("step", step)
		},
	})
	if err != nil {
		stream.send("error", map[string]string{"message": err.Error()})
		return
	}
	stream.send("done", res)
}

// sseStream writes server-sent events for one request. A model call
// outlives a client that went away, so its callbacks can still fire after
// the handler returned; events sent after close are dropped.
type sseStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (s *sseStream) send(event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logx.Error().Err(err).Str("event", event).Msg("encoding SSE event")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		logx.Debug().Str("event", event).Msg("dropping SSE event after stream end")
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData)
	s.flusher.Flush()
}

func (s *sseStream) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// handleWebSocket carries the NDJSON protocol over a WebSocket, one
// message per line.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer ws.Close()

	conn := s.rpc.NewConn(context.WithoutCancel(r.Context()), &wsWriter{conn: ws})
	defer conn.Close()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logx.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		for _, line := range bytes.Split(message, []byte("\n")) {
			conn.Handle(line)
		}
	}
}

// wsWriter sends each protocol line as one text message. The protocol
// connection serializes writes.
type wsWriter struct {
	conn *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(p, []byte("\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Debug().Err(err).Msg("writing response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workspace.ErrSensitiveDirectory):
		return http.StatusForbidden
	case errors.Is(err, workspace.ErrEmptyQuery),
		errors.Is(err, workspace.ErrQueryTooLong),
		errors.Is(err, workspace.ErrNotADirectory):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrNoDirectories), errors.Is(err, workspace.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, entities.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// jsonRecoverer returns JSON instead of a plain text stacktrace.
func jsonRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logx.Error().Interface("panic", rvr).Str("path", r.URL.Path).Msg("panic recovered")
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logx.Debug().
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Msg("http_request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
