// Package ndjson serves the client protocol: one JSON object per line,
// requests answered by id, events pushed with a null id. The same protocol
// runs over stdio and over WebSocket.
package ndjson

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/workspace"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// MaxLineBytes bounds one request line.
const MaxLineBytes = 1 << 20

// Message types.
const (
	TypeResult    = "result"
	TypeError     = "error"
	TypeToken     = "token"
	TypeAgentStep = "agent_step"
)

// Request is one client line.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Message is one server line. Events have a nil ID.
type Message struct {
	ID   json.RawMessage `json:"id"`
	Type string          `json:"type"`
	Data any             `json:"data"`
}

// ErrorData is the payload of error messages.
type ErrorData struct {
	Message string `json:"message"`
}

// Method handles one request. Events for the request go through c.
type Method func(ctx context.Context, c *Call) (any, error)

// Call is a request being handled.
type Call struct {
	Request
	conn *Conn
}

// Bind decodes the request parameters into v.
func (c *Call) Bind(v any) error {
	if len(c.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(c.Params, v); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

// Emit sends an event tied to this request.
func (c *Call) Emit(eventType string, data any) {
	c.conn.send(Message{Type: eventType, Data: data})
}

// Server dispatches protocol requests to registered methods.
type Server struct {
	ws      *workspace.Workspace
	started time.Time

	mu         sync.RWMutex
	methods    map[string]Method
	state      string
	onShutdown func()
}

// Option configures a Server.
type Option func(*Server)

// WithShutdown sets the function the shutdown method calls after replying.
func WithShutdown(fn func()) Option {
	return func(s *Server) { s.onShutdown = fn }
}

// NewServer creates a Server over ws with the default methods registered.
func NewServer(ws *workspace.Workspace, opts ...Option) *Server {
	s := &Server{
		ws:      ws,
		started: time.Now(),
		methods: make(map[string]Method),
		state:   "idle",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerDefaultMethods()

	ws.Events().Subscribe(func(eventType string, data any) {
		if ev, ok := data.(workspace.StatusEvent); ok && eventType == workspace.EventStatus {
			s.mu.Lock()
			s.state = ev.State
			s.mu.Unlock()
		}
	})
	return s
}

// Register adds or replaces a method.
func (s *Server) Register(name string, m Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[name] = m
}

func (s *Server) method(name string) (Method, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[name]
	return m, ok
}

// State is the last status the workspace reported.
func (s *Server) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Serve reads requests from r and writes messages to w until r ends or ctx
// is done. When r ends, in-flight requests are allowed to finish; when ctx
// is done they are cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	conn := s.NewConn(ctx, w)
	defer conn.Close()

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), MaxLineBytes)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				conn.Wait()
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			conn.Handle(line)
		}
	}
}

// Conn is one client of the protocol. Output lines are written under a
// mutex; each request runs on its own goroutine.
type Conn struct {
	s      *Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	out io.Writer

	unsubscribe func()
}

// NewConn starts a client session writing to w. Workspace events are
// forwarded to it until Close.
func (s *Server) NewConn(ctx context.Context, w io.Writer) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	c := &Conn{s: s, ctx: ctx, cancel: cancel, out: w}
	c.unsubscribe = s.ws.Events().Subscribe(func(eventType string, data any) {
		c.send(Message{Type: eventType, Data: data})
	})
	return c
}

// Close stops forwarding events, cancels in-flight requests and waits for
// them to finish.
func (c *Conn) Close() {
	c.unsubscribe()
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until every dispatched request has been answered.
func (c *Conn) Wait() {
	c.wg.Wait()
}

// Handle dispatches one request line.
func (c *Conn) Handle(line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil || req.Method == "" {
		c.send(Message{Type: TypeError, Data: ErrorData{Message: "Invalid JSON"}})
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatch(req)
	}()
}

func (c *Conn) dispatch(req Request) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.Error().Interface("panic", rec).Str("method", req.Method).Msg("request panicked")
			metrics.ProtocolRequestsTotal.WithLabelValues(req.Method, "panic").Inc()
			c.send(Message{ID: req.ID, Type: TypeError, Data: ErrorData{Message: "Internal server error"}})
		}
	}()

	m, ok := c.s.method(req.Method)
	if !ok {
		metrics.ProtocolRequestsTotal.WithLabelValues("unknown", "error").Inc()
		c.send(Message{ID: req.ID, Type: TypeError, Data: ErrorData{Message: "Unknown method: " + req.Method}})
		return
	}

	logx.Debug().Str("method", req.Method).RawJSON("id", idOrNull(req.ID)).Msg("request")
	result, err := m(c.ctx, &Call{Request: req, conn: c})
	if err != nil {
		metrics.ProtocolRequestsTotal.WithLabelValues(req.Method, "error").Inc()
		logx.Warn().Err(err).Str("method", req.Method).Msg("request failed")
		c.send(Message{ID: req.ID, Type: TypeError, Data: ErrorData{Message: clientMessage(err)}})
		return
	}
	metrics.ProtocolRequestsTotal.WithLabelValues(req.Method, "ok").Inc()
	c.send(Message{ID: req.ID, Type: TypeResult, Data: result})
}

func (c *Conn) send(msg Message) {
	if msg.ID == nil {
		msg.ID = json.RawMessage("null")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		logx.Error().Err(err).Str("type", msg.Type).Msg("encoding message")
		b, _ = json.Marshal(Message{ID: msg.ID, Type: TypeError, Data: ErrorData{Message: "Internal server error"}})
	}
	b = append(b, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.out.Write(b); err != nil {
		logx.Debug().Err(err).Msg("writing message")
	}
}

// clientMessage renders err for the client with a capitalized first letter.
func clientMessage(err error) string {
	var tool *entities.ToolExecutionError
	switch {
	case errors.Is(err, entities.ErrModelUnavailable):
		return "Model unavailable: " + err.Error()
	case errors.As(err, &tool):
		return "Tool failed: " + err.Error()
	}
	msg := err.Error()
	if msg == "" {
		return "Internal server error"
	}
	if c := msg[0]; c >= 'a' && c <= 'z' {
		msg = string(c-'a'+'A') + msg[1:]
	}
	return msg
}

func idOrNull(id json.RawMessage) []byte {
	if len(id) == 0 {
		return []byte("null")
	}
	return id
}
