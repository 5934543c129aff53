package ndjson

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/workspace"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// TokenEvent streams generated text of a request.
type TokenEvent struct {
	RequestID any    `json:"requestId"`
	Text      string `json:"text"`
}

// StepEvent reports an executed agent step of a request.
type StepEvent struct {
	RequestID any `json:"requestId"`
	entities.AgentStep
}

type initParams struct {
	DataDir string `json:"dataDir"`
}

type queryParams struct {
	Text        string `json:"text"`
	DirectoryID string `json:"directoryId"`
	SearchAll   bool   `json:"searchAll"`
}

type directoryParams struct {
	DirectoryID string `json:"directoryId"`
}

var errMissingParam = errors.New("missing parameter")

func (s *Server) registerDefaultMethods() {
	s.Register("ping", s.ping)
	s.Register("init", s.initDirectory)
	s.Register("query", s.query)
	s.Register("list_directories", s.listDirectories)
	s.Register("remove_directory", s.removeDirectory)
	s.Register("reindex", s.reindex)
	s.Register("toggle_debug", s.toggleDebug)
	s.Register("shutdown", s.shutdown)
}

func (s *Server) ping(context.Context, *Call) (any, error) {
	return map[string]any{
		"state":  s.State(),
		"uptime": math.Round(time.Since(s.started).Seconds()*10) / 10,
	}, nil
}

func (s *Server) initDirectory(ctx context.Context, c *Call) (any, error) {
	var p initParams
	if err := c.Bind(&p); err != nil {
		return nil, err
	}
	if p.DataDir == "" {
		return nil, fmt.Errorf("%w: dataDir", errMissingParam)
	}
	d, err := s.ws.Add(p.DataDir)
	if err != nil {
		return nil, err
	}
	if err := d.Wait(ctx); err != nil {
		return nil, err
	}
	info := d.Info()
	return map[string]any{
		"status":      string(info.State),
		"directoryId": info.ID,
		"summary":     info.Summary,
		"stats":       info.Stats,
	}, nil
}

func (s *Server) query(ctx context.Context, c *Call) (any, error) {
	var p queryParams
	if err := c.Bind(&p); err != nil {
		return nil, err
	}
	requestID := c.ID
	opts := workspace.QueryOptions{
		DirectoryID: p.DirectoryID,
		OnToken: func(text string) {
			c.Emit(TypeToken, TokenEvent{RequestID: requestID, Text: text})
		},
		OnStep: func(step entities.AgentStep) {
			c.Emit(TypeAgentStep, StepEvent{RequestID: requestID, AgentStep: step})
		},
	}

	if p.SearchAll {
		results, err := s.ws.QueryAll(ctx, p.Text, opts)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	}
	return s.ws.Query(ctx, p.Text, opts)
}

func (s *Server) listDirectories(context.Context, *Call) (any, error) {
	return map[string]any{"directories": s.ws.List()}, nil
}

func (s *Server) removeDirectory(ctx context.Context, c *Call) (any, error) {
	id, err := directoryID(c)
	if err != nil {
		return nil, err
	}
	if err := s.ws.Remove(ctx, id); err != nil {
		return nil, err
	}
	return map[string]string{"status": "ok"}, nil
}

func (s *Server) reindex(ctx context.Context, c *Call) (any, error) {
	id, err := directoryID(c)
	if err != nil {
		return nil, err
	}
	d, err := s.ws.Reindex(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := d.Wait(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"status": string(d.State()), "directoryId": d.ID}, nil
}

func (s *Server) toggleDebug(context.Context, *Call) (any, error) {
	debug := logx.ToggleDebug()
	logx.Info().Bool("debug", debug).Msg("debug logging toggled")
	return map[string]bool{"debug": debug}, nil
}

func (s *Server) shutdown(context.Context, *Call) (any, error) {
	if s.onShutdown != nil {
		// Let the reply go out first.
		time.AfterFunc(100*time.Millisecond, s.onShutdown)
	}
	return map[string]string{"status": "shutting_down"}, nil
}

func directoryID(c *Call) (string, error) {
	var p directoryParams
	if err := c.Bind(&p); err != nil {
		return "", err
	}
	if p.DirectoryID == "" {
		return "", fmt.Errorf("%w: directoryId", errMissingParam)
	}
	return p.DirectoryID, nil
}
