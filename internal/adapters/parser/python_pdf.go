// Package parser extracts text from binary documents through the external
// PDF service.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

const (
	DefaultServiceURL = "http://localhost:8081"
	// ScriptName is the service entry point looked up by StartService.
	ScriptName = "pdf_service.py"
)

// PythonPDFParser implements ports.DocumentParser by posting PDF bytes to the
// Python extraction service.
type PythonPDFParser struct {
	serviceURL string
	client     *http.Client
	pythonCmd  *exec.Cmd
}

// NewPythonPDFParser creates a parser for the service at serviceURL.
func NewPythonPDFParser(serviceURL string) *PythonPDFParser {
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	return &PythonPDFParser{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type parseResponse struct {
	Text    string `json:"text"`
	Pages   int    `json:"pages"`
	Library string `json:"library,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Parse extracts text from PDF bytes.
func (p *PythonPDFParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", filepath.Base(filename))

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling PDF service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("PDF parse error: %s", result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PDF service returned status %d", resp.StatusCode)
	}

	logx.Debug().Str("file", filename).Int("pages", result.Pages).Str("library", result.Library).Msg("parsed pdf")
	return result.Text, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PythonPDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// StartService launches the Python service from scriptDir and waits until it
// reports healthy. The returned function stops it. Service output goes to
// stderr.
func (p *PythonPDFParser) StartService(ctx context.Context, scriptDir string) (func(), error) {
	scriptPath := filepath.Join(scriptDir, ScriptName)
	if _, err := os.Stat(scriptPath); err != nil {
		return nil, fmt.Errorf("%s not found in %s: %w", ScriptName, scriptDir, err)
	}

	p.pythonCmd = exec.CommandContext(ctx, "python3", scriptPath)
	p.pythonCmd.Stdout = os.Stderr
	p.pythonCmd.Stderr = os.Stderr
	if err := p.pythonCmd.Start(); err != nil {
		return nil, fmt.Errorf("starting Python service: %w", err)
	}

	cleanup := func() {
		if p.pythonCmd != nil && p.pythonCmd.Process != nil {
			_ = p.pythonCmd.Process.Kill()
			_ = p.pythonCmd.Wait()
		}
	}

	if err := p.waitHealthy(ctx, 10*time.Second); err != nil {
		cleanup()
		return nil, err
	}
	logx.Info().Str("url", p.serviceURL).Msg("PDF service started")
	return cleanup, nil
}

func (p *PythonPDFParser) waitHealthy(ctx context.Context, limit time.Duration) error {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		if p.IsServiceHealthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errors.New("PDF service did not become healthy")
		case <-tick.C:
		}
	}
}

// IsServiceHealthy checks if the Python service is running.
func (p *PythonPDFParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
