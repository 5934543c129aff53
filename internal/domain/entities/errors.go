package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrParseFailure means no tool call could be read from model output.
	ErrParseFailure = errors.New("no tool call recognized")
	// ErrModelUnavailable means the generation runtime cannot serve requests.
	// It is the only error that aborts a query.
	ErrModelUnavailable = errors.New("generation model unavailable")
	// ErrEmptyRetrieval means the map stage produced no facts.
	ErrEmptyRetrieval = errors.New("retrieval produced no relevant facts")
	// ErrFileRead means a file could not be read or converted to text.
	ErrFileRead = errors.New("file read failed")
	// ErrMalformedExtraction means a map-stage reply could not be parsed.
	ErrMalformedExtraction = errors.New("malformed extraction output")
	// ErrInvalidCommand means a tool name or its parameters failed validation.
	ErrInvalidCommand = errors.New("invalid tool command")
	// ErrNotFound is returned for unknown directories or documents.
	ErrNotFound = errors.New("not found")
)

// ToolExecutionError wraps a failure raised while running a tool.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
