package usecases

import (
	"context"
	"fmt"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
)

// ToolRegistry dispatches commands to the retrieval pipeline or the
// filesystem tools of one directory.
type ToolRegistry struct {
	searcher *Searcher
	files    ports.FileTools
}

// NewToolRegistry creates a registry.
func NewToolRegistry(searcher *Searcher, files ports.FileTools) *ToolRegistry {
	return &ToolRegistry{searcher: searcher, files: files}
}

// Execute runs cmd. Failures are returned as *entities.ToolExecutionError.
func (r *ToolRegistry) Execute(ctx context.Context, cmd command.Command) (ports.ToolResult, error) {
	if c, ok := cmd.(command.Search); ok {
		out, err := r.searcher.Search(ctx, c.Query, c.TopK)
		if err != nil {
			return ports.ToolResult{}, &entities.ToolExecutionError{Tool: string(c.Name()), Err: err}
		}
		return ports.ToolResult{Text: out.String(), Sources: out.Sources(), Evidence: out.Evidence}, nil
	}

	text, err := r.runFileTool(ctx, cmd)
	if err != nil {
		return ports.ToolResult{}, &entities.ToolExecutionError{Tool: string(cmd.Name()), Err: err}
	}
	return ports.ToolResult{Text: text}, nil
}

func (r *ToolRegistry) runFileTool(ctx context.Context, cmd command.Command) (string, error) {
	if r.files == nil {
		return "", fmt.Errorf("no filesystem tools configured")
	}
	switch c := cmd.(type) {
	case command.CountFiles:
		return r.files.CountFiles(ctx, c)
	case command.ListFiles:
		return r.files.ListFiles(ctx, c)
	case command.GrepFiles:
		return r.files.GrepFiles(ctx, c)
	case command.FileMetadata:
		return r.files.FileMetadata(ctx, c)
	case command.DirectoryTree:
		return r.files.DirectoryTree(ctx, c)
	case command.FolderStats:
		return r.files.FolderStats(ctx, c)
	case command.DiskUsage:
		return r.files.DiskUsage(ctx)
	default:
		return "", fmt.Errorf("%s is not executable: %w", cmd.Name(), entities.ErrInvalidCommand)
	}
}
