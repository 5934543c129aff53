package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

type stubFileTools struct {
	err error
}

func (s stubFileTools) CountFiles(_ context.Context, c command.CountFiles) (string, error) {
	return "count " + c.Extension, s.err
}
func (s stubFileTools) ListFiles(context.Context, command.ListFiles) (string, error) {
	return "list", s.err
}
func (s stubFileTools) GrepFiles(_ context.Context, c command.GrepFiles) (string, error) {
	return "grep " + c.Pattern, s.err
}
func (s stubFileTools) FileMetadata(context.Context, command.FileMetadata) (string, error) {
	return "meta", s.err
}
func (s stubFileTools) DirectoryTree(context.Context, command.DirectoryTree) (string, error) {
	return "tree", s.err
}
func (s stubFileTools) FolderStats(context.Context, command.FolderStats) (string, error) {
	return "stats", s.err
}
func (s stubFileTools) DiskUsage(context.Context) (string, error) {
	return "usage", s.err
}

func TestToolRegistry_Dispatch(t *testing.T) {
	index := &fakeIndex{results: []entities.QueryResult{chunk("c1", "invoice.pdf", "Total $40", 1)}}
	gen := mapReplies(map[string]string{"c1": `{"relevant": true, "facts": ["Total $40"]}`}, irrelevant)
	reg := NewToolRegistry(NewSearcher(gen, index, nil, nil, entities.DefaultSessionConfig()), stubFileTools{})

	res, err := reg.Execute(context.Background(), command.Search{Query: "invoice", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, "From invoice.pdf:\n  - Total $40", res.Text)
	assert.Equal(t, []string{"invoice.pdf"}, res.Sources)
	assert.Equal(t, "Total $40", res.Evidence)

	res, err = reg.Execute(context.Background(), command.CountFiles{Extension: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "count pdf", res.Text)

	res, err = reg.Execute(context.Background(), command.DiskUsage{})
	require.NoError(t, err)
	assert.Equal(t, "usage", res.Text)
}

func TestToolRegistry_Errors(t *testing.T) {
	reg := NewToolRegistry(nil, stubFileTools{err: errors.New("disk gone")})

	_, err := reg.Execute(context.Background(), command.GrepFiles{Pattern: "x"})
	var te *entities.ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "grep_files", te.Tool)

	_, err = NewToolRegistry(nil, stubFileTools{}).Execute(context.Background(), command.Respond{Answer: "hi"})
	assert.ErrorIs(t, err, entities.ErrInvalidCommand)
}
