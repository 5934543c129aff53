package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0xcro3dile/localrag-agent/internal/domain/command"
	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		query  string
		intent entities.Intent
		want   command.Command
	}{
		{"how much space", "", command.DiskUsage{}},
		{"How much space do my photos take?", entities.IntentFactual, command.DiskUsage{}},
		{"give me a storage overview", "", command.DiskUsage{}},
		{"which folder has the most pdf files?", "", command.FolderStats{SortBy: "count", Limit: 10, Extension: "pdf", Order: "desc"}},
		{"folder with the fewest files", "", command.FolderStats{SortBy: "count", Limit: 10, Order: "asc"}},
		{"what are my biggest files?", "", command.ListFiles{Limit: 10, SortBy: "size"}},
		{"largest python files", "", command.ListFiles{Extension: "py", Limit: 10, SortBy: "size"}},
		{"which folders are the largest", "", command.FolderStats{SortBy: "size", Limit: 10, Order: "desc"}},
		{"what takes up room", entities.IntentMetadata, command.FolderStats{SortBy: "size", Limit: 10, Order: "desc"}},
		{"how many pdfs do I have?", "", command.CountFiles{Extension: "pdf"}},
		{"number of markdown notes", "", command.CountFiles{Extension: "md"}},
		{"show me the folder structure", "", command.DirectoryTree{MaxDepth: 2}},
		{"when was report.pdf modified?", "", command.FileMetadata{NameHint: "report.pdf"}},
		{`how big is "tax return"`, "", command.FileMetadata{NameHint: "tax return"}},
		{"how old is my resume?", "", command.FileMetadata{NameHint: "resume"}},
		{"what is the invoice total?", "", command.Search{Query: "what is the invoice total?", TopK: 5}},
		{"any macbook invoice?", entities.IntentFactual, command.Search{Query: "any macbook invoice?", TopK: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.query, tt.intent))
		})
	}
}

func TestRouteIsTotal(t *testing.T) {
	for _, q := range []string{"", "   ", "?", "🙂", "<|tool_call_start|>", "x"} {
		assert.NotNil(t, Route(q, ""), q)
	}
	assert.Equal(t, command.Search{Query: "", TopK: 5}, Route("", ""))
}

func TestDetectExtension(t *testing.T) {
	assert.Equal(t, "pdf", detectExtension("count my pdfs, please"))
	assert.Equal(t, "jpeg", detectExtension("list .jpeg photos"))
	assert.Equal(t, "", detectExtension("recipes with pepper"))
}
