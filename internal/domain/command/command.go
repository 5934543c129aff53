// Package command defines the closed set of tool commands the agent can
// issue. Each tool has its own parameter struct; New validates untyped
// parameters coming from model output before a command exists.
package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
)

// Name is a tool name as written by the model.
type Name string

const (
	NameSearch        Name = "semantic_search"
	NameCountFiles    Name = "count_files"
	NameListFiles     Name = "list_files"
	NameGrepFiles     Name = "grep_files"
	NameFileMetadata  Name = "file_metadata"
	NameDirectoryTree Name = "directory_tree"
	NameFolderStats   Name = "folder_stats"
	NameDiskUsage     Name = "disk_usage"
	NameRespond       Name = "respond"
)

// Names lists every tool in schema order.
var Names = []Name{
	NameSearch, NameCountFiles, NameListFiles, NameGrepFiles, NameFileMetadata,
	NameDirectoryTree, NameFolderStats, NameDiskUsage, NameRespond,
}

// Known reports whether n names a tool.
func Known(n string) bool {
	for _, name := range Names {
		if string(name) == n {
			return true
		}
	}
	return false
}

// Command is one of the structs in this package. The unexported method keeps
// the set closed.
type Command interface {
	Name() Name
	// Params renders the parameters for events and tool-result turns.
	Params() map[string]any
	command()
}

const (
	DefaultTopK        = 5
	MaxTopK            = 10
	DefaultListLimit   = 10
	MaxListLimit       = 100
	DefaultTreeDepth   = 2
	MaxTreeDepth       = 10
	DefaultFolderLimit = 10
	SortByDate         = "date"
	SortBySize         = "size"
	SortByName         = "name"
	SortByCount        = "count"
	OrderDesc          = "desc"
	OrderAsc           = "asc"
)

// Search looks inside file contents through the retrieval pipeline.
type Search struct {
	Query string
	TopK  int
}

// CountFiles counts files, optionally by extension.
type CountFiles struct {
	Extension string
}

// ListFiles lists files ordered by date, size or name.
type ListFiles struct {
	Extension string
	Limit     int
	SortBy    string
}

// GrepFiles finds files whose name contains Pattern.
type GrepFiles struct {
	Pattern string
}

// FileMetadata reports size and dates of files matching NameHint.
type FileMetadata struct {
	NameHint string
}

// DirectoryTree renders the folder structure.
type DirectoryTree struct {
	MaxDepth int
}

// FolderStats aggregates size and file count per folder.
type FolderStats struct {
	SortBy    string
	Limit     int
	Extension string
	Order     string
}

// DiskUsage summarizes total usage by file type.
type DiskUsage struct{}

// Respond ends the loop with Answer.
type Respond struct {
	Answer string
}

func (Search) Name() Name        { return NameSearch }
func (CountFiles) Name() Name    { return NameCountFiles }
func (ListFiles) Name() Name     { return NameListFiles }
func (GrepFiles) Name() Name     { return NameGrepFiles }
func (FileMetadata) Name() Name  { return NameFileMetadata }
func (DirectoryTree) Name() Name { return NameDirectoryTree }
func (FolderStats) Name() Name   { return NameFolderStats }
func (DiskUsage) Name() Name     { return NameDiskUsage }
func (Respond) Name() Name       { return NameRespond }

func (Search) command()        {}
func (CountFiles) command()    {}
func (ListFiles) command()     {}
func (GrepFiles) command()     {}
func (FileMetadata) command()  {}
func (DirectoryTree) command() {}
func (FolderStats) command()   {}
func (DiskUsage) command()     {}
func (Respond) command()       {}

func (c Search) Params() map[string]any {
	return map[string]any{"query": c.Query, "top_k": c.TopK}
}

func (c CountFiles) Params() map[string]any {
	return withOptional(map[string]any{}, "extension", c.Extension)
}

func (c ListFiles) Params() map[string]any {
	return withOptional(map[string]any{"limit": c.Limit, "sort_by": c.SortBy}, "extension", c.Extension)
}

func (c GrepFiles) Params() map[string]any {
	return map[string]any{"pattern": c.Pattern}
}

func (c FileMetadata) Params() map[string]any {
	return withOptional(map[string]any{}, "name_hint", c.NameHint)
}

func (c DirectoryTree) Params() map[string]any {
	return map[string]any{"max_depth": c.MaxDepth}
}

func (c FolderStats) Params() map[string]any {
	return withOptional(map[string]any{"sort_by": c.SortBy, "limit": c.Limit, "order": c.Order}, "extension", c.Extension)
}

func (DiskUsage) Params() map[string]any {
	return map[string]any{}
}

func (c Respond) Params() map[string]any {
	return map[string]any{"answer": c.Answer}
}

// New builds the command named name from untyped parameters. Unknown tools
// and missing required parameters fail with entities.ErrInvalidCommand.
// Out-of-range optional values are clamped or replaced by defaults.
func New(name string, params map[string]any) (Command, error) {
	p := rawParams(params)
	switch Name(strings.TrimSpace(name)) {
	case NameSearch:
		s, err := NewSearch(p.str("query"), p.integer("top_k", DefaultTopK))
		if err != nil {
			return nil, err
		}
		return s, nil
	case NameCountFiles:
		return CountFiles{Extension: NormalizeExtension(p.str("extension"))}, nil
	case NameListFiles:
		return ListFiles{
			Extension: NormalizeExtension(p.str("extension")),
			Limit:     clamp(p.integer("limit", DefaultListLimit), 1, MaxListLimit),
			SortBy:    oneOf(p.str("sort_by"), SortByDate, SortBySize, SortByName),
		}, nil
	case NameGrepFiles:
		pattern := p.str("pattern")
		if pattern == "" {
			return nil, invalid(NameGrepFiles, "pattern is required")
		}
		return GrepFiles{Pattern: pattern}, nil
	case NameFileMetadata:
		return FileMetadata{NameHint: p.str("name_hint")}, nil
	case NameDirectoryTree:
		return DirectoryTree{MaxDepth: clamp(p.integer("max_depth", DefaultTreeDepth), 0, MaxTreeDepth)}, nil
	case NameFolderStats:
		return FolderStats{
			SortBy:    oneOf(p.str("sort_by"), SortBySize, SortByCount),
			Limit:     clamp(p.integer("limit", DefaultFolderLimit), 1, MaxListLimit),
			Extension: NormalizeExtension(p.str("extension")),
			Order:     oneOf(p.str("order"), OrderDesc, OrderAsc),
		}, nil
	case NameDiskUsage:
		return DiskUsage{}, nil
	case NameRespond:
		return Respond{Answer: p.str("answer")}, nil
	default:
		return nil, fmt.Errorf("unknown tool %q: %w", name, entities.ErrInvalidCommand)
	}
}

// NewSearch validates a search command.
func NewSearch(query string, topK int) (Search, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Search{}, invalid(NameSearch, "query is required")
	}
	return Search{Query: query, TopK: clamp(topK, 1, MaxTopK)}, nil
}

// PrimaryParam returns the parameter a single positional argument binds to.
func PrimaryParam(n Name) string {
	switch n {
	case NameSearch:
		return "query"
	case NameCountFiles, NameListFiles:
		return "extension"
	case NameGrepFiles:
		return "pattern"
	case NameFileMetadata:
		return "name_hint"
	case NameDirectoryTree:
		return "max_depth"
	case NameFolderStats:
		return "sort_by"
	case NameRespond:
		return "answer"
	default:
		return ""
	}
}

// NormalizeExtension lower-cases ext and strips leading dots and "*.".
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = strings.TrimPrefix(ext, "*")
	return strings.TrimLeft(ext, ".")
}

func invalid(n Name, msg string) error {
	return fmt.Errorf("%s: %s: %w", n, msg, entities.ErrInvalidCommand)
}

func withOptional(m map[string]any, key, value string) map[string]any {
	if value != "" {
		m[key] = value
	}
	return m
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func oneOf(v string, allowed ...string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return allowed[0]
}

type rawParams map[string]any

// str returns the string form of key; nil and missing keys give "".
func (p rawParams) str(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// integer returns key as an int, or def when absent or not numeric.
func (p rawParams) integer(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return def
		}
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
