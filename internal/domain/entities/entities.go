// Package entities contains the core data types shared by every layer.
// They carry no behaviour that depends on adapters.
package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ConversationTurn is one message of a conversation. Turns are appended,
// never edited.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// Document represents a file loaded for indexing.
type Document struct {
	ID        string
	Name      string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentID derives the stable document id of the file at path.
func DocumentID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}

// FileType returns the lower-cased extension without the dot.
func (d *Document) FileType() string {
	return fileType(d.Name)
}

// Source describes where a chunk came from.
type Source struct {
	FileName string `json:"fileName"`
	Path     string `json:"path"`
	FileType string `json:"fileType"`
}

// NewSource builds a Source for the file at path.
func NewSource(name, path string) Source {
	return Source{FileName: name, Path: path, FileType: fileType(name)}
}

// Chunk is an indexed passage of a document.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Index      int
	Embedding  []float32
	Source     Source
}

// QueryResult is a chunk ranked by similarity to a query.
type QueryResult struct {
	Chunk Chunk
	Score float64
}

// SourceName is the name facts from this chunk are grouped under.
func (r QueryResult) SourceName() string {
	switch {
	case r.Chunk.Source.FileName != "":
		return r.Chunk.Source.FileName
	case r.Chunk.DocumentID != "":
		return r.Chunk.DocumentID
	default:
		return r.Chunk.ID
	}
}

// Fact is a short statement extracted from a chunk or a file.
type Fact struct {
	Text   string
	Source string
}

// Intent is the question category assigned by the query rewriter.
type Intent string

const (
	IntentFactual   Intent = "factual"
	IntentCount     Intent = "count"
	IntentList      Intent = "list"
	IntentCompare   Intent = "compare"
	IntentSummarize Intent = "summarize"
	IntentMetadata  Intent = "metadata"
)

// ParseIntent returns the intent named by s, or IntentFactual.
func ParseIntent(s string) Intent {
	switch in := Intent(strings.ToLower(strings.TrimSpace(s))); in {
	case IntentFactual, IntentCount, IntentList, IntentCompare, IntentSummarize, IntentMetadata:
		return in
	default:
		return IntentFactual
	}
}

// Rewrite is the query rewriter output.
type Rewrite struct {
	ResolvedQuery string `json:"resolved_query"`
	SearchQuery   string `json:"search_query"`
	Intent        Intent `json:"intent"`
}

// StepOrigin tells how the command of an agent step was obtained.
type StepOrigin string

const (
	OriginModel    StepOrigin = "model"
	OriginRouter   StepOrigin = "router"
	OriginFollowup StepOrigin = "followup"
)

// AgentStep records one executed step. It is reported to observers and never
// read back by the loop.
type AgentStep struct {
	Index  int            `json:"step"`
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
	Origin StepOrigin     `json:"origin"`
	Result string         `json:"result"`
}

// Answer is the outcome of one agent run.
type Answer struct {
	Text          string      `json:"text"`
	Sources       []string    `json:"sources"`
	Steps         []AgentStep `json:"steps"`
	Exhausted     bool        `json:"exhausted"`
	LowConfidence bool        `json:"lowConfidence"`
}

func fileType(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}
