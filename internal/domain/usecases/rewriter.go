package usecases

import (
	"context"
	"errors"
	"strings"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/modeljson"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

const rewriterSystem = `You rewrite user queries for searching local files. Given a question and optional conversation history, produce JSON with:
- "intent": one of "factual", "count", "list", "compare", "summarize", "metadata"
  Use "count" when the user asks "how many" of something.
  Use "metadata" for questions about file sizes, folder sizes, disk usage, storage space.
- "search_query": the query expanded for vector search (synonyms, related terms, full forms of abbreviations)
- "resolved_query": the user's question with pronouns and references resolved. Always frame it as looking in the user's files, never answer from general knowledge.
  For metadata queries keep whether the user asks about FILES or FOLDERS, and say "sorted by size" when they ask about sizes or ranking.

Examples:

Question: "any invoices?"
{"intent": "list", "search_query": "invoice receipt payment billing", "resolved_query": "Are there any invoices in my files?"}

Question: "how many PDFs?"
{"intent": "count", "search_query": "PDF files documents", "resolved_query": "How many PDF files are there?"}

Question: "how many eggs in carbonara"
{"intent": "factual", "search_query": "carbonara recipe eggs ingredients", "resolved_query": "How many eggs does the carbonara recipe call for according to my files?"}

Recent conversation:
  User: any animal pictures?
  Assistant: I found some image files. Would you like details?
Question: "yes"
{"intent": "list", "search_query": "animal pictures images photos", "resolved_query": "Show me the animal pictures found in my files."}

Question: "what folders take up the most space?"
{"intent": "metadata", "search_query": "folder size space storage disk usage", "resolved_query": "Which folders take up the most space in my files?"}

Question: "how much storage am I using?"
{"intent": "metadata", "search_query": "total disk usage storage space", "resolved_query": "How much total storage space are my files using?"}

Reply with a single JSON object only.`

var rewriteSampling = ports.Sampling{MaxTokens: 256, Temperature: 0}

// QueryRewriter resolves references against recent turns, expands the query
// for retrieval and classifies its intent.
type QueryRewriter struct {
	gen          ports.Generator
	historyTurns int
}

// NewQueryRewriter creates a rewriter that looks at the last historyTurns
// turns of a conversation.
func NewQueryRewriter(gen ports.Generator, historyTurns int) *QueryRewriter {
	if historyTurns < 0 {
		historyTurns = 4
	}
	return &QueryRewriter{gen: gen, historyTurns: historyTurns}
}

// Rewrite never fails on bad model output; missing fields fall back to the
// original query and intent factual. Only model unavailability and caller
// cancellation are returned as errors.
func (r *QueryRewriter) Rewrite(ctx context.Context, query string, history []entities.ConversationTurn) (entities.Rewrite, error) {
	fallback := entities.Rewrite{ResolvedQuery: query, SearchQuery: query, Intent: entities.IntentFactual}

	user := query
	if recent := formatRecent(lastTurns(history, r.historyTurns)); recent != "" {
		user = recent + "\n\nQuestion: " + query
	}

	raw, err := r.gen.Generate(ctx, ports.GenerateRequest{
		System:   rewriterSystem,
		Messages: []entities.ConversationTurn{{Role: entities.RoleUser, Text: user}},
		Sampling: rewriteSampling,
		Purpose:  ports.PurposeRewrite,
	})
	if err != nil {
		if errors.Is(err, entities.ErrModelUnavailable) {
			return fallback, err
		}
		if ctx.Err() != nil {
			return fallback, ctx.Err()
		}
		logx.Warn().Err(err).Msg("rewrite failed, using raw query")
		return fallback, nil
	}

	obj, ok := modeljson.Object(raw)
	if !ok {
		logx.Debug().Str("raw", truncate(raw, 200)).Msg("rewrite output unparsable")
		return fallback, nil
	}

	out := fallback
	if s := modeljson.String(obj, "resolved_query"); s != "" {
		out.ResolvedQuery = s
	}
	if s := modeljson.String(obj, "search_query"); s != "" {
		out.SearchQuery = s
	}
	out.Intent = entities.ParseIntent(modeljson.String(obj, "intent"))

	logx.Debug().
		Str("intent", string(out.Intent)).
		Str("resolved", out.ResolvedQuery).
		Str("search", out.SearchQuery).
		Msg("query rewritten")
	return out, nil
}

func formatRecent(turns []entities.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Recent conversation:")
	for _, t := range turns {
		who := "Assistant"
		if t.Role == entities.RoleUser {
			who = "User"
		}
		sb.WriteString("\n  ")
		sb.WriteString(who)
		sb.WriteString(": ")
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func lastTurns(turns []entities.ConversationTurn, n int) []entities.ConversationTurn {
	if n <= 0 {
		return nil
	}
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
