package usecases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/localrag-agent/internal/domain/entities"
	"github.com/0xcro3dile/localrag-agent/internal/domain/modeljson"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/metrics"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

const mapSystem = `You are a data extraction assistant. The user will give you a question and a text passage. Decide if the text DIRECTLY answers the question. If the text is about a DIFFERENT topic, set relevant to false. If relevant, extract the specific data points as short factual strings.

Example 1:
Question: What is the invoice total?
Text: Invoice #123, Amount: $500, Due: Jan 15
{"relevant": true, "facts": ["Invoice #123", "Amount: $500", "Due: Jan 15"]}

Example 2:
Question: What is the invoice total?
Text: Meeting notes: discussed new hire onboarding and team lunch plans
{"relevant": false, "facts": []}

Example 3:
Question: any macbook invoice?
Text: Sprint review: deployed helm charts, updated CI pipeline, new model released
{"relevant": false, "facts": []}

Reply with JSON only: {"relevant": true/false, "facts": [...]}`

var mapSampling = ports.Sampling{MaxTokens: 256, Temperature: 0}

const minFactLength = 3

// Searcher is the retrieval pipeline: vector search, relative score filter,
// one extraction call per chunk, aggregation by source, and a filename
// fallback when nothing relevant was found.
type Searcher struct {
	gen       ports.Generator
	index     ports.ChunkSearcher
	finder    ports.FileFinder
	extractor ports.TextExtractor
	cfg       entities.SessionConfig
}

// NewSearcher creates a Searcher. finder and extractor may be nil, which
// disables the filename fallback.
func NewSearcher(
	gen ports.Generator,
	index ports.ChunkSearcher,
	finder ports.FileFinder,
	extractor ports.TextExtractor,
	cfg entities.SessionConfig,
) *Searcher {
	return &Searcher{
		gen:       gen,
		index:     index,
		finder:    finder,
		extractor: extractor,
		cfg:       cfg.WithDefaults(),
	}
}

// Search runs the pipeline for query. The returned error is non-nil only
// when the model is unavailable or ctx is done; every other failure is
// absorbed into the outcome.
func (s *Searcher) Search(ctx context.Context, query string, topK int) (*entities.RetrievalOutcome, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	topK = min(topK, s.cfg.MaxTopK)

	out := &entities.RetrievalOutcome{}

	chunks, err := s.index.Search(ctx, query, topK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Warn().Err(err).Str("query", query).Msg("index search failed, treating as empty")
		chunks = nil
	}
	out.Searched = len(chunks) > 0

	kept := FilterByRelativeScore(chunks, s.cfg.RelevanceRatio)
	logx.Debug().Int("retrieved", len(chunks)).Int("kept", len(kept)).Msg("score filter")

	if err := s.mapChunks(ctx, query, kept, out); err != nil {
		return nil, err
	}
	if !out.Empty() || s.finder == nil || s.extractor == nil {
		return out, nil
	}

	files, err := s.fallbackFiles(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return out, nil
	}
	metrics.FallbackActivationsTotal.Inc()
	out.FallbackFiles = len(files)

	docs := s.extractAll(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.mapChunks(ctx, query, docs, out); err != nil {
		return nil, err
	}
	out.FromFallback = !out.Empty()
	return out, nil
}

// FilterByRelativeScore keeps results within (1-ratio) of the best score's
// magnitude below it, which is ratio times the best score when that is
// positive. The best result always survives. Order is preserved.
func FilterByRelativeScore(results []entities.QueryResult, ratio float64) []entities.QueryResult {
	if len(results) == 0 {
		return nil
	}
	top := results[0].Score
	for _, r := range results[1:] {
		top = max(top, r.Score)
	}
	threshold := top - (1-ratio)*math.Abs(top)
	kept := make([]entities.QueryResult, 0, len(results))
	for _, r := range results {
		if r.Score >= threshold {
			kept = append(kept, r)
		}
	}
	return kept
}

// mapChunks asks the model about each chunk in turn and records relevant
// facts. The highest-scoring relevant chunk becomes the outcome evidence.
func (s *Searcher) mapChunks(ctx context.Context, query string, chunks []entities.QueryResult, out *entities.RetrievalOutcome) error {
	bestScore := -1.0
	for _, c := range chunks {
		text := truncate(c.Chunk.Content, s.cfg.ChunkTextLimit)
		facts, err := s.extractFacts(ctx, query, c, text)
		if err != nil {
			return err
		}
		if len(facts) == 0 {
			continue
		}
		out.Add(c.SourceName(), facts...)
		if c.Score > bestScore {
			bestScore = c.Score
			out.Evidence = text
		}
	}
	return nil
}

func (s *Searcher) extractFacts(ctx context.Context, query string, c entities.QueryResult, text string) ([]string, error) {
	raw, err := s.gen.Generate(ctx, ports.GenerateRequest{
		System: mapSystem,
		Messages: []entities.ConversationTurn{{
			Role: entities.RoleUser,
			Text: fmt.Sprintf("Question: %s\n\n[%s]\n%s", query, chunkHeader(c), text),
		}},
		Sampling: mapSampling,
		Purpose:  ports.PurposeMap,
	})
	if err != nil {
		if errors.Is(err, entities.ErrModelUnavailable) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Warn().Err(err).Str("chunk", c.Chunk.ID).Msg("map call failed, skipping chunk")
		metrics.MapVerdictsTotal.WithLabelValues("error").Inc()
		return nil, nil
	}

	ex, ok := modeljson.ParseExtraction(raw)
	if !ok {
		logx.Debug().Str("chunk", c.Chunk.ID).Str("raw", truncate(raw, 100)).
			Err(entities.ErrMalformedExtraction).Msg("map reply treated as not relevant")
		metrics.MapVerdictsTotal.WithLabelValues("malformed").Inc()
		return nil, nil
	}

	facts := normalizeFacts(ex.Facts, s.cfg.MaxFactsPerChunk)
	if !ex.Relevant || len(facts) == 0 {
		metrics.MapVerdictsTotal.WithLabelValues("irrelevant").Inc()
		return nil, nil
	}
	metrics.MapVerdictsTotal.WithLabelValues("relevant").Inc()
	logx.Debug().Str("source", c.SourceName()).Int("facts", len(facts)).Msg("chunk relevant")
	return facts, nil
}

func chunkHeader(c entities.QueryResult) string {
	parts := []string{"File: " + c.SourceName()}
	if c.Chunk.Source.FileType != "" {
		parts = append(parts, "Type: "+c.Chunk.Source.FileType)
	}
	parts = append(parts,
		"Chunk: "+c.Chunk.ID,
		fmt.Sprintf("Relevance score: %.2f", c.Score),
	)
	return strings.Join(parts, " | ")
}

// normalizeFacts flattens model facts to strings. Object facts become
// "name: value", or their non-empty values joined with ": ".
func normalizeFacts(raw []any, limit int) []string {
	if len(raw) > limit {
		raw = raw[:limit]
	}
	var facts []string
	for _, f := range raw {
		var s string
		switch v := f.(type) {
		case string:
			s = strings.TrimSpace(v)
		case map[string]any:
			s = flattenFact(v)
		}
		if len(s) >= minFactLength {
			facts = append(facts, s)
		}
	}
	return facts
}

func flattenFact(m map[string]any) string {
	name, _ := m["name"].(string)
	value := m["value"]
	if name != "" && value != nil && fmt.Sprint(value) != "" {
		return fmt.Sprintf("%s: %v", name, value)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var vals []string
	for _, k := range keys {
		if v := m[k]; v != nil && v != "" && v != false {
			vals = append(vals, fmt.Sprint(v))
		}
	}
	return strings.Join(vals, ": ")
}

// fallbackFiles picks up to FallbackFileCap files whose names contain a
// keyword of query. A failed lookup leaves the outcome unchanged; only ctx
// ending is reported.
func (s *Searcher) fallbackFiles(ctx context.Context, query string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keywords := extractKeywords(query, s.cfg.MinKeywordLength)
	if len(keywords) == 0 {
		return nil, nil
	}
	files, err := s.finder.FindByName(ctx, keywords, s.cfg.FallbackPerKeywordCap)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.Warn().Err(err).Strs("keywords", keywords).Msg("filename lookup failed")
		return nil, nil
	}
	if len(files) > s.cfg.FallbackFileCap {
		files = files[:s.cfg.FallbackFileCap]
	}
	return files, nil
}

// extractAll reads files concurrently. Unreadable and empty files are
// skipped; the result keeps the order of files.
func (s *Searcher) extractAll(ctx context.Context, files []string) []entities.QueryResult {
	texts := make([]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FallbackFileCap)
	for i, path := range files {
		g.Go(func() error {
			text, err := s.extractor.Extract(gctx, path)
			if err != nil {
				if gctx.Err() == nil {
					logx.Warn().Err(err).Str("path", path).Msg("fallback extraction failed")
				}
				return nil
			}
			texts[i] = strings.TrimSpace(text)
			return nil
		})
	}
	_ = g.Wait()

	var docs []entities.QueryResult
	for i, path := range files {
		if texts[i] == "" {
			continue
		}
		name := filepath.Base(path)
		docs = append(docs, entities.QueryResult{Chunk: entities.Chunk{
			ID:         name,
			DocumentID: path,
			Content:    texts[i],
			Source:     entities.NewSource(name, path),
		}})
	}
	return docs
}
