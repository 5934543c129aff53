package main

import (
	"context"
	"fmt"

	"github.com/0xcro3dile/localrag-agent/internal/adapters/embedding"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/filewatcher"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/llm"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/loader"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/parser"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/session"
	"github.com/0xcro3dile/localrag-agent/internal/adapters/vectordb"
	"github.com/0xcro3dile/localrag-agent/internal/config"
	"github.com/0xcro3dile/localrag-agent/internal/domain/ports"
	"github.com/0xcro3dile/localrag-agent/internal/domain/usecases"
	"github.com/0xcro3dile/localrag-agent/internal/infrastructure/workspace"
	"github.com/0xcro3dile/localrag-agent/pkg/logx"
)

// app holds the wired services and what must be released on exit.
type app struct {
	cfg     *config.Config
	ws      *workspace.Workspace
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, watch bool) (*app, error) {
	a := &app{cfg: cfg}

	backend, err := newGenerator(cfg.Model)
	if err != nil {
		return nil, err
	}
	worker := llm.NewWorker(backend, llm.WorkerConfig{QueueSize: cfg.Model.QueueSize, Timeout: cfg.Model.Timeout})
	a.closers = append(a.closers, worker.Close)

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, err
	}

	docs := loader.NewMultiLoader(a.pdfParser(ctx))
	conversations, err := a.conversationStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := workspace.Deps{
		Generator:     worker,
		Embedder:      embedder,
		Loader:        docs,
		Extractor:     loader.NewExtractor(docs, cfg.Extractor.MaxChars),
		Conversations: conversations,
		OpenStore:     storeOpener(cfg.Index.Backend),
		Agent:         cfg.Agent,
		ChunkSize:     cfg.Index.ChunkSize,
		ChunkOverlap:  cfg.Index.ChunkOverlap,
		Workers:       cfg.Index.Workers,
	}
	if watch {
		deps.NewWatcher = func(extensions []string) (ports.FileWatcher, error) {
			return filewatcher.NewFSNotifyWatcher(extensions, filewatcher.WithSkipDirs(usecases.CacheDirName))
		}
	}
	a.ws = workspace.New(ctx, deps)

	logx.Info().
		Str("model_provider", cfg.Model.Provider).
		Str("model", cfg.Model.Name).
		Str("embedding", cfg.Embedding.Name).
		Str("index", cfg.Index.Backend).
		Bool("watch", watch).
		Msg("services ready")
	return a, nil
}

// Close releases everything in reverse order of creation.
func (a *app) Close() {
	if a.ws != nil {
		if err := a.ws.Close(); err != nil {
			logx.Warn().Err(err).Msg("closing workspace")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newGenerator(cfg config.ModelConfig) (ports.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return llm.NewOllamaGenerator(cfg.BaseURL, cfg.Name), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIGenerator(llm.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Name}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func newEmbedder(cfg config.EmbeddingConfig) (ports.EmbeddingService, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return embedding.NewOllamaAdapter(cfg.BaseURL, cfg.Name), nil
	case config.ProviderOpenAI:
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Name,
			Dimensions: cfg.Dimensions,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func storeOpener(backend string) func(cacheDir string) (ports.VectorStore, error) {
	if backend == config.BackendMemory {
		return func(string) (ports.VectorStore, error) {
			return vectordb.NewInMemoryStore(), nil
		}
	}
	return func(cacheDir string) (ports.VectorStore, error) {
		return vectordb.NewSQLiteStore(cacheDir)
	}
}

// pdfParser returns the PDF parser when the service is reachable, starting
// it first when a script directory is configured. Nil disables PDF support.
func (a *app) pdfParser(ctx context.Context) ports.DocumentParser {
	p := parser.NewPythonPDFParser(a.cfg.Extractor.PDFServiceURL)
	if a.cfg.Extractor.ScriptDir != "" {
		stop, err := p.StartService(ctx, a.cfg.Extractor.ScriptDir)
		if err != nil {
			logx.Warn().Err(err).Msg("PDF service not started, PDFs will not be indexed")
			return nil
		}
		a.closers = append(a.closers, stop)
		return p
	}
	if !p.IsServiceHealthy(ctx) {
		logx.Warn().Msg("PDF service unreachable, PDFs will not be indexed")
		return nil
	}
	return p
}

func (a *app) conversationStore(ctx context.Context) (ports.ConversationStore, error) {
	maxTurns := a.cfg.History.MaxTurns
	if !a.cfg.Redis.Enabled() {
		return session.NewMemoryStore(maxTurns), nil
	}
	rdb, err := a.cfg.Redis.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	logx.Info().Msg("conversation history kept in redis")
	return session.NewRedisStore(rdb, a.cfg.Redis.TTL, maxTurns), nil
}
