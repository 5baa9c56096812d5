package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	lode "github.com/lodekb/lode"
	"github.com/lodekb/lode/ingest"
	"github.com/lodekb/lode/internal/config"
	"github.com/lodekb/lode/observer"
	"github.com/lodekb/lode/provider/openai"
	"github.com/lodekb/lode/store/sqlite"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "lode",
	Short: "Hybrid-retrieval knowledge base over local documents",
	Long: `lode indexes a directory of documents (text, markdown, HTML, CSV,
PDF, DOCX, images) into a local SQLite knowledge base and answers
questions against it with hybrid dense+keyword retrieval and cited
LLM synthesis.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to lode.toml (default ./lode.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
}

// app holds everything a command needs, built once from config.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *sqlite.Store
	ingestor *ingest.Ingestor
	engine   *lode.Engine

	inst     *observer.Instruments
	shutdown func(context.Context) error
}

// The observe* helpers wrap a component with OTEL instrumentation when
// the observer is enabled and pass it through untouched otherwise.

func (a *app) observeProvider(p lode.Provider) lode.Provider {
	if a.inst == nil {
		return p
	}
	return observer.WrapProvider(p, a.cfg.LLM.Model, a.inst)
}

func (a *app) observeEmbedding(e lode.EmbeddingProvider) lode.EmbeddingProvider {
	if a.inst == nil {
		return e
	}
	return observer.WrapEmbedding(e, a.cfg.Embedding.Model, a.inst)
}

func (a *app) observeCaptioner(c lode.Captioner) lode.Captioner {
	if a.inst == nil {
		return c
	}
	return observer.WrapCaptioner(c, a.cfg.Vision.Model, a.inst)
}

func (a *app) observeRetriever(r lode.Retriever) lode.Retriever {
	if a.inst == nil {
		return r
	}
	return observer.WrapRetriever(r, a.inst)
}

// newApp wires the store, providers, ingestor, and engine from config.
// The caller must invoke Close when done.
func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load(configPath)

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	a := &app{cfg: cfg, logger: logger}

	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx, pricingOverrides(cfg.Observer.Pricing))
		if err != nil {
			return nil, fmt.Errorf("observer init: %w", err)
		}
		a.shutdown = shutdown
		a.inst = inst
	}

	a.store = sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	if err := a.store.Init(ctx); err != nil {
		return nil, fmt.Errorf("init database %s: %w", cfg.Database.Path, err)
	}

	embedding := lode.WithEmbeddingRetry(
		a.observeEmbedding(openai.NewEmbedding(
			cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions)),
		lode.RetryLogger(logger))
	if cfg.Embedding.RPM > 0 || cfg.Embedding.TPM > 0 {
		embedding = lode.WithEmbeddingRateLimit(embedding,
			lode.RPM(cfg.Embedding.RPM), lode.TPM(cfg.Embedding.TPM))
	}

	chat := lode.WithRetry(
		a.observeProvider(openai.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)),
		lode.RetryLogger(logger))
	if cfg.LLM.RPM > 0 || cfg.LLM.TPM > 0 {
		chat = lode.WithRateLimit(chat, lode.RPM(cfg.LLM.RPM), lode.TPM(cfg.LLM.TPM))
	}

	var captioner lode.Captioner
	if cfg.Vision.Enabled {
		captioner = lode.WithCaptionRetry(
			a.observeCaptioner(openai.NewProvider(cfg.Vision.APIKey, cfg.Vision.Model, cfg.Vision.BaseURL)),
			lode.RetryLogger(logger))
	}

	chunker := ingest.NewChunker(
		ingest.WithParentTokens(cfg.Chunking.ParentTokens),
		ingest.WithChildTokens(cfg.Chunking.ChildTokens),
		ingest.WithOverlapTokens(cfg.Chunking.OverlapTokens),
	)

	a.ingestor = ingest.NewIngestor(a.store, embedding,
		ingest.WithChunker(chunker),
		ingest.WithCaptioner(ingest.NewImageCaptioner(captioner, ingest.WithCaptionLogger(logger))),
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithBatchSize(cfg.Ingest.BatchSize),
		ingest.WithImageDir(cfg.Source.ImageDir),
		ingest.WithLogger(logger),
	)

	retrieverOpts := []lode.RetrieverOption{lode.WithRRFK(cfg.Retrieval.RRFK)}
	if cfg.Retrieval.MinScore > 0 {
		retrieverOpts = append(retrieverOpts, lode.WithMinRetrievalScore(float32(cfg.Retrieval.MinScore)))
	}
	retriever := a.observeRetriever(lode.NewHybridRetriever(a.store, embedding, retrieverOpts...))

	engineOpts := []lode.EngineOption{
		lode.WithTopK(cfg.Retrieval.TopK),
		lode.WithRetriever(retriever),
		lode.WithEngineLogger(logger),
	}
	if cfg.Retrieval.ExpandQueries > 0 {
		engineOpts = append(engineOpts, lode.WithQueryExpansion(cfg.Retrieval.ExpandQueries))
	}
	if cfg.Retrieval.ContextBudget > 0 {
		engineOpts = append(engineOpts,
			lode.WithExpander(lode.NewContextExpander(a.store, lode.WithContextBudget(cfg.Retrieval.ContextBudget))))
	}
	a.engine = lode.NewEngine(a.store, chat, embedding, engineOpts...)

	return a, nil
}

// Close releases the store and flushes telemetry.
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			a.logger.Warn("flush telemetry", "error", err)
		}
	}
}

func pricingOverrides(pricing map[string]config.ObserverPricing) map[string]observer.ModelPricing {
	if len(pricing) == 0 {
		return nil
	}
	out := make(map[string]observer.ModelPricing, len(pricing))
	for model, p := range pricing {
		out[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
	}
	return out
}
