// Pasokhd is a retrieval-augmented question answering daemon for
// Iranian legal documents.
//
// The binary starts an HTTP server exposing POST /api/v1/ask, backed by
// Qdrant for retrieval, an embedding service, optional reranking, and
// tiered OpenAI-compatible generation endpoints.
//
// Configuration is loaded from an optional YAML file plus environment
// variables. See internal/config for the full schema.
//
// Usage:
//
//	# Start with defaults
//	pasokhd
//
//	# Configure via file and environment
//	pasokhd -config config.yaml
//	SERVER_PORT=8090 QDRANT_HOST=qdrant.internal pasokhd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yektalaw/pasokhd/internal/answer"
	"github.com/yektalaw/pasokhd/internal/cache"
	"github.com/yektalaw/pasokhd/internal/classifier"
	"github.com/yektalaw/pasokhd/internal/config"
	"github.com/yektalaw/pasokhd/internal/embeddings"
	apihttp "github.com/yektalaw/pasokhd/internal/http"
	"github.com/yektalaw/pasokhd/internal/llm"
	"github.com/yektalaw/pasokhd/internal/logging"
	"github.com/yektalaw/pasokhd/internal/memory"
	"github.com/yektalaw/pasokhd/internal/pipeline"
	"github.com/yektalaw/pasokhd/internal/reranker"
	"github.com/yektalaw/pasokhd/internal/rewriter"
	"github.com/yektalaw/pasokhd/internal/telemetry"
	"github.com/yektalaw/pasokhd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pasokhd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run starts pasokhd and blocks until the context is cancelled.
func run(ctx context.Context, configPath string) error {
	// .env is optional; environment variables win regardless.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting pasokhd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("collection", cfg.Qdrant.Collection))

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:         cfg.Telemetry.Enabled,
		Endpoint:        cfg.Telemetry.Endpoint,
		Protocol:        cfg.Telemetry.Protocol,
		Insecure:        cfg.Telemetry.Insecure,
		ServiceName:     "pasokhd",
		ServiceVersion:  version,
		SamplingRate:    cfg.Telemetry.SamplingRate,
		MetricsEnabled:  cfg.Telemetry.MetricsEnabled,
		ExportInterval:  cfg.Telemetry.ExportInterval,
		ShutdownTimeout: cfg.Telemetry.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn(context.Background(), "telemetry shutdown", zap.Error(err))
		}
	}()

	store, err := vectorstore.NewStore(vectorstore.Config{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		UseTLS:         cfg.Qdrant.UseTLS,
		APIKey:         cfg.Qdrant.APIKey,
		Collection:     cfg.Qdrant.Collection,
		Slots:          vectorstore.SlotSet(cfg.Qdrant.Slots),
		ScoreThreshold: cfg.Qdrant.ScoreThreshold,
		PlainThreshold: cfg.Qdrant.PlainThreshold,
		MetadataBoost:  cfg.Qdrant.MetadataBoost,
		MaxRetries:     cfg.Qdrant.MaxRetries,
		RetryBackoff:   cfg.Qdrant.RetryBackoff.Duration(),
		SearchTimeout:  cfg.Qdrant.SearchTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensuring collection: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
		Timeout: cfg.Embeddings.Timeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	// An unset rerank base URL disables reranking; the nil check must
	// happen on the concrete type before interface assignment.
	var scorer reranker.Scorer
	if httpScorer := reranker.NewHTTPScorer(reranker.HTTPScorerConfig{
		BaseURL: cfg.Rerank.BaseURL,
		Model:   cfg.Rerank.Model,
		APIKey:  cfg.Rerank.APIKey,
		Timeout: cfg.Rerank.Timeout.Duration(),
	}); httpScorer != nil {
		scorer = httpScorer
	}
	rerankSvc := reranker.NewService(scorer, cfg.Rerank.ScoreThreshold, logger.Named("reranker"))

	provider, err := initProvider(cfg)
	if err != nil {
		return fmt.Errorf("creating generation providers: %w", err)
	}

	responseCache, closeCache, err := initCache(cfg)
	if err != nil {
		return fmt.Errorf("creating response cache: %w", err)
	}
	defer closeCache()

	memStore, closeMemory, err := initMemoryStore(cfg)
	if err != nil {
		return fmt.Errorf("creating conversation memory: %w", err)
	}
	defer closeMemory()

	refresher := memory.NewRefresher(memStore, provider, logger.Named("memory"), memory.RefresherConfig{
		RegenThreshold: cfg.Memory.RefreshThreshold,
		SummaryCap:     cfg.Memory.SummaryMaxChars,
		QueueSize:      cfg.Memory.QueueSize,
	})
	defer refresher.Stop()

	generator, err := answer.NewGenerator(provider, logger.Named("answer"))
	if err != nil {
		return fmt.Errorf("creating answer generator: %w", err)
	}

	pipe, err := pipeline.New(pipeline.Deps{
		Classifier: classifier.New(provider, logger.Named("classifier")),
		Rewriter:   rewriter.New(),
		Embedder:   embedder,
		Searcher:   store,
		Reranker:   rerankSvc,
		Generator:  generator,
		Cache:      responseCache,
		Memory:     memStore,
		Refresher:  refresher,
		Logger:     logger.Named("pipeline"),
	}, pipeline.Config{
		DefaultLanguage:  cfg.Pipeline.DefaultLanguage,
		DefaultMaxChunks: cfg.Pipeline.DefaultMaxChunks,
		MaxChunksCap:     cfg.Pipeline.MaxChunksCap,
		ShortTermWindow:  cfg.Memory.ShortTermWindow,
		ClassifyTimeout:  cfg.Pipeline.ClassifyTimeout.Duration(),
		RequestTimeout:   cfg.Pipeline.RequestTimeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	server, err := apihttp.NewServer(pipe, logger.Named("http"), &apihttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// initLogger builds the structured logger from config.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}

	return logging.NewLogger(&logging.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Fields: map[string]string{"service": "pasokhd"},
	})
}

// initProvider builds the tiered generation provider.
func initProvider(cfg *config.Config) (llm.Provider, error) {
	primary, err := llm.NewClient(llm.ClientConfig{
		Name:        "primary",
		BaseURL:     cfg.LLM.Primary.BaseURL,
		Model:       cfg.LLM.Primary.Model,
		APIKey:      cfg.LLM.Primary.APIKey,
		MaxTokens:   cfg.LLM.Primary.MaxTokens,
		Temperature: cfg.LLM.Primary.Temperature,
		Timeout:     cfg.LLM.Primary.Timeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}

	providers := []llm.Provider{primary}
	if cfg.LLM.Fallback.BaseURL != "" {
		fallback, err := llm.NewClient(llm.ClientConfig{
			Name:        "fallback",
			BaseURL:     cfg.LLM.Fallback.BaseURL,
			Model:       cfg.LLM.Fallback.Model,
			APIKey:      cfg.LLM.Fallback.APIKey,
			MaxTokens:   cfg.LLM.Fallback.MaxTokens,
			Temperature: cfg.LLM.Fallback.Temperature,
			Timeout:     cfg.LLM.Fallback.Timeout.Duration(),
		})
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		providers = append(providers, fallback)
	}

	return llm.NewTiered(providers...)
}

// initCache builds the response cache backend.
func initCache(cfg *config.Config) (cache.Cache, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password.Value(),
			DB:       cfg.Cache.Redis.DB,
		})
		return cache.NewRedisCache(client, cfg.Cache.TTL.Duration()), func() { _ = client.Close() }, nil
	default:
		c := cache.NewInMemoryCache(cfg.Cache.TTL.Duration())
		return c, c.Close, nil
	}
}

// initMemoryStore builds the conversation memory backend.
func initMemoryStore(cfg *config.Config) (memory.Store, func(), error) {
	switch cfg.Memory.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Memory.Redis.Addr,
			Password: cfg.Memory.Redis.Password.Value(),
			DB:       cfg.Memory.Redis.DB,
		})
		return memory.NewRedisStore(client), func() { _ = client.Close() }, nil
	default:
		return memory.NewInMemoryStore(), func() {}, nil
	}
}
