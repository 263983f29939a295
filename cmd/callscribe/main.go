package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dimiro1/banner"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sjawhar/callscribe/internal/asr"
	"github.com/sjawhar/callscribe/internal/calls"
	"github.com/sjawhar/callscribe/internal/config"
	"github.com/sjawhar/callscribe/internal/gdrive"
	"github.com/sjawhar/callscribe/internal/ingest"
	"github.com/sjawhar/callscribe/internal/kv"
	"github.com/sjawhar/callscribe/internal/llm"
	"github.com/sjawhar/callscribe/internal/logging"
	"github.com/sjawhar/callscribe/internal/processing"
	"github.com/sjawhar/callscribe/internal/server"
	"github.com/sjawhar/callscribe/internal/session"
	"github.com/sjawhar/callscribe/internal/storage"
	"github.com/sjawhar/callscribe/internal/summary"
)

const version = "dev"

const bannerTemplate = `{{ .Title "callscribe" "" 0 }}
version ` + version + `   {{ .Now "2006-01-02 15:04:05" }}

`

func main() {
	configPath := flag.String("config", "callscribe.yaml", "path to the YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	quiet := flag.Bool("quiet", false, "skip the startup banner")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	if !*quiet {
		banner.Init(os.Stdout, true, true, bytes.NewBufferString(bannerTemplate))
	}

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn(w)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("callscribe exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, err := storage.NewSQLiteStore(cfg.Archive.DBPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = archive.Close() }()

	if err := prepareArchive(ctx, cfg.Archive, store, archive, logger); err != nil {
		return err
	}

	transcriber, err := asr.New(cfg, logging.NewComponentLogger(logger, "asr"))
	if err != nil {
		return err
	}

	summarizer, err := newSummarizer(cfg, logging.NewComponentLogger(logger, "summary"))
	if err != nil {
		return err
	}

	hub := server.NewHub(logging.NewComponentLogger(logger, "hub"))
	sessions := session.New(store)
	lock := session.NewLock(store, cfg.Workers.ParsedLockTTL())
	queue := session.NewQueue(store)

	processor := processing.NewProcessor(sessions, lock, summarizer, archive,
		logging.NewComponentLogger(logger, "processor"), processing.WithNotifier(hub))

	pool := processing.NewPool(queue, processor, processing.PoolConfig{
		Workers:        cfg.Workers.Count,
		Throttle:       cfg.Workers.ParsedThrottleInterval(),
		PopTimeout:     cfg.Workers.ParsedPopTimeout(),
		RequeueBackoff: cfg.Workers.ParsedRequeueBackoff(),
	}, logging.NewComponentLogger(logger, "workers"))

	finalizer := processing.NewFinalizer(sessions, lock, processor, processing.FinalizerConfig{
		Deadline:     cfg.Finalizer.ParsedDeadline(),
		PollInterval: cfg.Finalizer.ParsedPollInterval(),
	}, logging.NewComponentLogger(logger, "finalizer"))

	journal := storage.NewWriter(cfg.Archive.JournalDir)
	committer := calls.NewCommitter(sessions, archive, logging.NewComponentLogger(logger, "committer"),
		calls.WithJournal(journal), calls.WithEvents(hub))
	service := calls.NewService(sessions, finalizer, committer, archive, pool, logging.NewComponentLogger(logger, "calls"))

	ingester := ingest.NewIngester(sessions, queue, logging.NewComponentLogger(logger, "ingest"))
	gateway := ingest.NewGateway(ingester, transcriber, ingest.Config{
		WindowSamples: cfg.Ingest.WindowSamples(),
		Language:      cfg.Ingest.Language,
		IdleFlush:     cfg.Ingest.ParsedIdleFlush(),
	}, logging.NewComponentLogger(logger, "gateway"), ingest.WithBroadcaster(hub))

	pool.Start(ctx)

	httpServer := server.New(cfg.ListenAddr, server.Deps{
		Calls:   service,
		Hub:     hub,
		Gateway: gateway,
		Logger:  logging.NewComponentLogger(logger, "http"),
	})
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if cfg.GDrive.FolderID != "" {
		syncer, err := gdrive.NewSyncer(ctx, cfg.GDrive.CredentialsFile, cfg.GDrive.FolderID, logging.NewComponentLogger(logger, "gdrive"))
		if err != nil {
			logger.Warn("gdrive sync disabled", "error", err)
		} else {
			go syncer.Run(ctx, cfg.GDrive.ParsedInterval(), journal.CurrentPath)
		}
	}

	logger.Info("callscribe listening",
		"addr", cfg.ListenAddr,
		"store", cfg.Store,
		"workers", cfg.Workers.Count,
		"asr", cfg.ASR.Provider,
		"model", cfg.Summarization.Model,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case runErr = <-serveErr:
		logger.Error("http server failed", "error", runErr)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "error", err)
	}
	if !pool.Stop(cfg.Workers.ParsedLockTTL()) {
		logger.Warn("workers did not stop in time")
	}

	return runErr
}

// newStore connects the session store named by cfg.Store. The returned
// closer is always non-nil.
func newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (kv.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-process session store, state is lost on restart and not shared between instances")
		return kv.NewMemory(), func() {}, nil
	}

	store := kv.NewRedis(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.RedisPassword,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("connect redis at %s: %w", cfg.Redis.Addr, err)
	}
	return store, func() { _ = store.Close() }, nil
}

func prepareArchive(ctx context.Context, cfg config.Archive, store kv.Store, archive *storage.SQLiteStore, logger *slog.Logger) error {
	var seed *storage.Seed
	if cfg.SeedFile != "" {
		s, err := storage.LoadSeed(cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		seed = &s
	}

	if cfg.ResetOnStart {
		logger.Warn("reset on start: wiping live calls and archive")
		return calls.Reset(ctx, store, archive, seed)
	}
	if seed != nil {
		if err := archive.ApplySeed(ctx, *seed); err != nil {
			return fmt.Errorf("apply seed: %w", err)
		}
	}
	return nil
}

func newSummarizer(cfg config.Config, logger *slog.Logger) (summary.Summarizer, error) {
	provider := cfg.SummarizationProvider()
	if provider == config.ProviderStub || cfg.LLMAPIKey(provider) == "" {
		logger.Info("using stub summarizer")
		return summary.Stub{}, nil
	}

	factory := func(provider, model string) (llm.Client, error) {
		opts := []llm.Option{
			llm.WithMaxTokens(cfg.Summarization.MaxTokens),
			llm.WithTemperature(cfg.Summarization.Temperature),
		}
		if cfg.Summarization.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.Summarization.BaseURL))
		}
		return llm.NewClient(provider, cfg.LLMAPIKey(provider), model, opts...)
	}

	s, err := summary.NewLLM(cfg.Summarization, factory, logger)
	if err != nil {
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	return s, nil
}
