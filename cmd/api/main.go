package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/z-wentao/tubenotes/pkg/analysis"
	"github.com/z-wentao/tubenotes/pkg/apify"
	"github.com/z-wentao/tubenotes/pkg/config"
	"github.com/z-wentao/tubenotes/pkg/output"
	"github.com/z-wentao/tubenotes/pkg/queue"
	"github.com/z-wentao/tubenotes/pkg/storage"
	"github.com/z-wentao/tubenotes/pkg/summarizer"
	"github.com/z-wentao/tubenotes/pkg/transcript"
	"github.com/z-wentao/tubenotes/pkg/worker"
	"github.com/z-wentao/tubenotes/pkg/youtube"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", slog.Any("error", err))
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg.Server)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	videos, err := youtube.NewDataClient(cfg.YouTube.APIKey, &http.Client{Timeout: cfg.YouTube.Timeout}, "")
	if err != nil {
		return err
	}
	captions := youtube.NewCaptionClient(&http.Client{Timeout: cfg.YouTube.Timeout})
	paid := apify.NewClient(apify.Config{
		Token:        cfg.Apify.APIKey,
		TaskID:       cfg.Apify.TaskID,
		PollInterval: cfg.Apify.PollInterval,
		WaitTimeout:  cfg.Apify.WaitTimeout,
	})

	acquirer := transcript.NewAcquirer(
		transcript.DefaultStrategies(transcript.Sources{Captions: captions, Scraper: captions, Paid: paid}),
		transcript.WithLogger(logger),
	)

	sum, err := summarizer.NewClient(summarizer.Config{
		APIKey:       cfg.OpenRouter.APIKey,
		BaseURL:      cfg.OpenRouter.BaseURL,
		DefaultModel: cfg.OpenRouter.DefaultModel,
		MaxTokens:    cfg.OpenRouter.MaxTokens,
		Temperature:  *cfg.OpenRouter.Temperature,
		Prompts:      cfg.Prompts,
		HTTPClient:   &http.Client{Timeout: cfg.OpenRouter.Timeout},
	})
	if err != nil {
		return err
	}

	files, err := output.NewWriter(cfg.Server.OutputDir)
	if err != nil {
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home dir: %w", err)
	}

	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	q, err := newQueue(cfg.Queue, cfg.Worker.PoolSize, logger)
	if err != nil {
		return err
	}
	defer q.Close()

	pipeline := analysis.New(videos, acquirer, sum, files, logger)

	w := worker.NewWorker(q, store, pipeline, worker.Config{
		PoolSize:   cfg.Worker.PoolSize,
		JobTimeout: cfg.Worker.JobTimeout,
	}, logger)
	w.Start()
	defer w.Stop()

	app := &App{
		pipeline: pipeline,
		store:    store,
		queue:    q,
		files:    files,
		saver:    output.FolderSaver{Home: home, MaxSize: cfg.Server.MaxSaveSize},
		status: apiStatus{
			YouTube:    videos.Configured(),
			OpenRouter: sum.Configured(),
			Apify:      paid.Configured(),
			Prompts:    sum.Prompts().IDs(),
			Chain:      strategyNames(acquirer),
		},
		logger: logger.With(slog.String("component", "http")),
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.String("addr", "http://localhost"+srv.Addr),
			slog.Bool("youtube_api", app.status.YouTube),
			slog.Bool("openrouter_api", app.status.OpenRouter),
			slog.Bool("apify_api", app.status.Apify),
			slog.String("queue", cfg.Queue.Type),
			slog.String("storage", cfg.Storage.Type),
			slog.Int("workers", cfg.Worker.PoolSize))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func strategyNames(a *transcript.Acquirer) []string {
	strategies := a.Strategies()
	names := make([]string, 0, len(strategies))
	for _, s := range strategies {
		names = append(names, s.Name)
	}
	return names
}

func newLogger(cfg config.ServerConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.LogFormat, "json") {
		gin.SetMode(gin.ReleaseMode)
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		s, err := storage.NewRedisJobStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := storage.NewPostgresJobStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "hybrid":
		cache, err := storage.NewRedisJobStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			return nil, err
		}
		db, err := storage.NewPostgresJobStore(ctx, cfg.Postgres.DSN)
		if err != nil {
			cache.Close()
			return nil, err
		}
		return storage.NewHybridJobStore(cache, db, logger), nil
	default:
		return storage.NewJobStore(), nil
	}
}

func newQueue(cfg config.QueueConfig, workers int, logger *slog.Logger) (queue.Queue, error) {
	if cfg.Type == "rabbitmq" {
		q, err := queue.NewRabbitMQQueue(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName, workers, logger)
		if err != nil {
			return nil, err
		}
		return q, nil
	}
	return queue.NewMemoryQueue(cfg.BufferSize), nil
}
