package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"viammo.app/tripscan/common/id"
	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/common/otel"
	"viammo.app/tripscan/core/config"
	"viammo.app/tripscan/internal/mailbox"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/queue"
	"viammo.app/tripscan/internal/taskstore"
	"viammo.app/tripscan/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel, cfg.Env)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "tripscan worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	store, closeStore, err := taskstore.Open(ctx, cfg, redisClient)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open task store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	fast, err := llm.New(llmConfig(cfg.ClassifierLLM))
	if err != nil {
		slog.ErrorContext(ctx, "failed to create classifier llm client", "error", err)
		os.Exit(1)
	}
	reasoning, err := llm.New(llmConfig(cfg.InsightsLLM))
	if err != nil {
		slog.ErrorContext(ctx, "failed to create insights llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm clients ready", "fast_model", fast.Model(), "reasoning_model", reasoning.Model())

	keywords, err := mailbox.KeywordsOrDefault(cfg.Scan.KeywordsFile)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load search keywords", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1, // A scan saturates its LLM budget on its own
		Block:        5 * time.Second,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	processor := worker.NewScanProcessor(worker.ScanProcessorDeps{
		Store:       store,
		Credentials: taskstore.NewRedisCredentials(redisClient),
		Gateways:    gatewayFactory(cfg.Google),
		Sinks: func(scanID int64) progress.Sink {
			return progress.Multi(
				progress.NewStoreSink(store, scanID),
				progress.NewStreamSink(redisClient, scanID, cfg.Pipeline.ProgressStreamMax, cfg.TaskStore.TTL),
				progress.LogSink{},
			)
		},
		Fast:      fast,
		Reasoning: reasoning,
	}, cfg.Scan, keywords, cfg.Pipeline.CredentialTTL)

	w := worker.New(consumer, processor, worker.Config{
		MaxAttempts: cfg.Pipeline.MaxDeliveryAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   30 * time.Minute,
		Interval:  time.Minute,
		BatchSize: 10,
	}, consumer, w.Handle)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick)
	reclaimer.Stop()

	// Stop worker (may be in the middle of a scan)
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

func llmConfig(c config.LLMConfig) llm.Config {
	return llm.Config{
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		MaxTokens:         c.MaxTokens,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		MaxRetries:        c.MaxRetries,
	}
}

// gatewayFactory refreshes expired tokens when the OAuth client is configured.
func gatewayFactory(google config.GoogleConfig) worker.GatewayFactory {
	if !google.Enabled() {
		return worker.GmailGateways
	}
	oauthCfg := mailbox.NewOAuthConfig(google.ClientID, google.ClientSecret, google.RedirectURL)
	return func(ctx context.Context, tok *oauth2.Token) (mailbox.Gateway, error) {
		return mailbox.NewGmailGateway(ctx, oauthCfg.TokenSource(ctx, tok))
	}
}
