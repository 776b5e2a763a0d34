// cmd/publisher/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"finpost-workers/internal/alert"
	"finpost-workers/internal/audit"
	"finpost-workers/internal/channels"
	"finpost-workers/internal/common/aws"
	"finpost-workers/internal/common/config"
	"finpost-workers/internal/common/database"
	commonhttp "finpost-workers/internal/common/http"
	"finpost-workers/internal/common/logger"
	"finpost-workers/internal/common/observability"
	"finpost-workers/internal/content"
	"finpost-workers/internal/market"
	"finpost-workers/internal/payments"
	"finpost-workers/internal/publisher"
	"finpost-workers/internal/queue"
	"finpost-workers/internal/ratelimit"
	"finpost-workers/internal/subscription"
	"finpost-workers/internal/webhook"
	"finpost-workers/pkg/plans"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting publisher...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("publisher")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional, audit indexing degrades without it) ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 5, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Warn("elasticsearch unavailable, audit search indexing disabled", zap.Error(err))
		esClient = nil
	} else {
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init AWS clients ---
	var sesClient *aws.SESClient
	if cfg.Integrations.AWS.SES.Enabled {
		sesClient, err = aws.NewSESClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
	}

	var snsClient *aws.SNSClient
	if cfg.Integrations.AWS.SNS.Enabled {
		snsClient, err = aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
	}

	// --- Plan catalog ---
	catalog, err := plans.Load(cfg.Billing.PlanCatalogPath)
	if err != nil {
		zapLog.Fatal("plan catalog load failed", zap.Error(err))
	}
	zapLog.Info("Plan catalog loaded", zap.Int("plans", catalog.Len()))

	// --- Domain components ---
	calendar, err := market.NewCalendar(cfg.MarketHours)
	if err != nil {
		zapLog.Fatal("market calendar failed", zap.Error(err))
	}

	limiter := ratelimit.NewLimiter(redis.Client, cfg.Cooldowns, log)
	queueStore := queue.NewStore(pg.DB, log)

	var recorder *audit.Recorder
	if esClient != nil {
		recorder = audit.NewRecorder(pg.DB, esClient.Client, log)
	} else {
		recorder = audit.NewRecorder(pg.DB, nil, log)
	}

	var notifier *alert.Notifier
	if snsClient != nil {
		notifier = alert.NewNotifier(snsClient, cfg.Integrations.AWS.SNS.TopicARN, log)
	} else {
		notifier = alert.NewNotifier(nil, "", log)
	}

	subStore := subscription.NewStore(pg.DB, log)
	subs := subscription.NewManager(subStore, catalog, cfg.Billing.TrialDays, log)

	gateway, err := payments.NewGateway(
		cfg.Billing.Providers.Stripe.WebhookSecret,
		cfg.Billing.Providers.Razorpay.WebhookSecret,
		cfg.Billing.TaxRates,
		log,
	)
	if err != nil {
		zapLog.Fatal("payment gateway failed", zap.Error(err))
	}

	// --- Channel registry ---
	httpClient := commonhttp.NewClient(10 * time.Second)
	registry := channels.NewRegistry()
	var activePlatforms []queue.Platform
	for name, chCfg := range cfg.Publisher.Channels {
		if !chCfg.Enabled {
			continue
		}
		platform := queue.Platform(name)
		if !queue.ValidPlatform(platform) {
			zapLog.Warn("unknown platform in config, skipping", zap.String("platform", name))
			continue
		}
		sender, err := buildSender(platform, chCfg, httpClient, sesClient, cfg)
		if err != nil {
			zapLog.Fatal("channel setup failed", zap.String("platform", name), zap.Error(err))
		}
		registry.Register(platform, sender)
		activePlatforms = append(activePlatforms, platform)
	}
	zapLog.Info("Channels registered", zap.Int("count", len(activePlatforms)))

	// --- Publisher worker ---
	worker := publisher.NewWorker(publisher.Options{
		Calendar:      calendar,
		Limiter:       limiter,
		Store:         queueStore,
		Generator:     mustGenerator(zapLog),
		Registry:      registry,
		Platforms:     activePlatforms,
		Audit:         recorder,
		Alerts:        notifier,
		Subscriptions: subs,
		Observability: obs,
		Logger:        log,
		TickInterval:  time.Duration(cfg.Publisher.TickSeconds) * time.Second,
		MaxPerTick:    cfg.Publisher.MaxItemsPerTick,
	})
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	// --- Webhook, Health & Metrics Server ---
	mux := http.NewServeMux()
	webhook.NewHandler(gateway, subs, notifier, log).Register(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pg.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		zapLog.Info("HTTP server listening on :8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()

	zapLog.Info("Shutdown signal received, stopping publisher...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	// Let an in-flight tick land its deliveries before the process exits.
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		zapLog.Warn("Publisher worker did not stop within shutdown window")
	}

	zapLog.Info("Publisher stopped gracefully")
}

func mustGenerator(log *zap.Logger) *content.TemplateGenerator {
	gen, err := content.NewTemplateGenerator()
	if err != nil {
		log.Fatal("content generator failed", zap.Error(err))
	}
	return gen
}

func buildSender(platform queue.Platform, chCfg config.ChannelConfig, client *commonhttp.Client, ses *aws.SESClient, cfg *config.Config) (channels.Sender, error) {
	switch platform {
	case queue.PlatformTelegram:
		return channels.NewTelegramSender(client, chCfg), nil
	case queue.PlatformSlack:
		return channels.NewSlackSender(client, chCfg), nil
	case queue.PlatformLinkedIn, queue.PlatformTwitter:
		return channels.NewRestSender(client, string(platform), chCfg), nil
	case queue.PlatformEmail:
		if ses == nil {
			return nil, fmt.Errorf("email channel enabled but SES is not")
		}
		return channels.NewEmailSender(ses, cfg.Integrations), nil
	default:
		return nil, fmt.Errorf("no sender for platform %s", platform)
	}
}
