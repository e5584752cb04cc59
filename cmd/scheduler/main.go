package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/reddit-agent/internal/accounts"
	"github.com/reddit-agent/internal/agent/analytics"
	"github.com/reddit-agent/internal/agent/generator"
	"github.com/reddit-agent/internal/agent/health"
	"github.com/reddit-agent/internal/agent/miner"
	"github.com/reddit-agent/internal/agent/publisher"
	"github.com/reddit-agent/internal/ai"
	"github.com/reddit-agent/internal/config"
	"github.com/reddit-agent/internal/learning"
	redditapi "github.com/reddit-agent/internal/reddit"
	"github.com/reddit-agent/internal/scoring"
	"github.com/reddit-agent/internal/storage/sqlite"
	"github.com/reddit-agent/internal/tracker"
	"github.com/reddit-agent/pkg/logger"
	"github.com/reddit-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "reddit-scheduler",
		Short: "Background scheduler for the Reddit engagement agent",
		Long: `Runs the mining, publishing, health, analytics, and learning sweeps
on cron schedules. Run this daemon as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting Reddit Agent Scheduler")

	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	go startHealthServer()

	limiter := ratelimit.NewDefaultLimiter()
	factory := redditapi.NewFactory(cfg.Reddit, limiter, log)
	aiClient := ai.NewClient(cfg.Anthropic, limiter, log)

	var states redditapi.StateStore
	if cfg.Redis.Enabled {
		states = redditapi.NewRedisStateStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis OAuth state store")
	} else {
		states = redditapi.NewMemoryStateStore()
	}
	oauthManager := redditapi.NewOAuthManager(cfg.Reddit, states, log)

	selector := accounts.NewSelector(log)
	stateMachine := accounts.NewStateMachine(log)

	var recorder publisher.Recorder
	sheetsTracker, err := tracker.NewSheetsTracker(cfg.Tracker, log)
	if err != nil {
		log.Warn().Err(err).Msg("Sheets tracker unavailable, publish log disabled")
	} else if sheetsTracker != nil {
		if err := sheetsTracker.InitializeSheet(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracking sheet")
		} else {
			recorder = sheetsTracker
		}
	}

	predictor := scoring.HeuristicPredictor{}
	minerAgent := miner.NewAgent(
		func(ctx context.Context) miner.Lister { return factory.ReadOnly(ctx) },
		repo, predictor, cfg.Mining, log,
	)
	generatorAgent := generator.NewAgent(aiClient, repo, cfg.Publishing, log)
	publisherAgent := publisher.NewAgent(
		func(ctx context.Context, refreshToken string) publisher.Commenter {
			return factory.ForAccount(ctx, refreshToken)
		},
		repo, selector, stateMachine, recorder, cfg.Accounts, log,
	)
	healthAgent := health.NewAgent(
		func(ctx context.Context, refreshToken string) health.Prober {
			return factory.ForAccount(ctx, refreshToken)
		},
		oauthManager, repo, stateMachine, cfg.Accounts, log,
	)
	analyticsAgent := analytics.NewAgent(
		func(ctx context.Context) analytics.Fetcher { return factory.ReadOnly(ctx) },
		repo, log,
	)
	aggregator := learning.NewAggregator(repo, cfg.Learning, log)

	c := cron.New(cron.WithLogger(cronLogger{log}))

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{"mining", cfg.Scheduler.MiningCron, func(ctx context.Context) {
			result, err := minerAgent.Run(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Scheduled mining failed")
				return
			}
			log.Info().
				Int("opportunities_saved", result.OpportunitiesSaved).
				Int("errors", len(result.Errors)).
				Msg("Scheduled mining completed")
		}},
		{"expiry", cfg.Scheduler.ExpiryCron, func(ctx context.Context) {
			if _, err := minerAgent.ExpireStale(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled expiry sweep failed")
			}
		}},
		{"publish", cfg.Scheduler.PublishCron, func(ctx context.Context) {
			generated, genErrs := generatorAgent.RunBatch(ctx, 10)
			for _, e := range genErrs {
				log.Error().Err(e).Msg("Generation error")
			}
			published, pubErrs := publisherAgent.RunBatch(ctx, 10)
			for _, e := range pubErrs {
				log.Error().Err(e).Msg("Publish error")
			}
			log.Info().
				Int("generated", generated).
				Int("published", published).
				Msg("Scheduled publish completed")
		}},
		{"health", cfg.Scheduler.HealthCron, func(ctx context.Context) {
			if _, err := healthAgent.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled health sweep failed")
			}
		}},
		{"recovery", cfg.Scheduler.RecoveryCron, func(ctx context.Context) {
			recovered, err := healthAgent.RunRecovery(ctx)
			if err != nil {
				log.Error().Err(err).Msg("Scheduled recovery failed")
				return
			}
			if recovered > 0 {
				log.Info().Int("recovered", recovered).Msg("Accounts recovered")
			}
		}},
		{"daily_reset", cfg.Scheduler.DailyResetCron, func(ctx context.Context) {
			if _, err := healthAgent.ResetDailyLimits(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled daily reset failed")
			}
		}},
		{"analytics", cfg.Scheduler.AnalyticsCron, func(ctx context.Context) {
			if _, err := analyticsAgent.Run(ctx, 100); err != nil {
				log.Error().Err(err).Msg("Scheduled analytics sweep failed")
			}
		}},
		{"learning", cfg.Scheduler.LearningCron, func(ctx context.Context) {
			since := time.Now().UTC().Add(-24 * time.Hour)
			if _, err := aggregator.Run(ctx, since); err != nil {
				log.Error().Err(err).Msg("Scheduled learning aggregation failed")
			}
		}},
		{"decay", cfg.Scheduler.DecayCron, func(ctx context.Context) {
			if _, err := aggregator.DecayPass(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled decay pass failed")
			}
		}},
	}

	for _, job := range jobs {
		job := job
		_, err := c.AddFunc(job.spec, func() {
			log.Info().Str("job", job.name).Msg("Running scheduled job")
			job.run(context.Background())
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		log.Info().Str("job", job.name).Str("cron", job.spec).Msg("Job scheduled")
	}

	c.Start()
	log.Info().Msg("Scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler")
	c.Stop()

	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}

// startHealthServer starts a simple HTTP server for liveness checks
func startHealthServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Reddit Agent Scheduler"))
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
