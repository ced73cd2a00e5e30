// Command workflow-server runs the orchestration service: the submit/poll
// HTTP facade, the stage executors behind it, and their collaborators.
package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"insight-workflows/internal/api"
	"insight-workflows/internal/common/aws"
	"insight-workflows/internal/common/config"
	"insight-workflows/internal/common/database"
	"insight-workflows/internal/common/logger"
	"insight-workflows/internal/common/observability"
	"insight-workflows/internal/common/reasoning"
	"insight-workflows/internal/common/registry"
	"insight-workflows/internal/dataquery"
	"insight-workflows/internal/engine/debate"
	"insight-workflows/internal/engine/kt"
	"insight-workflows/internal/executor"
	"insight-workflows/internal/jobstore"
	"insight-workflows/internal/models"
	"insight-workflows/internal/situations"
	"insight-workflows/internal/stages/deepanalysis"
	"insight-workflows/internal/stages/situationscan"
	"insight-workflows/internal/stages/solutionfinding"
	"insight-workflows/pkg/personas"
)

const connectAttempts = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("load config: %v", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := logger.NewZapAdapter(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	var tracing *observability.Tracing
	if cfg.Observability.TracingEnabled {
		tracing, err = observability.NewTracing(cfg.App.Name, cfg.Observability.JaegerEndpoint)
		if err != nil {
			log.Error("tracing init failed, continuing without export", map[string]interface{}{"error": err.Error()})
		} else {
			defer tracing.Shutdown()
		}
	}

	serverOpts := []api.Option{
		api.WithMaxStatusWait(config.GetDuration(cfg.Server.MaxStatusWait)),
	}

	store, storeOpts, err := buildJobStore(ctx, cfg, log)
	if err != nil {
		log.Error("job store init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	serverOpts = append(serverOpts, storeOpts...)

	querier, queryOpts, err := buildQuerier(ctx, cfg, log)
	if err != nil {
		log.Error("data query init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	serverOpts = append(serverOpts, queryOpts...)

	reg := registry.NewHTTPClient(cfg.Registry.BaseURL, cfg.Registry.APIKey, config.GetDuration(cfg.Registry.Timeout))

	provider, err := buildProvider(ctx, cfg, log)
	if err != nil {
		log.Error("reasoning provider init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	roster := personas.DefaultRoster()
	if cfg.Debate.RosterPath != "" {
		roster, err = personas.LoadRoster(cfg.Debate.RosterPath)
		if err != nil {
			log.Error("persona roster load failed", map[string]interface{}{
				"path":  cfg.Debate.RosterPath,
				"error": err.Error(),
			})
			os.Exit(1)
		}
	}

	ktOpts := []kt.Option{
		kt.WithTopN(cfg.Analysis.TopN),
		kt.WithMaxDimensions(cfg.Analysis.MaxDimensions),
	}
	if len(cfg.Analysis.ExcludedKeys) > 0 {
		ktOpts = append(ktOpts, kt.WithExcludedKeys(cfg.Analysis.ExcludedKeys))
	}
	ktEngine := kt.New(querier, log, ktOpts...)

	debateEngine := debate.New(provider, roster, log,
		debate.WithWeights(debate.Weights{
			Impact: cfg.Debate.ImpactWeight,
			Cost:   cfg.Debate.CostWeight,
			Risk:   cfg.Debate.RiskWeight,
		}),
		debate.WithSubStageTimeout(config.GetDuration(cfg.Reasoning.Timeout)),
		debate.WithGeneration(cfg.Reasoning.MaxTokens, cfg.Reasoning.Temperature),
		debate.WithTracing(tracing),
	)

	situationStore := situations.NewStore()
	notifier, err := buildNotifier(ctx, cfg, log)
	if err != nil {
		log.Error("notifier init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	actions := situations.NewActions(situationStore, notifier, config.GetDuration(cfg.Situations.DefaultSnooze), log)

	exec := executor.New(store, log, executor.WithTracing(tracing), executor.WithObservability(obs))
	validators := make(map[models.StageType]api.Validator)

	thresholds := situationscan.Thresholds{
		CriticalPct: cfg.Situations.CriticalPct,
		HighPct:     cfg.Situations.HighPct,
		MediumPct:   cfg.Situations.MediumPct,
	}

	if cfg.Stages.SituationScan.Enabled {
		handler := situationscan.NewHandler(reg, querier, situationStore, thresholds, log)
		exec.Register(models.StageSituationScan, handler, config.GetDuration(cfg.Stages.SituationScan.Timeout))
		validators[models.StageSituationScan] = situationscan.Validate
	}
	if cfg.Stages.DeepAnalysis.Enabled {
		handler := deepanalysis.NewHandler(reg, querier, ktEngine, log)
		exec.Register(models.StageDeepAnalysis, handler, config.GetDuration(cfg.Stages.DeepAnalysis.Timeout))
		validators[models.StageDeepAnalysis] = deepanalysis.Validate
	}
	if cfg.Stages.SolutionFinding.Enabled {
		handler := solutionfinding.NewHandler(reg, debateEngine, log)
		exec.Register(models.StageSolutionFinding, handler, config.GetDuration(cfg.Stages.SolutionFinding.Timeout))
		validators[models.StageSolutionFinding] = solutionfinding.Validate
	}

	server := api.NewServer(exec, store, situationStore, actions, validators, log, serverOpts...)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("server listening", map[string]interface{}{"addr": addr})
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
}

func buildJobStore(ctx context.Context, cfg *config.Config, log logger.Logger) (jobstore.Store, []api.Option, error) {
	if cfg.JobStore.Backend != "redis" {
		return jobstore.NewMemoryStore(), nil, nil
	}

	var client *database.RedisClient
	err := retryWithBackoff(log, "redis", connectAttempts, func() error {
		var err error
		client, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return client.Ping(ctx)
	})
	if err != nil {
		return nil, nil, err
	}

	store := jobstore.NewRedisStore(client.GetClient(), config.GetDuration(cfg.JobStore.RetentionTTL))
	check := api.WithReadinessCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx)
	})
	return store, []api.Option{check}, nil
}

func buildQuerier(ctx context.Context, cfg *config.Config, log logger.Logger) (dataquery.Querier, []api.Option, error) {
	timeout := config.GetDuration(cfg.DataQuery.Timeout)

	if cfg.DataQuery.Backend == "elasticsearch" {
		client, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, nil, err
		}
		querier := dataquery.NewElasticsearchQuerier(client.Client, cfg.DataQuery.TimestampColumn, timeout)
		check := api.WithReadinessCheck("elasticsearch", func(context.Context) error {
			return client.Ping()
		})
		return querier, []api.Option{check}, nil
	}

	var client *database.PostgresClient
	err := retryWithBackoff(log, "postgres", connectAttempts, func() error {
		var err error
		client, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return client.Ping(ctx)
	})
	if err != nil {
		return nil, nil, err
	}

	querier := dataquery.NewPostgresQuerier(client.DB, cfg.DataQuery.TimestampColumn, timeout)
	check := api.WithReadinessCheck("postgres", func(ctx context.Context) error {
		return client.Ping(ctx)
	})
	return querier, []api.Option{check}, nil
}

func buildProvider(ctx context.Context, cfg *config.Config, log logger.Logger) (reasoning.Provider, error) {
	if cfg.Reasoning.Provider == "gemini" {
		return reasoning.NewGeminiProvider(ctx, cfg.Reasoning.APIKey, cfg.Reasoning.Model)
	}
	return reasoning.NewHTTPProvider(reasoning.HTTPConfig{
		BaseURL:    cfg.Reasoning.BaseURL,
		APIKey:     cfg.Reasoning.APIKey,
		MaxRetries: cfg.Reasoning.MaxRetries,
	}, log), nil
}

func buildNotifier(ctx context.Context, cfg *config.Config, log logger.Logger) (situations.Notifier, error) {
	if !cfg.Notifications.Email.Enabled && !cfg.Notifications.SMS.Enabled {
		return situations.NoopNotifier{}, nil
	}

	sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		return nil, err
	}
	snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		return nil, err
	}
	return situations.NewAWSNotifier(sesClient, snsClient, cfg.Notifications, log), nil
}

// retryWithBackoff retries a connection attempt with doubling delays so a
// dependency that is still starting does not kill the process.
func retryWithBackoff(log logger.Logger, name string, attempts int, fn func() error) error {
	delay := time.Second
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Warn("connection attempt failed", map[string]interface{}{
			"dependency": name,
			"attempt":    i,
			"error":      err.Error(),
		})
		if i < attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("%s unavailable after %d attempts: %w", name, attempts, err)
}
