package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ahrav/questlog/infrastructure/llm"
	"github.com/ahrav/questlog/infrastructure/middleware"
	"github.com/ahrav/questlog/infrastructure/proofstore"
	"github.com/ahrav/questlog/infrastructure/storage/postgres"
	"github.com/ahrav/questlog/infrastructure/storage/sqlite"
	"github.com/ahrav/questlog/internal/application"
	"github.com/ahrav/questlog/internal/httpapi"
	"github.com/ahrav/questlog/internal/ports"
)

// defaultModels picks a vision-capable model when none is configured.
var defaultModels = map[string]string{
	"openai":    llm.OpenAIDefaultModel,
	"anthropic": llm.AnthropicDefaultModel,
	"google":    llm.GoogleDefaultModel,
}

// openedStore pairs a persistence gateway with its lifecycle hooks.
type openedStore struct {
	ports.Store
	ping  func(ctx context.Context) error
	close func()
}

func (s openedStore) Ping(ctx context.Context) error { return s.ping(ctx) }
func (s openedStore) Close()                         { s.close() }

func openStore(ctx context.Context, cfg application.StorageConfig, logger *zap.Logger) (openedStore, error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.DSN, postgres.Options{
			MaxConns:        cfg.MaxConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		}, logger.Named("postgres"))
		if err != nil {
			return openedStore{}, err
		}
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return openedStore{}, err
			}
		}
		return openedStore{Store: pg, ping: pg.Ping, close: pg.Close}, nil

	case "sqlite":
		lite, err := sqlite.New(cfg.DSN, logger.Named("sqlite"))
		if err != nil {
			return openedStore{}, err
		}
		return openedStore{
			Store: lite,
			ping:  lite.Ping,
			close: func() {
				if err := lite.Close(); err != nil {
					logger.Warn("close sqlite", zap.Error(err))
				}
			},
		}, nil

	default:
		return openedStore{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newProofStore(ctx context.Context, cfg application.ProofsConfig) (ports.ProofStore, error) {
	switch cfg.Backend {
	case "", "datauri":
		return proofstore.NewDataURIStore(), nil
	case "s3":
		s3, err := proofstore.NewS3Store(ctx, proofstore.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown proof backend %q", cfg.Backend)
	}
}

// newLLMClient builds the classifier client. The first middleware is the
// outermost, so tracing spans include rate-limit waits and breaker
// rejections. The request deadline comes from the classifier alone.
func newLLMClient(cfg application.ClassifierConfig, serviceName string, metrics *middleware.PrometheusMetrics) (*llm.Client, error) {
	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}
	return llm.NewClient(cfg.Provider, llm.ClientConfig{
		APIKey:  cfg.APIKey,
		Model:   model,
		BaseURL: cfg.BaseURL,
		Middleware: []llm.Middleware{
			llm.TracingMiddleware(serviceName),
			llm.MetricsMiddleware(metrics),
			llm.CircuitBreakerMiddlewareWithMetrics(cfg.BreakerFailures, cfg.BreakerReset, metrics),
			llm.RateLimitMiddleware(rate.Limit(cfg.RateLimit), cfg.Burst),
		},
	})
}

// newServices wires the application layer.
func newServices(
	cfg application.Config,
	store ports.Store,
	proofs ports.ProofStore,
	client ports.LLMClient,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) (httpapi.Services, error) {
	classifier, err := application.NewClassifier(client,
		application.WithClassifierTimeout(cfg.Classifier.Timeout),
		application.WithClassifierMaxTokens(cfg.Classifier.MaxTokens),
		application.WithClassifierLogger(logger.Named("classifier")),
	)
	if err != nil {
		return httpapi.Services{}, err
	}

	verifier, err := application.NewVerifier(store, classifier, proofs,
		application.WithTariff(cfg.Points),
		application.WithRetrySettings(application.RetrySettings{
			Policy:    cfg.RetryPolicy(),
			Increment: cfg.Retry.Increment,
			Allowance: cfg.Retry.Allowance,
		}),
		application.WithVerifierMetrics(metrics),
		application.WithVerifierLogger(logger.Named("verifier")),
	)
	if err != nil {
		return httpapi.Services{}, err
	}

	return httpapi.Services{
		Quests:    application.NewQuestService(store, logger.Named("quests")),
		Tasks:     application.NewTaskService(store, logger.Named("tasks")),
		Verifier:  verifier,
		Dashboard: application.NewDashboardService(store, cfg.Retry.Allowance),
	}, nil
}
