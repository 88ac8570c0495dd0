package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/silviahq/silvia/db"
	"github.com/silviahq/silvia/internal/config"
	"github.com/silviahq/silvia/internal/conversation"
	"github.com/silviahq/silvia/internal/database"
	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/persona"
	"github.com/silviahq/silvia/internal/rag"
	"github.com/silviahq/silvia/internal/tools"
)

// Model call throttling shared by all conversations.
const (
	modelCallsPerSecond = 5
	modelCallBurst      = 10
)

// Setup initializes the application. On error everything already initialized
// is released; on success call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	a.Genkit = g
	logger.Info("genkit initialized", "model", cfg.ModelName)

	aiEmbedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if aiEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	embedder := knowledge.NewEmbedder(aiEmbedder)
	kbStore := knowledge.NewStore(pool, logger)
	a.Knowledge = knowledge.NewService(kbStore, embedder, nil, logger)

	a.Personas = persona.NewStore(pool, logger)

	registry, err := tools.NewRegistry(g)
	if err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	executor := tools.NewExecutor(provideBilling(cfg, logger), provideCorpus(cfg, logger), logger)

	engine, err := rag.NewEngine(rag.Config{
		Genkit:       g,
		Personas:     a.Personas,
		Search:       a.Knowledge,
		Runner:       executor,
		Registry:     registry,
		Limiter:      rate.NewLimiter(modelCallsPerSecond, modelCallBurst),
		DefaultModel: cfg.ModelName,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating query engine: %w", err)
	}
	a.Engine = engine

	convStore := conversation.NewStore(pool, logger)
	a.Conversations = conversation.NewManager(convStore, engine, logger)

	return a, nil
}

// provideDBPool runs migrations and opens the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return database.Connect(ctx, cfg.PostgresConnectionString())
}

// provideBilling returns the Stripe client, or nil when no key is configured.
// A nil billing makes the payment tools answer that Stripe is unavailable
// instead of failing the conversation.
func provideBilling(cfg *config.Config, logger *slog.Logger) tools.Billing {
	if cfg.StripeSecretKey == "" {
		logger.Warn("stripe secret key not set, payment tools disabled")
		return nil
	}
	return tools.NewStripeBilling(cfg.StripeSecretKey)
}

// provideCorpus returns the Lex Corpus client, or nil when no URL is
// configured.
func provideCorpus(cfg *config.Config, logger *slog.Logger) *tools.CorpusClient {
	if cfg.LexCorpusURL == "" {
		logger.Warn("lex corpus URL not set, legal search tools disabled")
		return nil
	}
	return tools.NewCorpusClient(cfg.LexCorpusURL, nil)
}
