// Package app wires the application together: configuration, database pool,
// Genkit, knowledge service, tool backends, query engine and conversation
// manager. All dependencies are constructed here and injected downward.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/silviahq/silvia/internal/config"
	"github.com/silviahq/silvia/internal/conversation"
	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/persona"
	"github.com/silviahq/silvia/internal/rag"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit *genkit.Genkit
	DBPool *pgxpool.Pool

	Knowledge     *knowledge.Service
	Personas      *persona.Store
	Engine        *rag.Engine
	Conversations *conversation.Manager
}

// Close releases the application's resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
