// Package app assembles the application: configuration in, wired components
// out. All construction happens in Setup so main stays a thin shell.
package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localrag/localrag/internal/api"
	"github.com/localrag/localrag/internal/answer"
	"github.com/localrag/localrag/internal/config"
	"github.com/localrag/localrag/internal/ingest"
	"github.com/localrag/localrag/internal/task"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool     *pgxpool.Pool
	Engine   *ingest.Engine
	Pipeline *answer.Pipeline
	Executor *task.Executor
	Server   *api.Server
}

// Close releases everything Setup acquired.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
}
