package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies schema migrations from the given filesystem (usually an
// embed.FS) against the pool. goose only speaks database/sql, so the pool is
// bridged through pgx's stdlib adapter for the duration of the run.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, migrations fs.FS, log *slog.Logger) error {
	if migrations == nil {
		return errors.Join(ErrFailedToApplyMigrations, errors.New("migrations filesystem is nil"))
	}
	if log == nil {
		log = slog.Default()
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration db handle", "error", err)
		}
	}()

	goose.SetLogger(gooseSlogAdapter{log: log})
	goose.SetBaseFS(migrations)
	goose.SetTableName(cfg.MigrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// gooseSlogAdapter routes goose's Printf-style output through slog.
type gooseSlogAdapter struct {
	log *slog.Logger
}

func (a gooseSlogAdapter) Fatalf(format string, v ...any) {
	a.log.Error(fmt.Sprintf(format, v...))
}

func (a gooseSlogAdapter) Printf(format string, v ...any) {
	a.log.Info(fmt.Sprintf(format, v...))
}
