package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/raj783e/campus/cmd/internal/docstore"
)

// Run is the serve entrypoint used by cmd/campus.
// It returns an error instead of calling os.Exit to keep defers effective and lint clean.
func Run(parent context.Context, cfg Config, log Logger) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// Migrate applies the document store schema to the configured database.
func Migrate(ctx context.Context, cfg Config, log Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate: CAMPUS_DATABASE_URL is not set")
	}
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	st, err := docstore.NewPostgresStore(pool, docstore.WithSchema(cfg.DBSchema), docstore.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	log.Info("db.migrate.done", "schema", cfg.DBSchema)
	return nil
}
