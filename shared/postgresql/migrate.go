package postgresql

import (
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

// Migrate applies every pending migration found at dir inside fsys.
func (c *Client) Migrate(fsys fs.FS, dir string) error {
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	goose.SetLogger(gooseLogger{logger: c.logger})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(c.db.DB, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(c.db.DB)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	c.logger.Info("Database migrations applied",
		slog.Int64("version", version),
	)
	return nil
}
