package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/persistence/postgresql"
)

var ErrUnsupportedDatabase = errors.New("unsupported database url")

// NewPersistence opens the store named by databaseURL: file://<dir> or
// postgres://...
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, databaseURL)
	}

	switch provider {
	case "file":
		logger.InfoContext(ctx, "Using file persistence", "path", rest)

		return file.NewPersistence(rest)
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, provider)
	}
}
