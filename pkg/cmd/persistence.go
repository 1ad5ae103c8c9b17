package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/macadamia-hq/macadamia/pkg/persistence"
	"github.com/macadamia-hq/macadamia/pkg/persistence/file"
	"github.com/macadamia-hq/macadamia/pkg/persistence/postgresql"
)

// NewPersistence picks the persistence backend from the database URL scheme.
// postgres:// and postgresql:// get the SQL backend; anything else falls back
// to the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
