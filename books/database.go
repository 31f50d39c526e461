package books

import (
	"context"
	"embed"

	"github.com/SeaRoll/bookshelf/database"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// NewDatabase connects to postgres and makes sure the books table exists.
func NewDatabase(ctx context.Context, url string) (database.Database, error) {
	return database.NewDatabase(ctx, url, embedMigrations)
}
