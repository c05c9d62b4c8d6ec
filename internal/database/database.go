// Package database selects a store backend from the configured URL.
package database

import (
	"context"
	"strings"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store/postgres"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store/sqlite"
)

// Open connects the store named by url. postgres:// and postgresql:// URLs
// get the pgx pool; anything else is treated as a SQLite file path, with an
// optional sqlite:// prefix.
func Open(ctx context.Context, url string, maxConns int) (store.Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return postgres.Connect(ctx, url, maxConns)
	}
	return sqlite.Open(strings.TrimPrefix(url, "sqlite://"))
}
