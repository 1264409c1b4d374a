package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/pharmaguard-wizard/internal/domain"
)

// Open builds the store selected by config. The "none" driver returns a nil
// Store, meaning history is disabled. sqlitePath is used when config.Path is empty.
func Open(ctx context.Context, config domain.HistoryConfig, sqlitePath string) (Store, error) {
	switch strings.ToLower(config.Driver) {
	case "", "sqlite":
		path := config.Path
		if path == "" {
			path = sqlitePath
		}
		store, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := NewPostgresStoreFromURL(ctx, config.DSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", config.Driver)
	}
}
