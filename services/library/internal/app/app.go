package app

import (
	"fmt"
	"io"
	"strings"

	"libraryhub/internal/keylock"
	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/store"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds runtime configuration for the core application.
type Config struct {
	StoreDriver        string
	DatabaseURL        string
	Store              store.Store
	Locker             keylock.Locker
	DefaultCustodianID string
}

// App implements book cataloguing and the issue/return transitions.
type App struct {
	store              store.Store
	locker             keylock.Locker
	defaultCustodianID string
}

// New constructs the application. A Store or Locker supplied in cfg takes
// precedence over the driver settings.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		switch strings.ToLower(strings.TrimSpace(cfg.StoreDriver)) {
		case StoreDriverMemory:
			dataStore = store.NewMemoryStore()
		case "", StoreDriverPostgres:
			if cfg.DatabaseURL == "" {
				return nil, fmt.Errorf("database URL required")
			}
			gormStore, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
			dataStore = gormStore
		default:
			return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
		}
	}

	locker := cfg.Locker
	if locker == nil {
		locker = keylock.NewMemoryLocker()
	}

	custodian := strings.TrimSpace(cfg.DefaultCustodianID)
	if custodian == "" {
		custodian = domain.AdminCustodianID
	}
	if !util.IsValidID(custodian) {
		return nil, fmt.Errorf("invalid default custodian id %q", custodian)
	}

	return &App{
		store:              dataStore,
		locker:             locker,
		defaultCustodianID: strings.ToLower(custodian),
	}, nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Close releases the store and locker when they hold external connections.
func (a *App) Close() error {
	var firstErr error
	for _, res := range []any{a.locker, a.store} {
		closer, ok := res.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
