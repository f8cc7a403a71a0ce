package backend

import (
	"context"
	"crypto/rand"
	"fmt"

	applog "myfinances/internal/log"
	"myfinances/internal/securestore"
	"myfinances/internal/storage"
	"myfinances/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	return &DefaultFactory{
		logger: applog.OrDefault(logger, applog.ComponentStorage),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	secure, err := securestore.Open(ctx, repo.Store(storage.NamespaceSecure), config.Passphrase, config.KeyFile)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"key_source", keySource(config))

	return &BackendResult{
		Backend: Backend{
			State:  repo.Store(storage.NamespaceState),
			Secure: secure,
		},
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generate memory backend key: %w", err)
	}

	f.logger.Info("Initialized memory backend, state will not survive restarts")

	return &BackendResult{
		Backend: Backend{
			State:  memory.New(),
			Secure: securestore.New(memory.New(), key),
		},
	}, nil
}

func keySource(config Config) string {
	if config.Passphrase != "" {
		return "passphrase"
	}
	return "key_file"
}
