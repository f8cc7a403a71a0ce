package backend

import (
	"fmt"

	"myfinances/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.StateBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.StateBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.StateDBPath,
		Passphrase:   appConfig.SecureStoreKey,
		KeyFile:      appConfig.SecureStoreKeyFile,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
		if c.Passphrase == "" && c.KeyFile == "" {
			return fmt.Errorf("either Passphrase or KeyFile must be provided for sqlite backend")
		}
	case MemoryBackend:
		// a random key is generated per process
	}

	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{SQLiteBackend.String(), MemoryBackend.String()}
}
