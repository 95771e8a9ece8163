// config.go: This file contains the configuration for the photocache service.
// It defines the settings struct and functions to load the settings.
package conf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

// SQLiteSettings contains settings for the SQLite durable store.
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite
	Path    string // path to the database file
}

// MySQLSettings contains settings for the MySQL durable store.
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL
	Username string // MySQL user
	Password string // MySQL password
	Database string // database name
	Host     string // host
	Port     string // port
}

// OutputSettings selects the durable record store backend.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// ProxySettings configures the photo proxy origin.
type ProxySettings struct {
	Endpoint string // base URL of the photo proxy endpoint
}

// DeviceCacheSettings configures the persistent per-device cache.
type DeviceCacheSettings struct {
	Path string // path to the local cache database file
}

// StorageSettings configures the object storage upload endpoint used by the
// migration processor.
type StorageSettings struct {
	UploadURL string // base URL of the object store upload endpoint
	PublicURL string // base URL under which stored objects are served
}

// Settings is the root configuration struct.
type Settings struct {
	Debug bool // true to enable debug logging

	Output      OutputSettings
	Proxy       ProxySettings
	DeviceCache DeviceCacheSettings
	Storage     StorageSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment into a Settings instance
// and stores it as the package-level settings.
func Load() (*Settings, error) {
	setDefaultConfig()

	viper.SetConfigName("photocache")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/photocache")
	viper.SetEnvPrefix("photocache")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Missing config file is fine, defaults and env apply.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// GetSettings returns the current settings instance, or nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetSettings replaces the package-level settings. Intended for tests.
func SetSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
}
