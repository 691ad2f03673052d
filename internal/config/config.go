package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Trakt
	TraktClientID     string
	TraktClientSecret string

	// TMDB
	TMDBAPIKey string

	// Server
	ServerPort string

	// Paths
	TokenFile    string // $CONFIG_DIR/token.json
	DatabaseFile string // $CONFIG_DIR/trackarr.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "trackarr")
	} else {
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		TraktClientID:     viper.GetString("TRAKT_CLIENT_ID"),
		TraktClientSecret: viper.GetString("TRAKT_CLIENT_SECRET"),
		TMDBAPIKey:        viper.GetString("TMDB_API_KEY"),
		ServerPort:        viper.GetString("SERVER_PORT"),
		TokenFile:         filepath.Join(configDir, "token.json"),
		DatabaseFile:      filepath.Join(configDir, "trackarr.db"),
		LogLevel:          viper.GetString("LOG_LEVEL"),
	}

	// Validate required fields
	if config.TraktClientID == "" {
		return nil, fmt.Errorf("TRAKT_CLIENT_ID is required")
	}
	if config.TraktClientSecret == "" {
		return nil, fmt.Errorf("TRAKT_CLIENT_SECRET is required")
	}
	if config.TMDBAPIKey == "" {
		return nil, fmt.Errorf("TMDB_API_KEY is required")
	}

	return config, nil
}
