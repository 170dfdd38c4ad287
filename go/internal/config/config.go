// Package config holds the client's connection configuration: the
// relay base URL plus the transport options surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds relay connection settings.
type Config struct {
	RelayURL             string `yaml:"relay_url"`
	WithCredentials      bool   `yaml:"with_credentials"`
	AutoConnect          bool   `yaml:"auto_connect"`
	ReconnectionAttempts int    `yaml:"reconnection_attempts"`
	ReconnectionDelayMS  int    `yaml:"reconnection_delay_ms"`
	HostHintPath         string `yaml:"host_hint_path"`
	// Cookie is sent on the websocket handshake when WithCredentials
	// is on, for relays that authenticate by session cookie.
	Cookie string `yaml:"cookie"`
}

// NewConfigFromEnv reads SOCKET_* environment variables (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		RelayURL:             getEnv("SOCKET_URL", "http://localhost:3003"),
		WithCredentials:      getEnvAsBool("SOCKET_WITH_CREDENTIALS", true),
		AutoConnect:          getEnvAsBool("SOCKET_AUTO_CONNECT", true),
		ReconnectionAttempts: getEnvAsInt("SOCKET_RECONNECTION_ATTEMPTS", 5),
		ReconnectionDelayMS:  getEnvAsInt("SOCKET_RECONNECTION_DELAY_MS", 1000),
		HostHintPath:         getEnv("HOST_HINT_PATH", ""),
		Cookie:               getEnv("SOCKET_COOKIE", ""),
	}
}

// Load reads YAML config from path on top of the environment defaults;
// zero-valued fields in the file keep their env/default values.
func Load(path string) (Config, error) {
	cfg := NewConfigFromEnv()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	// Bools need pointers so an explicit `false` in the file is
	// distinguishable from an absent key.
	var file struct {
		RelayURL             string `yaml:"relay_url"`
		WithCredentials      *bool  `yaml:"with_credentials"`
		AutoConnect          *bool  `yaml:"auto_connect"`
		ReconnectionAttempts int    `yaml:"reconnection_attempts"`
		ReconnectionDelayMS  int    `yaml:"reconnection_delay_ms"`
		HostHintPath         string `yaml:"host_hint_path"`
		Cookie               string `yaml:"cookie"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if file.RelayURL != "" {
		cfg.RelayURL = file.RelayURL
	}
	if file.WithCredentials != nil {
		cfg.WithCredentials = *file.WithCredentials
	}
	if file.AutoConnect != nil {
		cfg.AutoConnect = *file.AutoConnect
	}
	if file.ReconnectionAttempts != 0 {
		cfg.ReconnectionAttempts = file.ReconnectionAttempts
	}
	if file.ReconnectionDelayMS != 0 {
		cfg.ReconnectionDelayMS = file.ReconnectionDelayMS
	}
	if file.HostHintPath != "" {
		cfg.HostHintPath = file.HostHintPath
	}
	if file.Cookie != "" {
		cfg.Cookie = file.Cookie
	}
	return cfg, nil
}

// ReconnectionDelay returns the base backoff as a duration.
func (c Config) ReconnectionDelay() time.Duration {
	return time.Duration(c.ReconnectionDelayMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
