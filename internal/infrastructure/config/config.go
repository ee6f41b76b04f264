// Package config loads the proxy's typed, layered configuration via viper:
// defaults, then config file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the proxy's full runtime configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	ModelMap    []ModelMapEntry   `mapstructure:"modelMappings"`
	Signature   SignatureConfig   `mapstructure:"signature"`
	Cooldown    CooldownConfig    `mapstructure:"cooldown"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// ServerConfig is the HTTP ingress surface.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Hostname    string   `mapstructure:"hostname"`
	CORSOrigins []string `mapstructure:"corsOrigins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ModelMapEntry is one modelMapping row: a requested model
// name mapped to a primary (provider, model) with an optional fallback
// chain of other requested model names.
type ModelMapEntry struct {
	From      string   `mapstructure:"from"`
	Provider  string   `mapstructure:"provider"`
	To        string   `mapstructure:"to"`
	Fallbacks []string `mapstructure:"fallbacks"`
}

// SignatureConfig configures the signature cache.
type SignatureConfig struct {
	TTLMillis            int64  `mapstructure:"ttlMillis"`
	MaxEntriesPerSession int    `mapstructure:"maxEntriesPerSession"`
	Storage              string `mapstructure:"storage"` // "memory" | "durable"
	DSN                  string `mapstructure:"dsn"`     // durable storage only
	Driver               string `mapstructure:"driver"`  // "sqlite" | "postgres"
}

// CooldownConfig holds the cooldown floor and ceiling read from the config
// file. They are not applied: cooldown.Manager clamps every cooldown with
// its fixed MinCooldown (30s) and MaxCooldown (15m).
type CooldownConfig struct {
	MinSeconds int `mapstructure:"minSeconds"`
	MaxSeconds int `mapstructure:"maxSeconds"`
}

// RetryConfig holds the dispatch retry settings read from the config file.
// Only MaxAttempts is applied (to dispatch.Engine.MaxAttempts); the backoff
// schedule is fixed at 1s doubling up to 16s, and InitialBackoffMillis and
// MaxBackoffMillis are not read.
type RetryConfig struct {
	MaxAttempts          int `mapstructure:"maxAttempts"`
	InitialBackoffMillis int `mapstructure:"initialBackoffMillis"`
	MaxBackoffMillis     int `mapstructure:"maxBackoffMillis"`
}

// CredentialsConfig is the per-provider credential list.
// Keys are provider names ("openai", "anthropic", "gemini", "antigravity",
// "openai-web", "opencode-zen").
type CredentialsConfig struct {
	Providers map[string][]CredentialEntry `mapstructure:"providers"`
}

// CredentialEntry is one credential.Credential as configured on disk/env.
type CredentialEntry struct {
	ID        string `mapstructure:"id"`
	Key       string `mapstructure:"key"`
	AccountID string `mapstructure:"accountId"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
}

// Load reads config.yaml from the layered search path (env override >
// ./config.yaml > ~/.relay/config.yaml > defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".relay")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read global config: %w", err)
		}
	}

	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// WatchModelMappings re-reads modelMappings whenever the local config file
// changes on disk, so an operator can rebalance traffic without a restart.
// onChange receives the freshly parsed entries; the caller is responsible
// for swapping them into the live router.
func WatchModelMappings(path string, onChange func([]ModelMapEntry)) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: watch: initial read: %w", err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		var entries []ModelMapEntry
		if err := v.UnmarshalKey("modelMappings", &entries); err != nil {
			return
		}
		onChange(entries)
	})
	v.WatchConfig()
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.corsOrigins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("signature.ttlMillis", int64(60*60*1000))
	v.SetDefault("signature.maxEntriesPerSession", 100)
	v.SetDefault("signature.storage", "memory")
	v.SetDefault("signature.driver", "sqlite")

	v.SetDefault("cooldown.minSeconds", int((30 * time.Second).Seconds()))
	v.SetDefault("cooldown.maxSeconds", int((15 * time.Minute).Seconds()))

	v.SetDefault("retry.maxAttempts", 5)
	v.SetDefault("retry.initialBackoffMillis", 1000)
	v.SetDefault("retry.maxBackoffMillis", 16000)

	v.SetDefault("tracing.enabled", false)
}
