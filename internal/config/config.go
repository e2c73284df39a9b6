// Package config loads prune settings from an optional YAML file and
// PRUNE_-prefixed environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/viper"

	"github.com/jacentio/prune/store"
)

// EnvPrefix prefixes every environment variable, e.g. PRUNE_AWS_REGION.
const EnvPrefix = "PRUNE"

// Config represents the application configuration
type Config struct {
	AWS      AWSConfig
	Store    StoreConfig
	Kinds    []KindConfig
	LogLevel string
}

// AWSConfig represents AWS client configuration
type AWSConfig struct {
	Region   string
	Endpoint string // Overrides the DynamoDB endpoint, e.g. DynamoDB Local
}

// NewClient creates a DynamoDB client from the default credential chain.
func (c AWSConfig) NewClient(ctx context.Context) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	}), nil
}

// StoreConfig represents table naming and retry configuration
type StoreConfig struct {
	JoinSeparator  string
	IDAttribute    string
	MaxRetries     int
	RetryBaseDelay time.Duration
	MaxRetryDelay  time.Duration
}

// KindConfig describes one entity kind. Chunks is set for binary-backed kinds.
type KindConfig struct {
	Type   string `mapstructure:"type"`
	Table  string `mapstructure:"table"`
	Chunks string `mapstructure:"chunks"`
}

// InitConfig prepares v to read file, or prune.yaml from the working
// directory or $HOME/.config/prune when file is empty. A missing default
// file is not an error; a missing explicit file is.
func InitConfig(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("prune")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/prune")
	}

	// Environment variables take precedence over the config file
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := store.DefaultConfig()
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.endpoint", "")
	v.SetDefault("store.join_separator", def.JoinSeparator)
	v.SetDefault("store.id_attribute", def.IDAttribute)
	v.SetDefault("store.max_retries", def.MaxRetries)
	v.SetDefault("store.retry_base_delay", def.RetryBaseDelay)
	v.SetDefault("store.max_retry_delay", def.MaxRetryDelay)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load builds a Config from v.
func Load(v *viper.Viper) (*Config, error) {
	kinds, err := loadKinds(v)
	if err != nil {
		return nil, err
	}

	config := &Config{
		AWS: AWSConfig{
			Region:   v.GetString("aws.region"),
			Endpoint: v.GetString("aws.endpoint"),
		},
		Store: StoreConfig{
			JoinSeparator:  v.GetString("store.join_separator"),
			IDAttribute:    v.GetString("store.id_attribute"),
			MaxRetries:     v.GetInt("store.max_retries"),
			RetryBaseDelay: v.GetDuration("store.retry_base_delay"),
			MaxRetryDelay:  v.GetDuration("store.max_retry_delay"),
		},
		Kinds:    kinds,
		LogLevel: v.GetString("log_level"),
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// loadKinds reads the kinds list from the config file, or from PRUNE_KINDS
// as comma-separated type:table[:chunks] entries.
func loadKinds(v *viper.Viper) ([]KindConfig, error) {
	if raw, ok := v.Get("kinds").(string); ok {
		return parseKinds(raw)
	}
	var kinds []KindConfig
	if err := v.UnmarshalKey("kinds", &kinds); err != nil {
		return nil, fmt.Errorf("decode kinds: %w", err)
	}
	return kinds, nil
}

func parseKinds(raw string) ([]KindConfig, error) {
	var kinds []KindConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid kind %q: want type:table[:chunks]", entry)
		}
		k := KindConfig{Type: parts[0], Table: parts[1]}
		if len(parts) == 3 {
			k.Chunks = parts[2]
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (c *Config) validate() error {
	if c.Store.JoinSeparator == "" {
		return fmt.Errorf("store.join_separator must not be empty")
	}
	seen := make(map[string]bool)
	for _, k := range c.Kinds {
		if k.Type == "" || k.Table == "" {
			return fmt.Errorf("kind %+v: type and table are required", k)
		}
		if seen[k.Type] {
			return fmt.Errorf("kind %q declared twice", k.Type)
		}
		seen[k.Type] = true
		// A separator inside an entity table name would make it look like a join table.
		for _, name := range []string{k.Table, k.Chunks} {
			if strings.Contains(name, c.Store.JoinSeparator) {
				return fmt.Errorf("kind %q: table %q contains the join separator %q", k.Type, name, c.Store.JoinSeparator)
			}
		}
	}
	return nil
}

// StoreConfig converts the settings to a store.Config.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		JoinSeparator:  c.Store.JoinSeparator,
		IDAttribute:    c.Store.IDAttribute,
		MaxRetries:     c.Store.MaxRetries,
		RetryBaseDelay: c.Store.RetryBaseDelay,
		MaxRetryDelay:  c.Store.MaxRetryDelay,
	}
}

// Registry returns a registry holding every configured kind.
func (c *Config) Registry() *store.Registry {
	r := store.NewRegistry()
	for _, k := range c.Kinds {
		r.Register(k.Kind())
	}
	return r
}

// Kind converts the configuration to a store.Kind.
func (k KindConfig) Kind() store.Kind {
	c := store.Collection{Type: k.Type, Table: k.Table}
	if k.Chunks != "" {
		return store.FileCollection{Collection: c, Chunks: k.Chunks}
	}
	return c
}

// Level returns the configured slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
