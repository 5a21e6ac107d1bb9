// Package config loads lattice settings from a yaml file, the environment
// and an optional .env file.
//
// Environment variables use the LATTICE_ prefix with dots replaced by
// underscores: instances.default.keyspace is LATTICE_INSTANCES_DEFAULT_KEYSPACE.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jacentio/lattice/store"
)

// Config is the root configuration.
type Config struct {
	Log       LogConfig               `mapstructure:"log"`
	Instances map[string]store.Config `mapstructure:"instances"`
	Stream    StreamConfig            `mapstructure:"stream"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// StreamConfig binds change-stream tables to entity classes.
type StreamConfig struct {
	Bindings []Binding `mapstructure:"bindings"`
}

// Binding maps one table to the class hydrated from it.
type Binding struct {
	Table string `mapstructure:"table"`
	Class string `mapstructure:"class"`
}

type options struct {
	paths   []string
	envFile string
}

// Option customizes Load.
type Option func(*options)

// WithPaths sets the directories searched for lattice.yaml.
func WithPaths(paths ...string) Option {
	return func(o *options) { o.paths = paths }
}

// WithEnvFile sets the dotenv file loaded before the environment is read.
func WithEnvFile(path string) Option {
	return func(o *options) { o.envFile = path }
}

// Load reads configuration from lattice.yaml, the environment and .env.
// A missing file of either kind is not an error.
func Load(opts ...Option) (*Config, error) {
	o := options{
		paths:   []string{".", "./config"},
		envFile: ".env",
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", o.envFile, err)
	}

	v := viper.New()
	v.SetConfigName("lattice")
	v.SetConfigType("yaml")
	for _, p := range o.paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("LATTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if d, ok := cfg.Instances[store.DefaultInstance]; ok && d.Keyspace == "" && len(d.Servers) == 0 {
		delete(cfg.Instances, store.DefaultInstance)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Declared so the default instance can come from the environment alone.
	d := store.DefaultConfig()
	v.SetDefault("instances.default.keyspace", "")
	v.SetDefault("instances.default.servers", []string{})
	v.SetDefault("instances.default.region", "")
	v.SetDefault("instances.default.access_key", "")
	v.SetDefault("instances.default.secret_key", "")
	v.SetDefault("instances.default.pool_size", d.PoolSize)
	v.SetDefault("instances.default.workers", d.Workers)
	v.SetDefault("instances.default.row_key_attribute", d.RowKeyAttribute)
	v.SetDefault("instances.default.column_attribute", d.ColumnAttribute)
	v.SetDefault("instances.default.value_attribute", d.ValueAttribute)
}

// Validate checks the log settings and every instance.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if len(c.Instances) == 0 {
		return &store.ConfigError{Field: "instances", Reason: "no store instance configured"}
	}
	for _, name := range c.InstanceNames() {
		if err := c.Instances[name].Validate(); err != nil {
			return fmt.Errorf("instances.%s: %w", name, err)
		}
	}
	for i, b := range c.Stream.Bindings {
		if b.Table == "" || b.Class == "" {
			return fmt.Errorf("stream.bindings[%d]: table and class must be set", i)
		}
	}
	return nil
}

// InstanceNames returns the configured instance names in sorted order.
func (c *Config) InstanceNames() []string {
	names := make([]string, 0, len(c.Instances))
	for name := range c.Instances {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clients returns lazily opened store clients for every instance.
func (c *Config) Clients(logger *zap.Logger) *store.Clients {
	return store.NewClients(c.Instances, logger)
}

// StreamBindings returns the stream bindings as table to class.
func (c *Config) StreamBindings() map[string]string {
	m := make(map[string]string, len(c.Stream.Bindings))
	for _, b := range c.Stream.Bindings {
		m[b.Table] = b.Class
	}
	return m
}

// Logger builds a zap logger from the log settings.
func (c *Config) Logger() (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", c.Log.Level, err)
	}

	var cfg zap.Config
	switch c.Log.Format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
