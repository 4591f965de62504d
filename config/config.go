/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads storemodel settings from a YAML file, an optional
// .env file and the environment, in that order of increasing precedence.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/suparena/storemodel/errors"
	"github.com/suparena/storemodel/logging"
	"github.com/suparena/storemodel/registry"
	"github.com/suparena/storemodel/storagemodels"
)

// Backend kinds.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Environment variables overriding file settings.
const (
	EnvBackend         = "STOREMODEL_BACKEND"
	EnvLogLevel        = "STOREMODEL_LOG_LEVEL"
	EnvUsersCollection = "STOREMODEL_USERS_COLLECTION"
	EnvAccessKey       = "AWS_ACCESS_KEY"
	EnvSecretKey       = "AWS_SECRET_KEY"
	EnvRegion          = "AWS_REGION"
	EnvTable           = "AWS_DDB_TABLE"
	EnvEndpoint        = "AWS_DDB_ENDPOINT"
	EnvSQLitePath      = "SQLITE_PATH"
	EnvMaxRetries      = "STOREMODEL_STREAM_MAX_RETRIES"
)

// Config is the complete storemodel configuration.
type Config struct {
	Backend         string         `yaml:"backend"`
	LogLevel        string         `yaml:"logLevel"`
	UsersCollection string         `yaml:"usersCollection"`
	DynamoDB        DynamoDBConfig `yaml:"dynamodb"`
	SQLite          SQLiteConfig   `yaml:"sqlite"`
	Stream          StreamConfig   `yaml:"stream"`
}

type DynamoDBConfig struct {
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	Table     string `yaml:"table"`
	Endpoint  string `yaml:"endpoint"`
	// GSIs names the indexes queries may be routed through, e.g. "GSI1".
	GSIs []string `yaml:"gsis"`
	// IndexMaps registers per-collection key layouts.
	IndexMaps map[string]map[string]string `yaml:"indexMaps"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// StreamConfig tunes DynamoDB Streams polling.
type StreamConfig struct {
	PollInterval Duration `yaml:"pollInterval"`
	MaxRetries   int      `yaml:"maxRetries"`
	RetryBackoff Duration `yaml:"retryBackoff"`
	ShardRefresh int      `yaml:"shardRefresh"`
}

// Duration is a time.Duration written as a Go duration string ("1.5s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used when nothing is set: an in-memory
// backend at info level.
func Default() Config {
	defaults := storagemodels.DefaultStreamOptions()
	return Config{
		Backend:         BackendMemory,
		LogLevel:        "info",
		UsersCollection: "Users",
		SQLite:          SQLiteConfig{Path: "data/storemodel.db"},
		Stream: StreamConfig{
			PollInterval: Duration(defaults.PollInterval),
			MaxRetries:   defaults.MaxRetries,
			RetryBackoff: Duration(defaults.RetryBackoff),
			ShardRefresh: defaults.ShardRefresh,
		},
	}
}

// Load reads path (skipped when empty), then .env in the working directory
// when present, then the environment.
func Load(path string) (Config, error) {
	return load(path, ".env", os.LookupEnv)
}

func load(path, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		// existing environment variables win over the file
		if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	set(EnvBackend, &c.Backend)
	set(EnvLogLevel, &c.LogLevel)
	set(EnvUsersCollection, &c.UsersCollection)
	set(EnvAccessKey, &c.DynamoDB.AccessKey)
	set(EnvSecretKey, &c.DynamoDB.SecretKey)
	set(EnvRegion, &c.DynamoDB.Region)
	set(EnvTable, &c.DynamoDB.Table)
	set(EnvEndpoint, &c.DynamoDB.Endpoint)
	set(EnvSQLitePath, &c.SQLite.Path)

	if v, ok := lookup(EnvMaxRetries); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.NewValidationError(EnvMaxRetries, err.Error())
		}
		c.Stream.MaxRetries = n
	}
	return nil
}

// Validate checks the settings of the selected backend.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.NewValidationError("logLevel", err.Error())
	}
	if c.UsersCollection == "" {
		return errors.NewValidationError("usersCollection", "must not be empty")
	}
	if c.Stream.MaxRetries < 0 {
		return errors.NewValidationError("stream.maxRetries", "must not be negative")
	}

	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.NewValidationError("sqlite.path", "required for the sqlite backend")
		}
	case BackendDynamoDB:
		if c.DynamoDB.Table == "" {
			return errors.NewValidationError("dynamodb.table", "required for the dynamodb backend")
		}
		if c.DynamoDB.Region == "" {
			return errors.NewValidationError("dynamodb.region", "required for the dynamodb backend")
		}
		if (c.DynamoDB.AccessKey == "") != (c.DynamoDB.SecretKey == "") {
			return errors.NewValidationError("dynamodb.secretKey", "access key and secret key must be set together")
		}
		for collection, m := range c.DynamoDB.IndexMaps {
			if err := registry.ValidateIndexMap(m); err != nil {
				return errors.NewValidationError("dynamodb.indexMaps."+collection, err.Error())
			}
		}
	default:
		return errors.NewValidationError("backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}
	return nil
}

// StreamOptions converts the stream settings.
func (c Config) StreamOptions() []storagemodels.StreamOption {
	return []storagemodels.StreamOption{
		storagemodels.WithPollInterval(time.Duration(c.Stream.PollInterval)),
		storagemodels.WithMaxRetries(c.Stream.MaxRetries),
		storagemodels.WithRetryBackoff(time.Duration(c.Stream.RetryBackoff)),
		storagemodels.WithShardRefresh(c.Stream.ShardRefresh),
	}
}
