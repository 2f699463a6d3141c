// Package config loads application settings and opens the configured
// registry backend.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/viper"

	"github.com/jacentio/lottrace/badgerstore"
	"github.com/jacentio/lottrace/registry"
	"github.com/jacentio/lottrace/store"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendDynamoDB = "dynamodb"
)

// EnvPrefix prefixes environment overrides: LOTTRACE_DYNAMODB_LOT_TABLE
// sets dynamodb.lot_table.
const EnvPrefix = "LOTTRACE"

// Config is the application configuration.
type Config struct {
	Backend string `mapstructure:"backend"`

	Badger struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"badger"`

	DynamoDB struct {
		LotTable   string `mapstructure:"lot_table"`
		IndexTable string `mapstructure:"index_table"`
		NumShards  int    `mapstructure:"num_shards"`
		Endpoint   string `mapstructure:"endpoint"`
	} `mapstructure:"dynamodb"`

	AWS struct {
		Profile string `mapstructure:"profile"`
		Region  string `mapstructure:"region"`
	} `mapstructure:"aws"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Load reads settings from the file at path, if path is not empty, and from
// LOTTRACE_* environment variables, which take precedence.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	return c, c.validate()
}

func setDefaults(v *viper.Viper) {
	def := store.DefaultConfig()
	v.SetDefault("backend", BackendMemory)
	v.SetDefault("badger.path", "lottrace-data")
	v.SetDefault("dynamodb.lot_table", def.LotTable)
	v.SetDefault("dynamodb.index_table", def.IndexTable)
	v.SetDefault("dynamodb.num_shards", def.NumShards)
	v.SetDefault("dynamodb.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.region", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory, BackendDynamoDB:
	case BackendBadger:
		if c.Badger.Path == "" {
			return fmt.Errorf("backend %q needs badger.path", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// StoreConfig returns the DynamoDB table settings.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		LotTable:   c.DynamoDB.LotTable,
		IndexTable: c.DynamoDB.IndexTable,
		NumShards:  c.DynamoDB.NumShards,
	}
}

// NewDynamoDBClient builds a client from the default AWS credential chain,
// narrowed by the configured profile, region and endpoint.
func (c Config) NewDynamoDBClient(ctx context.Context) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.AWS.Profile))
	}
	if c.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.AWS.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	endpoint := c.DynamoDB.Endpoint
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// OpenBackend opens the configured backend. The returned close function
// releases it and is never nil.
func (c Config) OpenBackend(ctx context.Context, logger *slog.Logger) (registry.Backend, func() error, error) {
	noop := func() error { return nil }

	switch c.Backend {
	case BackendBadger:
		s, err := badgerstore.Open(c.Badger.Path, logger)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil

	case BackendDynamoDB:
		client, err := c.NewDynamoDBClient(ctx)
		if err != nil {
			return nil, noop, err
		}
		return store.New(client, c.StoreConfig()), noop, nil

	case BackendMemory:
		return registry.NewMemoryBackend(), noop, nil
	}
	return nil, noop, fmt.Errorf("unknown backend %q", c.Backend)
}
