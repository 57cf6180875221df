// Package config maps flags, environment and config files onto typed
// settings.
//
// Keys are dotted ("server.addr"); in the environment dots and dashes become
// underscores behind the GQLHTTP_ prefix, e.g. GQLHTTP_SERVER_MAX_BODY_BYTES.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	server "github.com/hanpama/gqlhttp/internal/server"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "GQLHTTP"

const (
	KeyAddr                = "server.addr"
	KeyTimeout             = "server.timeout"
	KeyMaxBodyBytes        = "server.max-body-bytes"
	KeyPretty              = "server.pretty"
	KeyCORSOrigin          = "server.cors-origin"
	KeyMetadataHeader      = "server.metadata-header"
	KeyBatching            = "graphql.batching"
	KeyBatchingLimit       = "graphql.batching-limit"
	KeyMaskErrors          = "graphql.mask-errors"
	KeyDev                 = "graphql.dev"
	KeySSESingleConnection = "graphql.sse-single-connection"
	KeySSEKeepAlive        = "graphql.sse-keepalive"
	KeyPersisted           = "persisted.enabled"
	KeyPersistedCacheSize  = "persisted.cache-size"
	KeyPersistedOnly       = "persisted.only"
	KeyOtelEndpoint        = "otel.endpoint"
	KeyOtelService         = "otel.service"
	KeyLogLevel            = "log.level"
	KeyMetrics             = "metrics.enabled"
	KeyConfigFile          = "config"
)

// Config is the complete service configuration.
type Config struct {
	Server    Server
	GraphQL   GraphQL
	Persisted Persisted
	Otel      Otel
	LogLevel  string
	Metrics   bool
}

type Server struct {
	Addr            string
	Timeout         time.Duration
	MaxBodyBytes    int64
	Pretty          bool
	CORSOrigins     []string
	MetadataHeaders []string
}

type GraphQL struct {
	Batching            bool
	BatchingLimit       int
	MaskErrors          bool
	Dev                 bool
	SSESingleConnection bool
	SSEKeepAlive        time.Duration
}

type Persisted struct {
	Enabled   bool
	CacheSize int
	Only      bool
}

type Otel struct {
	Endpoint string
	Service  string
}

// RegisterFlags declares every key on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyConfigFile, "", "Configuration file (yaml, json or toml); overridden by environment and flags")
	fs.String(KeyAddr, ":8080", "HTTP listen address")
	fs.Duration(KeyTimeout, 10*time.Second, "Execution timeout for non-streaming operations")
	fs.Int64(KeyMaxBodyBytes, 0, "Maximum request body size in bytes, 0 for unlimited")
	fs.Bool(KeyPretty, false, "Pretty-print JSON responses")
	fs.StringSlice(KeyCORSOrigin, nil, "Allowed CORS origin. Repeatable; * allows any")
	fs.StringSlice(KeyMetadataHeader, nil, "Forward HTTP header to gRPC outgoing metadata. Repeatable")
	fs.Bool(KeyBatching, false, "Accept batched requests")
	fs.Int(KeyBatchingLimit, server.DefaultBatchLimit, "Maximum operations per batch")
	fs.Bool(KeyMaskErrors, true, "Replace unexpected error messages with a generic one")
	fs.Bool(KeyDev, false, "Expose original error messages under extensions.originalError")
	fs.Bool(KeySSESingleConnection, false, "Enable the single-connection event stream mode")
	fs.Duration(KeySSEKeepAlive, 12*time.Second, "Event stream keep-alive interval, 0 disables")
	fs.Bool(KeyPersisted, false, "Enable persisted operations")
	fs.Int(KeyPersistedCacheSize, 1000, "Number of persisted operations kept in memory")
	fs.Bool(KeyPersistedOnly, false, "Only accept persisted operations")
	fs.String(KeyOtelEndpoint, "", "OTLP collector endpoint")
	fs.String(KeyOtelService, "gqlhttp", "OpenTelemetry service name")
	fs.String(KeyLogLevel, "info", "Log level")
	fs.Bool(KeyMetrics, true, "Serve Prometheus metrics on /metrics")
}

// NewViper returns a viper bound to fs and the environment.
func NewViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load reads the config file named by the config key, if any, and returns
// the typed configuration.
func Load(v *viper.Viper) (Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	c := Config{
		Server: Server{
			Addr:            v.GetString(KeyAddr),
			Timeout:         v.GetDuration(KeyTimeout),
			MaxBodyBytes:    v.GetInt64(KeyMaxBodyBytes),
			Pretty:          v.GetBool(KeyPretty),
			CORSOrigins:     v.GetStringSlice(KeyCORSOrigin),
			MetadataHeaders: v.GetStringSlice(KeyMetadataHeader),
		},
		GraphQL: GraphQL{
			Batching:            v.GetBool(KeyBatching),
			BatchingLimit:       v.GetInt(KeyBatchingLimit),
			MaskErrors:          v.GetBool(KeyMaskErrors),
			Dev:                 v.GetBool(KeyDev),
			SSESingleConnection: v.GetBool(KeySSESingleConnection),
			SSEKeepAlive:        v.GetDuration(KeySSEKeepAlive),
		},
		Persisted: Persisted{
			Enabled:   v.GetBool(KeyPersisted),
			CacheSize: v.GetInt(KeyPersistedCacheSize),
			Only:      v.GetBool(KeyPersistedOnly),
		},
		Otel: Otel{
			Endpoint: v.GetString(KeyOtelEndpoint),
			Service:  v.GetString(KeyOtelService),
		},
		LogLevel: v.GetString(KeyLogLevel),
		Metrics:  v.GetBool(KeyMetrics),
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%s must not be empty", KeyAddr)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%s must not be negative", KeyMaxBodyBytes)
	}
	if c.GraphQL.BatchingLimit < 0 {
		return fmt.Errorf("%s must not be negative", KeyBatchingLimit)
	}
	if c.Persisted.Enabled && c.Persisted.CacheSize <= 0 {
		return fmt.Errorf("%s must be positive", KeyPersistedCacheSize)
	}
	return nil
}

// ServerOptions maps c onto handler options.
func (c Config) ServerOptions() []server.Option {
	opts := []server.Option{
		server.WithTimeout(c.Server.Timeout),
		server.WithErrors(gqlerrors.Options{Mask: c.GraphQL.MaskErrors, Dev: c.GraphQL.Dev}),
		server.WithKeepAlive(c.GraphQL.SSEKeepAlive),
	}
	if c.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if c.Server.MaxBodyBytes > 0 {
		opts = append(opts, server.WithMaxBodyBytes(c.Server.MaxBodyBytes))
	}
	if len(c.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(c.Server.CORSOrigins...))
	}
	if len(c.Server.MetadataHeaders) > 0 {
		opts = append(opts, server.WithMetadataHeaders(c.Server.MetadataHeaders...))
	}
	if c.GraphQL.Batching {
		opts = append(opts, server.WithBatching(server.BatchingOptions{Enabled: true, Limit: c.GraphQL.BatchingLimit}))
	}
	if c.GraphQL.SSESingleConnection {
		opts = append(opts, server.WithSSESingleConnection())
	}
	return opts
}
