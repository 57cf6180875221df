package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
)

// DefaultBatchLimit is the batch size allowed when batching is enabled
// without a limit.
const DefaultBatchLimit = 10

type Options struct {
	// Timeout bounds the execution of queries and mutations when the request
	// context has no deadline. Subscriptions are not bounded. 0 means no
	// timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// MaxMemory is the part of a multipart body kept in memory; larger
	// uploads spill to temporary files. 0 means 32 MiB.
	MaxMemory int64

	// CORS configuration. CORS is disabled unless origins or a func are set.
	CORS CORSOptions

	// MetadataHeaders lists HTTP headers to forward into gRPC metadata.
	// Header names are case-insensitive. Default is none.
	MetadataHeaders []string

	Batching BatchingOptions

	// Errors controls masking. Masking is on by default.
	Errors gqlerrors.Options

	// SSESingleConnection enables the multiplexed event stream endpoints.
	SSESingleConnection bool

	// KeepAlive is the comment frame interval of event streams.
	KeepAlive time.Duration

	Logger *zap.Logger

	// Plugins are registered after the built-in ones, in order.
	Plugins []any
}

// BatchingOptions configures JSON array requests. Batching is off unless
// Enabled; a zero Limit means DefaultBatchLimit.
type BatchingOptions struct {
	Enabled bool
	Limit   int
}

func (b BatchingOptions) limit() int {
	if b.Limit <= 0 {
		return DefaultBatchLimit
	}
	return b.Limit
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
	// AllowOrigin decides per request when set, overriding AllowedOrigins.
	AllowOrigin func(r *http.Request, origin string) bool
}

func (c CORSOptions) enabled() bool { return len(c.AllowedOrigins) > 0 || c.AllowOrigin != nil }

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithMaxMemory(n int64) Option       { return func(o *Options) { o.MaxMemory = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithCORSFunc(fn func(r *http.Request, origin string) bool) Option {
	return func(o *Options) { o.CORS.AllowOrigin = fn }
}
func WithMetadataHeaders(headers ...string) Option {
	return func(o *Options) { o.MetadataHeaders = headers }
}
func WithBatching(b BatchingOptions) Option { return func(o *Options) { o.Batching = b } }
func WithErrors(e gqlerrors.Options) Option { return func(o *Options) { o.Errors = e } }
func WithSSESingleConnection() Option       { return func(o *Options) { o.SSESingleConnection = true } }
func WithKeepAlive(d time.Duration) Option  { return func(o *Options) { o.KeepAlive = d } }
func WithLogger(l *zap.Logger) Option       { return func(o *Options) { o.Logger = l } }
func WithPlugins(plugins ...any) Option {
	return func(o *Options) { o.Plugins = append(o.Plugins, plugins...) }
}
