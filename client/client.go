// Package client wires the resolution and mutation layers onto a query
// cache, a store backend and the REST transport.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goforj/rescache"
	"github.com/goforj/rescache/internal/logging"
	"github.com/goforj/rescache/kind"
	"github.com/goforj/rescache/mutate"
	"github.com/goforj/rescache/notify"
	"github.com/goforj/rescache/reference"
	"github.com/goforj/rescache/registry"
	"github.com/goforj/rescache/resolve"
	"github.com/goforj/rescache/transport"
	"github.com/goforj/rescache/value"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Option customizes New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	notifier   notify.Notifier
	registerer prometheus.Registerer
	store      rescache.Store
	redis      rescache.RedisClient
	natsKV     rescache.NATSKeyValue
	httpClient *http.Client
}

// WithLogger uses l instead of building one from Config.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNotifier receives failure notifications. Default logs them.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithRegisterer exports query cache metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithStore skips store construction.
func WithStore(s rescache.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRedisClient supplies the client for the redis driver instead of
// dialing Config.Cache.Redis.
func WithRedisClient(c rescache.RedisClient) Option {
	return func(o *options) { o.redis = c }
}

// WithNATSKeyValue supplies the bucket for the nats driver.
func WithNATSKeyValue(kv rescache.NATSKeyValue) Option {
	return func(o *options) { o.natsKV = kv }
}

// WithHTTPClient overrides the transport's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Client is the assembled resource layer.
type Client struct {
	logger   *slog.Logger
	reg      *registry.Registry
	store    rescache.Store
	queries  *rescache.QueryCache
	codec    *reference.Codec
	kinds    *kind.Inferrer
	resolver *resolve.Resolver
	mutator  *mutate.Mutator
	api      *transport.Client

	closers []io.Closer
}

// New builds every component for reg. When cfg.API.BaseURL is set, kinds
// registered without an accessor are served by the REST transport.
//
// Example:
//
//	reg := registry.New().MustRegister(registry.Entry{Key: "team", Path: "teams", DisplayName: "Team"})
//	c, err := client.New(cfg, reg)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	rc, _ := c.Resolve(ctx, "team", "5")
func New(cfg Config, reg *registry.Registry, opts ...Option) (c *Client, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c = &Client{reg: reg}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	c.logger = o.logger
	if c.logger == nil {
		logger, closer, lerr := logging.New(cfg.Log)
		if lerr != nil {
			return c, fmt.Errorf("client: logger: %w", lerr)
		}
		c.logger = logger
		c.closers = append(c.closers, closer)
	}
	if o.notifier == nil {
		o.notifier = notify.NewSlogNotifier(c.logger)
	}

	c.store = o.store
	if c.store == nil {
		if c.store, err = c.openStore(cfg.Cache, o); err != nil {
			return c, err
		}
	}

	qopts := []rescache.QueryOption{
		rescache.WithStaleTime(cfg.Cache.StaleTime),
		rescache.WithEntryTTL(cfg.Cache.EntryTTL),
		rescache.WithLogger(c.logger),
	}
	if o.registerer != nil {
		qopts = append(qopts, rescache.WithObserver(rescache.NewPrometheusObserver(o.registerer)))
	}
	c.queries = rescache.NewQueryCache(c.store, qopts...)

	codecOpts := []reference.Option{reference.WithLogger(c.logger)}
	if base := cfg.referenceBase(); base != "" {
		codecOpts = append(codecOpts, reference.WithBase(base))
	}
	if c.codec, err = reference.NewCodec(reg, codecOpts...); err != nil {
		return c, fmt.Errorf("client: reference codec: %w", err)
	}
	c.kinds = kind.New(c.codec, reg, c.logger)

	if cfg.API.BaseURL != "" {
		c.api, err = transport.New(transport.Config{
			BaseURL:    cfg.API.BaseURL,
			Timeout:    cfg.API.Timeout,
			Headers:    cfg.API.Headers,
			HTTPClient: o.httpClient,
			Logger:     c.logger,
		})
		if err != nil {
			return c, err
		}
		c.closers = append(c.closers, c.api)
		if err = c.api.Bind(reg); err != nil {
			return c, err
		}
	}

	c.resolver = resolve.New(c.queries, reg,
		resolve.WithCodec(c.codec),
		resolve.WithNotifier(o.notifier),
		resolve.WithLogger(c.logger))
	c.mutator = mutate.New(reg, c.codec, c.queries,
		mutate.WithNotifier(o.notifier),
		mutate.WithLogger(c.logger))
	return c, nil
}

func (c *Client) openStore(cfg CacheConfig, o options) (rescache.Store, error) {
	sc := cfg.storeConfig()
	switch sc.Driver {
	case rescache.DriverRedis:
		sc.RedisClient = o.redis
		if sc.RedisClient == nil {
			rc := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			c.closers = append(c.closers, rc)
			sc.RedisClient = rc
		}
	case rescache.DriverNATS:
		sc.NATSKeyValue = o.natsKV
		if sc.NATSKeyValue == nil {
			kv, err := c.openNATS(cfg)
			if err != nil {
				return nil, err
			}
			sc.NATSKeyValue = kv
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := rescache.OpenStore(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return store, nil
}

func (c *Client) openNATS(cfg CacheConfig) (nats.KeyValue, error) {
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("client: connect nats: %w", err)
	}
	c.closers = append(c.closers, closerFunc(func() error { nc.Close(); return nil }))
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("client: jetstream: %w", err)
	}
	bucket := cfg.NATS.Bucket
	if bucket == "" {
		bucket = defaultNATSBucket
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket, TTL: cfg.EntryTTL})
	}
	if err != nil {
		return nil, fmt.Errorf("client: nats bucket %q: %w", bucket, err)
	}
	return kv, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Close releases connections and the log file.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Resolve opens a resolution context for key/id.
func (c *Client) Resolve(ctx context.Context, key reference.LookupKey, id string) (*resolve.Context, error) {
	return c.resolver.Open(ctx, key, id)
}

// Create creates a resource and runs the invalidation cascade.
func (c *Client) Create(ctx context.Context, key reference.LookupKey, payload *value.Object) (*value.Object, error) {
	return c.mutator.Create(ctx, key, payload)
}

// Update patches a resource and runs the invalidation cascade.
func (c *Client) Update(ctx context.Context, key reference.LookupKey, id string, payload *value.Object) (*value.Object, error) {
	return c.mutator.Update(ctx, key, id, payload)
}

// Template returns the create payload skeleton of key.
func (c *Client) Template(key reference.LookupKey, initial *value.Object) (*value.Object, error) {
	e, ok := c.reg.Lookup(key)
	if !ok {
		return nil, &registry.UnknownKeyError{Key: key}
	}
	return e.Template(initial), nil
}

// Detect infers the kind of v.
func (c *Client) Detect(v value.Value) (value.Kind, error) { return c.kinds.Detect(v) }

// Convert converts v to kind k.
func (c *Client) Convert(k value.Kind, v value.Value) (value.Value, error) {
	return c.kinds.Convert(k, v)
}

// Kinds lists the kinds a value can be converted to.
func (c *Client) Kinds() []value.Kind { return c.kinds.Kinds() }

// Parse recognizes a reference string.
func (c *Client) Parse(s string) (reference.Ref, bool) { return c.codec.Parse(s) }

// Reference builds the reference string of key/id.
func (c *Client) Reference(key reference.LookupKey, id string) (string, error) {
	return c.codec.Build(key, id)
}

// Invalidate marks cached queries stale and refetches active ones.
func (c *Client) Invalidate(ctx context.Context, prefix rescache.Key, exact bool) error {
	return c.queries.Invalidate(ctx, prefix, exact)
}

// Queries exposes the query cache for custom subscriptions.
func (c *Client) Queries() *rescache.QueryCache { return c.queries }

// Registry returns the kind table.
func (c *Client) Registry() *registry.Registry { return c.reg }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }
