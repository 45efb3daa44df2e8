// Package transport implements registry.Accessor over a REST API that
// serves each kind at {base}/{path}/ and each resource at
// {base}/{path}/{id}/.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goforj/rescache/registry"
	"github.com/goforj/rescache/value"
	"github.com/google/uuid"
	apierrors "github.com/jmgilman/go/errors"
	"resty.dev/v3"
)

// ClientIDHeader carries the per-process client id.
const ClientIDHeader = "X-Client-ID"

const defaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	ClientID string
	Headers  map[string]string
	// HTTPClient overrides the underlying client, e.g. in tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the API. It is safe for concurrent use.
type Client struct {
	base     string
	clientID string
	resty    *resty.Client
	logger   *slog.Logger
}

// New returns a client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, apierrors.Wrapf(err, apierrors.CodeInvalidConfig, "transport: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := resty.New()
	if cfg.HTTPClient != nil {
		r = resty.NewWithClient(cfg.HTTPClient)
	}
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Accept", "application/json")
	r.SetHeader(ClientIDHeader, cfg.ClientID)
	for k, v := range cfg.Headers {
		r.SetHeader(k, v)
	}

	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		resty:    r,
		logger:   cfg.Logger,
	}, nil
}

// ClientID returns the value sent in ClientIDHeader.
func (c *Client) ClientID() string { return c.clientID }

// Close releases idle connections.
func (c *Client) Close() error { return c.resty.Close() }

// Accessor returns the accessor for resources served under path.
func (c *Client) Accessor(path string) *Accessor {
	return &Accessor{client: c, path: strings.Trim(path, "/")}
}

// Bind attaches an accessor to every entry of reg that lacks one.
func (c *Client) Bind(reg *registry.Registry) error {
	for _, key := range reg.Keys() {
		e, _ := reg.Lookup(key)
		if e.Accessor != nil {
			continue
		}
		if err := reg.SetAccessor(key, c.Accessor(e.Path)); err != nil {
			return err
		}
	}
	return nil
}

// Accessor implements registry.Accessor for one kind.
type Accessor struct {
	client *Client
	path   string
}

var _ registry.Accessor = (*Accessor)(nil)

func (a *Accessor) collectionURL() string {
	return a.client.base + "/" + a.path + "/"
}

func (a *Accessor) resourceURL(id string) string {
	return a.collectionURL() + url.PathEscape(id) + "/"
}

// Fetch reads one resource.
func (a *Accessor) Fetch(ctx context.Context, id string) (*value.Object, error) {
	return a.client.do(ctx, http.MethodGet, a.resourceURL(id), nil)
}

// Create posts a new resource and returns the stored representation.
func (a *Accessor) Create(ctx context.Context, payload *value.Object) (*value.Object, error) {
	return a.client.do(ctx, http.MethodPost, a.collectionURL(), payload)
}

// Update patches a resource.
func (a *Accessor) Update(ctx context.Context, id string, payload *value.Object) (*value.Object, error) {
	return a.client.do(ctx, http.MethodPatch, a.resourceURL(id), payload)
}

func (c *Client) do(ctx context.Context, method, target string, payload *value.Object) (*value.Object, error) {
	req := c.resty.R().SetContext(ctx)
	if payload != nil {
		body, err := value.Marshal(payload)
		if err != nil {
			return nil, apierrors.Wrap(err, apierrors.CodeInvalidInput, "transport: encode payload")
		}
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, target)
	if err != nil {
		c.logger.Debug("transport: request failed", "method", method, "url", target, "error", err)
		return nil, classify(err, method, target)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	body := resp.Bytes()
	c.logger.Debug("transport: response", "method", method, "url", target, "status", resp.StatusCode(), "duration", time.Since(start))
	if resp.IsError() || resp.StatusCode() >= 300 {
		return nil, newError(method, target, resp.StatusCode(), resp.Status(), body)
	}
	if len(body) == 0 {
		return value.NewObject(), nil
	}
	obj, err := value.ParseObject(body)
	if err != nil {
		return nil, apierrors.Wrapf(err, apierrors.CodeInternal, "transport: %s %s: decode response", method, target)
	}
	return obj, nil
}

// classify wraps a failure that produced no response.
func classify(err error, method, target string) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return apierrors.Wrapf(err, apierrors.CodeTimeout, "transport: %s %s", method, target)
	}
	return apierrors.Wrapf(err, apierrors.CodeNetwork, "transport: %s %s", method, target)
}

// StatusOf returns the HTTP status carried by err, or 0 when the request
// got no response.
func StatusOf(err error) (int, string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode, e.StatusText, true
	}
	return 0, "", false
}

// Describe renders err for a notification line: the HTTP status and the
// response detail, or "(no response)" with the error text.
func Describe(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return fmt.Sprintf("(HTTP %d - %s): %s", e.StatusCode, e.StatusText, e.Detail)
	}
	return fmt.Sprintf("(no response): %v", err)
}
