// Package shopify talks to the storefront AJAX API on behalf of one shopper.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	cartCookie     = "cart"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
)

// Config is everything a Client needs. Nothing is read from the environment.
type Config struct {
	StoreURL   string
	RoutesRoot string
	Timeout    time.Duration

	// CartToken seeds the cart cookie so a returning shopper keeps their cart.
	CartToken string
	// OnCartToken is called whenever the store hands out a different token.
	OnCartToken func(token string)

	Transport http.RoundTripper
	Breaker   *gobreaker.CircuitBreaker
	Logger    logrus.FieldLogger
}

// Client is safe for concurrent use, though the cart drawer serializes
// mutations itself.
type Client struct {
	root    *url.URL
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	log     logrus.FieldLogger
	onToken func(string)

	mu    sync.Mutex
	token string
}

func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, errors.New("shopify: store url is required")
	}
	store, err := url.Parse(cfg.StoreURL)
	if err != nil {
		return nil, errors.Wrap(err, "shopify: invalid store url")
	}
	if store.Scheme == "" || store.Host == "" {
		return nil, errors.Errorf("shopify: store url %q must be absolute", cfg.StoreURL)
	}
	routes := cfg.RoutesRoot
	if routes == "" {
		routes = "/"
	}
	if !strings.HasPrefix(routes, "/") {
		routes = "/" + routes
	}
	if !strings.HasSuffix(routes, "/") {
		routes += "/"
	}
	root := store.ResolveReference(&url.URL{Path: routes})

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "shopify: cookie jar")
	}
	if cfg.CartToken != "" {
		jar.SetCookies(root, []*http.Cookie{{Name: cartCookie, Value: cfg.CartToken, Path: "/"}})
	}

	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	cb := cfg.Breaker
	if cb == nil {
		cb = NewBreaker("shopify", log)
	}

	return &Client{
		root:    root,
		http:    &http.Client{Transport: transport, Jar: jar, Timeout: timeout},
		cb:      cb,
		log:     log,
		onToken: cfg.OnCartToken,
		token:   cfg.CartToken,
	}, nil
}

// CartToken is the token of the cart this client is bound to, if any.
func (c *Client) CartToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// NewBreaker builds the circuit breaker shared by every shopper client. Only
// network-class failures count against it.
func NewBreaker(name string, log logrus.FieldLogger) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}

func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindRejected || errors.Is(se, ErrProductNotFound)
	}
	return false
}

type storeError struct {
	Status      json.RawMessage `json:"status"`
	Message     string          `json:"message"`
	Description string          `json:"description"`
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.root.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs one JSON round trip through the breaker.
func (c *Client) do(ctx context.Context, op Op, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: KindParse, Err: errors.Wrap(err, "encode request")}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(req, op, out)
	})
	c.syncToken()

	log := c.log.WithFields(logrus.Fields{
		"shopify.op":      string(op),
		"shopify.path":    path,
		"shopify.took_ms": time.Since(start).Milliseconds(),
	})
	if err == nil {
		log.Debug("shopify call ok")
		return nil
	}
	var se *Error
	if !errors.As(err, &se) {
		// gobreaker.ErrOpenState and ErrTooManyRequests
		se = &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	log.WithError(se).Warn("shopify call failed")
	return se
}

func (c *Client) roundTrip(req *http.Request, op Op, out interface{}) error {
	res, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Status: res.StatusCode, Err: errors.Wrap(err, "read body")}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var se storeError
		if json.Unmarshal(data, &se) == nil && (se.Message != "" || se.Description != "") {
			return &Error{Op: op, Kind: KindRejected, Status: res.StatusCode, Message: se.Message, Description: se.Description}
		}
		return &Error{Op: op, Kind: KindNetwork, Status: res.StatusCode, Err: errors.Errorf("HTTP error! status: %d", res.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, Kind: KindParse, Status: res.StatusCode, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

func (c *Client) syncToken() {
	var current string
	for _, ck := range c.http.Jar.Cookies(c.root) {
		if ck.Name == cartCookie {
			current = ck.Value
		}
	}
	c.mu.Lock()
	changed := current != "" && current != c.token
	if changed {
		c.token = current
	}
	c.mu.Unlock()
	if changed && c.onToken != nil {
		c.onToken(current)
	}
}
