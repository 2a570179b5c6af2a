// Package cellular drives a provider check URL over the device's mobile data
// interface. The provider correlates the request's source address with the
// subscriber's mobile network session, so the request must never leave over
// Wi-Fi or any other route.
package cellular

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

// DialFunc opens a connection; it matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type controlFunc func(network, address string, c syscall.RawConn) error

type config struct {
	timeout      time.Duration
	maxRedirects int
	maxBodySize  int64
	dial         DialFunc
	logger       *slog.Logger
}

func defaultConfig() config {
	return config{
		timeout:      20 * time.Second,
		maxRedirects: 10,
		maxBodySize:  1 << 20,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option configures an Executor.
type Option func(*config)

// WithTimeout bounds the whole redirect chain. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRedirects caps the redirects followed. Negative values are ignored.
func WithMaxRedirects(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.maxRedirects = n
		}
	}
}

// WithMaxBodySize limits how much of the terminal body is read.
func WithMaxBodySize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithDialContext replaces interface binding with a custom dialer. Intended
// for tests and for platforms that route cellular traffic by other means.
func WithDialContext(dial DialFunc) Option {
	return func(c *config) {
		c.dial = dial
	}
}

// WithLogger sets the logger used for redirect tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Executor performs check URL requests bound to one network interface.
type Executor struct {
	iface string
	cfg   config
}

// New creates an Executor bound to the named cellular interface, for example
// "rmnet_data0" on Android, "pdp_ip0" on iOS or "wwan0" on Linux modems.
func New(iface string, opts ...Option) *Executor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Executor{iface: iface, cfg: cfg}
}

// ExecuteOverCellular issues a GET against checkURL over the cellular
// interface, follows redirects and decodes the final response. It never
// retries and never returns an error value: failures are NetworkError.
func (e *Executor) ExecuteOverCellular(ctx context.Context, checkURL string) Outcome {
	dial, err := e.dialer()
	if err != nil {
		return NetworkError{Description: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return NetworkError{Description: fmt.Sprintf("invalid check url: %v", err)}
	}

	start := time.Now()
	resp, err := e.client(dial).Do(req)
	if err != nil {
		return NetworkError{Description: describe(ctx, err, e.cfg.timeout)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.maxBodySize))
	if err != nil {
		return NetworkError{Description: "read check response: " + err.Error()}
	}

	status, body := DecodeBody(resp.StatusCode, raw)
	e.cfg.logger.Debug("check url completed",
		slog.String("interface", e.iface),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	return HTTPResult{Status: status, Body: body}
}

func (e *Executor) dialer() (DialFunc, error) {
	if e.cfg.dial != nil {
		return e.cfg.dial, nil
	}
	if e.iface == "" {
		return nil, errors.New("no cellular interface configured")
	}
	ifi, err := net.InterfaceByName(e.iface)
	if err != nil {
		return nil, fmt.Errorf("cellular interface %s unavailable: %w", e.iface, err)
	}
	if ifi.Flags&net.FlagUp == 0 {
		return nil, fmt.Errorf("cellular interface %s is down", ifi.Name)
	}
	control, err := bindControl(ifi)
	if err != nil {
		return nil, err
	}

	// DNS lookups are bound too: a resolver reached over Wi-Fi may answer
	// with addresses that are not routable from the carrier network.
	lookup := &net.Dialer{Timeout: e.cfg.timeout, Control: control}
	d := &net.Dialer{
		Timeout: e.cfg.timeout,
		Control: control,
		Resolver: &net.Resolver{
			PreferGo: true,
			Dial:     lookup.DialContext,
		},
	}
	return d.DialContext, nil
}

func (e *Executor) client(dial DialFunc) *http.Client {
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dial,
		DisableKeepAlives:     true,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	maxRedirects := e.cfg.maxRedirects
	logger := e.cfg.logger
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			logger.Debug("following check redirect", slog.String("host", req.URL.Host), slog.Int("hop", len(via)))
			return nil
		},
	}
}

func describe(ctx context.Context, err error, timeout time.Duration) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Sprintf("cellular request timed out after %s", timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return "cellular request cancelled"
	default:
		return err.Error()
	}
}
