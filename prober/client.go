// Package prober issues the bounded outbound requests used by the fetcher, detectors and scanners.
package prober

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainreactors/proxyclient"
	"github.com/sirupsen/logrus"
)

const (
	// BrowserUserAgent is sent on every outbound request so targets serve their normal markup.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	MaxProbeBody   int64 = 512 * 1024
	DefaultTimeout       = 8 * time.Second
	maxRedirects         = 5
)

// Options configures a Client.
type Options struct {
	// AllowPrivate disables the private-address dial guard. Local testing only.
	AllowPrivate bool
	// OutboundProxy routes every request through scheme://[user:pass@]host:port when set.
	OutboundProxy string
	// Concurrency bounds parallel probes submitted through ProbeAll.
	Concurrency int
}

// Client shares one transport across every probe of every analysis.
type Client struct {
	transport *http.Transport
	pool      *Pool
	log       *logrus.Entry
}

// New creates a prober client and its worker pool.
func New(opts Options, log *logrus.Entry) (*Client, error) {
	transport, err := NewTransport(opts)
	if err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	c := &Client{transport: transport, log: log}
	pool, err := newPool(opts.Concurrency, c, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe pool: %w", err)
	}
	c.pool = pool
	return c, nil
}

// NewTransport builds the shared transport: tuned idle pool, guarded dialer, optional proxy dialer.
func NewTransport(opts Options) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !opts.AllowPrivate {
		dialer.Control = guardControl
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS10},
	}

	if opts.OutboundProxy != "" {
		proxy, err := url.Parse(opts.OutboundProxy)
		if err != nil {
			return nil, fmt.Errorf("invalid outbound proxy: %w", err)
		}
		proxyDialer, err := proxyclient.NewClient(proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy dialer: %w", err)
		}
		transport.DialContext = proxyDialer.DialContext
		if !opts.AllowPrivate {
			transport.DialContext = guardDial(proxyDialer.DialContext)
		}
	}
	return transport, nil
}

// Transport exposes the shared transport for clients built elsewhere.
func (c *Client) Transport() *http.Transport {
	return c.transport
}

// HTTPClient returns a client bound to the shared transport.
func (c *Client) HTTPClient(timeout time.Duration, followRedirects bool) *http.Client {
	return &http.Client{
		Timeout:       timeout,
		Transport:     c.transport,
		CheckRedirect: redirectPolicy(followRedirects),
	}
}

func redirectPolicy(follow bool) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !follow {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
}

// Request describes one probe.
type Request struct {
	Name            string
	Method          string
	URL             string
	Body            string
	ContentType     string
	Timeout         time.Duration
	FollowRedirects bool
}

// Response is a probe response with its body read up to MaxProbeBody.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Is2xx reports a successful status.
func (r *Response) Is2xx() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Do sends a single request. HEAD responses are returned without reading a body.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}

	resp, err := c.HTTPClient(r.Timeout, r.FollowRedirects).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header}
	if r.Method == http.MethodHead {
		return out, nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxProbeBody))
	if err != nil {
		return nil, err
	}
	out.Body = string(data)
	return out, nil
}

// Close releases the worker pool and idle connections.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.pool != nil {
		c.pool.Release()
	}
	c.transport.CloseIdleConnections()
}
