// Package fetcher retrieves a target page with a direct request and a content-proxy fallback.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/axgle/mahonia"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/zan8in/retryablehttp"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/prober"
)

const (
	// MinContentLength is the smallest HTML body worth analyzing.
	MinContentLength = 100

	maxBodySize int64 = 5 << 20

	DefaultDirectTimeout = 15 * time.Second
	DefaultProxyTimeout  = 20 * time.Second
	DefaultProxyEndpoint = "https://api.allorigins.win/get"
)

// Resolver looks up the addresses of a host before it is fetched.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Options configures a Fetcher.
type Options struct {
	DirectTimeout time.Duration
	ProxyTimeout  time.Duration
	ProxyEndpoint string
	AllowPrivate  bool
	Resolver      Resolver
}

// Fetcher implements fetch(url) -> FetchedPage.
type Fetcher struct {
	direct *retryablehttp.Client
	proxy  *retryablehttp.Client
	opts   Options
	log    *logrus.Entry
}

// New creates a Fetcher on top of the shared transport. Retries are disabled: the proxy is the only fallback.
func New(transport http.RoundTripper, opts Options, log *logrus.Entry) *Fetcher {
	if opts.DirectTimeout <= 0 {
		opts.DirectTimeout = DefaultDirectTimeout
	}
	if opts.ProxyTimeout <= 0 {
		opts.ProxyTimeout = DefaultProxyTimeout
	}
	if opts.ProxyEndpoint == "" {
		opts.ProxyEndpoint = DefaultProxyEndpoint
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	return &Fetcher{
		direct: newClient(transport, opts.DirectTimeout),
		proxy:  newClient(transport, opts.ProxyTimeout),
		opts:   opts,
		log:    log,
	}
}

func newClient(transport http.RoundTripper, timeout time.Duration) *retryablehttp.Client {
	opts := retryablehttp.DefaultOptionsSingle
	opts.Timeout = timeout
	opts.RetryMax = 0

	client := retryablehttp.NewClient(opts)
	client.HTTPClient.Transport = transport
	client.HTTPClient.Timeout = timeout
	client.HTTPClient2.Transport = transport
	client.HTTPClient2.Timeout = timeout
	return client
}

// Fetch normalizes and validates rawURL, then fetches it directly, falling back to the content proxy.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*model.FetchedPage, error) {
	target, err := f.Prepare(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	page, directErr := f.fetchDirect(ctx, target)
	if directErr != nil {
		if errors.Is(directErr, prober.ErrBlockedAddress) {
			return nil, fmt.Errorf("%w: %v", ErrForbidden, directErr)
		}
		f.log.WithFields(logrus.Fields{"url": target, "error": directErr.Error()}).Info("direct fetch failed, trying proxy")

		var proxyErr error
		page, proxyErr = f.fetchViaProxy(ctx, target)
		if proxyErr != nil {
			return nil, fmt.Errorf("%w: direct: %v; proxy: %v", ErrFetchFailed, directErr, proxyErr)
		}
	}

	if len(strings.TrimSpace(page.HTML)) < MinContentLength {
		return nil, fmt.Errorf("%w: %d characters", ErrInsufficientContent, len(page.HTML))
	}
	return page, nil
}

// Prepare runs every input check: normalization, the literal SSRF guard and, unless private targets
// are allowed, a resolution check so names pointing at private ranges are refused up front.
func (f *Fetcher) Prepare(ctx context.Context, rawURL string) (string, error) {
	target, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}
	if f.opts.AllowPrivate {
		return target, nil
	}
	if err := Validate(target); err != nil {
		return "", err
	}

	u, _ := url.Parse(target)
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return target, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	addrs, err := f.opts.Resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		// unresolvable names fail later as fetch errors
		return target, nil
	}
	for _, a := range addrs {
		if prober.IsBlockedIP(a.IP) {
			return "", fmt.Errorf("%w: %s resolves to %s", ErrForbidden, host, a.IP)
		}
	}
	return target, nil
}

func (f *Fetcher) fetchDirect(ctx context.Context, target string) (*model.FetchedPage, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", prober.BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.direct.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	return &model.FetchedPage{
		URL:     target,
		HTML:    decodeBody(body, resp.Header.Get("Content-Type")),
		Headers: headers,
	}, nil
}

func (f *Fetcher) fetchViaProxy(ctx context.Context, target string) (*model.FetchedPage, error) {
	proxyURL := f.opts.ProxyEndpoint + "?url=" + url.QueryEscape(target)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, proxyURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", prober.BrowserUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.proxy.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("proxy returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("proxy returned a malformed envelope")
	}
	contents := gjson.GetBytes(body, "contents")
	if !contents.Exists() {
		return nil, errors.New("proxy envelope has no contents")
	}

	return &model.FetchedPage{
		URL:      target,
		HTML:     contents.String(),
		Headers:  map[string]string{},
		ViaProxy: true,
	}, nil
}

// decodeBody converts bodies declared in a legacy charset to UTF-8.
func decodeBody(body []byte, contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body)
	}
	charset := strings.ToLower(strings.TrimSpace(params["charset"]))
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(body)
	}
	dec := mahonia.NewDecoder(charset)
	if dec == nil {
		return string(body)
	}
	return dec.ConvertString(string(body))
}
