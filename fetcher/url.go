package fetcher

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/siteaudit/backend/prober"
)

// MaxURLLength bounds the normalized URL.
const MaxURLLength = 2048

var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrForbidden           = errors.New("target is not allowed")
	ErrFetchFailed         = errors.New("failed to fetch target")
	ErrInsufficientContent = errors.New("insufficient content to analyze")
)

var hostnamePattern = regexp.MustCompile(`^(?i)[a-z0-9_]([a-z0-9_-]*[a-z0-9])?(\.[a-z0-9_]([a-z0-9_-]*[a-z0-9])?)*\.?$`)

// Normalize prefixes https:// when no scheme is given and checks the result is a well-formed http(s) URL.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	lower := strings.ToLower(raw)
	normalized := raw
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.Contains(raw, "://"):
		return "", fmt.Errorf("%w: unsupported scheme", ErrInvalidURL)
	default:
		normalized = "https://" + raw
	}

	if len(normalized) > MaxURLLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidURL, MaxURLLength)
	}
	if strings.ContainsAny(normalized, " \t\r\n") {
		return "", fmt.Errorf("%w: contains whitespace", ErrInvalidURL)
	}

	u, err := url.ParseRequestURI(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: credentials are not allowed", ErrInvalidURL)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !isASCII(host) {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("%w: malformed host %q: %v", ErrInvalidURL, host, err)
		}
		normalized = strings.Replace(normalized, host, ascii, 1)
		host = ascii
	}
	if net.ParseIP(host) == nil && !hostnamePattern.MatchString(host) {
		return "", fmt.Errorf("%w: malformed host %q", ErrInvalidURL, host)
	}
	return normalized, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Validate applies the SSRF guard to a normalized URL without touching the network.
func Validate(normalized string) error {
	u, err := url.Parse(normalized)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if prober.IsBlockedHost(u.Hostname()) {
		return fmt.Errorf("%w: %s", ErrForbidden, u.Hostname())
	}
	return nil
}

// Domain returns the bare hostname of a URL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
