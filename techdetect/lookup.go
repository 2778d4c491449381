package techdetect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/siteaudit/backend/model"
)

const (
	DefaultLookupEndpoint = "https://api.builtwith.com/v21/api.json"
	lookupConfidence      = 95
	lookupTimeout         = 10 * time.Second
)

// Lookup queries a third-party technology database by bare domain.
type Lookup interface {
	Lookup(ctx context.Context, domain string) ([]model.Technology, error)
}

// BuiltWithLookup is a Lookup backed by the BuiltWith domain API.
type BuiltWithLookup struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewBuiltWithLookup returns nil when no key is configured, which disables the enrichment.
func NewBuiltWithLookup(endpoint, apiKey string, transport http.RoundTripper) *BuiltWithLookup {
	if apiKey == "" {
		return nil
	}
	if endpoint == "" {
		endpoint = DefaultLookupEndpoint
	}
	return &BuiltWithLookup{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: lookupTimeout, Transport: transport},
	}
}

// Lookup fetches the technologies BuiltWith knows for domain.
func (b *BuiltWithLookup) Lookup(ctx context.Context, domain string) ([]model.Technology, error) {
	if b == nil {
		return nil, nil
	}
	q := url.Values{}
	q.Set("KEY", b.apiKey)
	q.Set("LOOKUP", domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("lookup returned malformed json")
	}
	if msg := gjson.GetBytes(body, "Errors.0.Message"); msg.Exists() {
		return nil, fmt.Errorf("lookup error: %s", msg.String())
	}

	var techs []model.Technology
	gjson.GetBytes(body, "Results.#.Result.Paths.#.Technologies").ForEach(func(_, paths gjson.Result) bool {
		paths.ForEach(func(_, list gjson.Result) bool {
			list.ForEach(func(_, t gjson.Result) bool {
				name := t.Get("Name").String()
				if name == "" {
					return true
				}
				category := t.Get("Tag").String()
				if c := t.Get("Categories.0"); c.Exists() {
					category = c.String()
				}
				techs = append(techs, model.Technology{Name: name, Confidence: lookupConfidence, Category: category})
				return true
			})
			return true
		})
		return true
	})
	return techs, nil
}

// safeLookup turns every lookup failure into zero results.
func safeLookup(ctx context.Context, l Lookup, domain string, log *logrus.Entry) []model.Technology {
	if l == nil || domain == "" {
		return nil
	}
	techs, err := l.Lookup(ctx, domain)
	if err != nil {
		if log != nil {
			log.WithFields(logrus.Fields{"domain": domain, "error": err.Error()}).Debug("technology lookup failed")
		}
		return nil
	}
	return techs
}
