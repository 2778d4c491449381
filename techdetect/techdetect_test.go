package techdetect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteaudit/backend/model"
)

func testLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.New())
}

func find(techs []model.Technology, name string) (model.Technology, bool) {
	for _, t := range techs {
		if t.Name == name {
			return t, true
		}
	}
	return model.Technology{}, false
}

func TestMergeDedupesCaseInsensitive(t *testing.T) {
	a := []model.Technology{
		{Name: "WordPress", Confidence: 95, Category: "CMS"},
		{Name: "jQuery", Confidence: 85},
	}
	b := []model.Technology{
		{Name: "wordpress", Confidence: 100, Version: "6.4"},
		{Name: "Nginx", Confidence: 99},
	}

	merged := Merge(a, b)
	require.Len(t, merged, 3)
	assert.Equal(t, "Nginx", merged[0].Name)
	wp, ok := find(merged, "WordPress")
	require.True(t, ok)
	assert.Equal(t, 95, wp.Confidence)
	assert.Empty(t, wp.Version)
}

func TestMergeIdempotent(t *testing.T) {
	a := []model.Technology{
		{Name: "React", Confidence: 80},
		{Name: "Cloudflare", Confidence: 90},
		{Name: "Bootstrap", Confidence: 75},
	}
	once := Merge(a)
	assert.Equal(t, once, Merge(a, nil))
	assert.Equal(t, once, Merge(a, a))
	assert.Equal(t, once, Merge(once))
}

func TestMergeCapsAndSorts(t *testing.T) {
	var many []model.Technology
	for i := 0; i < 30; i++ {
		many = append(many, model.Technology{Name: string(rune('a'+i%26)) + string(rune('A'+i/26)), Confidence: i})
	}
	merged := Merge(many)
	require.Len(t, merged, MaxTechnologies)
	for i := 1; i < len(merged); i++ {
		assert.GreaterOrEqual(t, merged[i-1].Confidence, merged[i].Confidence)
	}
	assert.Equal(t, 29, merged[0].Confidence)
}

func TestSignalsPartialCaching(t *testing.T) {
	page := &model.FetchedPage{
		URL:     "https://example.com",
		HTML:    `<html><link rel="stylesheet" href="/wp-content/themes/astra/style.css?ver=1.0"></html>`,
		Headers: map[string]string{"cache-control": "max-age=3600", "etag": "abc"},
	}
	s := Signals(page)
	assert.True(t, s.HasSSL)
	assert.False(t, s.HasCDN)
	assert.Equal(t, model.CachingPartial, s.Caching)
	assert.Equal(t, model.ImagesGood, s.ImageOptimization)
}

func TestSignalsCachingLevels(t *testing.T) {
	assert.Equal(t, model.CachingDisabled, caching(map[string]string{}))
	assert.Equal(t, model.CachingEnabled, caching(map[string]string{
		"cache-control": "public", "etag": "x", "expires": "Thu, 01 Dec 2094 16:00:00 GMT",
	}))
}

func TestSignalsCDN(t *testing.T) {
	assert.True(t, hasCDN("", map[string]string{"cf-ray": "abc-AMS"}))
	assert.True(t, hasCDN(`<script src="https://cdn.jsdelivr.net/npm/x"></script>`, nil))
	assert.True(t, hasCDN("", map[string]string{"server": "cloudflare"}))
	assert.False(t, hasCDN("<p>plain</p>", map[string]string{"server": "nginx"}))
	assert.False(t, Signals(&model.FetchedPage{URL: "http://example.com"}).HasSSL)
}

func TestImageOptimization(t *testing.T) {
	good := `<img src="a.webp"><img src="b.jpg" loading="lazy"><img src="c.png" srcset="c2.png 2x">`
	mixed := `<img src="a.webp"><img src="b.jpg"><img src="c.png">`
	poor := `<img src="a.jpg"><img src="b.jpg"><img src="c.png"><img src="d.gif">`
	assert.Equal(t, model.ImagesGood, imageOptimization(good))
	assert.Equal(t, model.ImagesNeedsImprovement, imageOptimization(mixed))
	assert.Equal(t, model.ImagesPoor, imageOptimization(poor))
}

func TestDetectSignatures(t *testing.T) {
	html := `<meta name="generator" content="WordPress 6.4.2"><script src="/wp-includes/js/jquery/jquery.min.js?ver=3.7.1"></script>
<script async src="https://www.googletagmanager.com/gtag/js?id=G-1"></script>`
	techs := detectSignatures(strings.ToLower(html), "nginx/1.25.3\n")

	wp, ok := find(techs, "WordPress")
	require.True(t, ok)
	assert.Equal(t, "6.4.2", wp.Version)
	jq, ok := find(techs, "jQuery")
	require.True(t, ok)
	assert.Equal(t, "3.7.1", jq.Version)
	ngx, ok := find(techs, "Nginx")
	require.True(t, ok)
	assert.Equal(t, "1.25.3", ngx.Version)
	_, ok = find(techs, "Google Tag Manager")
	assert.True(t, ok)
	_, ok = find(techs, "React")
	assert.False(t, ok)
}

type fakeLookup struct {
	techs []model.Technology
	err   error
	got   string
}

func (f *fakeLookup) Lookup(_ context.Context, domain string) ([]model.Technology, error) {
	f.got = domain
	return f.techs, f.err
}

func TestDetectLookupTakesPrecedence(t *testing.T) {
	lookup := &fakeLookup{techs: []model.Technology{{Name: "wordpress", Confidence: 95, Category: "CMS"}}}
	d := New(lookup, testLogger())
	page := &model.FetchedPage{
		URL:     "https://www.example.com/blog",
		HTML:    `<html><link href="/wp-content/themes/x/style.css"></html>`,
		Headers: map[string]string{},
	}

	res := d.Detect(context.Background(), page)
	assert.Equal(t, "example.com", lookup.got)
	assert.Equal(t, 1, res.LookupHits)
	wp, ok := find(res.Technologies, "wordpress")
	require.True(t, ok)
	assert.Equal(t, 95, wp.Confidence)
	_, dup := find(res.Technologies, "WordPress")
	assert.False(t, dup)
}

func TestDetectLookupFailureIsSilent(t *testing.T) {
	d := New(&fakeLookup{err: errors.New("quota exceeded")}, testLogger())
	page := &model.FetchedPage{URL: "https://example.com", HTML: `<div data-reactroot></div>`, Headers: map[string]string{}}

	res := d.Detect(context.Background(), page)
	assert.Zero(t, res.LookupHits)
	_, ok := find(res.Technologies, "React")
	assert.True(t, ok)
}

func TestBuiltWithLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("KEY"))
		assert.Equal(t, "example.com", r.URL.Query().Get("LOOKUP"))
		w.Write([]byte(`{"Results":[{"Result":{"Paths":[{"Technologies":[
			{"Name":"Cloudflare","Tag":"cdns"},
			{"Name":"WordPress","Tag":"cms","Categories":["Open Source"]}]}]}}]}`))
	}))
	defer srv.Close()

	l := NewBuiltWithLookup(srv.URL, "secret", http.DefaultTransport)
	techs, err := l.Lookup(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, techs, 2)
	assert.Equal(t, model.Technology{Name: "Cloudflare", Confidence: 95, Category: "cdns"}, techs[0])
	assert.Equal(t, "Open Source", techs[1].Category)
}

func TestBuiltWithLookupErrors(t *testing.T) {
	assert.Nil(t, NewBuiltWithLookup("", "", nil))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Errors":[{"Message":"invalid key"}]}`))
	}))
	defer srv.Close()

	l := NewBuiltWithLookup(srv.URL, "bad", http.DefaultTransport)
	_, err := l.Lookup(context.Background(), "example.com")
	assert.Error(t, err)
	assert.Nil(t, safeLookup(context.Background(), l, "example.com", testLogger()))
}
