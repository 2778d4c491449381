package prober

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Options{AllowPrivate: true, Concurrency: 4}, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestIsBlockedHost(t *testing.T) {
	blocked := []string{"127.0.0.1", "10.0.0.1", "192.168.1.1", "169.254.1.1", "172.16.4.2", "localhost", "printer.local", "db.internal", "[::1]", "0.0.0.0"}
	for _, h := range blocked {
		assert.True(t, IsBlockedHost(h), h)
	}
	allowed := []string{"example.com", "8.8.8.8", "wordpress.org"}
	for _, h := range allowed {
		assert.False(t, IsBlockedHost(h), h)
	}
}

func TestGuardControl(t *testing.T) {
	assert.ErrorIs(t, guardControl("tcp", "127.0.0.1:80", nil), ErrBlockedAddress)
	assert.ErrorIs(t, guardControl("tcp", "[fe80::1]:443", nil), ErrBlockedAddress)
	assert.NoError(t, guardControl("tcp", "93.184.216.34:443", nil))
}

func TestGuardedTransportRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c, err := New(Options{}, nil)
	require.NoError(t, err)
	defer c.Close()

	out := c.Probe(context.Background(), Request{Name: "loopback", URL: srv.URL}, Status2xx)
	assert.False(t, out.Detected())
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, ErrBlockedAddress)
}

func stubLookup(t *testing.T, addrs map[string]string) {
	t.Helper()
	orig := lookupIPAddr
	lookupIPAddr = func(_ context.Context, host string) ([]net.IPAddr, error) {
		ip, ok := addrs[host]
		if !ok {
			return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
		}
		return []net.IPAddr{{IP: net.ParseIP(ip)}}, nil
	}
	t.Cleanup(func() { lookupIPAddr = orig })
}

func TestGuardDial(t *testing.T) {
	stubLookup(t, map[string]string{"public.example": "93.184.216.34", "rebind.example": "10.0.0.5"})

	dialed := 0
	next := func(context.Context, string, string) (net.Conn, error) {
		dialed++
		return nil, nil
	}
	dial := guardDial(next)

	for _, addr := range []string{"169.254.169.254:80", "127.0.0.1:8080", "[::1]:443", "localhost:80", "rebind.example:443", "no-port"} {
		_, err := dial(context.Background(), "tcp", addr)
		assert.ErrorIs(t, err, ErrBlockedAddress, addr)
	}
	assert.Zero(t, dialed)

	_, err := dial(context.Background(), "tcp", "public.example:443")
	require.NoError(t, err)
	_, err = dial(context.Background(), "tcp", "93.184.216.34:80")
	require.NoError(t, err)
	assert.Equal(t, 2, dialed)
}

func TestGuardDialRefusesRedirectToPrivateLiteral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
			return
		}
		w.Write([]byte("instance credentials"))
	}))
	defer srv.Close()
	stubLookup(t, map[string]string{"public.example": "93.184.216.34"})

	// stands in for the proxy: every permitted dial reaches the test server
	viaProxy := func(ctx context.Context, network, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, network, srv.Listener.Addr().String())
	}
	client := &http.Client{Transport: &http.Transport{DialContext: guardDial(viaProxy)}, Timeout: 5 * time.Second}

	resp, err := client.Get("http://public.example/")
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestProxyTransportKeepsGuard(t *testing.T) {
	tr, err := NewTransport(Options{OutboundProxy: "socks5://127.0.0.1:1080"})
	require.NoError(t, err)
	_, err = tr.DialContext(context.Background(), "tcp", "169.254.169.254:80")
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestProbeRedirectControl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/author/admin/", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), Request{URL: srv.URL + "/start"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "/author/")

	resp, err = c.Do(context.Background(), Request{URL: srv.URL + "/start", FollowRedirects: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProbeTimeoutIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(t)
	out := c.Probe(context.Background(), Request{Name: "slow", URL: srv.URL, Timeout: 50 * time.Millisecond}, Status2xx)
	assert.Error(t, out.Err)
	assert.False(t, out.Detected())
}

func TestProbeAllKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.env", "/backup":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t)
	paths := []string{"/.env", "/missing", "/backup", "/other", "/nope"}
	reqs := make([]Request, len(paths))
	for i, p := range paths {
		reqs[i] = Request{Name: p, Method: http.MethodHead, URL: srv.URL + p}
	}
	outcomes := c.ProbeAll(context.Background(), reqs, Status2xx)
	require.Len(t, outcomes, len(paths))

	var found []string
	for i, o := range outcomes {
		assert.Equal(t, paths[i], o.Name)
		if o.Detected() {
			found = append(found, o.Name)
		}
	}
	assert.Equal(t, []string{"/.env", "/backup"}, found)
	assert.EqualValues(t, len(paths), c.PoolStats().Completed)
}
