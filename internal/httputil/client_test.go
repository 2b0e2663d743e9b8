package httputil

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/JustinTDCT/EpisodeVault/internal/resilience"
)

func TestNewClient_DecodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "br, gzip" {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		io.WriteString(bw, `{"total":1}`)
		bw.Close()
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Policy: resilience.Default})
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Total int `json:"total"`
	}
	if err := DecodeJSON(resp, &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Total != 1 {
		t.Errorf("total = %d, want 1", out.Total)
	}
}

func TestNewClient_DecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		io.WriteString(zw, "hello")
		zw.Close()
	}))
	defer srv.Close()

	resp, err := NewClient(ClientOptions{}).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "hello" {
		t.Errorf("body = %q", b)
	}
}

func TestNewClient_SetsUserAgentOnce(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{UserAgent: "episodevault-test"})
	resp, _ := c.Get(srv.URL)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "custom")
	resp, _ = c.Do(req)
	resp.Body.Close()

	if len(got) != 2 || got[0] != "episodevault-test" || got[1] != "custom" {
		t.Errorf("user agents = %q", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestRateTransport_StopsOnCancelledContext(t *testing.T) {
	called := false
	rt := &RateTransport{
		Base: roundTripFunc(func(*http.Request) (*http.Response, error) {
			called = true
			return nil, nil
		}),
		Limiter: rate.NewLimiter(rate.Limit(0.001), 1),
	}
	rt.Limiter.Allow() // drain the only token

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected error from cancelled wait")
	}
	if called {
		t.Error("base transport called despite cancellation")
	}
}

func TestDecodeJSON_NonOKIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"missing"}`)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/series/x")
	if err != nil {
		t.Fatal(err)
	}
	var dst map[string]interface{}
	err = DecodeJSON(resp, &dst)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if he.StatusCode != http.StatusNotFound || he.Body != `{"error":"missing"}` {
		t.Errorf("HTTPError = %+v", he)
	}
}

func TestNewClient_TimeoutDoesNotCoverCooldown(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		io.WriteString(w, "archived")
	}))
	defer srv.Close()

	// Cooldown equals the timeout, so two of them exceed it.
	c := NewClient(ClientOptions{
		Timeout: 150 * time.Millisecond,
		Policy: resilience.Policy{
			Name:            "archive-test",
			MaxRetries:      5,
			Delay:           10 * time.Millisecond,
			BlockedCooldown: 150 * time.Millisecond,
		},
	})
	start := time.Now()
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK || string(b) != "archived" {
		t.Errorf("got %d %q, want 200 archived", resp.StatusCode, b)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("hits = %d, want 3", n)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Errorf("elapsed = %s, want both cooldowns served", elapsed)
	}
}

func TestNewClient_TimeoutAppliesPerAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{
		Timeout: 100 * time.Millisecond,
		Policy:  resilience.Policy{Name: "default-test", MaxRetries: 2, Delay: 10 * time.Millisecond},
	})
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "ok" {
		t.Errorf("body = %q", b)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("hits = %d, want 2", n)
	}
}

func TestNewClient_ContextStillBoundsWholeCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{
		Timeout: time.Second,
		Policy:  resilience.Policy{Name: "archive-test", MaxRetries: 5, BlockedCooldown: time.Minute},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	start := time.Now()
	if _, err := c.Do(req); err == nil {
		t.Fatal("expected error once the caller's deadline passed")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("elapsed = %s, cooldown not interrupted", elapsed)
	}
}
