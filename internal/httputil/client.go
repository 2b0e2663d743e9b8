package httputil

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/JustinTDCT/EpisodeVault/internal/resilience"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ClientOptions configures an outbound client. The transport chain, outermost
// first, is: retry policy, headers, rate limiter, content decoding, Via.
type ClientOptions struct {
	// Timeout bounds a single attempt. Retries and the waits between them are
	// bounded by the policy budget and the request context, not by Timeout.
	Timeout    time.Duration
	UserAgent  string
	RatePerSec float64 // <= 0 disables pacing
	Policy     resilience.Policy
	// Via is the innermost transport, e.g. a challenge-solving proxy.
	// Nil uses a clone of http.DefaultTransport.
	Via http.RoundTripper
}

// NewClient builds an *http.Client with a cookie jar and the transport chain
// described on ClientOptions.
func NewClient(o ClientOptions) *http.Client {
	base := o.Via
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	var rt http.RoundTripper = &decodeTransport{base: base}
	if o.RatePerSec > 0 {
		burst := int(o.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		rt = &RateTransport{Base: rt, Limiter: rate.NewLimiter(rate.Limit(o.RatePerSec), burst)}
	}
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	rt = &headerTransport{base: rt, userAgent: ua}
	rt = &resilience.Transport{Base: rt, Policy: o.Policy, AttemptTimeout: o.Timeout}

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{
		Transport: rt,
		Jar:       jar,
	}
}

// RateTransport waits on Limiter before every request.
type RateTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

func (t *RateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.Base.RoundTrip(req)
}

type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// decodeTransport advertises brotli and gzip and decodes either. Setting
// Accept-Encoding ourselves disables net/http's transparent gzip.
type decodeTransport struct {
	base http.RoundTripper
}

func (t *decodeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		r := req.Clone(req.Context())
		r.Header.Set("Accept-Encoding", "br, gzip")
		req = r
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength == 0 || req.Method == http.MethodHead {
		return resp, nil
	}
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		resp.Body = &wrappedBody{Reader: brotli.NewReader(resp.Body), closer: resp.Body}
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body = &wrappedBody{Reader: zr, closer: resp.Body}
	default:
		return resp, nil
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

type wrappedBody struct {
	io.Reader
	closer io.Closer
}

func (b *wrappedBody) Close() error { return b.closer.Close() }
