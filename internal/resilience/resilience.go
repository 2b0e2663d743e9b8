// Package resilience retries outbound HTTP calls according to a Policy.
//
// Transport is an http.RoundTripper decorator, so a policy sits in the call
// chain like any other handler:
//
//	client := &http.Client{Transport: &resilience.Transport{Base: base, Policy: resilience.Archive}}
package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/JustinTDCT/EpisodeVault/internal/metrics"
)

// maxBufferedBody caps how much of a retryable response is kept in memory
// so it can be handed back if the budget runs out.
const maxBufferedBody = 1 << 20

// Policy describes when and how long to wait before retrying.
type Policy struct {
	Name       string
	MaxRetries uint          // retries after the first attempt
	Delay      time.Duration // fixed wait between attempts
	// BlockedCooldown replaces Delay after a 403 from anti-bot protection.
	// Zero means 403 is not retried.
	BlockedCooldown time.Duration
}

var (
	Default = Policy{Name: "default", MaxRetries: 3, Delay: 5 * time.Second}
	Archive = Policy{Name: "archive", MaxRetries: 5, Delay: 10 * time.Second, BlockedCooldown: 3 * time.Minute}
)

// StatusError reports a response status the policy treated as retryable.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Retryable reports whether a response status is worth another attempt.
func (p Policy) Retryable(status int) bool {
	switch {
	case status == http.StatusRequestTimeout:
		return true
	case status >= 500:
		return true
	case status == http.StatusForbidden:
		return p.BlockedCooldown > 0
	}
	return false
}

// DelayFor returns the wait before the attempt following err.
func (p Policy) DelayFor(err error) time.Duration {
	var se *StatusError
	if p.BlockedCooldown > 0 && errors.As(err, &se) && se.StatusCode == http.StatusForbidden {
		return p.BlockedCooldown
	}
	return p.Delay
}

// Transport applies Policy to every request passing through Base.
//
// A budget exhausted on retryable statuses returns the final response; one
// exhausted on network errors returns the last error.
//
// AttemptTimeout bounds each attempt, body included, and never the waits in
// between. The request context still bounds the whole call.
type Transport struct {
	Base           http.RoundTripper
	Policy         Policy
	AttemptTimeout time.Duration

	timer retry.Timer
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	p := t.Policy
	ctx := req.Context()

	attempts := p.MaxRetries + 1
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		attempts = 1
	}

	var (
		resp *http.Response
		last *http.Response
	)
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.DelayType(func(_ uint, err error, _ *retry.Config) time.Duration {
			return p.DelayFor(err)
		}),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= attempts {
				return
			}
			metrics.UpstreamRetries.WithLabelValues(p.Name).Inc()
			var se *StatusError
			if p.BlockedCooldown > 0 && errors.As(err, &se) && se.StatusCode == http.StatusForbidden {
				metrics.AntiBotCooldowns.WithLabelValues(p.Name).Inc()
				log.Printf("[resilience] %s: blocked by anti-bot protection on %s, cooling down %s (attempt %d/%d)",
					p.Name, req.URL.Host, p.BlockedCooldown, n+1, attempts)
				return
			}
			log.Printf("[resilience] %s: attempt %d/%d for %s failed: %v; retrying in %s",
				p.Name, n+1, attempts, req.URL.Redacted(), err, p.Delay)
		}),
	}
	if t.timer != nil {
		opts = append(opts, retry.WithTimer(t.timer))
	}

	err := retry.Do(func() error {
		actx, cancel := ctx, context.CancelFunc(func() {})
		if t.AttemptTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, t.AttemptTimeout)
		}
		r, err := rewind(actx, req)
		if err != nil {
			cancel()
			return retry.Unrecoverable(err)
		}
		res, err := base.RoundTrip(r)
		if err != nil {
			cancel()
			return err
		}
		if p.Retryable(res.StatusCode) {
			buffered, err := buffer(res)
			cancel()
			if err != nil {
				return err
			}
			last = buffered
			return &StatusError{StatusCode: res.StatusCode, URL: req.URL.Redacted()}
		}
		res.Body = &cancelBody{ReadCloser: res.Body, cancel: cancel}
		last = nil
		resp = res
		return nil
	}, opts...)
	if err == nil {
		return resp, nil
	}

	var se *StatusError
	if errors.As(err, &se) && last != nil && ctx.Err() == nil {
		return last, nil
	}
	return nil, err
}

// rewind returns a request bound to ctx whose body can be read again for
// this attempt.
func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		if ctx == req.Context() {
			return req, nil
		}
		return req.WithContext(ctx), nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r := req.Clone(ctx)
	r.Body = body
	return r, nil
}

// cancelBody releases the attempt deadline once the caller is done reading.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// buffer drains res so its connection is released during the wait.
func buffer(res *http.Response) (*http.Response, error) {
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxBufferedBody))
	if err != nil {
		return nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(b))
	res.ContentLength = int64(len(b))
	return res, nil
}
