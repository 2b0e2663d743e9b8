// Package flaresolverr routes GET requests through a FlareSolverr-compatible
// challenge-solving proxy.
package flaresolverr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Proxy is the upstream proxy FlareSolverr's browser should use.
type Proxy struct {
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type request struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int    `json:"maxTimeout"`
	Proxy      *Proxy `json:"proxy,omitempty"`
}

type response struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		URL       string            `json:"url"`
		Status    int               `json:"status"`
		Headers   map[string]string `json:"headers"`
		Response  string            `json:"response"`
		UserAgent string            `json:"userAgent"`
	} `json:"solution"`
}

// Transport sends GET requests to BaseURL/v1 as request.get commands and
// turns the solution into an ordinary *http.Response. Other methods go to
// Fallback untouched.
type Transport struct {
	BaseURL  string
	Timeout  time.Duration
	Proxy    *Proxy
	Client   *http.Client
	Fallback http.RoundTripper
}

func New(baseURL string, timeout time.Duration, proxy *Proxy) *Transport {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if proxy != nil && proxy.URL == "" {
		proxy = nil
	}
	return &Transport{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Timeout: timeout,
		Proxy:   proxy,
		// the solver itself may take the whole maxTimeout
		Client: &http.Client{Timeout: timeout + 30*time.Second},
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		fb := t.Fallback
		if fb == nil {
			fb = http.DefaultTransport
		}
		return fb.RoundTrip(req)
	}

	payload, err := json.Marshal(request{
		Cmd:        "request.get",
		URL:        req.URL.String(),
		MaxTimeout: int(t.Timeout / time.Millisecond),
		Proxy:      t.Proxy,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal flaresolverr request: %w", err)
	}
	solverReq, err := http.NewRequestWithContext(req.Context(), http.MethodPost, t.BaseURL+"/v1", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	solverReq.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(solverReq)
	if err != nil {
		return nil, fmt.Errorf("call flaresolverr: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read flaresolverr response: %w", err)
	}
	var fr response
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("decode flaresolverr response (HTTP %d): %w", resp.StatusCode, err)
	}
	if fr.Status != "ok" {
		return nil, fmt.Errorf("flaresolverr returned status %q: %s", fr.Status, fr.Message)
	}

	status := fr.Solution.Status
	if status == 0 {
		status = http.StatusOK
	}
	content := fr.Solution.Response
	contentType := "text/html; charset=utf-8"
	if unwrapped, ok := UnwrapJSON(content); ok {
		content = unwrapped
		contentType = "application/json"
	}
	if len(content) < 2000 && contentType != "application/json" {
		log.Printf("[flaresolverr] short solution for %s (%d bytes), possibly an unsolved challenge", req.URL.Redacted(), len(content))
	}

	header := make(http.Header)
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(content)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(content)),
		ContentLength: int64(len(content)),
		Request:       req,
	}, nil
}

// UnwrapJSON extracts a JSON document that a headless browser rendered
// inside <pre>. It reports false for anything else.
func UnwrapJSON(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, json.Valid([]byte(trimmed))
	}
	if !strings.Contains(trimmed, "<pre") {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", false
	}
	pre := strings.TrimSpace(doc.Find("body > pre").First().Text())
	if pre == "" || !json.Valid([]byte(pre)) {
		return "", false
	}
	return pre, true
}
