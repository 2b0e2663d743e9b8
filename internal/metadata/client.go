package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JustinTDCT/EpisodeVault/internal/apperr"
	"github.com/JustinTDCT/EpisodeVault/internal/auth"
	"github.com/JustinTDCT/EpisodeVault/internal/config"
	"github.com/JustinTDCT/EpisodeVault/internal/httputil"
)

// Client talks to the upstream catalog API. Every call except Login carries
// the bearer token from the session cache.
type Client struct {
	baseURL     string
	clientToken string
	pageSize    int
	httpClient  *http.Client
	session     *auth.SessionCache
}

// NewClient wires a client over httpClient, which is expected to carry the
// retry policy.
func NewClient(cfg *config.Config, httpClient *http.Client) *Client {
	pageSize := cfg.UpstreamPageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	c := &Client{
		baseURL:     strings.TrimSuffix(cfg.UpstreamBaseURL, "/"),
		clientToken: cfg.UpstreamClientToken,
		pageSize:    pageSize,
		httpClient:  httpClient,
	}
	c.session = auth.NewSessionCache(c.Login, cfg.SessionTokenMargin)
	return c
}

// Authenticate makes sure a live session exists, logging in if needed.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.session.Token(ctx)
	return err
}

// Login performs the anonymous client-credential login.
func (c *Client) Login(ctx context.Context) (string, time.Duration, error) {
	const op = "login"
	if c.clientToken == "" {
		return "", 0, apperr.Errorf(apperr.KindAuth, op, "UPSTREAM_CLIENT_TOKEN not configured")
	}
	form := url.Values{"grant_type": {"client_id"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, apperr.E(apperr.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+c.clientToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, apperr.E(apperr.KindAuth, op, err)
	}
	var tok tokenResponse
	if err := httputil.DecodeJSON(resp, &tok); err != nil {
		var he *httputil.HTTPError
		if errors.As(err, &he) {
			return "", 0, apperr.E(apperr.KindAuth, op, err)
		}
		return "", 0, apperr.E(apperr.KindInvalidResponse, op, err)
	}
	return tok.AccessToken, time.Duration(tok.ExpiresIn) * time.Second, nil
}

// get performs an authenticated GET and decodes the JSON body into dst. A
// 401 drops the cached session and the call is tried once more.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, dst interface{}) error {
	for attempt := 0; ; attempt++ {
		token, err := c.session.Token(ctx)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindUnknown && ctx.Err() == nil {
				err = apperr.E(apperr.KindAuth, op, err)
			}
			return err
		}

		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return apperr.E(apperr.KindInternal, op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return apperr.E(apperr.KindUpstream, op, err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			resp.Body.Close()
			c.session.Invalidate()
			continue
		}
		return classify(op, httputil.DecodeJSON(resp, dst))
	}
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var he *httputil.HTTPError
	if !errors.As(err, &he) {
		return apperr.E(apperr.KindInvalidResponse, op, err)
	}
	switch {
	case he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden:
		return apperr.E(apperr.KindAuth, op, err)
	case he.StatusCode == http.StatusNotFound:
		return apperr.E(apperr.KindNotFound, op, err)
	default:
		return apperr.E(apperr.KindUpstream, op, err)
	}
}

// paginate walks a {total, data} list endpoint until total items were seen
// or a page comes back empty.
func paginate[T any](ctx context.Context, c *Client, op, path string, base url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := url.Values{}
		for k, v := range base {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(page))
		q.Set("page_size", strconv.Itoa(c.pageSize))

		var list listResponse[T]
		if err := c.get(ctx, op, path, q, &list); err != nil {
			return nil, err
		}
		all = append(all, list.Data...)
		if len(list.Data) == 0 || len(all) >= list.Total || len(list.Data) < c.pageSize {
			break
		}
	}
	if all == nil {
		all = []T{}
	}
	return all, nil
}

// Search finds series matching query.
func (c *Client) Search(ctx context.Context, query, language string, limit int) ([]SeriesDTO, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{
		"q":      {query},
		"n":      {strconv.Itoa(limit)},
		"type":   {"series"},
		"locale": {language},
	}
	var res searchResponse
	if err := c.get(ctx, "search", "/content/v2/discover/search", q, &res); err != nil {
		return nil, err
	}
	hits := []SeriesDTO{}
	for _, bucket := range res.Data {
		if bucket.Type != "" && bucket.Type != "series" {
			continue
		}
		hits = append(hits, bucket.Items...)
	}
	return hits, nil
}

func (c *Client) Series(ctx context.Context, id, language string) (*SeriesDTO, error) {
	op := "series " + id
	var res listResponse[SeriesDTO]
	if err := c.get(ctx, op, "/content/v2/cms/series/"+url.PathEscape(id), url.Values{"locale": {language}}, &res); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, apperr.Errorf(apperr.KindNotFound, op, "empty data")
	}
	return &res.Data[0], nil
}

// Rating returns the average star rating of a series.
func (c *Client) Rating(ctx context.Context, id string) (float64, error) {
	op := "rating " + id
	var res ratingResponse
	if err := c.get(ctx, op, "/content-reviews/v2/rating/series/"+url.PathEscape(id), nil, &res); err != nil {
		return 0, err
	}
	avg, err := res.AverageValue()
	if err != nil {
		return 0, apperr.E(apperr.KindInvalidResponse, op, err)
	}
	return avg, nil
}

func (c *Client) Seasons(ctx context.Context, seriesID, language string) ([]SeasonDTO, error) {
	return paginate[SeasonDTO](ctx, c, "seasons "+seriesID,
		fmt.Sprintf("/content/v2/cms/series/%s/seasons", url.PathEscape(seriesID)),
		url.Values{"locale": {language}})
}

func (c *Client) Episodes(ctx context.Context, seasonID, language string) ([]EpisodeDTO, error) {
	return paginate[EpisodeDTO](ctx, c, "episodes "+seasonID,
		fmt.Sprintf("/content/v2/cms/seasons/%s/episodes", url.PathEscape(seasonID)),
		url.Values{"locale": {language}})
}
