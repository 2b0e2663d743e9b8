// Package archive resolves pages through a Wayback-compatible archival
// mirror: it finds the newest usable snapshot before a cutoff and pulls
// reviews and comments out of the archived HTML.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JustinTDCT/EpisodeVault/internal/apperr"
	"github.com/JustinTDCT/EpisodeVault/internal/httputil"
)

// TimestampLayout is the mirror's 14-digit snapshot timestamp.
const TimestampLayout = "20060102150405"

// SnapshotRef identifies one capture of a page.
type SnapshotRef struct {
	URL        string // the original, unarchived URL
	Timestamp  string
	MimeType   string
	StatusCode int
}

func (r SnapshotRef) Time() (time.Time, error) {
	return time.Parse(TimestampLayout, r.Timestamp)
}

type Resolver struct {
	baseURL string
	limit   int
	client  *http.Client
}

// NewResolver returns a resolver querying baseURL. limit is how many of the
// most recent captures the search asks for; client should carry the archive
// retry policy.
func NewResolver(baseURL string, limit int, client *http.Client) *Resolver {
	if limit <= 0 {
		limit = 5
	}
	return &Resolver{baseURL: strings.TrimSuffix(baseURL, "/"), limit: limit, client: client}
}

// FindClosestSnapshot returns the most recent status-200 capture of
// canonicalURL taken at or before cutoff.
func (r *Resolver) FindClosestSnapshot(ctx context.Context, canonicalURL string, cutoff time.Time) (SnapshotRef, error) {
	op := "find snapshot " + canonicalURL
	q := url.Values{
		"url":    {canonicalURL},
		"output": {"json"},
		"fl":     {"timestamp,mimetype,statuscode"},
		"to":     {cutoff.UTC().Format(TimestampLayout)},
		"filter": {"statuscode:200"},
		"limit":  {"-" + strconv.Itoa(r.limit)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/cdx/search/cdx?"+q.Encode(), nil)
	if err != nil {
		return SnapshotRef{}, apperr.E(apperr.KindInternal, op, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return SnapshotRef{}, apperr.E(apperr.KindUpstream, op, err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		return SnapshotRef{}, apperr.E(apperr.KindUpstream, op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SnapshotRef{}, apperr.E(apperr.KindUpstream, op, err)
	}

	rows, err := parseCDX(body)
	if err != nil {
		return SnapshotRef{}, apperr.E(apperr.KindInvalidResponse, op, err)
	}
	ref, ok := SelectSnapshot(rows, cutoff)
	if !ok {
		return SnapshotRef{}, apperr.Errorf(apperr.KindNotFound, op, "no capture before %s", cutoff.UTC().Format(time.DateOnly))
	}
	ref.URL = canonicalURL
	log.Printf("[archive] %s -> snapshot %s", canonicalURL, ref.Timestamp)
	return ref, nil
}

// parseCDX reads the JSON table, dropping the header row. An empty body is
// an empty table.
func parseCDX(body []byte) ([]SnapshotRef, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	var table [][]string
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("decode cdx: %w", err)
	}
	if len(table) <= 1 {
		return nil, nil
	}
	refs := make([]SnapshotRef, 0, len(table)-1)
	for _, row := range table[1:] {
		if len(row) < 3 {
			continue
		}
		status, err := strconv.Atoi(row[2])
		if err != nil {
			continue
		}
		refs = append(refs, SnapshotRef{Timestamp: row[0], MimeType: row[1], StatusCode: status})
	}
	return refs, nil
}

// SelectSnapshot picks the newest status-200 row at or before cutoff.
func SelectSnapshot(rows []SnapshotRef, cutoff time.Time) (SnapshotRef, bool) {
	var (
		best   SnapshotRef
		bestAt time.Time
		found  bool
	)
	for _, row := range rows {
		if row.StatusCode != http.StatusOK {
			continue
		}
		at, err := row.Time()
		if err != nil || at.After(cutoff) {
			continue
		}
		if !found || at.After(bestAt) {
			best, bestAt, found = row, at, true
		}
	}
	return best, found
}

// SnapshotURL is where the mirror serves the capture.
func (r *Resolver) SnapshotURL(ref SnapshotRef) string {
	return fmt.Sprintf("%s/web/%s/%s", r.baseURL, ref.Timestamp, ref.URL)
}

// FetchSnapshot downloads the captured HTML.
func (r *Resolver) FetchSnapshot(ctx context.Context, ref SnapshotRef) (string, error) {
	op := "fetch snapshot " + ref.Timestamp
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.SnapshotURL(ref), nil)
	if err != nil {
		return "", apperr.E(apperr.KindInternal, op, err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", apperr.E(apperr.KindUpstream, op, err)
	}
	if err := httputil.CheckStatus(resp); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return "", apperr.E(apperr.KindNotFound, op, err)
		}
		return "", apperr.E(apperr.KindUpstream, op, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.E(apperr.KindUpstream, op, err)
	}
	return string(b), nil
}

// ImageURL rewrites an image referenced by a capture into the mirror's
// raw-image form. Links the mirror already rewrote are made absolute.
func (r *Resolver) ImageURL(ref SnapshotRef, src string) string {
	src = strings.TrimSpace(src)
	switch {
	case src == "":
		return ""
	case strings.HasPrefix(src, "/web/"):
		return r.baseURL + src
	case strings.HasPrefix(src, r.baseURL+"/web/"):
		return src
	case strings.HasPrefix(src, "//"):
		src = "https:" + src
	}
	return fmt.Sprintf("%s/web/%sim_/%s", r.baseURL, ref.Timestamp, src)
}
