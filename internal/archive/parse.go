package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JustinTDCT/EpisodeVault/internal/models"
)

// ParseReviews extracts the review cards of an archived series page. A page
// without cards yields an empty slice.
func ParseReviews(html string) ([]*models.Review, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse reviews html: %w", err)
	}

	reviews := []*models.Review{}
	doc.Find(`[data-t="review-card"]`).Each(func(_ int, s *goquery.Selection) {
		rv := &models.Review{
			AuthorUsername:  normSpace(s.Find(`[data-t="review-username"]`).First().Text()),
			AuthorAvatarURI: avatarSrc(s, `[data-t="review-avatar"]`),
			Rating:          starRating(s.Find(`[data-t="review-rating"]`).First()),
			Headline:        normSpace(s.Find(`[data-t="review-title"]`).First().Text()),
			Body:            strings.TrimSpace(s.Find(`[data-t="review-body"]`).First().Text()),
			AuthoredAt:      normSpace(s.Find(`[data-t="review-date"]`).First().Text()),
			Helpful:         firstInt(s.Find(`[data-t="helpful-count"]`).First().Text()),
			Unhelpful:       firstInt(s.Find(`[data-t="unhelpful-count"]`).First().Text()),
		}
		if rv.AuthorUsername == "" && rv.Body == "" {
			return
		}
		reviews = append(reviews, rv)
	})
	return reviews, nil
}

// ParseComments extracts the comment list of an archived episode page.
func ParseComments(html string) ([]*models.Comment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse comments html: %w", err)
	}

	comments := []*models.Comment{}
	doc.Find(`[data-t="comment"]`).Each(func(_ int, s *goquery.Selection) {
		c := &models.Comment{
			AuthorUsername:  normSpace(s.Find(`[data-t="comment-username"]`).First().Text()),
			AuthorAvatarURI: avatarSrc(s, `[data-t="comment-avatar"]`),
			Message:         strings.TrimSpace(s.Find(`[data-t="comment-body"]`).First().Text()),
			Likes:           firstInt(s.Find(`[data-t="comment-likes"]`).First().Text()),
			PostedAt:        normSpace(s.Find(`[data-t="comment-date"]`).First().Text()),
			IsSpoiler:       s.Find(`[data-t="comment-spoiler"]`).Length() > 0 || s.HasClass("spoiler"),
		}
		if c.AuthorUsername == "" && c.Message == "" {
			return
		}
		comments = append(comments, c)
	})
	return comments, nil
}

// avatarSrc reads src from the matched element or the first img inside it.
func avatarSrc(s *goquery.Selection, sel string) string {
	el := s.Find(sel).First()
	if !el.Is("img") {
		el = el.Find("img").First()
	}
	if src, ok := el.Attr("src"); ok && !strings.HasPrefix(src, "data:") {
		return strings.TrimSpace(src)
	}
	if src, ok := el.Attr("data-src"); ok {
		return strings.TrimSpace(src)
	}
	return ""
}

// starRating prefers an aria-label like "4 out of 5 stars" and falls back
// to counting filled stars.
func starRating(s *goquery.Selection) int {
	if label, ok := s.Attr("aria-label"); ok {
		if n := firstInt(label); n > 0 {
			return n
		}
	}
	if n := firstInt(s.Text()); n > 0 {
		return n
	}
	return s.Find(`[data-t="star-filled"]`).Length()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// firstInt returns the first run of digits in s, ignoring thousands
// separators, or 0.
func firstInt(s string) int {
	var b strings.Builder
	started := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			started = true
		case started && r == ',':
			// thousands separator inside the number
		case started:
			n, _ := strconv.Atoi(b.String())
			return n
		}
	}
	n, _ := strconv.Atoi(b.String())
	return n
}
