package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

type ScrapeKind string

const (
	ScrapeKindTitle    ScrapeKind = "title"
	ScrapeKindReviews  ScrapeKind = "reviews"
	ScrapeKindComments ScrapeKind = "comments"
)

type ScrapeStatus string

const (
	ScrapeComplete ScrapeStatus = "complete"
	ScrapePartial  ScrapeStatus = "partial"
	ScrapeFailed   ScrapeStatus = "failed"
	ScrapeSkipped  ScrapeStatus = "skipped"
)

// ──────────────────── Images ────────────────────

// Image describes one rendition of a remote image. It is stored as a JSON
// column; a missing image is stored as the zero placeholder, never NULL.
type Image struct {
	URI    string `json:"uri"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (i Image) IsZero() bool { return i == Image{} }

func (i Image) Value() (driver.Value, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (i *Image) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*i = Image{}
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("image: unsupported column type %T", src)
	}
	if len(b) == 0 {
		*i = Image{}
		return nil
	}
	return json.Unmarshal(b, i)
}

// ──────────────────── Titles ────────────────────

type Title struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ExternalID    string    `json:"external_id" db:"external_id"`
	Language      string    `json:"language" db:"language"`
	Slug          string    `json:"slug" db:"slug"`
	Title         string    `json:"title" db:"title"`
	Synopsis      string    `json:"synopsis" db:"synopsis"`
	Studio        string    `json:"studio" db:"studio"`
	Rating        *float64  `json:"rating,omitempty" db:"rating"`
	PosterTall    Image     `json:"poster_tall" db:"poster_tall"`
	PosterWide    Image     `json:"poster_wide" db:"poster_wide"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at" db:"last_updated_at"`
	// Populated by graph reads, not stored on the row
	Seasons []*Season `json:"seasons,omitempty" db:"-"`
}

type Season struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TitleID        uuid.UUID `json:"title_id" db:"title_id"`
	ExternalID     string    `json:"external_id" db:"external_id"`
	Language       string    `json:"language" db:"language"`
	Title          string    `json:"title" db:"title"`
	Slug           string    `json:"slug" db:"slug"`
	SequenceNumber float64   `json:"sequence_number" db:"sequence_number"`
	DisplayNumber  string    `json:"display_number" db:"display_number"`
	Identifier     string    `json:"identifier" db:"identifier"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at" db:"last_updated_at"`
	// Populated by graph reads, not stored on the row
	Episodes []*Episode `json:"episodes,omitempty" db:"-"`
}

type Episode struct {
	ID             uuid.UUID `json:"id" db:"id"`
	SeasonID       uuid.UUID `json:"season_id" db:"season_id"`
	ExternalID     string    `json:"external_id" db:"external_id"`
	Language       string    `json:"language" db:"language"`
	Title          string    `json:"title" db:"title"`
	Slug           string    `json:"slug" db:"slug"`
	Synopsis       string    `json:"synopsis" db:"synopsis"`
	EpisodeNumber  string    `json:"episode_number" db:"episode_number"`
	SequenceNumber float64   `json:"sequence_number" db:"sequence_number"`
	Thumbnail      Image     `json:"thumbnail" db:"thumbnail"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at" db:"last_updated_at"`
}

// ──────────────────── Reviews & Comments ────────────────────

type Review struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TitleID         uuid.UUID `json:"title_id" db:"title_id"`
	Language        string    `json:"language" db:"language"`
	AuthorUsername  string    `json:"author_username" db:"author_username"`
	AuthorAvatarURI string    `json:"author_avatar_uri" db:"author_avatar_uri"`
	Rating          int       `json:"rating" db:"rating"`
	Headline        string    `json:"headline" db:"headline"`
	Body            string    `json:"body" db:"body"`
	AuthoredAt      string    `json:"authored_at" db:"authored_at"`
	Helpful         int       `json:"helpful" db:"helpful"`
	Unhelpful       int       `json:"unhelpful" db:"unhelpful"`
	Position        int       `json:"position" db:"position"` // order on the archived page
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type Comment struct {
	ID              uuid.UUID `json:"id" db:"id"`
	EpisodeID       uuid.UUID `json:"episode_id" db:"episode_id"`
	Language        string    `json:"language" db:"language"`
	AuthorUsername  string    `json:"author_username" db:"author_username"`
	AuthorAvatarURI string    `json:"author_avatar_uri" db:"author_avatar_uri"`
	Message         string    `json:"message" db:"message"`
	Likes           int       `json:"likes" db:"likes"`
	PostedAt        string    `json:"posted_at" db:"posted_at"`
	IsSpoiler       bool      `json:"is_spoiler" db:"is_spoiler"`
	Position        int       `json:"position" db:"position"` // order on the archived page
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// ──────────────────── Scrape Runs ────────────────────

type ScrapeRun struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	Kind            ScrapeKind   `json:"kind" db:"kind"`
	ExternalID      string       `json:"external_id" db:"external_id"`
	Language        string       `json:"language" db:"language"`
	Status          ScrapeStatus `json:"status" db:"status"`
	TitlesCreated   int          `json:"titles_created" db:"titles_created"`
	TitlesUpdated   int          `json:"titles_updated" db:"titles_updated"`
	SeasonsCreated  int          `json:"seasons_created" db:"seasons_created"`
	SeasonsUpdated  int          `json:"seasons_updated" db:"seasons_updated"`
	EpisodesCreated int          `json:"episodes_created" db:"episodes_created"`
	EpisodesUpdated int          `json:"episodes_updated" db:"episodes_updated"`
	ItemsStored     int          `json:"items_stored" db:"items_stored"`
	ErrorMessage    *string      `json:"error_message,omitempty" db:"error_message"`
	StartedAt       time.Time    `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty" db:"finished_at"`
}

// ──────────────────── Metadata Match ────────────────────

// MetadataMatch is one search hit from the upstream catalog.
type MetadataMatch struct {
	ExternalID  string `json:"external_id"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	PosterURL   string `json:"poster_url,omitempty"`
	Type        string `json:"type"`
}
