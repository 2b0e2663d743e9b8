package metadata

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cast"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Country     string `json:"country"`
}

type listResponse[T any] struct {
	Total int `json:"total"`
	Data  []T `json:"data"`
}

type searchResponse struct {
	Total int `json:"total"`
	Data  []struct {
		Type  string      `json:"type"`
		Count int         `json:"count"`
		Items []SeriesDTO `json:"items"`
	} `json:"data"`
}

// ImageDTO is one rendition inside an image set.
type ImageDTO struct {
	Source string `json:"source"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   string `json:"type"`
}

// ImageSet is the upstream's nested layout: a list of image groups, each a
// list of renditions ordered by size.
type ImageSet [][]ImageDTO

type SeriesDTO struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	SlugTitle       string `json:"slug_title"`
	Description     string `json:"description"`
	ContentProvider string `json:"content_provider"`
	Images          struct {
		PosterTall ImageSet `json:"poster_tall"`
		PosterWide ImageSet `json:"poster_wide"`
	} `json:"images"`
}

type SeasonDTO struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	SlugTitle            string      `json:"slug_title"`
	SeasonNumber         interface{} `json:"season_number"`
	SeasonSequenceNumber interface{} `json:"season_sequence_number"`
	SeasonDisplayNumber  string      `json:"season_display_number"`
	Identifier           string      `json:"identifier"`
}

// SequenceNumber falls back to season_number when the upstream omits the
// dedicated ordering field.
func (s SeasonDTO) SequenceNumber() float64 {
	if v, err := cast.ToFloat64E(s.SeasonSequenceNumber); err == nil && s.SeasonSequenceNumber != nil {
		return v
	}
	return cast.ToFloat64(s.SeasonNumber)
}

type EpisodeDTO struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	SlugTitle      string      `json:"slug_title"`
	Description    string      `json:"description"`
	Episode        string      `json:"episode"`
	EpisodeNumber  interface{} `json:"episode_number"`
	SequenceNumber interface{} `json:"sequence_number"`
	Images         struct {
		Thumbnail ImageSet `json:"thumbnail"`
	} `json:"images"`
}

// Number returns episode_number formatted without trailing zeros; ok is
// false when it is null or not numeric.
func (e EpisodeDTO) Number() (string, bool) {
	if e.EpisodeNumber == nil {
		return "", false
	}
	n, err := cast.ToFloat64E(e.EpisodeNumber)
	if err != nil {
		return "", false
	}
	return strconv.FormatFloat(n, 'f', -1, 64), true
}

func (e EpisodeDTO) Sequence() float64 {
	return cast.ToFloat64(e.SequenceNumber)
}

type ratingResponse struct {
	Average json.RawMessage `json:"average"`
	Total   interface{}     `json:"total"`
	Rating  string          `json:"rating"`
}

// AverageValue accepts the average as a JSON string or number.
func (r ratingResponse) AverageValue() (float64, error) {
	var v interface{}
	if len(r.Average) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(r.Average, &v); err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return cast.ToFloat64E(v)
}
