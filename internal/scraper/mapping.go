package scraper

import (
	"strings"

	"github.com/JustinTDCT/EpisodeVault/internal/metadata"
	"github.com/JustinTDCT/EpisodeVault/internal/models"
)

// Mapping from upstream DTOs to entities. Every function here is pure:
// identifiers and timestamps are assigned by the repository.

func MapTitle(dto *metadata.SeriesDTO, language string) *models.Title {
	return &models.Title{
		ExternalID: dto.ID,
		Language:   language,
		Slug:       dto.SlugTitle,
		Title:      dto.Title,
		Synopsis:   dto.Description,
		Studio:     dto.ContentProvider,
		PosterTall: PickImage(dto.Images.PosterTall),
		PosterWide: PickImage(dto.Images.PosterWide),
	}
}

func MapSeason(dto metadata.SeasonDTO, language string) *models.Season {
	return &models.Season{
		ExternalID:     dto.ID,
		Language:       language,
		Title:          dto.Title,
		Slug:           dto.SlugTitle,
		SequenceNumber: dto.SequenceNumber(),
		DisplayNumber:  dto.SeasonDisplayNumber,
		Identifier:     dto.Identifier,
	}
}

func MapEpisode(dto metadata.EpisodeDTO, language string) *models.Episode {
	return &models.Episode{
		ExternalID:     dto.ID,
		Language:       language,
		Title:          dto.Title,
		Slug:           dto.SlugTitle,
		Synopsis:       dto.Description,
		EpisodeNumber:  EpisodeNumber(dto),
		SequenceNumber: dto.Sequence(),
		Thumbnail:      PickImage(dto.Images.Thumbnail),
	}
}

func MapSearchHit(dto metadata.SeriesDTO) *models.MetadataMatch {
	return &models.MetadataMatch{
		ExternalID:  dto.ID,
		Title:       dto.Title,
		Slug:        dto.SlugTitle,
		Description: dto.Description,
		PosterURL:   PickImage(dto.Images.PosterTall).URI,
		Type:        "series",
	}
}

// EpisodeNumber prefers the free-text label ("6.5", "SP"), then the numeric
// episode_number, then "".
func EpisodeNumber(dto metadata.EpisodeDTO) string {
	if label := strings.TrimSpace(dto.Episode); label != "" {
		return label
	}
	if n, ok := dto.Number(); ok {
		return n
	}
	return ""
}

// PickImage takes the last (largest) rendition of the first group.
func PickImage(set metadata.ImageSet) models.Image {
	if len(set) == 0 || len(set[0]) == 0 {
		return models.Image{}
	}
	img := set[0][len(set[0])-1]
	return models.Image{URI: img.Source, Width: img.Width, Height: img.Height}
}

// sitePaths maps catalog languages to the site's URL prefix. English has none.
var sitePaths = map[string]string{
	"en-US":  "",
	"es-419": "/es",
	"es-ES":  "/es-es",
	"pt-BR":  "/pt-br",
	"pt-PT":  "/pt-pt",
	"fr-FR":  "/fr",
	"de-DE":  "/de",
	"it-IT":  "/it",
	"ru-RU":  "/ru",
	"ar-SA":  "/ar",
	"hi-IN":  "/hi",
}

// SeriesURL is the canonical public page of a series, as the archive knows it.
func SeriesURL(siteBase, language, externalID, slug string) string {
	return strings.TrimSuffix(siteBase, "/") + sitePaths[language] + "/series/" + externalID + "/" + slug
}

// EpisodeURL is the canonical public watch page of an episode.
func EpisodeURL(siteBase, language, externalID, slug string) string {
	return strings.TrimSuffix(siteBase, "/") + sitePaths[language] + "/watch/" + externalID + "/" + slug
}
