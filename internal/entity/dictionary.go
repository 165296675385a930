package entity

import (
	"fmt"
	"strings"
	"time"
)

// ReleasePolicy controls who may use a dictionary.
type ReleasePolicy string

const (
	ReleasePublic        ReleasePolicy = "PUBLIC"
	ReleaseNonCommercial ReleasePolicy = "NONCOMMERCIAL"
	ReleaseResearch      ReleasePolicy = "RESEARCH"
	ReleasePrivate       ReleasePolicy = "PRIVATE"
)

// ParseReleasePolicy accepts the policy names case-insensitively.
func ParseReleasePolicy(s string) (ReleasePolicy, error) {
	switch p := ReleasePolicy(strings.ToUpper(strings.TrimSpace(s))); p {
	case ReleasePublic, ReleaseNonCommercial, ReleaseResearch, ReleasePrivate:
		return p, nil
	default:
		return "", &ValidationError{Field: "release", Msg: fmt.Sprintf("unknown release policy %q", s)}
	}
}

// Genre is one of the ELEXIS dictionary genres.
type Genre string

const (
	GenreGeneral      Genre = "gen"
	GenreLearners     Genre = "lrn"
	GenreEtymological Genre = "ety"
	GenreSpecial      Genre = "spe"
	GenreHistorical   Genre = "his"
	GenreOrthographic Genre = "ort"
	GenreTerminology  Genre = "trm"
)

// ParseGenre validates a genre code.
func ParseGenre(s string) (Genre, error) {
	switch g := Genre(strings.ToLower(strings.TrimSpace(s))); g {
	case GenreGeneral, GenreLearners, GenreEtymological, GenreSpecial, GenreHistorical, GenreOrthographic, GenreTerminology:
		return g, nil
	default:
		return "", &ValidationError{Field: "genre", Msg: fmt.Sprintf("unknown genre %q", s)}
	}
}

// Origin records where an API-imported dictionary was pulled from.
type Origin struct {
	Endpoint     string `json:"endpoint"`
	DictionaryID string `json:"dictionary_id"`
}

// Dictionary is one imported lexicographic resource.
type Dictionary struct {
	ID              string        `json:"-"`
	Release         ReleasePolicy `json:"release"`
	SourceLanguage  string        `json:"sourceLanguage"`
	TargetLanguages []string      `json:"targetLanguage,omitempty"`
	Genres          []Genre       `json:"genre,omitempty"`
	License         string        `json:"license,omitempty"`
	Title           string        `json:"title,omitempty"`
	Description     string        `json:"description,omitempty"`
	Creators        Attributions  `json:"creator,omitempty"`
	Publishers      Attributions  `json:"publisher,omitempty"`

	EntryCount int       `json:"entries"`
	ImportedAt time.Time `json:"importedAt"`
	Origin     *Origin   `json:"origin,omitempty"`
}

// Clone returns a copy that shares no slices with d.
func (d *Dictionary) Clone() *Dictionary {
	if d == nil {
		return nil
	}
	out := *d
	out.TargetLanguages = append([]string(nil), d.TargetLanguages...)
	out.Genres = append([]Genre(nil), d.Genres...)
	out.Creators = append(Attributions(nil), d.Creators...)
	out.Publishers = append(Attributions(nil), d.Publishers...)
	if d.Origin != nil {
		origin := *d.Origin
		out.Origin = &origin
	}
	return &out
}
