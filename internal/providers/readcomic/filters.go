package readcomic

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
)

//go:embed genres.yaml
var genresYAML []byte

// Genre is a search genre and its site id
type Genre struct {
	Name string `yaml:"name" json:"name"`
	ID   string `yaml:"id" json:"id"`
}

var (
	genresOnce sync.Once
	genres     []Genre
	genresErr  error
)

// Genres returns the genres accepted by advanced search
func Genres() ([]Genre, error) {
	genresOnce.Do(func() {
		genresErr = yaml.Unmarshal(genresYAML, &genres)
	})
	return genres, genresErr
}

// GenreID resolves a genre by id or case-insensitive name
func GenreID(nameOrID string) (string, error) {
	all, err := Genres()
	if err != nil {
		return "", err
	}
	for _, g := range all {
		if g.ID == nameOrID || strings.EqualFold(g.Name, nameOrID) {
			return g.ID, nil
		}
	}
	return "", fmt.Errorf("unknown genre %q", nameOrID)
}

// Status filters advanced search by publication status
type Status string

const (
	StatusAny       Status = ""
	StatusCompleted Status = "Completed"
	StatusOngoing   Status = "Ongoing"
)

// ParseStatus accepts "", "completed" and "ongoing" in any case
func ParseStatus(s string) (Status, error) {
	switch {
	case s == "":
		return StatusAny, nil
	case strings.EqualFold(s, string(StatusCompleted)):
		return StatusCompleted, nil
	case strings.EqualFold(s, string(StatusOngoing)):
		return StatusOngoing, nil
	default:
		return StatusAny, fmt.Errorf("unknown status %q", s)
	}
}

// Sort orders path-based listings
type Sort string

const (
	SortAlphabet   Sort = ""
	SortPopularity Sort = "MostPopular"
	SortLatest     Sort = "LatestUpdate"
	SortNewest     Sort = "Newest"
)

// ParseSort maps the API sort names onto the site's path segments
func ParseSort(s string) (Sort, error) {
	switch strings.ToLower(s) {
	case "", "alphabet":
		return SortAlphabet, nil
	case "popularity", "mostpopular":
		return SortPopularity, nil
	case "latest", "latestupdate":
		return SortLatest, nil
	case "newest", "new":
		return SortNewest, nil
	default:
		return SortAlphabet, fmt.Errorf("unknown sort %q", s)
	}
}

// Filters narrows a search. Sort, Publisher, Writer and Artist only apply
// when Query is empty and no genre is selected.
type Filters struct {
	Query     string
	Status    Status
	Include   []string // genre ids
	Exclude   []string // genre ids
	Sort      Sort
	Publisher string
	Writer    string
	Artist    string
}

// advanced reports whether the search needs /AdvanceSearch
func (f Filters) advanced() bool {
	return strings.TrimSpace(f.Query) != "" || len(f.Include) > 0 || len(f.Exclude) > 0
}

// creator returns the first non-empty of publisher, writer, artist as a
// path prefix such as "Publisher/DC-Comics"
func (f Filters) creator() string {
	for _, c := range []struct{ kind, name string }{
		{"Publisher", f.Publisher},
		{"Writer", f.Writer},
		{"Artist", f.Artist},
	} {
		if name := strings.TrimSpace(c.name); name != "" {
			return c.kind + "/" + strings.ReplaceAll(name, " ", "-")
		}
	}
	return ""
}
