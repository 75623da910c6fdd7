package readcomic

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/readcomic/internal/preferences"
)

// PopularURL lists the most popular comics
func (s *Source) PopularURL(page int) string {
	return s.baseURL + "/ComicList/MostPopular?page=" + strconv.Itoa(page)
}

// LatestURL lists recently updated comics
func (s *Source) LatestURL(page int) string {
	return s.baseURL + "/ComicList/LatestUpdate?page=" + strconv.Itoa(page)
}

// SearchURL builds either a creator/sort listing or an advanced search
func (s *Source) SearchURL(page int, f Filters) string {
	if !f.advanced() {
		path := f.creator()
		if path == "" {
			path = "ComicList"
		}
		if f.Sort != SortAlphabet {
			path += "/" + string(f.Sort)
		}
		return s.baseURL + "/" + path + "?page=" + strconv.Itoa(page)
	}

	q := url.Values{}
	q.Set("comicName", strings.TrimSpace(f.Query))
	q.Set("page", strconv.Itoa(page))
	q.Set("status", string(f.Status))
	q.Set("ig", strings.Join(f.Include, ","))
	q.Set("eg", strings.Join(f.Exclude, ","))
	return s.baseURL + "/AdvanceSearch?" + q.Encode()
}

// ComicURL resolves a comic path
func (s *Source) ComicURL(path string) string {
	return s.baseURL + path
}

// ChapterURL resolves a chapter path with the server parameter. Quality is
// added for hq on the default server and for lq on s2.
func (s *Source) ChapterURL(path string, prefs preferences.Settings) string {
	sep := "&"
	if !strings.Contains(path, "?") {
		sep = "?"
	}

	u := s.baseURL + path + sep + "s=" + prefs.Server
	highOnDefault := prefs.Quality != preferences.QualityLow && prefs.Server != preferences.ServerTwo
	lowOnTwo := prefs.Quality == preferences.QualityLow && prefs.Server == preferences.ServerTwo
	if highOnDefault || lowOnTwo {
		u += "&quality=" + prefs.Quality
	}
	return u
}
