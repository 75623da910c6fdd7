package readcomic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readcomic/internal/preferences"
	"github.com/GriffinCanCode/readcomic/internal/providers/http/client"
)

// ErrInvalidPath is returned for paths that are not site-relative
var ErrInvalidPath = errors.New("invalid site path")

// Fetcher retrieves decoded HTML pages
type Fetcher interface {
	GetPage(ctx context.Context, url string) (*client.Page, error)
}

// Extractor turns a chapter's payload script into image URLs
type Extractor interface {
	Extract(ctx context.Context, payload string) ([]string, error)
}

// SourceObserver is told where a chapter page loads its anti-tamper loader from
type SourceObserver interface {
	ObserveSourceURL(url string)
}

// Settings supplies the current reader preferences
type Settings interface {
	Get() preferences.Settings
}

// Config defines the site layout
type Config struct {
	BaseURL       string
	PayloadMarker string
}

// Source reads listings, comic details and chapter pages from the site
type Source struct {
	baseURL    string
	marker     string
	fetcher    Fetcher
	extractor  Extractor
	observer   SourceObserver
	settings   Settings
	sanitizer  *bluemonday.Policy
	imageHosts *hostSet
	logger     *logging.Logger
}

// New creates a site source
func New(cfg Config, fetcher Fetcher, extractor Extractor, observer SourceObserver, settings Settings, logger *logging.Logger) *Source {
	return &Source{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		marker:     cfg.PayloadMarker,
		fetcher:    fetcher,
		extractor:  extractor,
		observer:   observer,
		settings:   settings,
		sanitizer:  bluemonday.StrictPolicy(),
		imageHosts: newHostSet(),
		logger:     logging.OrNop(logger).Named("readcomic"),
	}
}

// Popular returns a page of the most popular comics
func (s *Source) Popular(ctx context.Context, page int) (*Listing, error) {
	return s.listing(ctx, s.PopularURL(page))
}

// Latest returns a page of recently updated comics
func (s *Source) Latest(ctx context.Context, page int) (*Listing, error) {
	return s.listing(ctx, s.LatestURL(page))
}

// Search returns a page of comics matching f
func (s *Source) Search(ctx context.Context, page int, f Filters) (*Listing, error) {
	return s.listing(ctx, s.SearchURL(page, f))
}

func (s *Source) listing(ctx context.Context, url string) (*Listing, error) {
	doc, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	listing := doc.listing()
	for _, comic := range listing.Comics {
		s.rememberImages(comic.Thumbnail)
	}
	return listing, nil
}

// Comic returns the details and chapter list of the comic at path
func (s *Source) Comic(ctx context.Context, path string) (*Details, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	doc, err := s.fetch(ctx, s.ComicURL(path))
	if err != nil {
		return nil, err
	}
	details, err := doc.details(s.sanitizer)
	if err != nil {
		return nil, err
	}
	s.rememberImages(details.Thumbnail)
	return details, nil
}

// Pages returns the images of the chapter at path, indexed from 0
func (s *Source) Pages(ctx context.Context, path string) ([]Page, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	doc, err := s.fetch(ctx, s.ChapterURL(path, s.settings.Get()))
	if err != nil {
		return nil, err
	}

	if hint := doc.bootstrapURL(); hint != "" && s.observer != nil {
		s.observer.ObserveSourceURL(hint)
	}

	// An empty payload is reported by the extractor as ErrScriptNotFound.
	images, err := s.extractor.Extract(ctx, doc.payload(s.marker))
	if err != nil {
		return nil, err
	}

	s.rememberImages(images...)
	pages := make([]Page, len(images))
	for i, image := range images {
		pages[i] = Page{Index: i, ImageURL: image}
	}
	s.logger.Debug("Chapter pages extracted", zap.String("path", path), zap.Int("pages", len(pages)))
	return pages, nil
}

func (s *Source) fetch(ctx context.Context, url string) (*document, error) {
	page, err := s.fetcher.GetPage(ctx, url)
	if err != nil {
		return nil, err
	}
	return parseDocument(page)
}

// validatePath accepts only site-relative paths so callers cannot point the
// client at another host
func validatePath(path string) error {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") || strings.Contains(path, "://") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return nil
}
