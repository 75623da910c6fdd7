package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/readcomic/internal/infrastructure/logging"
	"github.com/GriffinCanCode/readcomic/internal/preferences"
	"github.com/GriffinCanCode/readcomic/internal/providers/http/client"
	"github.com/GriffinCanCode/readcomic/internal/providers/readcomic"
)

// ErrHostNotAllowed is returned when /image is asked for a host the site has
// not served images from
var ErrHostNotAllowed = errors.New("image host not allowed")

// Comics reads the comic site
type Comics interface {
	Popular(ctx context.Context, page int) (*readcomic.Listing, error)
	Latest(ctx context.Context, page int) (*readcomic.Listing, error)
	Search(ctx context.Context, page int, f readcomic.Filters) (*readcomic.Listing, error)
	Comic(ctx context.Context, path string) (*readcomic.Details, error)
	Pages(ctx context.Context, path string) ([]readcomic.Page, error)
	AllowsImage(rawURL string) bool
}

// Images downloads chapter images
type Images interface {
	FetchImage(ctx context.Context, url string) (*client.Image, error)
}

// Preferences reads and stores reader settings
type Preferences interface {
	Get() preferences.Settings
	Set(settings preferences.Settings) error
}

// HealthFunc adds component state to the health response
type HealthFunc func() gin.H

// Handlers serves the reader API
type Handlers struct {
	comics      Comics
	images      Images
	preferences Preferences
	health      HealthFunc
	logger      *logging.Logger
}

// NewHandlers creates API handlers. health may be nil.
func NewHandlers(comics Comics, images Images, prefs Preferences, health HealthFunc, logger *logging.Logger) *Handlers {
	return &Handlers{
		comics:      comics,
		images:      images,
		preferences: prefs,
		health:      health,
		logger:      logging.OrNop(logger).Named("api"),
	}
}

// Health reports liveness and component state
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if h.health != nil {
		for k, v := range h.health() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

// Popular lists the most popular comics
func (h *Handlers) Popular(c *gin.Context) {
	h.listing(c, h.comics.Popular)
}

// Latest lists recently updated comics
func (h *Handlers) Latest(c *gin.Context) {
	h.listing(c, h.comics.Latest)
}

func (h *Handlers) listing(c *gin.Context, fetch func(context.Context, int) (*readcomic.Listing, error)) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	listing, err := fetch(c.Request.Context(), page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// Search lists comics matching the query filters
func (h *Handlers) Search(c *gin.Context) {
	page, ok := pageParam(c)
	if !ok {
		return
	}
	filters, err := searchFilters(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	listing, err := h.comics.Search(c.Request.Context(), page, filters)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// Comic returns a comic's details and chapters
func (h *Handlers) Comic(c *gin.Context) {
	path, ok := pathParam(c)
	if !ok {
		return
	}
	details, err := h.comics.Comic(c.Request.Context(), path)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// Pages returns the image URLs of a chapter
func (h *Handlers) Pages(c *gin.Context) {
	path, ok := pathParam(c)
	if !ok {
		return
	}
	pages, err := h.comics.Pages(c.Request.Context(), path)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"path":  path,
		"pages": pages,
	})
}

// Image proxies a chapter image so readers need not send the site's headers
func (h *Handlers) Image(c *gin.Context) {
	raw := c.Query("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		badRequest(c, "url must be an absolute http(s) URL")
		return
	}
	if !h.comics.AllowsImage(u.String()) {
		h.fail(c, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Host))
		return
	}

	image, err := h.images.FetchImage(c.Request.Context(), u.String())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, image.ContentType, image.Data)
}

// Genres lists the genres accepted by search
func (h *Handlers) Genres(c *gin.Context) {
	genres, err := readcomic.Genres()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"genres": genres})
}

// GetPreferences returns the reader settings
func (h *Handlers) GetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, h.preferences.Get())
}

// PutPreferences replaces the reader settings. Omitted fields keep their
// current values.
func (h *Handlers) PutPreferences(c *gin.Context) {
	settings := h.preferences.Get()
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, "invalid preferences body")
		return
	}
	if err := h.preferences.Set(settings); err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info("Preferences updated",
		zap.String("quality", settings.Quality),
		zap.String("server", settings.Server))
	c.JSON(http.StatusOK, settings)
}

func pageParam(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("page", "1")
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		badRequest(c, "page must be a positive integer")
		return 0, false
	}
	return page, true
}

func pathParam(c *gin.Context) (string, bool) {
	path := c.Query("path")
	if path == "" {
		badRequest(c, "path is required")
		return "", false
	}
	return path, true
}

// searchFilters reads filters from the query. Genres may repeat or be
// comma separated, by name or id.
func searchFilters(c *gin.Context) (readcomic.Filters, error) {
	status, err := readcomic.ParseStatus(c.Query("status"))
	if err != nil {
		return readcomic.Filters{}, err
	}
	sort, err := readcomic.ParseSort(c.Query("sort"))
	if err != nil {
		return readcomic.Filters{}, err
	}
	include, err := genreIDs(c.QueryArray("include"))
	if err != nil {
		return readcomic.Filters{}, err
	}
	exclude, err := genreIDs(c.QueryArray("exclude"))
	if err != nil {
		return readcomic.Filters{}, err
	}

	return readcomic.Filters{
		Query:     c.Query("q"),
		Status:    status,
		Include:   include,
		Exclude:   exclude,
		Sort:      sort,
		Publisher: c.Query("publisher"),
		Writer:    c.Query("writer"),
		Artist:    c.Query("artist"),
	}, nil
}

func genreIDs(values []string) ([]string, error) {
	var ids []string
	for _, value := range values {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			genreID, err := readcomic.GenreID(name)
			if err != nil {
				return nil, err
			}
			ids = append(ids, genreID)
		}
	}
	return ids, nil
}
