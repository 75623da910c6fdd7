package client

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

const (
	// MaxHTMLSize limits decoded pages to 10MB
	MaxHTMLSize = 10 * 1024 * 1024
	// MaxImageSize limits proxied images to 32MB
	MaxImageSize = 32 * 1024 * 1024
)

var (
	// ErrCaptchaRequired matches any *CaptchaError
	ErrCaptchaRequired = errors.New("captcha required")
	// ErrNotImage is returned when a fetched image body is not an image
	ErrNotImage = errors.New("response is not an image")
	// ErrForbiddenHost is returned when an image host resolves to a
	// loopback, private or otherwise non-public address
	ErrForbiddenHost = errors.New("image host is not public")
	// ErrBodyTooLarge is returned when a response exceeds the size limit
	ErrBodyTooLarge = resty.ErrResponseBodyTooLarge
)

// CaptchaError is returned when the site redirects to its captcha wall. The
// user has to solve it in a browser at URL before requests succeed again.
type CaptchaError struct {
	URL string
}

func (e *CaptchaError) Error() string {
	return "captcha required: solve it at " + e.URL
}

func (e *CaptchaError) Is(target error) bool {
	return target == ErrCaptchaRequired
}

// StatusError reports a non-2xx response
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

// Page is a fetched HTML document decoded to UTF-8
type Page struct {
	URL  string // final URL after redirects
	Body []byte
}

// Image is a fetched image with its sniffed type
type Image struct {
	Data        []byte
	ContentType string
	Extension   string
}

func newImage(data []byte) (*Image, error) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	return &Image{
		Data:        data,
		ContentType: mtype.String(),
		Extension:   mtype.Extension(),
	}, nil
}

// decodeHTML converts body to UTF-8. The Content-Type charset wins; without
// one the charset is detected from the bytes.
func decodeHTML(body []byte, contentType string) ([]byte, error) {
	if len(body) > MaxHTMLSize {
		return nil, fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}

	if _, params, err := mime.ParseMediaType(contentType); err != nil || params["charset"] == "" {
		contentType = "text/html; charset=" + DetectCharset(body)
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body, nil
	}
	return readAllLimited(reader, MaxHTMLSize)
}

// DetectCharset detects the charset of HTML bytes, defaulting to utf-8
func DetectCharset(data []byte) string {
	detector := chardet.NewHtmlDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}
