package readcomic

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"github.com/GriffinCanCode/readcomic/internal/providers/http/client"
)

const (
	listingSelector  = ".list-comic > .item > a:first-child"
	nextPageSelector = `ul.pager > li > a:contains("Next")`
	chapterSelector  = "table.listing tr"
	chapterDate      = "1/2/2006"

	bootstrapXPath = "//script[contains(@src, 'rguard.min.js')]"
	inlineXPath    = "//script[not(@src)]"
)

// ErrUnexpectedLayout is returned when a page lacks the elements parsed
var ErrUnexpectedLayout = errors.New("unexpected page layout")

// document is a parsed page usable with both CSS selectors and XPath
type document struct {
	url  *url.URL
	root *nethtml.Node
	doc  *goquery.Document
}

func parseDocument(page *client.Page) (*document, error) {
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("page url: %w", err)
	}
	root, err := htmlquery.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &document{url: base, root: root, doc: goquery.NewDocumentFromNode(root)}, nil
}

// abs resolves ref against the page URL
func (d *document) abs(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return d.url.ResolveReference(u).String()
}

// path resolves ref and drops the scheme and host
func (d *document) path(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return d.url.ResolveReference(u).RequestURI()
}

func (d *document) listing() *Listing {
	listing := &Listing{Comics: []Comic{}}
	d.doc.Find(listingSelector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		src, _ := a.Find("img").First().Attr("src")
		listing.Comics = append(listing.Comics, Comic{
			Path:      d.path(href),
			Title:     normalizeSpace(a.Text()),
			Thumbnail: d.abs(src),
		})
	})
	listing.HasNext = d.doc.Find(nextPageSelector).Length() > 0
	return listing
}

func (d *document) details(sanitizer *bluemonday.Policy) (*Details, error) {
	info := d.doc.Find("div.barContent").First()
	if info.Length() == 0 {
		return nil, fmt.Errorf("%w: no div.barContent", ErrUnexpectedLayout)
	}

	details := &Details{
		Path:     d.url.RequestURI(),
		Title:    normalizeSpace(info.Find("a.bigChar").First().Text()),
		Artist:   normalizeSpace(info.Find(`p:has(span:contains("Artist:")) > a`).First().Text()),
		Writer:   normalizeSpace(info.Find(`p:has(span:contains("Writer:")) > a`).First().Text()),
		Genres:   []string{},
		Summary:  summary(info.Find(`p:has(span:contains("Summary:")) ~ p`), sanitizer),
		Status:   publicationStatus(info.Find(`p:has(span:contains("Status:"))`).First().Text()),
		Chapters: d.chapters(),
	}

	genres := info.Find(`p:has(span:contains("Genres:"))`).First().Children()
	if genres.Length() > 1 {
		genres.Slice(1, goquery.ToEnd).Each(func(_ int, g *goquery.Selection) {
			if name := normalizeSpace(g.Text()); name != "" {
				details.Genres = append(details.Genres, name)
			}
		})
	}

	if src, ok := d.doc.Find(".rightBox").First().Find("img").First().Attr("src"); ok {
		details.Thumbnail = d.abs(src)
	}
	return details, nil
}

// chapters skips the header and spacer rows of the listing table
func (d *document) chapters() []Chapter {
	chapters := []Chapter{}
	rows := d.doc.Find(chapterSelector)
	if rows.Length() <= 2 {
		return chapters
	}

	rows.Slice(2, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
		link := row.Find("a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		chapter := Chapter{Path: d.path(href), Name: normalizeSpace(link.Text())}
		if date, err := time.Parse(chapterDate, strings.TrimSpace(row.Find("td").Eq(1).Text())); err == nil {
			chapter.Uploaded = date
		}
		chapters = append(chapters, chapter)
	})
	return chapters
}

// bootstrapURL returns the absolute URL of the anti-tamper loader, if linked
func (d *document) bootstrapURL() string {
	node := htmlquery.FindOne(d.root, bootstrapXPath)
	if node == nil {
		return ""
	}
	return d.abs(htmlquery.SelectAttr(node, "src"))
}

// payload returns the first inline script containing marker
func (d *document) payload(marker string) string {
	for _, node := range htmlquery.Find(d.root, inlineXPath) {
		if text := htmlquery.InnerText(node); strings.Contains(text, marker) {
			return text
		}
	}
	return ""
}

func summary(paragraphs *goquery.Selection, sanitizer *bluemonday.Policy) string {
	parts := make([]string, 0, paragraphs.Length())
	paragraphs.Each(func(_ int, p *goquery.Selection) {
		inner, err := p.Html()
		if err != nil {
			return
		}
		if text := normalizeSpace(html.UnescapeString(sanitizer.Sanitize(inner))); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " ")
}

func publicationStatus(text string) PublicationStatus {
	switch {
	case strings.Contains(text, "Ongoing"):
		return PublicationOngoing
	case strings.Contains(text, "Completed"):
		return PublicationCompleted
	default:
		return PublicationUnknown
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
