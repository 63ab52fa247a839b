package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"websearch/pkg/parse"
	"websearch/pkg/utils"
)

const (
	// Text is built from the first paragraphs only; the index needs a
	// representative sample, not the full page.
	maxParagraphs  = 10
	maxTextChars   = 500
	undefinedValue = "undefined"
)

// Meta selectors probed for a publish date, in priority order.
var publishDateSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`time[datetime]`, "datetime"},
}

// A tiny stopword sample per language, used only when the page does
// not declare its language. Counting hits is crude but distinguishes
// Portuguese from English well enough for ranking purposes.
var (
	ptMarkers = []string{" de ", " que ", " não ", " uma ", " para ", " com ", " são ", " mais "}
	enMarkers = []string{" the ", " and ", " that ", " with ", " for ", " this ", " are ", " from "}
)

// PageData holds everything extracted from one fetched document.
type PageData struct {
	Title       string
	Text        string
	Language    string
	PublishDate string
	Outlinks    []string // normalized absolute http(s) URLs, deduplicated, self excluded
}

// Extractor pulls the indexable fields and outlinks out of fetched HTML.
type Extractor struct {
	log *logrus.Entry
}

// NewExtractor creates an Extractor.
func NewExtractor(log *logrus.Entry) *Extractor {
	return &Extractor{log: log}
}

// Extract parses body as HTML and returns the page's indexable data.
// finalURL (post-redirect) is the base for resolving relative links.
func (e *Extractor) Extract(body []byte, finalURL *url.URL) (*PageData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML from '%s': %w", utils.ErrParsing, finalURL, err)
	}

	data := &PageData{
		Title:       extractTitle(doc),
		Text:        extractText(doc),
		PublishDate: extractPublishDate(doc),
	}
	data.Language = detectLanguage(doc, data.Text)
	data.Outlinks = e.extractOutlinks(doc, finalURL)
	return data, nil
}

// extractTitle prefers <title>, falling back to the first <h1>.
func extractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		return undefinedValue
	}
	return collapseWhitespace(title)
}

// extractText joins the first paragraphs of the page, capped at
// maxTextChars runes.
func extractText(doc *goquery.Document) string {
	var parts []string
	doc.Find("p").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxParagraphs {
			return false
		}
		if txt := strings.TrimSpace(s.Text()); txt != "" {
			parts = append(parts, txt)
		}
		return true
	})

	text := collapseWhitespace(strings.Join(parts, " "))
	runes := []rune(text)
	if len(runes) > maxTextChars {
		text = string(runes[:maxTextChars])
	}
	return text
}

func extractPublishDate(doc *goquery.Document) string {
	for _, probe := range publishDateSelectors {
		if val, ok := doc.Find(probe.selector).First().Attr(probe.attr); ok {
			if val = strings.TrimSpace(val); val != "" {
				return val
			}
		}
	}
	return ""
}

// detectLanguage reads <html lang="..">, normalizing region subtags
// ("pt-BR" -> "pt"). Without a declaration it falls back to counting
// stopword markers in the extracted text.
func detectLanguage(doc *goquery.Document, text string) string {
	if lang, ok := doc.Find("html").First().Attr("lang"); ok {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if idx := strings.IndexAny(lang, "-_"); idx > 0 {
			lang = lang[:idx]
		}
		if lang != "" {
			return lang
		}
	}

	haystack := " " + strings.ToLower(text) + " "
	ptHits, enHits := 0, 0
	for _, m := range ptMarkers {
		ptHits += strings.Count(haystack, m)
	}
	for _, m := range enMarkers {
		enHits += strings.Count(haystack, m)
	}
	switch {
	case ptHits > enHits:
		return "pt"
	case enHits > ptHits:
		return "en"
	default:
		return undefinedValue
	}
}

// extractOutlinks collects every resolvable http(s) link, normalized
// and deduplicated, excluding links back to the page itself.
func (e *Extractor) extractOutlinks(doc *goquery.Document, finalURL *url.URL) []string {
	self := parse.NormalizeURL(finalURL)
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		normalized, ok := parse.ResolveOutlink(finalURL, href)
		if !ok {
			return // mailto:, javascript:, malformed, etc.
		}
		if normalized == self {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})

	e.log.Debugf("Extracted %d unique outlinks from %s", len(links), finalURL)
	return links
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
