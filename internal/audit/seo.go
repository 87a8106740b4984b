package audit

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

// SEOStep extracts the search engine signals of the page.
type SEOStep struct {
	page browser.Page
}

// NewSEOStep creates the SEO check for page.
func NewSEOStep(page browser.Page) *SEOStep {
	return &SEOStep{page: page}
}

// Name returns the step name.
func (s *SEOStep) Name() string {
	return "seo"
}

// Do fills report.SEO.
func (s *SEOStep) Do(_ context.Context, report *model.Report) error {
	report.SEO = AnalyzeSEO(s.page)
	return nil
}

// AnalyzeSEO computes the SEO section. Heading visibility comes from the
// page's computed style.
func AnalyzeSEO(page browser.Page) model.SEOSection {
	doc := page.Document()
	section := model.NewSEOSection()

	section.Title = documentTitle(doc)
	section.Meta = model.MetaTags{
		Description: metaContent(doc, "description"),
		Keywords:    metaContent(doc, "keywords"),
		Viewport:    metaContent(doc, "viewport"),
		Robots:      metaContent(doc, "robots"),
	}

	doc.Find("h1").Each(func(_ int, h *goquery.Selection) {
		section.Headings.H1 = append(section.Headings.H1, headingInfo(page, h))
	})
	doc.Find("h2").Each(func(_ int, h *goquery.Selection) {
		section.Headings.H2 = append(section.Headings.H2, headingInfo(page, h))
	})

	section.Links = linkStats(doc, page.URL())
	section.Images = imageStats(doc)
	section.Structure = model.StructureStats{
		HasMain:      doc.Find("main").Length() > 0,
		HasNav:       doc.Find("nav").Length() > 0,
		HasFooter:    doc.Find("footer").Length() > 0,
		ArticleCount: doc.Find("article").Length(),
	}
	return section
}

// documentTitle returns the first <title> with whitespace collapsed, like document.title.
func documentTitle(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

// metaContent returns the content of <meta name=name>, or nil when the tag is absent.
func metaContent(doc *goquery.Document, name string) *string {
	meta := doc.Find(`meta[name="` + name + `"]`).First()
	if meta.Length() == 0 {
		return nil
	}
	content, _ := meta.Attr("content")
	return &content
}

func headingInfo(page browser.Page, h *goquery.Selection) model.HeadingInfo {
	return model.HeadingInfo{
		Text:    elementText(h),
		Visible: page.Style(h.Get(0)).Rendered(),
	}
}

// linkStats classifies every anchor of the document.
//
// An anchor is broken when its href is missing or cannot be parsed; an empty
// href, "#" or a javascript: URL still resolves. It is external when it
// resolves to an http(s) URL on another host than the page. nofollow is read
// from the rel tokens.
func linkStats(doc *goquery.Document, page *url.URL) model.LinkStats {
	var stats model.LinkStats
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		stats.Total++

		if rel, ok := a.Attr("rel"); ok && hasToken(rel, "nofollow") {
			stats.Nofollow++
		}

		href, ok := resolveHref(a, page)
		if !ok {
			stats.Broken++
			return
		}
		if isExternal(href, page) {
			stats.External++
		}
	})
	return stats
}

func resolveHref(a *goquery.Selection, page *url.URL) (*url.URL, bool) {
	raw, ok := a.Attr("href")
	if !ok {
		return nil, false
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	if page != nil {
		u = page.ResolveReference(u)
	}
	return u, true
}

func isExternal(href, page *url.URL) bool {
	if href.Scheme != "http" && href.Scheme != "https" {
		return false
	}
	if page == nil {
		return true
	}
	return !strings.EqualFold(href.Hostname(), page.Hostname())
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func imageStats(doc *goquery.Document) model.ImageStats {
	var stats model.ImageStats
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		stats.Total++
		if alt, _ := img.Attr("alt"); alt != "" {
			stats.WithAlt++
		} else {
			stats.WithoutAlt++
		}
		if loading, _ := img.Attr("loading"); strings.EqualFold(strings.TrimSpace(loading), "lazy") {
			stats.LazyLoaded++
		}
	})
	return stats
}
