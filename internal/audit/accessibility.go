package audit

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

// AccessibilityStep scans the DOM for missing alt text, skipped heading
// levels and unnamed ARIA roles.
type AccessibilityStep struct {
	page browser.Page
}

// NewAccessibilityStep creates the accessibility check for page.
func NewAccessibilityStep(page browser.Page) *AccessibilityStep {
	return &AccessibilityStep{page: page}
}

// Name returns the step name.
func (s *AccessibilityStep) Name() string {
	return "accessibility"
}

// Do fills report.Accessibility.
func (s *AccessibilityStep) Do(_ context.Context, report *model.Report) error {
	report.Accessibility = CheckAccessibility(s.page.Document())
	return nil
}

// CheckAccessibility runs the three scans over doc. Every list keeps
// document order; the contrast list is always empty.
func CheckAccessibility(doc *goquery.Document) model.AccessibilitySection {
	section := model.NewAccessibilitySection()

	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if alt, _ := img.Attr("alt"); alt != "" {
			return
		}
		section.Images = append(section.Images, model.ImageIssue{
			Src:   resolvedSrc(doc, img),
			Issue: model.IssueMissingAlt,
		})
	})

	last := 0
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		level := headingLevel(h)
		if level > last+1 {
			section.Headings = append(section.Headings, model.HeadingIssue{
				Text:  elementText(h),
				Issue: model.SkippedHeadingLevel(last, level),
			})
		}
		last = level
	})

	doc.Find("[role]").Each(func(_ int, el *goquery.Selection) {
		if label, _ := el.Attr("aria-label"); label != "" {
			return
		}
		if labelledBy, _ := el.Attr("aria-labelledby"); labelledBy != "" {
			return
		}
		role, _ := el.Attr("role")
		section.ARIA = append(section.ARIA, model.ARIAIssue{
			Element: strings.ToLower(goquery.NodeName(el)),
			Role:    role,
			Issue:   model.IssueMissingAria,
		})
	})

	return section
}

func headingLevel(h *goquery.Selection) int {
	name := goquery.NodeName(h)
	if len(name) != 2 || name[1] < '1' || name[1] > '6' {
		return 0
	}
	return int(name[1] - '0')
}

// resolvedSrc returns the absolute URL of an image the way img.src does.
// A missing src yields "".
func resolvedSrc(doc *goquery.Document, img *goquery.Selection) string {
	src, ok := img.Attr("src")
	if !ok {
		return ""
	}
	src = strings.TrimSpace(src)
	if doc.Url == nil {
		return src
	}
	u, err := doc.Url.Parse(src)
	if err != nil {
		return src
	}
	return u.String()
}

// elementText returns the text content with surrounding whitespace removed.
func elementText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
