package browser

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// hiddenByDefault are elements the user agent stylesheet renders with display:none.
var hiddenByDefault = map[string]bool{
	"head": true, "script": true, "style": true, "title": true, "meta": true,
	"link": true, "base": true, "template": true, "noscript": true, "area": true,
	"datalist": true, "param": true, "source": true, "track": true, "dialog": true,
}

// blockByDefault are elements the user agent stylesheet renders as blocks.
var blockByDefault = map[string]bool{
	"html": true, "body": true, "address": true, "article": true, "aside": true,
	"blockquote": true, "details": true, "div": true, "dl": true, "dd": true, "dt": true,
	"fieldset": true, "figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hgroup": true, "hr": true, "main": true, "menu": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "summary": true, "ul": true,
}

// cssRule is one selector of a qualified rule with its declarations.
type cssRule struct {
	sel   cascadia.Sel
	spec  cascadia.Specificity
	order int
	decls []*css.Declaration
}

// cascade computes display and visibility from author stylesheets, inline
// style attributes and the user agent defaults. Selectors with pseudo
// elements never match an element and are dropped.
type cascade struct {
	rules []cssRule
}

// newCascade parses sheets in document order. Unparsable sheets and
// selectors are skipped the way browsers skip them.
func newCascade(sheets []string) *cascade {
	c := &cascade{}
	order := 0
	for _, text := range sheets {
		sheet, err := parser.Parse(text)
		if err != nil {
			continue
		}
		c.addRules(sheet.Rules, &order)
	}
	return c
}

func (c *cascade) addRules(rules []*css.Rule, order *int) {
	for _, r := range rules {
		if r.Kind == css.AtRule {
			if strings.EqualFold(r.Name, "@media") && screenMedia(r.Prelude) {
				c.addRules(r.Rules, order)
			}
			continue
		}
		decls := relevantDeclarations(r.Declarations)
		if len(decls) == 0 {
			continue
		}
		for _, s := range r.Selectors {
			sel, err := cascadia.Parse(s)
			if err != nil || sel.PseudoElement() != "" {
				continue
			}
			*order++
			c.rules = append(c.rules, cssRule{sel: sel, spec: sel.Specificity(), order: *order, decls: decls})
		}
	}
}

func relevantDeclarations(decls []*css.Declaration) []*css.Declaration {
	var out []*css.Declaration
	for _, d := range decls {
		switch strings.ToLower(d.Property) {
		case "display", "visibility":
			out = append(out, d)
		}
	}
	return out
}

// screenMedia reports whether a media query list applies to a screen.
func screenMedia(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || strings.Contains(q, "screen") || strings.Contains(q, "all") {
		return true
	}
	return !strings.Contains(q, "print") && !strings.Contains(q, "speech")
}

// candidate is a declared value competing in the cascade.
type candidate struct {
	value     string
	important bool
	inline    bool
	spec      cascadia.Specificity
	order     int
	set       bool
}

func (a candidate) beats(b candidate) bool {
	if !b.set {
		return true
	}
	if a.important != b.important {
		return a.important
	}
	if a.inline != b.inline {
		return a.inline
	}
	if a.spec != b.spec {
		return b.spec.Less(a.spec)
	}
	return a.order > b.order
}

// declared returns the winning value of property for n, or "" when no
// author declaration applies.
func (c *cascade) declared(n *html.Node, property string) string {
	var best candidate
	for _, r := range c.rules {
		if !r.sel.Match(n) {
			continue
		}
		for _, d := range r.decls {
			if !strings.EqualFold(d.Property, property) {
				continue
			}
			cand := candidate{value: normalizeValue(d.Value), important: d.Important, spec: r.spec, order: r.order, set: true}
			if cand.beats(best) {
				best = cand
			}
		}
	}

	if inline := attr(n, "style"); inline != "" {
		decls, err := parser.ParseDeclarations(inline)
		if err == nil {
			for _, d := range decls {
				if !strings.EqualFold(d.Property, property) {
					continue
				}
				cand := candidate{value: normalizeValue(d.Value), important: d.Important, inline: true, set: true}
				if cand.beats(best) {
					best = cand
				}
			}
		}
	}
	return best.value
}

func normalizeValue(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimSpace(strings.TrimSuffix(v, "!important"))
	return v
}

// Style computes the display and visibility of an element node.
func (c *cascade) Style(n *html.Node) Style {
	return Style{Display: c.display(n), Visibility: c.visibility(n)}
}

func (c *cascade) display(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return "none"
	}
	switch v := c.declared(n, "display"); v {
	case "", "initial", "unset", "revert":
		return defaultDisplay(n)
	case "inherit":
		if n.Parent != nil && n.Parent.Type == html.ElementNode {
			return c.display(n.Parent)
		}
		return "inline"
	default:
		return v
	}
}

func defaultDisplay(n *html.Node) string {
	if _, hidden := attrValue(n, "hidden"); hidden {
		return "none"
	}
	switch {
	case hiddenByDefault[n.Data]:
		return "none"
	case blockByDefault[n.Data]:
		return "block"
	case n.Data == "li":
		return "list-item"
	case n.Data == "table":
		return "table"
	default:
		return "inline"
	}
}

func (c *cascade) visibility(n *html.Node) string {
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		switch v := c.declared(cur, "visibility"); v {
		case "", "inherit", "unset":
			continue
		case "initial", "revert":
			return "visible"
		default:
			return v
		}
	}
	return "visible"
}

func attr(n *html.Node, key string) string {
	v, _ := attrValue(n, key)
	return v
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
