package model

// SEOSection holds the search engine signals of a page.
type SEOSection struct {
	Title     string         `json:"title"`
	Meta      MetaTags       `json:"meta"`
	Headings  SEOHeadings    `json:"headings"`
	Links     LinkStats      `json:"links"`
	Images    ImageStats     `json:"images"`
	Structure StructureStats `json:"structure"`
}

// NewSEOSection returns a section with empty heading lists.
func NewSEOSection() SEOSection {
	return SEOSection{
		Headings: SEOHeadings{
			H1: make([]HeadingInfo, 0),
			H2: make([]HeadingInfo, 0),
		},
	}
}

// MetaTags holds the content of four named meta tags.
// A nil field means the tag is absent.
type MetaTags struct {
	Description *string `json:"description"`
	Keywords    *string `json:"keywords"`
	Viewport    *string `json:"viewport"`
	Robots      *string `json:"robots"`
}

// SEOHeadings lists the first and second level headings in document order.
type SEOHeadings struct {
	H1 []HeadingInfo `json:"h1"`
	H2 []HeadingInfo `json:"h2"`
}

// HeadingInfo is the text of a heading and whether it is rendered.
type HeadingInfo struct {
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
}

// LinkStats counts anchors.
type LinkStats struct {
	Total    int `json:"total"`
	External int `json:"external"`
	Broken   int `json:"broken"`
	Nofollow int `json:"nofollow"`
}

// ImageStats counts images.
type ImageStats struct {
	Total      int `json:"total"`
	WithAlt    int `json:"withAlt"`
	WithoutAlt int `json:"withoutAlt"`
	LazyLoaded int `json:"lazyLoaded"`
}

// StructureStats records the semantic landmarks of a page.
type StructureStats struct {
	HasMain      bool `json:"hasMain"`
	HasNav       bool `json:"hasNav"`
	HasFooter    bool `json:"hasFooter"`
	ArticleCount int  `json:"articleCount"`
}
