package model

import "fmt"

// Issue texts written by the accessibility check.
const (
	IssueMissingAlt  = "Missing alt text"
	IssueMissingAria = "Missing aria-label or aria-labelledby"
)

// AccessibilitySection lists violations in document order.
type AccessibilitySection struct {
	Images   []ImageIssue   `json:"images"`
	Headings []HeadingIssue `json:"headings"`

	// Contrast is reserved for a color contrast check and is always empty.
	Contrast []ContrastIssue `json:"contrast"`

	ARIA []ARIAIssue `json:"aria"`
}

// NewAccessibilitySection returns a section with empty, non-nil sequences.
func NewAccessibilitySection() AccessibilitySection {
	return AccessibilitySection{
		Images:   make([]ImageIssue, 0),
		Headings: make([]HeadingIssue, 0),
		Contrast: make([]ContrastIssue, 0),
		ARIA:     make([]ARIAIssue, 0),
	}
}

// ImageIssue is an <img> without a non-empty alt attribute.
type ImageIssue struct {
	Src   string `json:"src"`
	Issue string `json:"issue"`
}

// HeadingIssue is a heading that skips one or more levels.
type HeadingIssue struct {
	Text  string `json:"text"`
	Issue string `json:"issue"`
}

// SkippedHeadingLevel formats the issue for a jump from level from to level to.
func SkippedHeadingLevel(from, to int) string {
	return fmt.Sprintf("Skipped heading level from %d to %d", from, to)
}

// ContrastIssue describes insufficient color contrast.
type ContrastIssue struct {
	Element string `json:"element"`
	Issue   string `json:"issue"`
}

// ARIAIssue is an element with a role but no accessible name attribute.
type ARIAIssue struct {
	Element string `json:"element"`
	Role    string `json:"role"`
	Issue   string `json:"issue"`
}

// IssueCount returns the number of violations in the section.
func (s AccessibilitySection) IssueCount() int {
	return len(s.Images) + len(s.Headings) + len(s.Contrast) + len(s.ARIA)
}
