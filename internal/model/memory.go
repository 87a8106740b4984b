package model

import (
	"fmt"
	"math"
)

// MemoryUnavailable is the marker used when the page has no heap introspection.
const MemoryUnavailable = "Memory API not available"

const bytesPerMB = 1024 * 1024

// MemorySection is either {error} or {initial, final, difference}.
type MemorySection struct {
	Error      string `json:"error,omitempty"`
	Initial    string `json:"initial,omitempty"`
	Final      string `json:"final,omitempty"`
	Difference string `json:"difference,omitempty"`
}

// NewMemoryUnavailable returns the capability-absent marker.
func NewMemoryUnavailable() MemorySection {
	return MemorySection{Error: MemoryUnavailable}
}

// NewMemoryUsage builds the section from two used-heap samples in bytes.
// Both samples are rounded to whole megabytes and the difference is taken
// on the rounded values, so initial + difference == final always holds for
// the reported numbers.
func NewMemoryUsage(initialBytes, finalBytes int64) MemorySection {
	initial := ToMB(initialBytes)
	final := ToMB(finalBytes)
	return MemorySection{
		Initial:    FormatMB(initial),
		Final:      FormatMB(final),
		Difference: FormatMB(final - initial),
	}
}

// Available reports whether the section carries samples.
func (m MemorySection) Available() bool {
	return m.Error == ""
}

// ToMB rounds a byte count to the nearest whole megabyte.
func ToMB(b int64) int64 {
	return int64(math.Round(float64(b) / bytesPerMB))
}

// FormatMB renders a megabyte count, e.g. "12 MB".
func FormatMB(mb int64) string {
	return fmt.Sprintf("%d MB", mb)
}
