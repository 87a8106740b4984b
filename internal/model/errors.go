package model

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ErrorEntry is one uncaught runtime error raised by the page.
type ErrorEntry struct {
	Message string `json:"message"`

	// Location is "url:line:column".
	Location string `json:"location"`

	Stack     string `json:"stack,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewErrorEntry builds an entry, composing the location and formatting the time.
func NewErrorEntry(message, source string, line, column int, stack string, at time.Time) ErrorEntry {
	return ErrorEntry{
		Message:   message,
		Location:  source + ":" + strconv.Itoa(line) + ":" + strconv.Itoa(column),
		Stack:     stack,
		Timestamp: at.UTC().Format(TimestampLayout),
	}
}

// ErrorLog is the unbounded, ordered sequence of captured errors.
// Engines deliver errors from their own goroutines, so all access is locked.
type ErrorLog struct {
	mu      sync.Mutex
	entries []ErrorEntry
}

// NewErrorLog returns an empty log.
func NewErrorLog() *ErrorLog {
	return &ErrorLog{entries: make([]ErrorEntry, 0)}
}

// Append adds an entry at the end of the log.
func (l *ErrorLog) Append(e ErrorEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the entries captured so far.
func (l *ErrorLog) Entries() []ErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ErrorEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of captured entries.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// MarshalJSON implements json.Marshaler as a plain array.
func (l *ErrorLog) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ErrorLog) UnmarshalJSON(data []byte) error {
	var entries []ErrorEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	if entries == nil {
		entries = make([]ErrorEntry, 0)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	return nil
}
