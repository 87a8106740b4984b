package audit

import (
	"context"
	"testing"
	"time"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

func TestMonitorErrors(t *testing.T) {
	t.Parallel()

	page := newFakePage(t, "https://example.com/", "<html></html>")
	log := model.NewErrorLog()

	page.raise(browser.ErrorEvent{Message: "before registration"})
	MonitorErrors(page, log, discard)

	at := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.FixedZone("JST", 9*60*60))
	page.raise(browser.ErrorEvent{
		Message:  "Uncaught TypeError: x is undefined",
		Filename: "https://example.com/app.js",
		Line:     10,
		Column:   5,
		Stack:    "TypeError: x is undefined\n    at app.js:10:5",
		Time:     at,
	})
	page.raise(browser.ErrorEvent{Message: "Uncaught second", Filename: "https://example.com/"})

	entries := log.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	first := entries[0]
	if first.Message != "Uncaught TypeError: x is undefined" {
		t.Errorf("message = %q", first.Message)
	}
	if first.Location != "https://example.com/app.js:10:5" {
		t.Errorf("location = %q", first.Location)
	}
	if first.Timestamp != "2024-03-01T03:30:45.123Z" {
		t.Errorf("timestamp = %q", first.Timestamp)
	}
	if first.Stack == "" {
		t.Error("stack should be kept")
	}
	if entries[1].Location != "https://example.com/:0:0" || entries[1].Timestamp == "" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestMonitorStep_ObserveWindow(t *testing.T) {
	t.Parallel()

	t.Run("zero window does not wait", func(t *testing.T) {
		t.Parallel()

		page := newFakePage(t, "https://example.com/", "<html></html>")
		report := model.NewReport(page.URL().String())
		if err := NewMonitorStep(page, 0, discard).Do(context.Background(), report); err != nil {
			t.Fatal(err)
		}
		if len(page.idled) != 0 {
			t.Errorf("unexpected waits %v", page.idled)
		}
	})

	t.Run("errors raised during the window are captured", func(t *testing.T) {
		t.Parallel()

		page := newFakePage(t, "https://example.com/", "<html></html>")
		page.onIdle = func() {
			page.raise(browser.ErrorEvent{Message: "late", Filename: "https://example.com/", Line: 1, Column: 1})
		}
		report := model.NewReport(page.URL().String())

		if err := NewMonitorStep(page, 2*time.Second, discard).Do(context.Background(), report); err != nil {
			t.Fatal(err)
		}
		if len(page.idled) != 1 || page.idled[0] != 2*time.Second {
			t.Errorf("waits = %v", page.idled)
		}
		if report.Errors.Len() != 1 {
			t.Errorf("got %d errors, want 1", report.Errors.Len())
		}
	})
}
