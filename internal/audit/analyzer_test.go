package audit

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nao1215/pageaudit/internal/browser"
	"github.com/nao1215/pageaudit/internal/model"
)

func TestNewAnalyzer(t *testing.T) {
	t.Parallel()

	t.Run("nil page is rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := NewAnalyzer(nil); !errors.Is(err, ErrNoPage) {
			t.Errorf("expected ErrNoPage, got %v", err)
		}
	})

	t.Run("checks run in the documented order", func(t *testing.T) {
		t.Parallel()

		page := newFakePage(t, "https://example.com/", "<html></html>")
		a, err := NewAnalyzer(page, WithLogger(discard), WithReporter(ReporterFunc(func(context.Context, *model.Report) error { return nil })))
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"performance", "accessibility", "seo", "memory", "errors", "report"}
		if got := a.Pipeline().StepNames(); !reflect.DeepEqual(got, want) {
			t.Errorf("steps = %v, want %v", got, want)
		}
	})

	t.Run("without a reporter there is no report step", func(t *testing.T) {
		t.Parallel()

		page := newFakePage(t, "https://example.com/", "<html></html>")
		a, err := NewAnalyzer(page, WithLogger(discard))
		if err != nil {
			t.Fatal(err)
		}
		if a.Pipeline().StepCount() != 5 {
			t.Errorf("steps = %v", a.Pipeline().StepNames())
		}
	})
}

func TestAnalyzer_Run(t *testing.T) {
	t.Parallel()

	page := newFakePage(t, "https://example.com/", `<html><head><title>Home</title></head><body>
<h1>Welcome</h1><h3>Skipped</h3><img src="/hero.png"><a href="https://elsewhere.example.org/">out</a>
</body></html>`)
	page.nav = &browser.NavigationTiming{DOMContentLoadedEventEnd: 200, LoadEventEnd: 450}
	page.heap = &fakeHeap{samples: []int64{8 << 20, 9 << 20}}
	page.onIdle = func() {
		page.raise(browser.ErrorEvent{Message: "during memory wait", Filename: "https://example.com/", Line: 3, Column: 7})
	}

	var published *model.Report
	reporter := ReporterFunc(func(_ context.Context, r *model.Report) error {
		published = r
		return nil
	})

	a, err := NewAnalyzer(page, WithLogger(discard), WithReporter(reporter), WithMemoryDelay(DefaultMemoryDelay))
	if err != nil {
		t.Fatal(err)
	}
	report, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if published != report {
		t.Fatal("the reporter must receive the returned report")
	}
	if report.URL != "https://example.com/" {
		t.Errorf("URL = %q", report.URL)
	}
	if report.Performance.LoadTime.Value != 450 || report.Performance.FirstPaint.Valid {
		t.Errorf("performance = %+v", report.Performance)
	}
	if len(report.Accessibility.Headings) != 1 || len(report.Accessibility.Images) != 1 {
		t.Errorf("accessibility = %+v", report.Accessibility)
	}
	if report.SEO.Title != "Home" || report.SEO.Links.External != 1 {
		t.Errorf("seo = %+v", report.SEO)
	}
	if report.Memory.Difference != "1 MB" {
		t.Errorf("memory = %+v", report.Memory)
	}
	// The monitor registers after the memory wait, so that error is not captured.
	if report.Errors.Len() != 0 {
		t.Errorf("errors = %+v", report.Errors.Entries())
	}

	page.raise(browser.ErrorEvent{Message: "after report", Filename: "https://example.com/", Line: 1, Column: 1})
	if report.Errors.Len() != 1 {
		t.Error("the error log keeps growing after the report was generated")
	}

	t.Run("report round-trips through JSON", func(t *testing.T) {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			t.Fatal(err)
		}
		var decoded model.Report
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}
		again, err := json.MarshalIndent(&decoded, "", "  ")
		if err != nil {
			t.Fatal(err)
		}
		if string(again) != string(data) {
			t.Errorf("round trip changed the report:\n%s\n---\n%s", data, again)
		}
	})
}

func TestAnalyzer_RunStopsOnFailure(t *testing.T) {
	t.Parallel()

	page := newFakePage(t, "https://example.com/", "<html></html>")
	page.heap = &fakeHeap{samples: []int64{1, 1}}
	page.idleErr = browser.ErrPageClosed

	called := false
	a, err := NewAnalyzer(page, WithLogger(discard), WithReporter(ReporterFunc(func(context.Context, *model.Report) error {
		called = true
		return nil
	})))
	if err != nil {
		t.Fatal(err)
	}

	report, err := a.Run(context.Background())
	if !errors.Is(err, browser.ErrPageClosed) {
		t.Fatalf("expected ErrPageClosed, got %v", err)
	}
	if report == nil {
		t.Fatal("the partial report should be returned")
	}
	if report.Memory != (model.MemorySection{}) {
		t.Errorf("memory section should stay empty, got %+v", report.Memory)
	}
	if called {
		t.Error("the report must not be published after a failed step")
	}
}
