package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/lightscan/internal/database"
	"github.com/nao1215/lightscan/internal/model"
)

func ptr(f float64) *float64 { return &f }

func newTestRun(id, url string, fetchedAt time.Time, scores map[string]*float64, order []string) *model.RunResult {
	run := model.NewRunResult(id, url)
	run.FinalURL = url
	run.FetchedAt = fetchedAt
	var total float64
	for _, auditID := range order {
		s := scores[auditID]
		if s == nil {
			run.AddAudit(model.NewErrorResult(auditID, "Audit "+auditID, "failed"))
			continue
		}
		run.AddAudit(&model.AuditResult{ID: auditID, Title: "Audit " + auditID, Score: s})
		total += *s
	}
	run.Scores.Overall = ptr(total / float64(len(order)))
	return run
}

// seedHistory stores two runs of https://example.com and returns the
// database directory.
func seedHistory(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	runs := []*model.RunResult{
		newTestRun("run-1", "https://example.com", base,
			map[string]*float64{"is-on-https": ptr(0), "content-width": ptr(100)},
			[]string{"is-on-https", "content-width"}),
		newTestRun("run-2", "https://example.com", base.Add(time.Hour),
			map[string]*float64{"is-on-https": ptr(100), "content-width": ptr(100)},
			[]string{"is-on-https", "content-width"}),
	}
	for _, r := range runs {
		if err := db.SaveRun(context.Background(), r); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}
	return dir
}

func executeHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"history"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// TestNewHistoryCmd tests the history command flags.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()
	for _, name := range []string{"list-urls", "compare", "with-run", "json", "db-dir"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("requires a url", func(t *testing.T) {
		t.Parallel()
		if _, err := executeHistory(t, "--db-dir", t.TempDir()); err == nil {
			t.Error("expected error without url")
		}
	})

	t.Run("lists urls", func(t *testing.T) {
		t.Parallel()
		out, err := executeHistory(t, "--db-dir", seedHistory(t), "-L")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Audited URLs (1)") || !strings.Contains(out, "https://example.com") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("empty database", func(t *testing.T) {
		t.Parallel()
		out, err := executeHistory(t, "--db-dir", t.TempDir(), "-L")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No runs found") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("lists runs newest first", func(t *testing.T) {
		t.Parallel()
		out, err := executeHistory(t, "--db-dir", seedHistory(t), "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		first, second := strings.Index(out, "run-2"), strings.Index(out, "run-1")
		if first < 0 || second < 0 || first > second {
			t.Errorf("expected run-2 before run-1:\n%s", out)
		}
		if !strings.Contains(out, "P:2 A:0 F:0 E:0") {
			t.Errorf("expected rating counts:\n%s", out)
		}
	})

	t.Run("lists runs as json", func(t *testing.T) {
		t.Parallel()
		out, err := executeHistory(t, "--db-dir", seedHistory(t), "-j", "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var runs []database.RunMetadata
		if err := json.Unmarshal([]byte(out), &runs); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if len(runs) != 2 || runs[0].RunID != "run-2" {
			t.Errorf("unexpected runs: %+v", runs)
		}
	})

	t.Run("compares the latest two runs", func(t *testing.T) {
		t.Parallel()
		out, err := executeHistory(t, "--db-dir", seedHistory(t), "-C", "-j", "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var c Comparison
		if err := json.Unmarshal([]byte(out), &c); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if c.Previous.RunID != "run-1" || c.Current.RunID != "run-2" {
			t.Errorf("compared %s -> %s", c.Previous.RunID, c.Current.RunID)
		}
		if c.Overall.Trend != trendImproved {
			t.Errorf("overall trend = %q", c.Overall.Trend)
		}
	})

	t.Run("compare text output", func(t *testing.T) {
		t.Parallel()
		out, err := executeHistory(t, "--db-dir", seedHistory(t), "-C", "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Overall: 50 -> 100 (improved)") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("compare with unknown run", func(t *testing.T) {
		t.Parallel()
		_, err := executeHistory(t, "--db-dir", seedHistory(t), "-C", "--with-run", "missing", "https://example.com")
		if err == nil {
			t.Error("expected error for unknown run")
		}
	})

	t.Run("compare needs two runs", func(t *testing.T) {
		t.Parallel()
		_, err := executeHistory(t, "--db-dir", t.TempDir(), "-C", "https://example.com")
		if err == nil {
			t.Error("expected error without runs")
		}
	})
}

func TestCompare(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	previous := newTestRun("prev", "https://example.com", base,
		map[string]*float64{"a": ptr(80), "b": ptr(50), "gone": ptr(10)},
		[]string{"a", "b", "gone"})
	current := newTestRun("cur", "https://example.com", base.Add(time.Hour),
		map[string]*float64{"a": ptr(60), "b": ptr(50), "new": nil},
		[]string{"new", "a", "b"})

	c := compare("https://example.com", previous, current)

	type row struct {
		ID    string
		Trend string
		Delta *float64
	}
	var got []row
	for _, a := range c.Audits {
		got = append(got, row{ID: a.ID, Trend: a.Trend, Delta: a.Delta})
	}
	want := []row{
		{ID: "new", Trend: trendUnchanged},
		{ID: "a", Trend: trendRegressed, Delta: ptr(-20)},
		{ID: "b", Trend: trendUnchanged, Delta: ptr(0)},
		{ID: "gone", Trend: trendUnchanged},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("audit deltas mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatScore(t *testing.T) {
	t.Parallel()

	if got := formatScore(nil); got != "-" {
		t.Errorf("formatScore(nil) = %q", got)
	}
	if got := formatScore(ptr(87.6)); got != "88" {
		t.Errorf("formatScore(87.6) = %q", got)
	}
}
