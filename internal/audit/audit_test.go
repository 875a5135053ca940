package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mafredri/cdp/protocol/serviceworker"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/gather"
	"github.com/nao1215/lightscan/internal/model"
	"github.com/nao1215/lightscan/internal/trace"
)

// stubAudit is a configurable audit for exercising Run.
type stubAudit struct {
	id       string
	required []string
	score    float64
	err      error
	panicMsg string
}

func (s *stubAudit) Meta() Meta {
	return Meta{ID: s.id, Title: strings.ToUpper(s.id), RequiredArtifacts: s.required}
}

func (s *stubAudit) Audit(context.Context, *Context) (*Product, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Product{Score: s.score, RawValue: s.score}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRun_Isolation(t *testing.T) {
	t.Parallel()

	artifacts := model.NewArtifacts()
	artifacts.Values["Bar"] = model.NewArtifactError("Bar", errors.New("permission denied"))
	artifacts.Values["Baz"] = "ok"

	audits := []Audit{
		&stubAudit{id: "needs-foo", required: []string{"Foo"}, score: 100},
		&stubAudit{id: "needs-bar", required: []string{"Bar"}, score: 100},
		&stubAudit{id: "panics", panicMsg: "index out of range"},
		&stubAudit{id: "errors", err: errors.New("bad input")},
		&stubAudit{id: "needs-baz", required: []string{"Baz"}, score: 72.4},
		&stubAudit{id: "out-of-range", score: 140},
	}

	results, err := Run(context.Background(), audits, artifacts, WithConcurrency(2), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	type summary struct {
		ID    string
		Error bool
		Debug string
		Score float64
	}
	got := make([]summary, 0, len(results))
	for _, r := range results {
		s := summary{ID: r.ID, Error: r.Error, Debug: r.DebugString}
		if r.Score != nil {
			s.Score = *r.Score
		}
		got = append(got, s)
	}

	want := []summary{
		{ID: "needs-foo", Error: true, Debug: "Required Foo gatherer did not run."},
		{ID: "needs-bar", Error: true, Debug: "Required Bar gatherer encountered an error: permission denied"},
		{ID: "panics", Error: true, Debug: "Audit error: index out of range"},
		{ID: "errors", Error: true, Debug: "Audit error: bad input"},
		{ID: "needs-baz", Score: 72},
		{ID: "out-of-range", Score: 100},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	for _, r := range results[:4] {
		if r.Score != nil {
			t.Errorf("%s: error result has score %v", r.ID, *r.Score)
		}
		if r.Title != strings.ToUpper(r.ID) {
			t.Errorf("%s: title = %q", r.ID, r.Title)
		}
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, []Audit{&stubAudit{id: "a"}}, nil, WithLogger(quietLogger()))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestComputedCache(t *testing.T) {
	t.Parallel()

	c := NewComputedCache()
	var calls atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Compute(c, "k", func() (int, error) {
				calls.Add(1)
				return 42, nil
			})
			if err != nil || v != 42 {
				t.Errorf("Compute() = %v, %v", v, err)
			}
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("fn called %d times, want 1", calls.Load())
	}

	boom := errors.New("boom")
	for range 2 {
		if _, err := Compute(c, "bad", func() (string, error) { return "", boom }); !errors.Is(err, boom) {
			t.Errorf("Compute() error = %v, want cached boom", err)
		}
	}

	if _, err := Compute(c, "k", func() (string, error) { return "", nil }); err == nil {
		t.Error("Compute() with a different type should fail")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLogNormalScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		value    float64
		min, max float64
	}{
		{name: "zero", value: 0, min: 100, max: 100},
		{name: "median", value: 100, min: 49.999, max: 50.001},
		{name: "point of diminishing returns", value: 50, min: 90, max: 99},
		{name: "far above median", value: 10000, min: 0, max: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := logNormalScore(tt.value, 100, 50)
			if got < tt.min || got > tt.max {
				t.Errorf("logNormalScore(%v) = %v, want in [%v, %v]", tt.value, got, tt.min, tt.max)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()
	ids := config.DefaultRunConfig().Audits
	audits, err := r.Resolve(ids)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for i, a := range audits {
		if a.Meta().ID != ids[i] {
			t.Errorf("audit %d id = %q, want %q", i, a.Meta().ID, ids[i])
		}
	}
	if _, err := r.Resolve([]string{"nope"}); !errors.Is(err, config.ErrUnknownAudit) {
		t.Errorf("Resolve(nope) error = %v, want ErrUnknownAudit", err)
	}
}

// runSingle runs a built-in audit over artifacts and returns its result.
func runSingle(t *testing.T, a Audit, artifacts *model.Artifacts) *model.AuditResult {
	t.Helper()
	results, err := Run(context.Background(), []Audit{a}, artifacts, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return results[0]
}

func artifactsWith(values map[string]any) *model.Artifacts {
	a := model.NewArtifacts()
	for k, v := range values {
		a.Values[k] = v
	}
	return a
}

func scoreOf(t *testing.T, r *model.AuditResult) float64 {
	t.Helper()
	if r.Score == nil {
		t.Fatalf("%s: no score (debug %q)", r.ID, r.DebugString)
	}
	return *r.Score
}

func TestIsOnHTTPS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		finalURL  string
		records   []model.NetworkRecord
		wantScore float64
		wantDebug string
	}{
		{name: "https page", finalURL: "https://example.com/", wantScore: 100},
		{name: "http page", finalURL: "http://example.com/", wantScore: 0, wantDebug: "The page was not served over HTTPS."},
		{
			name:     "insecure subresource",
			finalURL: "https://example.com/",
			records: []model.NetworkRecord{
				{URL: "https://example.com/"},
				{URL: "http://cdn.example.com/lib.js"},
				{URL: "data:image/png;base64,AAAA"},
			},
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			artifacts := artifactsWith(map[string]any{
				gather.URLGathererName: &gather.URLArtifact{InitialURL: tt.finalURL, FinalURL: tt.finalURL},
			})
			if tt.records != nil {
				artifacts.NetworkRecords[config.DefaultPassName] = tt.records
			}
			r := runSingle(t, &IsOnHTTPS{}, artifacts)
			if got := scoreOf(t, r); got != tt.wantScore {
				t.Errorf("score = %v, want %v", got, tt.wantScore)
			}
			if r.DebugString != tt.wantDebug {
				t.Errorf("debug = %q, want %q", r.DebugString, tt.wantDebug)
			}
		})
	}
}

func TestContentWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		dims      *gather.ViewportDimensions
		wantScore float64
	}{
		{name: "fits", dims: &gather.ViewportDimensions{InnerWidth: 412, ScrollWidth: 412}, wantScore: 100},
		{name: "overflows", dims: &gather.ViewportDimensions{InnerWidth: 412, ScrollWidth: 980}, wantScore: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := runSingle(t, &ContentWidth{}, artifactsWith(map[string]any{
				gather.ViewportDimensionsGathererName: tt.dims,
			}))
			if got := scoreOf(t, r); got != tt.wantScore {
				t.Errorf("score = %v, want %v", got, tt.wantScore)
			}
		})
	}

	t.Run("wrong artifact type", func(t *testing.T) {
		t.Parallel()
		r := runSingle(t, &ContentWidth{}, artifactsWith(map[string]any{
			gather.ViewportDimensionsGathererName: "not dimensions",
		}))
		if !r.Error || !strings.HasPrefix(r.DebugString, "Audit error:") {
			t.Errorf("result = %+v, want audit error", r)
		}
	})
}

func TestServiceWorker(t *testing.T) {
	t.Parallel()

	version := func(script string, status serviceworker.VersionStatus) serviceworker.Version {
		return serviceworker.Version{VersionID: "1", RegistrationID: "1", ScriptURL: script, Status: status}
	}

	tests := []struct {
		name      string
		versions  []serviceworker.Version
		wantScore float64
	}{
		{name: "activated on same origin", versions: []serviceworker.Version{version("https://example.com/sw.js", serviceworker.VersionStatusActivated)}, wantScore: 100},
		{name: "installing only", versions: []serviceworker.Version{version("https://example.com/sw.js", serviceworker.VersionStatusInstalling)}, wantScore: 0},
		{name: "other origin", versions: []serviceworker.Version{version("https://other.example/sw.js", serviceworker.VersionStatusActivated)}, wantScore: 0},
		{name: "none", wantScore: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := runSingle(t, &ServiceWorker{}, artifactsWith(map[string]any{
				gather.URLGathererName:           &gather.URLArtifact{FinalURL: "https://example.com/app/"},
				gather.ServiceWorkerGathererName: &gather.ServiceWorkerArtifact{Versions: tt.versions},
			}))
			if got := scoreOf(t, r); got != tt.wantScore {
				t.Errorf("score = %v, want %v", got, tt.wantScore)
			}
		})
	}
}

func TestTotalByteWeight(t *testing.T) {
	t.Parallel()

	artifacts := model.NewArtifacts()
	artifacts.NetworkRecords[config.DefaultPassName] = []model.NetworkRecord{
		{URL: "https://example.com/", TransferSize: 1024},
		{URL: "https://example.com/app.js", TransferSize: 2048},
		{URL: "https://example.com/cached.css", TransferSize: 4096, FromDiskCache: true},
	}

	r := runSingle(t, &TotalByteWeight{}, artifacts)
	if r.RawValue != int64(3072) {
		t.Errorf("raw value = %v, want 3072", r.RawValue)
	}
	if r.DisplayValue != "Total size was 3 KB" {
		t.Errorf("display value = %q", r.DisplayValue)
	}
	if got := scoreOf(t, r); got != 100 {
		t.Errorf("score = %v, want 100", got)
	}
	want := []ByteWeightItem{
		{URL: "https://example.com/app.js", TransferSize: 2048},
		{URL: "https://example.com/", TransferSize: 1024},
	}
	if diff := cmp.Diff(want, r.Details); diff != "" {
		t.Errorf("details mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimatedInputLatency(t *testing.T) {
	t.Parallel()

	const pid, tid = 1, 1
	ms := func(v float64) float64 { return v * 1000 }
	events := []trace.Event{
		{Pid: pid, Tid: tid, Ts: ms(5), Ph: trace.PhaseInstant, Name: "TracingStartedInPage"},
		{Pid: pid, Tid: tid, Ts: ms(10), Ph: trace.PhaseMark, Name: "navigationStart"},
		{Pid: pid, Tid: tid, Ts: ms(100), Ph: trace.PhaseMark, Name: "firstMeaningfulPaint"},
		{Pid: pid, Tid: tid, Ts: ms(300), Dur: ms(500), Ph: trace.PhaseComplete, Cat: "toplevel", Name: "RunTask"},
		{Pid: pid, Tid: tid, Ts: ms(1100), Ph: trace.PhaseInstant, Name: "end"},
	}

	t.Run("p90 plus base latency", func(t *testing.T) {
		t.Parallel()
		artifacts := model.NewArtifacts()
		artifacts.Traces[config.DefaultPassName] = trace.FromEvents(events)

		r := runSingle(t, &EstimatedInputLatency{}, artifacts)
		latency, ok := r.RawValue.(float64)
		if !ok {
			t.Fatalf("raw value = %#v", r.RawValue)
		}
		// Window is 100..1100ms with one 500ms task: p90 waits 400ms.
		if math.Abs(latency-416) > 1e-6 {
			t.Errorf("latency = %v, want 416", latency)
		}
		if r.DisplayValue != "416.0 ms" {
			t.Errorf("display value = %q", r.DisplayValue)
		}
		if got := scoreOf(t, r); got >= 50 {
			t.Errorf("score = %v, want below 50", got)
		}
	})

	t.Run("malformed trace", func(t *testing.T) {
		t.Parallel()
		artifacts := model.NewArtifacts()
		artifacts.Traces[config.DefaultPassName] = trace.FromEvents(events[1:])

		r := runSingle(t, &EstimatedInputLatency{}, artifacts)
		if !r.Error || !strings.Contains(r.DebugString, trace.ErrNoMainThread.Error()) {
			t.Errorf("result = %+v, want malformed trace error", r)
		}
	})

	t.Run("missing trace", func(t *testing.T) {
		t.Parallel()
		r := runSingle(t, &EstimatedInputLatency{}, model.NewArtifacts())
		if r.DebugString != "Required traces gatherer did not run." {
			t.Errorf("debug = %q", r.DebugString)
		}
	})
}
