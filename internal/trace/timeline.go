package trace

import (
	"cmp"
	"slices"
)

// Marker event names.
const (
	eventTracingStarted       = "TracingStartedInPage"
	eventNavigationStart      = "navigationStart"
	eventFirstPaint           = "firstPaint"
	eventFirstContentfulPaint = "firstContentfulPaint"
	eventFirstMeaningfulPaint = "firstMeaningfulPaint"
	eventFMPCandidate         = "firstMeaningfulPaintCandidate"

	categoryTopLevel = "toplevel"
)

// taskRunners are scheduler slices that count as top-level even when the
// trace was recorded without the toplevel category.
var taskRunners = map[string]bool{
	"TaskQueueManager::ProcessTaskFromWorkQueue": true,
	"ThreadControllerImpl::DoWork":               true,
	"ThreadControllerImpl::RunTask":              true,
	"RunTask":                                    true,
}

// Slice is a main-thread task. Times are in milliseconds on the trace clock.
type Slice struct {
	Name  string
	Start float64
	End   float64
}

// Duration returns the length of the slice in milliseconds.
func (s Slice) Duration() float64 {
	return s.End - s.Start
}

// Timeline holds the main-thread view of a trace. All times are in
// milliseconds on the trace clock; zero means the marker was not found.
type Timeline struct {
	MainPid int
	MainTid int

	NavigationStart      float64
	FirstPaint           float64
	FirstContentfulPaint float64
	FirstMeaningfulPaint float64
	TraceEnd             float64

	slices []Slice
}

// NewTimeline locates the main thread and extracts markers and top-level
// slices from d.
func NewTimeline(d *Data) (*Timeline, error) {
	if d == nil {
		return nil, ErrNoMainThread
	}

	events := slices.Clone(d.TraceEvents)
	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Compare(a.Ts, b.Ts)
	})

	startIdx := slices.IndexFunc(events, func(e Event) bool {
		return e.Name == eventTracingStarted
	})
	if startIdx < 0 {
		return nil, ErrNoMainThread
	}

	tl := &Timeline{
		MainPid: events[startIdx].Pid,
		MainTid: events[startIdx].Tid,
	}
	tl.findMarkers(events)
	tl.slices = tl.topLevelSlices(events)
	return tl, nil
}

func (tl *Timeline) findMarkers(events []Event) {
	var navStart float64
	var fmpCandidate float64

	for i := range events {
		e := &events[i]
		if end := toMillis(e.End()); end > tl.TraceEnd {
			tl.TraceEnd = end
		}
		if e.Pid != tl.MainPid {
			continue
		}

		ts := toMillis(e.Ts)
		switch e.Name {
		case eventNavigationStart:
			if navStart == 0 {
				navStart = ts
			}
		case eventFirstPaint:
			if tl.FirstPaint == 0 && ts >= navStart {
				tl.FirstPaint = ts
			}
		case eventFirstContentfulPaint:
			if tl.FirstContentfulPaint == 0 && ts >= navStart {
				tl.FirstContentfulPaint = ts
			}
		case eventFirstMeaningfulPaint:
			if tl.FirstMeaningfulPaint == 0 && ts >= navStart {
				tl.FirstMeaningfulPaint = ts
			}
		case eventFMPCandidate:
			if ts >= navStart {
				fmpCandidate = ts
			}
		}
	}

	tl.NavigationStart = navStart
	if tl.FirstMeaningfulPaint == 0 {
		tl.FirstMeaningfulPaint = fmpCandidate
	}
}

func (tl *Timeline) isTopLevel(e *Event) bool {
	return e.HasCategory(categoryTopLevel) || taskRunners[e.Name]
}

// topLevelSlices collects complete and paired begin/end slices on the main
// thread and drops those nested inside another accepted slice.
func (tl *Timeline) topLevelSlices(events []Event) []Slice {
	var candidates []Slice
	var open []Event

	for i := range events {
		e := &events[i]
		if e.Pid != tl.MainPid || e.Tid != tl.MainTid {
			continue
		}
		switch e.Ph {
		case PhaseComplete:
			if tl.isTopLevel(e) {
				candidates = append(candidates, Slice{Name: e.Name, Start: toMillis(e.Ts), End: toMillis(e.End())})
			}
		case PhaseBegin:
			open = append(open, *e)
		case PhaseEnd:
			if len(open) == 0 {
				continue
			}
			b := open[len(open)-1]
			open = open[:len(open)-1]
			if tl.isTopLevel(&b) {
				candidates = append(candidates, Slice{Name: b.Name, Start: toMillis(b.Ts), End: toMillis(e.Ts)})
			}
		}
	}

	// Longest first among slices starting together, so the outer one wins.
	slices.SortStableFunc(candidates, func(a, b Slice) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(b.End, a.End)
	})

	out := make([]Slice, 0, len(candidates))
	for _, s := range candidates {
		if n := len(out); n > 0 && s.Start >= out[n-1].Start && s.End <= out[n-1].End {
			continue
		}
		out = append(out, s)
	}
	return out
}

// TopLevelSlices returns the main-thread top-level slices ordered by start.
func (tl *Timeline) TopLevelSlices() []Slice {
	return slices.Clone(tl.slices)
}

// InputWindowStart returns the preferred start of the input latency
// window: first meaningful paint, falling back to first contentful paint and
// then navigation start.
func (tl *Timeline) InputWindowStart() float64 {
	for _, t := range []float64{tl.FirstMeaningfulPaint, tl.FirstContentfulPaint, tl.NavigationStart} {
		if t > 0 {
			return t
		}
	}
	return 0
}

func toMillis(us float64) float64 {
	return us / 1000
}
