package audit

import (
	"maps"
	"math"
	"slices"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/trace"
)

// logNormalScore maps value onto a log-normal curve with the given median
// and point of diminishing returns and returns a 0-100 score. Lower values
// score higher; value at the median scores 50.
func logNormalScore(value, median, podr float64) float64 {
	if value <= 0 {
		return 100
	}
	location := math.Log(median)
	logRatio := math.Log(podr / median)
	shape := math.Sqrt(1-3*logRatio-math.Sqrt((logRatio-3)*(logRatio-3)-8)) / 2
	standardized := (math.Log(value) - location) / (math.Sqrt2 * shape)
	return 100 * math.Erfc(standardized) / 2
}

// pickPass returns the pass whose data an audit reads: the default pass
// when present, otherwise the first pass name in sorted order.
func pickPass[V any](byPass map[string]V) (string, V, bool) {
	if v, ok := byPass[config.DefaultPassName]; ok {
		return config.DefaultPassName, v, true
	}
	names := slices.Sorted(maps.Keys(byPass))
	if len(names) == 0 {
		var zero V
		return "", zero, false
	}
	return names[0], byPass[names[0]], true
}

// timeline returns the cached timeline of pass.
func timeline(actx *Context, pass string, data *trace.Data) (*trace.Timeline, error) {
	return Compute(actx.Computed, "timeline/"+pass, func() (*trace.Timeline, error) {
		return trace.NewTimeline(data)
	})
}
