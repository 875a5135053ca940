// Package trace turns a raw DevTools trace into main-thread timing data and
// responsiveness statistics.
//
// Traces arrive in one of two shapes: a bare JSON array of events, or an
// object with a "traceEvents" array. Parse accepts both and every consumer
// works on the normalized Data value.
//
// The main thread is the renderer thread named by the TracingStartedInPage
// event. Its top-level tasks are the unit of analysis: while one of them is
// running, input has to wait. RiskPercentiles answers the question "if input
// arrived uniformly at random during the window, how long would it wait at
// the given percentile?" with a single walk over the sorted task durations.
package trace
