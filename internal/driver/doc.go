// Package driver implements page-level browser operations on top of a
// DevTools connection: emulation, cache and storage resets, navigation with a
// load timeout, tracing, network recording and script evaluation.
package driver
