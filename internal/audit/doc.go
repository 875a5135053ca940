// Package audit turns gathered artifacts into scored results.
//
// Each audit declares the artifacts it needs. Run checks them before the
// audit is called, so an audit never sees a missing or failed artifact, and
// converts every failure (missing artifact, gatherer error, returned error,
// panic) into an error result without stopping the other audits.
package audit
