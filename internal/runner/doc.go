// Package runner drives a complete lightscan run: it validates the target,
// gathers artifacts from the browser, audits and scores them, and records
// the result.
//
// The stages are pipeline steps over a shared run state:
//
//	validate URL -> gather -> save artifacts -> audit -> score -> record history
//
// GatherOnly stops after saving artifacts. AuditOnly replaces the first
// three steps with loading a saved artifact directory, so no browser is
// needed.
package runner
