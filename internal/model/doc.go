// Package model defines the data structures shared by the gather, audit,
// scoring and report stages of lightscan.
//
// This package contains the following main types:
//   - Artifacts: everything the gatherers collected during a run
//   - ArtifactError: the value stored in place of an artifact whose gatherer failed
//   - NetworkRecord: one network request observed during a pass
//   - AuditResult: the outcome of a single audit
//   - CategoryResult and Scores: aggregated scores
//   - RunResult: the complete result of a run
//   - Summary: a condensed view of a RunResult for terminal output
//
// Models live in their own package so that gather, audit, report and
// database can share them without import cycles. All of them serialize to
// JSON for report output, artifact snapshots and the history database.
package model
