// Package gather drives the browser through one or more passes and collects
// the artifacts audits are computed from.
//
// A run moves through these phases:
//
//	SETUP -> (per pass: BEFORE_PASS -> PAGE_LOAD -> PASS -> AFTER_PASS) -> TEARDOWN -> COLLATE
//
// Gatherers opt into phases by implementing BeforePasser, Passer and
// AfterPasser. Within a phase they run one at a time in the order the pass
// declares them, and each phase completes before the next starts. Teardown
// runs in the background so the caller gets its artifacts without waiting
// for the browser to settle.
package gather
