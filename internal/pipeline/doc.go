// Package pipeline provides small building blocks for running work in
// stages.
//
// A Pipeline executes named steps in sequence over a shared state value. The
// runner uses it to chain gathering, artifact persistence, auditing, scoring
// and history storage. A BatchProcessor runs independent items concurrently
// with a bound on parallelism and returns their results in input order; the
// audit stage uses it to evaluate audits in parallel.
package pipeline
