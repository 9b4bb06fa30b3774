// Package executor runs validated dependency graphs layer by layer. It bounds
// global step concurrency with a weighted semaphore shared across runs,
// throttles tagged steps through shared rate limiters, retries failed actions
// with jittered exponential backoff, and cascades failures to transitive
// dependents as skips. Every run produces a complete RunResult regardless of
// how many steps failed.
package executor
