// Package services defines shared utilities consumed by the pipeline steps
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp document IDs, run IDs, and step names for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification consistent across steps and the review store.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability, retries) stays uniform.
package services
