// Package extraction is the boundary to the remote document-understanding
// service. It defines the Extractor interface consumed by pipeline steps, an
// HTTP client implementation, and a circuit breaker that guards the remote
// call against thundering-herd retries.
package extraction
