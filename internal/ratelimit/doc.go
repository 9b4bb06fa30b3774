// Package ratelimit provides per-resource token bucket limiters used to
// throttle steps that share an external resource, such as the extraction
// API or the review database.
package ratelimit
