package ratelimit

import (
	"context"
	"sync"
)

// Settings configures the bucket created for a resource tag.
type Settings struct {
	Rate  float64
	Burst int
}

// Registry maps resource tags to shared buckets. Steps carrying the same tag
// contend for the same bucket across all concurrent runs; tags with no
// registered settings are unthrottled.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
	configs map[string]Settings
}

// NewRegistry creates a registry with the given per-tag settings.
func NewRegistry(configs map[string]Settings) *Registry {
	cp := make(map[string]Settings, len(configs))
	for tag, s := range configs {
		cp[tag] = s
	}
	return &Registry{
		buckets: make(map[string]*Bucket),
		configs: cp,
	}
}

// Acquire takes a token from the bucket for tag, creating it on first use.
// An empty or unregistered tag is a no-op.
func (r *Registry) Acquire(ctx context.Context, tag string) error {
	if tag == "" {
		return nil
	}
	bucket, err := r.bucket(tag)
	if err != nil {
		return err
	}
	if bucket == nil {
		return nil
	}
	return bucket.Acquire(ctx)
}

func (r *Registry) bucket(tag string) (*Bucket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[tag]; ok {
		return b, nil
	}
	settings, ok := r.configs[tag]
	if !ok {
		return nil, nil
	}
	b, err := NewBucket(settings.Rate, settings.Burst)
	if err != nil {
		return nil, err
	}
	r.buckets[tag] = b
	return b, nil
}
