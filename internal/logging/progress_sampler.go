package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs for a set of concurrent
// transfers, emitting only when a transfer crosses a percentage bucket.
type ProgressSampler struct {
	bucketSize float64
	buckets    map[string]int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, buckets: make(map[string]int)}
}

// ShouldLog reports whether a progress event for key should be logged. The
// first event for a key always logs; negative percent means "size unknown"
// and never advances the bucket.
func (s *ProgressSampler) ShouldLog(key string, percent float64) bool {
	if s == nil {
		return true
	}
	key = strings.TrimSpace(key)
	last, seen := s.buckets[key]
	if !seen {
		last = -1
		s.buckets[key] = last
	}
	if percent < 0 {
		return !seen
	}
	if percent > 100 {
		percent = 100
	}
	bucket := int(percent / s.bucketSize)
	if bucket > last {
		s.buckets[key] = bucket
		return true
	}
	return !seen
}

// Forget drops the state for a single key (e.g. a finished transfer).
func (s *ProgressSampler) Forget(key string) {
	if s == nil {
		return
	}
	delete(s.buckets, strings.TrimSpace(key))
}

// Reset clears the sampler state (e.g. when a new gallery starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.buckets = make(map[string]int)
}
