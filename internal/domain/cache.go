package domain

import (
	"time"

	"github.com/uniqa-cloud/uniqa/internal/domain/intent"
)

// CacheEntry is one cached resolution keyed by query fingerprint.
// The fingerprint uniquely identifies the entry; near-duplicate lookup
// additionally requires embedding similarity above a threshold and a
// matching intent class to avoid cross-topic collisions.
type CacheEntry struct {
	Fingerprint string        `json:"fingerprint"`
	Embedding   []float32     `json:"embedding,omitempty"`
	Answer      string        `json:"answer"`
	Confidence  float64       `json:"confidence"`
	Intent      intent.Intent `json:"intent"`
	Citations   []string      `json:"citations,omitempty"`
	Source      Source        `json:"source"`
	CreatedAt   time.Time     `json:"created_at"`
	HitCount    int64         `json:"hit_count"`
}

// Expired reports whether the entry has outlived ttl at the given instant.
func (e CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

// Cites reports whether any of the given chunk ids appear in the entry's
// citations. Used for invalidation when underlying knowledge changes.
func (e CacheEntry) Cites(chunkIDs map[string]struct{}) bool {
	for _, id := range e.Citations {
		if _, ok := chunkIDs[id]; ok {
			return true
		}
	}
	return false
}
