package llm

import (
	"sync"
	"time"
)

// keyPool rotates a pool of API credentials. A key reported as
// rate-limited is sidelined until its cooldown elapses, then returns to
// the rotation automatically. The pool is an explicit state machine
// (cursor + per-slot cooldown) so rotation order and exhaustion are
// independently testable.
type keyPool struct {
	mu       sync.Mutex
	keys     []string
	cursor   int
	cooldown time.Duration
	limited  map[int]time.Time // key index -> limited until
	now      func() time.Time
}

func newKeyPool(keys []string, cooldown time.Duration) *keyPool {
	return &keyPool{
		keys:     keys,
		cooldown: cooldown,
		limited:  make(map[int]time.Time, len(keys)),
		now:      time.Now,
	}
}

// next returns the index of the next usable key, advancing the cursor
// past it. Returns false when every key is cooling down.
func (p *keyPool) next() (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.keys); i++ {
		idx := (p.cursor + i) % len(p.keys)
		if until, ok := p.limited[idx]; ok {
			if now.Before(until) {
				continue
			}
			delete(p.limited, idx)
		}
		p.cursor = (idx + 1) % len(p.keys)
		return idx, true
	}
	return 0, false
}

// reportLimited sidelines a key for the cooldown window. Cooldowns are
// tracked per slot, so a credential configured twice keeps its other
// slot in the rotation.
func (p *keyPool) reportLimited(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx < 0 || idx >= len(p.keys) {
		return
	}
	p.limited[idx] = p.now().Add(p.cooldown)
}

// size returns the number of keys in the pool.
func (p *keyPool) size() int { return len(p.keys) }
