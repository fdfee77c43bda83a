package authkit

import (
	"sync"
	"time"
)

// DefaultMaxMFAAttempts is how many wrong codes one MFA ticket survives.
const DefaultMaxMFAAttempts = 5

// ticketFailures counts wrong second-factor codes per ticket jti. Entries
// are dropped once the ticket itself would have expired.
type ticketFailures struct {
	mu     sync.Mutex
	counts map[string]ticketFailure
}

type ticketFailure struct {
	n       int
	expires time.Time
}

// add records one failure for jti and returns the running count.
func (t *ticketFailures) add(jti string, expires, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.counts == nil {
		t.counts = make(map[string]ticketFailure)
	}
	for k, f := range t.counts {
		if now.After(f.expires) {
			delete(t.counts, k)
		}
	}

	f := t.counts[jti]
	f.n++
	f.expires = expires
	t.counts[jti] = f
	return f.n
}

func (t *ticketFailures) forget(jti string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, jti)
}
