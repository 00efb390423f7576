// ABOUTME: Bounded seen-set for dropping redelivered upstream events
// ABOUTME: Keys expire after a TTL and the oldest keys are evicted past a size cap

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultSweepInterval is how often expired keys are purged in the background.
const DefaultSweepInterval = time.Minute

type entry struct {
	key    string
	seenAt time.Time
}

// Set remembers recently seen keys. It is safe for concurrent use.
type Set struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List // oldest first
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Set that forgets keys after ttl and holds at most maxSize
// keys. A background sweep runs every DefaultSweepInterval until Close.
func New(ttl time.Duration, maxSize int) *Set {
	return newSet(ttl, maxSize, DefaultSweepInterval, time.Now)
}

func newSet(ttl time.Duration, maxSize int, sweep time.Duration, now func() time.Time) *Set {
	if maxSize < 1 {
		maxSize = 1
	}
	s := &Set{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		done:    make(chan struct{}),
	}
	if sweep > 0 {
		go s.sweepLoop(sweep)
	}
	return s
}

// Seen reports whether key was recorded within the TTL. A new or expired key
// is recorded and Seen returns false; the check and the record are atomic.
func (s *Set) Seen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if elem, ok := s.index[key]; ok {
		e := elem.Value.(*entry)
		if now.Sub(e.seenAt) < s.ttl {
			return true
		}
		// Expired: refresh in place and move to the young end.
		e.seenAt = now
		s.order.MoveToBack(elem)
		return false
	}

	for len(s.index) >= s.maxSize {
		s.removeLocked(s.order.Front())
	}
	s.index[key] = s.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Forget drops key so the next Seen call records it afresh.
func (s *Set) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.index[key]; ok {
		s.removeLocked(elem)
	}
}

// Len returns the number of keys currently held, including expired keys the
// sweep has not reached yet.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

func (s *Set) removeLocked(elem *list.Element) {
	if elem == nil {
		return
	}
	s.order.Remove(elem)
	delete(s.index, elem.Value.(*entry).key)
}

// sweep removes expired keys from the old end until it reaches a live one.
func (s *Set) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for elem := s.order.Front(); elem != nil; elem = s.order.Front() {
		if now.Sub(elem.Value.(*entry).seenAt) < s.ttl {
			return
		}
		s.removeLocked(elem)
	}
}

func (s *Set) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (s *Set) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
