package engine

import (
	"sync"
	"time"
)

// ExpirationScheduler fires a callback once when an auction's end time
// arrives. One timer per auction; scheduling the same auction again
// replaces the pending timer, and Cancel makes the callback never fire.
type ExpirationScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	expire  func(auctionID string)
	stopped bool
}

// NewExpirationScheduler builds a scheduler delivering expirations to
// expire. The callback runs on the timer goroutine.
func NewExpirationScheduler(expire func(auctionID string)) *ExpirationScheduler {
	return &ExpirationScheduler{
		timers: make(map[string]*time.Timer),
		expire: expire,
	}
}

// Schedule arms a timer for the auction. A past end time fires
// immediately.
func (s *ExpirationScheduler) Schedule(auctionID string, endTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if timer, ok := s.timers[auctionID]; ok {
		timer.Stop()
	}

	delay := time.Until(endTime)
	if delay < 0 {
		delay = 0
	}
	s.timers[auctionID] = time.AfterFunc(delay, func() {
		s.fire(auctionID)
	})
}

// Cancel disarms the auction's timer. Safe when no timer is pending.
func (s *ExpirationScheduler) Cancel(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[auctionID]; ok {
		timer.Stop()
		delete(s.timers, auctionID)
	}
}

// Pending reports whether the auction still has an armed timer.
func (s *ExpirationScheduler) Pending(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[auctionID]
	return ok
}

// Stop disarms every timer. The scheduler accepts no further work.
func (s *ExpirationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// fire delivers one expiration. The timer entry is removed before the
// callback runs so a concurrent Cancel cannot race a second delivery.
func (s *ExpirationScheduler) fire(auctionID string) {
	s.mu.Lock()
	timer, ok := s.timers[auctionID]
	if ok {
		delete(s.timers, auctionID)
	}
	stopped := s.stopped
	s.mu.Unlock()

	if !ok || timer == nil || stopped {
		return
	}
	s.expire(auctionID)
}
