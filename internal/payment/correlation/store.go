package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/Refret28/microservice-booking/internal/models"
)

// Store correlates payment requests arriving off the payment topic with
// users asking the payment agent for an invoice. One pending request
// per user; a newer request for the same user replaces the older one.
// The store is bounded: when full, the oldest pending entry is dropped.
type Store struct {
	mu       sync.Mutex
	pending  map[int64]models.PaymentRequest
	order    []int64
	waiters  map[int64][]chan models.PaymentRequest
	capacity int
}

const DefaultCapacity = 1024

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		pending:  make(map[int64]models.PaymentRequest),
		waiters:  make(map[int64][]chan models.PaymentRequest),
		capacity: capacity,
	}
}

// Put records a pending payment request and wakes any waiter for that
// user. Last write wins. The entry stays pending even when a waiter
// takes it, so a failed invoice can be retried with /buy; it is dropped
// only by Evict.
func (s *Store) Put(request models.PaymentRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[request.UserID]; !ok {
		if len(s.pending) >= s.capacity {
			s.evictOldestLocked()
		}
		s.order = append(s.order, request.UserID)
	}
	s.pending[request.UserID] = request

	for _, waiter := range s.waiters[request.UserID] {
		waiter <- request
	}
	delete(s.waiters, request.UserID)
}

func (s *Store) evictOldestLocked() {
	for len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.pending[oldest]; ok {
			delete(s.pending, oldest)
			return
		}
	}
}

// Get returns the pending request for exactly this user, if any.
func (s *Store) Get(userID int64) (models.PaymentRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.pending[userID]
	return request, ok
}

// Await blocks until a request for this exact user is available or the
// timeout elapses. The request is always left in place; it is evicted
// once the payment is confirmed.
func (s *Store) Await(ctx context.Context, userID int64, timeout time.Duration) (models.PaymentRequest, bool) {
	s.mu.Lock()
	if request, ok := s.pending[userID]; ok {
		s.mu.Unlock()
		return request, true
	}

	waiter := make(chan models.PaymentRequest, 1)
	s.waiters[userID] = append(s.waiters[userID], waiter)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case request := <-waiter:
		return request, true
	case <-timer.C:
	case <-ctx.Done():
	}

	s.removeWaiter(userID, waiter)

	// The request may have landed between the timeout firing and the
	// waiter being removed.
	select {
	case request := <-waiter:
		return request, true
	default:
		return models.PaymentRequest{}, false
	}
}

func (s *Store) removeWaiter(userID int64, waiter chan models.PaymentRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	waiters := s.waiters[userID]
	for i, w := range waiters {
		if w == waiter {
			s.waiters[userID] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(s.waiters[userID]) == 0 {
		delete(s.waiters, userID)
	}
}

// Evict drops the pending request for a user, after the payment was
// confirmed or the booking was cancelled.
func (s *Store) Evict(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
}

// Len reports the number of pending requests.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
