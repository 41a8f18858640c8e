// Package session keeps the per-owner result lists produced by searches.
//
// Each owner has at most one live session. Sessions expire after a fixed TTL
// and are evicted lazily on access or by Sweep. Callback tokens carry the
// session ID, so a selection made against a replaced list is rejected rather
// than applied to the new one.
package session

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"tunegrab/internal/core/domain"
)

// slot holds one owner's session behind its own lock.
type slot struct {
	mu   sync.Mutex
	sess *domain.SearchSession
	dead bool // removed from the store; callers must fetch a fresh slot
}

// Store is an in-memory SessionStore with per-owner locking.
type Store struct {
	ttl     time.Duration
	slots   sync.Map // domain.OwnerID -> *slot
	now     func() time.Time
	entropy *ulid.MonotonicEntropy
	entMu   sync.Mutex
	logger  zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty store whose sessions live for ttl.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		ttl:     ttl,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the lifetime applied to new sessions.
func (s *Store) TTL() time.Duration { return s.ttl }

// lock returns the owner's live slot, locked.
func (s *Store) lock(owner domain.OwnerID, create bool) *slot {
	for {
		v, ok := s.slots.Load(owner)
		if !ok {
			if !create {
				return nil
			}
			v, _ = s.slots.LoadOrStore(owner, &slot{})
		}
		sl := v.(*slot)
		sl.mu.Lock()
		if !sl.dead {
			return sl
		}
		sl.mu.Unlock()
	}
}

func (s *Store) newID(now time.Time) string {
	s.entMu.Lock()
	defer s.entMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

// Create replaces any session of owner with a new one holding items.
// Items are copied and re-indexed from zero.
func (s *Store) Create(owner domain.OwnerID, query string, items []domain.ResultItem) domain.SearchSession {
	now := s.now()
	sess := &domain.SearchSession{
		ID:        s.newID(now),
		OwnerID:   owner,
		Query:     query,
		CreatedAt: now,
		TTL:       s.ttl,
		Items:     make([]domain.ResultItem, len(items)),
	}
	for i, it := range items {
		it.Index = i
		sess.Items[i] = it
	}

	sl := s.lock(owner, true)
	replaced := sl.sess != nil
	sl.sess = sess
	sl.mu.Unlock()

	s.logger.Debug().
		Str("owner", string(owner)).
		Str("session_id", sess.ID).
		Int("items", len(sess.Items)).
		Bool("replaced", replaced).
		Msg("session created")
	return cloneSession(sess)
}

// live returns the owner's session if sessionID is current and not expired.
// The slot lock must be held.
func (s *Store) live(sl *slot, owner domain.OwnerID, sessionID string) (*domain.SearchSession, error) {
	if sl == nil || sl.sess == nil {
		return nil, &domain.SessionExpiredError{Owner: owner, Reason: "no active session"}
	}
	if sl.sess.Expired(s.now()) {
		sl.sess = nil
		return nil, &domain.SessionExpiredError{Owner: owner, Reason: "session timed out"}
	}
	if sl.sess.ID != sessionID {
		return nil, &domain.SessionExpiredError{Owner: owner, Reason: "session was replaced"}
	}
	return sl.sess, nil
}

// Resolve returns the item at index in the owner's session sessionID.
func (s *Store) Resolve(owner domain.OwnerID, sessionID string, index int) (domain.ResultItem, error) {
	sl := s.lock(owner, false)
	if sl == nil {
		return domain.ResultItem{}, &domain.SessionExpiredError{Owner: owner, Reason: "no active session"}
	}
	defer sl.mu.Unlock()

	sess, err := s.live(sl, owner, sessionID)
	if err != nil {
		return domain.ResultItem{}, err
	}
	if index < 0 || index >= len(sess.Items) {
		return domain.ResultItem{}, &domain.SessionExpiredError{Owner: owner, Reason: "index out of range"}
	}
	return sess.Items[index], nil
}

// ResolveRef returns the item with externalID in the owner's session sessionID.
func (s *Store) ResolveRef(owner domain.OwnerID, sessionID, externalID string) (domain.ResultItem, error) {
	sl := s.lock(owner, false)
	if sl == nil {
		return domain.ResultItem{}, &domain.SessionExpiredError{Owner: owner, Reason: "no active session"}
	}
	defer sl.mu.Unlock()

	sess, err := s.live(sl, owner, sessionID)
	if err != nil {
		return domain.ResultItem{}, err
	}
	for _, it := range sess.Items {
		if it.ExternalID == externalID {
			return it, nil
		}
	}
	return domain.ResultItem{}, &domain.SessionExpiredError{Owner: owner, Reason: "result not in session"}
}

// Current returns a copy of the owner's live session, if any.
func (s *Store) Current(owner domain.OwnerID) (domain.SearchSession, bool) {
	sl := s.lock(owner, false)
	if sl == nil {
		return domain.SearchSession{}, false
	}
	defer sl.mu.Unlock()
	if sl.sess == nil || sl.sess.Expired(s.now()) {
		sl.sess = nil
		return domain.SearchSession{}, false
	}
	return cloneSession(sl.sess), true
}

// Invalidate drops the owner's session.
func (s *Store) Invalidate(owner domain.OwnerID) {
	sl := s.lock(owner, false)
	if sl == nil {
		return
	}
	sl.sess = nil
	sl.mu.Unlock()
}

// InvalidateSession drops the owner's session only if sessionID is still the
// live one, and reports whether it did.
func (s *Store) InvalidateSession(owner domain.OwnerID, sessionID string) bool {
	sl := s.lock(owner, false)
	if sl == nil {
		return false
	}
	defer sl.mu.Unlock()
	if sl.sess == nil || sl.sess.ID != sessionID {
		return false
	}
	sl.sess = nil
	return true
}

// Sweep evicts expired or emptied sessions and returns how many owners were
// removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	s.slots.Range(func(key, value any) bool {
		sl := value.(*slot)
		sl.mu.Lock()
		if sl.sess == nil || sl.sess.Expired(now) {
			sl.sess = nil
			sl.dead = true
			s.slots.CompareAndDelete(key, sl)
			removed++
		}
		sl.mu.Unlock()
		return true
	})
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug().Int("evicted", n).Msg("swept expired sessions")
			}
		}
	}
}

func cloneSession(sess *domain.SearchSession) domain.SearchSession {
	out := *sess
	out.Items = append([]domain.ResultItem(nil), sess.Items...)
	return out
}
