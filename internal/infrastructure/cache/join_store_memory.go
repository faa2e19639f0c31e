package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/meetprep/backend/internal/domain/meeting"
)

type joinState struct {
	parts   map[meeting.JoinPart]struct{}
	fired   bool
	watches []watchKey
}

type watchKey struct {
	participant bool
	value       string
}

// InMemoryJoinStore implements meeting.JoinStore in process memory.
// It backs tests and embedded buses; the server uses the Redis or database store.
type InMemoryJoinStore struct {
	mu      sync.Mutex
	joins   map[string]*joinState
	watches map[watchKey]map[string]struct{}
}

// NewInMemoryJoinStore creates an empty join store
func NewInMemoryJoinStore() *InMemoryJoinStore {
	return &InMemoryJoinStore{
		joins:   make(map[string]*joinState),
		watches: make(map[watchKey]map[string]struct{}),
	}
}

func (s *InMemoryJoinStore) state(meetingID string) *joinState {
	st, ok := s.joins[meetingID]
	if !ok {
		st = &joinState{parts: make(map[meeting.JoinPart]struct{})}
		s.joins[meetingID] = st
	}
	return st
}

// Watch registers the meeting as waiting on the participants and domains
func (s *InMemoryJoinStore) Watch(_ context.Context, meetingID string, emails, domains []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(meetingID)
	add := func(k watchKey) {
		set, ok := s.watches[k]
		if !ok {
			set = make(map[string]struct{})
			s.watches[k] = set
		}
		if _, seen := set[meetingID]; !seen {
			set[meetingID] = struct{}{}
			st.watches = append(st.watches, k)
		}
	}
	for _, e := range emails {
		add(watchKey{participant: true, value: e})
	}
	for _, d := range domains {
		add(watchKey{value: d})
	}
	return nil
}

// MeetingsForParticipant returns the meetings waiting on email
func (s *InMemoryJoinStore) MeetingsForParticipant(_ context.Context, email string) ([]string, error) {
	return s.watchers(watchKey{participant: true, value: email}), nil
}

// MeetingsForDomain returns the meetings waiting on domain
func (s *InMemoryJoinStore) MeetingsForDomain(_ context.Context, domain string) ([]string, error) {
	return s.watchers(watchKey{value: domain}), nil
}

func (s *InMemoryJoinStore) watchers(k watchKey) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.watches[k]))
	for id := range s.watches[k] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Record marks part present and reports whether this call completed the join
func (s *InMemoryJoinStore) Record(_ context.Context, meetingID string, part meeting.JoinPart) (bool, error) {
	if !validPart(part) {
		return false, fmt.Errorf("unknown join part %q", part)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(meetingID)
	st.parts[part] = struct{}{}
	if st.fired || len(st.parts) < len(meeting.JoinParts) {
		return false, nil
	}
	st.fired = true
	return true, nil
}

// Parts returns the parts recorded so far
func (s *InMemoryJoinStore) Parts(_ context.Context, meetingID string) ([]meeting.JoinPart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.joins[meetingID]
	if !ok {
		return nil, nil
	}
	parts := make([]meeting.JoinPart, 0, len(st.parts))
	for p := range st.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
	return parts, nil
}

// Reset forgets the join state and the watches of the meeting
func (s *InMemoryJoinStore) Reset(_ context.Context, meetingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.joins[meetingID]
	if !ok {
		return nil
	}
	for _, k := range st.watches {
		delete(s.watches[k], meetingID)
		if len(s.watches[k]) == 0 {
			delete(s.watches, k)
		}
	}
	delete(s.joins, meetingID)
	return nil
}

func validPart(part meeting.JoinPart) bool {
	for _, p := range meeting.JoinParts {
		if p == part {
			return true
		}
	}
	return false
}

var _ meeting.JoinStore = (*InMemoryJoinStore)(nil)
