package topic

import "sort"

// Set is an immutable subscription filter.
// The zero value matches nothing; Wildcard matches every topic.
type Set struct {
	topics   map[Topic]struct{}
	wildcard bool
}

// Wildcard matches every topic
var Wildcard = Set{wildcard: true}

// NewSet builds a set from the given topics. Unknown topics panic: subscription sets are
// declared in code, so an unknown name is a programming error.
func NewSet(topics ...Topic) Set {
	s := Set{topics: make(map[Topic]struct{}, len(topics))}
	for _, t := range topics {
		if !t.IsValid() {
			panic("topic: unknown topic in set: " + string(t))
		}
		s.topics[t] = struct{}{}
	}
	return s
}

// Contains reports whether t matches the set
func (s Set) Contains(t Topic) bool {
	if s.wildcard {
		return t.IsValid()
	}
	_, ok := s.topics[t]
	return ok
}

// IsWildcard reports whether the set matches every topic
func (s Set) IsWildcard() bool {
	return s.wildcard
}

// Union returns a set with the topics of both sets
func (s Set) Union(other Set) Set {
	if s.wildcard || other.wildcard {
		return Wildcard
	}
	out := Set{topics: make(map[Topic]struct{}, len(s.topics)+len(other.topics))}
	for t := range s.topics {
		out.topics[t] = struct{}{}
	}
	for t := range other.topics {
		out.topics[t] = struct{}{}
	}
	return out
}

// Topics returns the members, sorted. A wildcard set returns All().
func (s Set) Topics() []Topic {
	if s.wildcard {
		return All()
	}
	out := make([]Topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of topics in the set
func (s Set) Len() int {
	if s.wildcard {
		return len(kinds)
	}
	return len(s.topics)
}
