// Package memory holds the bounded short-term window of recent turns and
// the deduplicated fact union derived from it. The union is a cache over
// the turn sequence, recomputed on every change, never mutated directly.
package memory

import (
	"sync"

	"github.com/mnemon-dev/mnemon/pkg/types"
)

// DefaultLimit is the number of turns kept in the window.
const DefaultLimit = 7

// Turn is one completed chat exchange and the facts it surfaced.
type Turn struct {
	UserInput string
	Response  string
	Triplets  *types.Triplets
}

// ShortMemory is a FIFO window of the last N turns plus the union of their
// triplets. Safe for concurrent use.
type ShortMemory struct {
	mu    sync.RWMutex
	limit int
	turns []Turn
	union *types.Triplets
}

// New builds a window. limit <= 0 selects DefaultLimit.
func New(limit int) *ShortMemory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &ShortMemory{
		limit: limit,
		union: types.NewTriplets(),
	}
}

// TurnOver appends a completed turn, evicts the oldest past the limit, and
// recomputes the union from the surviving turns.
func (s *ShortMemory) TurnOver(userInput, response string, facts *types.Triplets) {
	if facts == nil {
		facts = types.NewTriplets()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{UserInput: userInput, Response: response, Triplets: facts.Clone()})
	if len(s.turns) > s.limit {
		s.turns = s.turns[len(s.turns)-s.limit:]
	}

	union := types.NewTriplets()
	for _, turn := range s.turns {
		union.Union(turn.Triplets)
	}
	s.union = union
}

// Len reports the number of turns currently held.
func (s *ShortMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Turns returns a copy of the window, oldest first.
func (s *ShortMemory) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Union returns a copy of the deduplicated fact union across the window.
func (s *ShortMemory) Union() *types.Triplets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.union.Clone()
}

// Activate matches the new turn's freshly extracted entities against the
// window and returns the overlapping subset, in priority order:
//
//  1. relationships whose full key appears in the query
//  2. nodes whose (label, name) appears in the query
//  3. relationships touching a matched node by name
//  4. CONTAIN relationships ending at a matched node
//
// An empty result means no overlap, which is a normal outcome.
func (s *ShortMemory) Activate(query *types.Triplets) *types.Triplets {
	out := types.NewTriplets()
	if query == nil || query.Empty() {
		return out
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// 1: exact relationship hits
	for _, queried := range query.Relationships {
		if held := s.union.FindRelationship(queried.Key()); held != nil {
			out.AddRelationship(held.Clone())
		}
	}

	// 2: exact node hits
	matchedNames := map[string]bool{}
	for _, queried := range query.Nodes {
		if held := s.union.FindNode(queried.Key()); held != nil {
			out.AddNode(held.Clone())
			matchedNames[held.Name] = true
		}
	}

	// 3: semantic edges touching a matched node, 4: containment edges
	// pointing at one (their start is a structural node, never matched)
	for _, held := range s.union.Relationships {
		switch {
		case held.Type == "CONTAIN":
			if matchedNames[held.EndNode] {
				out.AddRelationship(held.Clone())
			}
		case matchedNames[held.StartNode] || matchedNames[held.EndNode]:
			out.AddRelationship(held.Clone())
		}
	}

	// carry endpoint nodes for every relationship included above
	for _, rel := range out.Relationships {
		if held := s.union.FindNode(rel.Start()); held != nil {
			out.AddNode(held.Clone())
		}
		if held := s.union.FindNode(rel.End()); held != nil {
			out.AddNode(held.Clone())
		}
	}
	return out
}
