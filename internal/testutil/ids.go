package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates readable ids "<prefix>-1", "<prefix>-2", ...
//
// Satisfies engine.IDGenerator. Unlike engine.FixedGenerator it never runs
// out, which suits scenarios whose id count depends on spawning.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "g".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "g"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id.
func (s *SequentialIDs) Generate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

// Reset restarts numbering at 1.
func (s *SequentialIDs) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
