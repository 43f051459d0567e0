package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequentialIDs_Sequence(t *testing.T) {
	ids := NewSequentialIDs("goal")
	assert.Equal(t, "goal-1", ids.Generate())
	assert.Equal(t, "goal-2", ids.Generate())
	assert.Equal(t, "goal-3", ids.Generate())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	ids := NewSequentialIDs("")
	assert.Equal(t, "g-1", ids.Generate())
}

func TestSequentialIDs_Reset(t *testing.T) {
	ids := NewSequentialIDs("r")
	ids.Generate()
	ids.Generate()
	ids.Reset()
	assert.Equal(t, "r-1", ids.Generate())
}

func TestSequentialIDs_UniqueUnderConcurrency(t *testing.T) {
	ids := NewSequentialIDs("g")
	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	out := make(chan string, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				out <- ids.Generate()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]bool)
	for id := range out {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}
