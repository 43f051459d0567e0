package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestFixedClock_StaysPut(t *testing.T) {
	clock := NewFixedClock(epoch)
	assert.Equal(t, epoch, clock.Now())
	assert.Equal(t, epoch, clock.Now())
}

func TestFixedClock_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	clock := NewFixedClock(epoch.In(loc))
	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.True(t, clock.Now().Equal(epoch))
}

func TestFixedClock_SetAndAdvance(t *testing.T) {
	clock := NewFixedClock(epoch)

	got := clock.Advance(90 * time.Minute)
	assert.Equal(t, epoch.Add(90*time.Minute), got)
	assert.Equal(t, got, clock.Now())

	clock.Set(epoch.Add(-time.Hour))
	assert.Equal(t, epoch.Add(-time.Hour), clock.Now())
}

func TestFixedClock_ThreadSafe(t *testing.T) {
	clock := NewFixedClock(epoch)
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, epoch.Add(goroutines*time.Second), clock.Now())
}
