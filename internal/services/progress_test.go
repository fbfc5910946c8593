package services

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kelsos/ledger-sync/internal/models"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0, percentage(0, 50, 0, 3))
	assert.Equal(t, 17, percentage(0, 50, 1, 3))
	assert.Equal(t, 50, percentage(0, 50, 3, 3))
	assert.Equal(t, 75, percentage(50, 50, 1, 2))
	assert.Equal(t, 100, percentage(50, 50, 0, 0))
}

func TestProgressTrackerConcurrentTicks(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	tracker := newProgressTracker(models.PhaseProcessingAccounts, 50, 50, 20, func(p models.SyncProgress) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, p.Percentage)
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.tick()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}
