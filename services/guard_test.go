package services_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"justicetracker/services"
)

func TestRunGuard_ExclusivePerJob(t *testing.T) {
	g := services.NewRunGuard()

	assert.True(t, g.TryAcquire("budget_scraper"))
	assert.False(t, g.TryAcquire("budget_scraper"))

	// Other jobs are unaffected.
	assert.True(t, g.TryAcquire("parliament_scraper"))

	g.Release("budget_scraper")
	assert.True(t, g.TryAcquire("budget_scraper"))
}

// Concurrent manual triggers on the same job: exactly one wins.
func TestRunGuard_ConcurrentAcquire(t *testing.T) {
	g := services.NewRunGuard()

	const workers = 50
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if g.TryAcquire("qon_scraper") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.True(t, g.Held("qon_scraper"))
}

func TestRunGuard_Snapshot(t *testing.T) {
	g := services.NewRunGuard()
	g.TryAcquire("a")
	g.TryAcquire("b")
	g.Release("a")

	assert.Equal(t, []string{"b"}, g.Snapshot())
}
