package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacerSpacesCalls(t *testing.T) {
	p := NewPacer(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestPacerCountsFromRelease(t *testing.T) {
	p := NewPacer(40 * time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, p.Wait(ctx))
	time.Sleep(50 * time.Millisecond) // a provider call slower than the interval

	start := time.Now()
	assert.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 30*time.Millisecond, "slow calls do not add a further gap")
}

func TestPacerFirstCallImmediate(t *testing.T) {
	p := NewPacer(time.Hour)

	start := time.Now()
	assert.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacerSharedAcrossGoroutines(t *testing.T) {
	p := NewPacer(25 * time.Millisecond)
	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Wait(context.Background()); err == nil {
				mu.Lock()
				times = append(times, time.Now())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, times, 4)
	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 50*time.Millisecond)
}

func TestPacerHonorsCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	assert.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestPacerDisabled(t *testing.T) {
	var p *Pacer
	assert.NoError(t, p.Wait(context.Background()))
	assert.NoError(t, NewPacer(0).Wait(context.Background()))
}
