package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rebase/pkg/logging"
)

func TestOrder(t *testing.T) {
	d := New(logging.NewNopLogger())
	defer d.Close()

	var got []int
	for i := range 100 {
		require.True(t, d.Enqueue(func() { got = append(got, i) }))
	}
	d.Flush()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSingleGoroutine(t *testing.T) {
	d := New(logging.NewNopLogger())
	defer d.Close()

	var mu sync.Mutex
	running, overlap := 0, false
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				d.Enqueue(func() {
					mu.Lock()
					running++
					if running > 1 {
						overlap = true
					}
					mu.Unlock()
					time.Sleep(time.Microsecond)
					mu.Lock()
					running--
					mu.Unlock()
				})
			}
		}()
	}
	wg.Wait()
	d.Flush()
	assert.False(t, overlap)
}

func TestPanicIsContained(t *testing.T) {
	d := New(logging.NewNopLogger())
	defer d.Close()

	ran := false
	d.Enqueue(func() { panic("boom") })
	d.Enqueue(func() { ran = true })
	d.Flush()
	assert.True(t, ran)
}

func TestClose(t *testing.T) {
	d := New(logging.NewNopLogger())

	release := make(chan struct{})
	count := 0
	d.Enqueue(func() { <-release })
	d.Enqueue(func() { count++ })
	d.Enqueue(func() { count++ })
	d.Close()

	assert.False(t, d.Enqueue(func() { count++ }), "closed dispatcher accepts nothing")

	close(release)
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not drain")
	}
	assert.Equal(t, 2, count, "queued callbacks still run")

	// Flush after close returns once drained.
	d.Flush()
	d.Close()
}
