package worker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	var order []int
	for i := 0; i < 100; i++ {
		i := i
		q.Enqueue(func() { order = append(order, i) })
	}
	q.Await()

	assert.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueueSerializesConcurrentProducers(t *testing.T) {
	q := NewQueue()
	defer q.Close()

	// counter is unguarded; serial execution is what keeps this safe.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(func() { counter++ })
			}
		}()
	}
	wg.Wait()
	q.Await()
	assert.Equal(t, 800, counter)
}

func TestQueueCloseDrains(t *testing.T) {
	q := NewQueue()
	ran := false
	q.Enqueue(func() { ran = true })
	q.Close()
	assert.True(t, ran)
}

func TestQueueEnqueueAfterClosePanics(t *testing.T) {
	q := NewQueue()
	q.Close()
	assert.Panics(t, func() { q.Enqueue(func() {}) })
}
