package offsetlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocks_SerializesSameOffset(t *testing.T) {
	l := New()
	var mu sync.Mutex
	order := make([]int, 0, 2)

	release := l.Acquire(256)

	done := make(chan struct{})
	go func() {
		defer close(done)
		release := l.Acquire(256)
		defer release()
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	}()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	release()

	<-done
	assert.Equal(t, []int{1, 2}, order)
}

func TestLocks_DistinctOffsetsDoNotBlock(t *testing.T) {
	l := New()
	release1 := l.Acquire(256)
	defer release1()

	done := make(chan struct{})
	go func() {
		release2 := l.Acquire(512)
		release2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct offsets should not contend")
	}
}

func TestLocks_EntryRemovedAfterRelease(t *testing.T) {
	l := New()
	release := l.Acquire(1024)
	assert.Equal(t, 1, l.Len())
	release()
	assert.Equal(t, 0, l.Len())
}

func TestLocks_ReleaseIsIdempotent(t *testing.T) {
	l := New()
	release := l.Acquire(2048)
	release()
	assert.NotPanics(t, release)
}
