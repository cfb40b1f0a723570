package cglock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRLockAllowsConcurrentReaders(t *testing.T) {
	var l Lock
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]bool, 4)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			l.RLock()
			defer l.RUnlock()
			time.Sleep(10 * time.Millisecond)
			results[idx] = true
		}(i)
	}
	close(start)
	wg.Wait()

	for _, ok := range results {
		assert.True(t, ok)
	}
}

func TestWLockExcludesReaders(t *testing.T) {
	var l Lock
	l.WLock()
	acquired := make(chan struct{})
	go func() {
		l.RLock()
		close(acquired)
		l.RUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired lock while writer held it")
	case <-time.After(20 * time.Millisecond):
	}
	l.WUnlock()
	<-acquired
}

func TestILockThenDLockDowngrades(t *testing.T) {
	var l Lock
	l.ILock()
	l.DLock()
	// a second reader should be able to join immediately since the
	// outer mutex was released by DLock.
	done := make(chan struct{})
	go func() {
		l.RLock()
		l.RUnlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("second reader blocked after DLock released outer mutex")
	}
	l.RUnlock()
}

func TestILockThenULockWrites(t *testing.T) {
	var l Lock
	l.ILock()
	l.ULock()
	blocked := make(chan struct{})
	go func() {
		l.RLock()
		close(blocked)
		l.RUnlock()
	}()
	select {
	case <-blocked:
		t.Fatal("reader proceeded while write lock held")
	case <-time.After(20 * time.Millisecond):
	}
	l.WUnlock()
	<-blocked
}
