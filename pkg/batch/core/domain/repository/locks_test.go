package repository_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

func TestExecutionLocks(t *testing.T) {
	var locks repository.ExecutionLocks

	unlockA := locks.Lock("a")
	acquiredB := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		close(acquiredB)
		unlock()
	}()
	select {
	case <-acquiredB:
	case <-time.After(time.Second):
		t.Fatal("lock of another execution was blocked")
	}

	var mu sync.Mutex
	order := []string{}
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("a")
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		unlock()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	unlockA()
	<-done

	assert.Equal(t, []string{"first", "second"}, order)
}
