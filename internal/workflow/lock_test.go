package workflow_test

import (
	"sync"
	"testing"

	"github.com/mautops/expense-gin/internal/workflow"
	"github.com/stretchr/testify/assert"
)

// TestKeyedMutex_MutualExclusion 测试同键互斥
// 并发自增在锁保护下不丢失更新
func TestKeyedMutex_MutualExclusion(t *testing.T) {
	km := workflow.NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("rpt-001")
			counter++
			km.Unlock("rpt-001")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

// TestKeyedMutex_IndependentKeys 测试不同键互不阻塞
func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := workflow.NewKeyedMutex()

	km.Lock("rpt-001")
	defer km.Unlock("rpt-001")

	// 持有 rpt-001 时 rpt-002 仍可锁定
	done := make(chan struct{})
	go func() {
		km.Lock("rpt-002")
		km.Unlock("rpt-002")
		close(done)
	}()
	<-done
}

// TestKeyedMutex_UnlockUnknownKey 测试解锁未知键不崩溃
func TestKeyedMutex_UnlockUnknownKey(t *testing.T) {
	km := workflow.NewKeyedMutex()
	assert.NotPanics(t, func() {
		km.Unlock("never-locked")
	})
}
