package onboarding

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	queue := NewMemoryQueue(4)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), Confirmation{Code: "ABC123"}); err == nil {
		t.Fatalf("expected publish on closed queue to fail")
	}
	// 重复 Close 幂等。
	if err := queue.Close(); err != nil {
		t.Fatalf("close again: %v", err)
	}
}

func TestMemoryQueueConcurrentPublishAndClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := queue.Publish(ctx, Confirmation{Code: "ABC123"}); err != nil {
					return
				}
			}
		}()
	}

	// 消费端保持排空，让发布协程在 Close 前后都处于发送路径上。
	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_ = queue.Consume(consumeCtx, 2, func(context.Context, Confirmation) error {
			return nil
		})
	}()

	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
}
