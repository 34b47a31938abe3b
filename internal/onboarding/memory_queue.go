package onboarding

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 使用 channel 模拟确认事件队列，主要用于测试与演示部署。
type MemoryQueue struct {
	ch   chan Confirmation
	done chan struct{}
	once sync.Once
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ch:   make(chan Confirmation, size),
		done: make(chan struct{}),
	}
}

// Publish 将确认事件投递到队列。
// 关闭通过 done 信号而不是关闭 ch 实现，并发 Close 不会触发向已关闭 channel 发送。
func (q *MemoryQueue) Publish(ctx context.Context, event Confirmation) error {
	select {
	case <-q.done:
		return errors.New("队列已关闭")
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return errors.New("队列已关闭")
	case q.ch <- event:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列中的确认事件。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-q.done:
					return
				case event := <-q.ch:
					_ = handler(ctx, event)
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
	case <-q.done:
	}
	wg.Wait()
	return ctx.Err()
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

// ensure interface compliance at compile time
var _ Queue = (*MemoryQueue)(nil)
