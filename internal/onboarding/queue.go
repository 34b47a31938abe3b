package onboarding

import (
	"context"
)

// Confirmation 是外部消息渠道（线上为 Telegram 机器人）在用户完成
// 绑定码确认后投递的事件。
type Confirmation struct {
	Code    string  `json:"code"`
	Account Account `json:"account"`
}

// Handler 处理来自消息队列的确认事件。
type Handler func(ctx context.Context, event Confirmation) error

// Producer 负责向队列投递确认事件。
type Producer interface {
	Publish(ctx context.Context, event Confirmation) error
	Close() error
}

// Consumer 负责从队列中消费确认事件。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
