package onboarding

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "Maxxit-Agent/internal/errors"
	"Maxxit-Agent/internal/observability/alerting"
	"Maxxit-Agent/pkg/logger"
)

// Confirmer 定义了监听器所需的确认能力。
type Confirmer interface {
	Confirm(ctx context.Context, code string, acct Account) (string, error)
}

// Listener 负责从队列消费确认事件并写入绑定结果。
type Listener struct {
	confirmer   Confirmer
	consumer    Consumer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ListenerOption 定义可选配置。
type ListenerOption func(*Listener)

// WithListenerLogger 指定日志输出。
func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithListenerWorkers 设置消费协程数量。
func WithListenerWorkers(workers int) ListenerOption {
	return func(l *Listener) {
		if workers > 0 {
			l.workerCount = workers
		}
	}
}

// WithListenerAlerts 配置告警派发器。
func WithListenerAlerts(dispatcher alerting.Dispatcher) ListenerOption {
	return func(l *Listener) {
		l.alerter = dispatcher
	}
}

// NewListener 构造 Listener。
func NewListener(confirmer Confirmer, consumer Consumer, opts ...ListenerOption) *Listener {
	l := &Listener{
		confirmer:   confirmer,
		consumer:    consumer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.workerCount <= 0 {
		l.workerCount = 1
	}
	return l
}

// Start 启动确认事件消费循环。
func (l *Listener) Start(ctx context.Context) error {
	if l.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置确认事件消费者")
	}
	return l.consumer.Consume(ctx, l.workerCount, l.handle)
}

func (l *Listener) handle(ctx context.Context, event Confirmation) error {
	if l.confirmer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "监听器未初始化")
	}
	walletID, err := l.confirmer.Confirm(ctx, event.Code, event.Account)
	if err != nil {
		if stdErrors.Is(err, ErrCodeNotFound) {
			// 绑定码过期或已被消费，事件作废即可。
			l.logDebug("跳过确认事件",
				slog.String("code", event.Code),
				slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("处理确认事件失败",
			slog.Any("error", err),
			slog.String("code", event.Code))
		l.emitAlert(ctx, event, err)
		return err
	}
	logger.Audit().Info("确认事件处理完成",
		slog.String("wallet_id", walletID),
		slog.String("account_id", event.Account.ID),
	)
	return nil
}

func (l *Listener) logDebug(msg string, attrs ...slog.Attr) {
	if l.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		l.logger.Debug(msg, args...)
	}
}

func (l *Listener) emitAlert(ctx context.Context, event Confirmation, cause error) {
	if l == nil || l.alerter == nil {
		return
	}
	code := xerrors.CodeOf(cause)
	attrs := xerrors.AttributesOf(code)
	if !attrs.Alert {
		return
	}
	alertErr := l.alerter.Notify(ctx, alerting.Event{
		Code:       code,
		Message:    cause.Error(),
		Severity:   attrs.Severity,
		Metadata:   map[string]string{"code": event.Code},
		OccurredAt: time.Now(),
	})
	if alertErr != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", alertErr),
			slog.String("code", event.Code),
		)
	}
}
