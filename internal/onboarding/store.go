package onboarding

import "context"

// Store 抽象了引导记录的持久化接口。实现必须对并发调用安全，
// 且针对同一钱包的读改写操作要在记录级别串行化。
type Store interface {
	// EnsureAgent 为钱包写入智能体地址。并发调用时只有一个胜者：
	// 胜者写入 addr 并返回 created=true，其余调用方得到胜者的地址。
	EnsureAgent(ctx context.Context, walletID, addr string) (*Record, bool, error)
	// Get 返回钱包的引导记录副本。
	Get(ctx context.Context, walletID string) (*Record, error)
	// SetLinkedAccount 写入绑定账号。账号只允许设置一次，
	// 已绑定时返回 ErrAlreadyLinked 且不做任何修改。
	SetLinkedAccount(ctx context.Context, walletID string, acct Account) (*Record, error)
	// Finalize 写入交易偏好、外部账号引用与部署信息并把 SetupComplete
	// 置为 true。重复调用按最新输入整体覆盖，不做合并。
	Finalize(ctx context.Context, walletID, externalRef string, prefs Preferences, agent AgentInfo, deployment Deployment) (*Record, error)
	// Stats 返回各引导阶段的记录数量。
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Stats 聚合了引导记录的统计信息，常用于仪表盘或健康检查。
type Stats struct {
	Total         int `json:"total"`
	Linked        int `json:"linked"`
	SetupComplete int `json:"setup_complete"`
}
