package onboarding

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "Maxxit-Agent/internal/errors"
)

// MemoryStore 以内存方式保存引导记录，主要用于测试与演示部署。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// EnsureAgent 实现 Store 接口。
func (m *MemoryStore) EnsureAgent(_ context.Context, walletID, addr string) (*Record, bool, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, false, xerrors.New(CodeValidation, "钱包标识不能为空")
	}
	if strings.TrimSpace(addr) == "" {
		return nil, false, xerrors.New(CodeValidation, "智能体地址不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	if record, ok := m.records[walletID]; ok {
		// 地址一经写入不可变，后来者拿到胜者的地址。
		return cloneRecord(record), false, nil
	}
	record := &Record{
		WalletID:     walletID,
		AgentAddress: addr,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.records[walletID] = record
	return cloneRecord(record), true, nil
}

// Get 返回记录副本。
func (m *MemoryStore) Get(_ context.Context, walletID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[strings.TrimSpace(walletID)]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return cloneRecord(record), nil
}

// SetLinkedAccount 写入绑定账号，只允许设置一次。
func (m *MemoryStore) SetLinkedAccount(_ context.Context, walletID string, acct Account) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[strings.TrimSpace(walletID)]
	if !ok {
		return nil, ErrWalletNotFound
	}
	if record.LinkedAccount != nil {
		return cloneRecord(record), ErrAlreadyLinked
	}
	clone := acct
	record.LinkedAccount = &clone
	record.UpdatedAt = time.Now().Unix()
	return cloneRecord(record), nil
}

// Finalize 写入偏好与部署信息并标记完成。
func (m *MemoryStore) Finalize(_ context.Context, walletID, externalRef string, prefs Preferences, agent AgentInfo, deployment Deployment) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[strings.TrimSpace(walletID)]
	if !ok {
		return nil, ErrWalletNotFound
	}
	record.ExternalRef = externalRef
	record.Preferences = clonePreferences(prefs)
	record.Agent = &AgentInfo{ID: agent.ID, Status: agent.Status}
	record.Deployment = &Deployment{Address: deployment.Address, Network: deployment.Network}
	record.SetupComplete = true
	record.UpdatedAt = time.Now().Unix()
	return cloneRecord(record), nil
}

// Stats 统计各引导阶段的记录数量。
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{}
	for _, record := range m.records {
		stats.Total++
		if record.LinkedAccount != nil {
			stats.Linked++
		}
		if record.SetupComplete {
			stats.SetupComplete++
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
