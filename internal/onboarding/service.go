package onboarding

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	xerrors "Maxxit-Agent/internal/errors"
	"Maxxit-Agent/internal/messenger"
	"Maxxit-Agent/internal/observability/alerting"
	"Maxxit-Agent/pkg/logger"
)

// DefaultNetwork 是部署描述默认使用的网络名。
const DefaultNetwork = "arbitrum-sepolia"

// LinkOffer 是 RequestLink 的返回结果。已绑定时只携带账号信息。
type LinkOffer struct {
	AlreadyLinked bool     `json:"alreadyLinked"`
	Code          string   `json:"linkCode,omitempty"`
	DeepLink      string   `json:"deepLink,omitempty"`
	BotUsername   string   `json:"botUsername,omitempty"`
	Account       *Account `json:"telegramUser,omitempty"`
}

// LinkStatus 是 PollStatus 的返回结果。
type LinkStatus struct {
	Connected bool     `json:"connected"`
	Account   *Account `json:"telegramUser,omitempty"`
}

// SetupResult 是 Finalize 的返回结果。
type SetupResult struct {
	Success      bool        `json:"success"`
	Agent        *AgentInfo  `json:"agent"`
	Deployment   *Deployment `json:"deployment"`
	AgentAddress string      `json:"agentAddress"`
}

// SetupStatus 是 CheckSetup 的返回结果。
type SetupStatus struct {
	SetupComplete bool        `json:"isSetupComplete"`
	Agent         *AgentInfo  `json:"agent,omitempty"`
	Account       *Account    `json:"telegramUser,omitempty"`
	AgentAddress  string      `json:"agentAddress,omitempty"`
	Preferences   Preferences `json:"tradingPreferences,omitempty"`
}

// Service 负责引导协议的编排：身份生成、绑定码签发、确认与状态对账、
// 以及最终的完成落账。记录的唯一事实来源是 Store，Registry 只拥有
// code→wallet 的映射。
type Service struct {
	store       Store
	registry    Registry
	prov        *Provisioner
	profile     messenger.Profile
	network     string
	autoConfirm bool
	alerter     alerting.Dispatcher
}

// Option 定义可选的 Service 配置。
type Option func(*Service)

// WithProfile 设置消息机器人档案。
func WithProfile(profile messenger.Profile) Option {
	return func(s *Service) {
		s.profile = profile
	}
}

// WithNetwork 设置部署描述使用的网络名。
func WithNetwork(network string) Option {
	return func(s *Service) {
		if network != "" {
			s.network = network
		}
	}
}

// WithAutoConfirm 开启轮询时自动确认的演示捷径。线上没有消息机器人时
// 该捷径让向导流程可以走通；生产部署必须关闭，确认只能来自 Confirm。
func WithAutoConfirm(enabled bool) Option {
	return func(s *Service) {
		s.autoConfirm = enabled
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) Option {
	return func(s *Service) {
		s.alerter = dispatcher
	}
}

// NewService 构造引导服务。
func NewService(store Store, registry Registry, prov *Provisioner, opts ...Option) *Service {
	if prov == nil {
		prov = NewProvisioner(nil)
	}
	svc := &Service{
		store:    store,
		registry: registry,
		prov:     prov,
		profile:  messenger.DefaultProfile,
		network:  DefaultNetwork,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// GenerateAgent 为钱包派生智能体地址。重复调用返回相同地址且 isNew=false。
func (s *Service) GenerateAgent(ctx context.Context, walletID string) (string, bool, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return "", false, xerrors.New(CodeValidation, "钱包标识不能为空")
	}
	if s.store == nil {
		return "", false, xerrors.New(xerrors.CodeInitializationFailure, "引导服务未初始化")
	}

	record, created, err := s.store.EnsureAgent(ctx, walletID, s.prov.DeriveAddress())
	if err != nil {
		s.alert(ctx, walletID, err)
		return "", false, err
	}
	if created {
		logger.Audit().Info("智能体地址已生成",
			slog.String("wallet_id", walletID),
			slog.String("agent_address", record.AgentAddress),
		)
	}
	return record.AgentAddress, created, nil
}

// RequestLink 为钱包签发绑定码。已绑定的钱包直接返回账号信息，不再发码。
func (s *Service) RequestLink(ctx context.Context, walletID string) (*LinkOffer, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, xerrors.New(CodeValidation, "钱包标识不能为空")
	}
	if s.store == nil || s.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "引导服务未初始化")
	}

	record, err := s.store.Get(ctx, walletID)
	if err != nil && !stdErrors.Is(err, ErrWalletNotFound) {
		s.alert(ctx, walletID, err)
		return nil, err
	}
	if record != nil && record.LinkedAccount != nil {
		return &LinkOffer{AlreadyLinked: true, Account: record.LinkedAccount}, nil
	}

	code, err := s.registry.Issue(ctx, walletID)
	if err != nil {
		s.alert(ctx, walletID, err)
		return nil, err
	}
	logger.Audit().Info("绑定码已签发",
		slog.String("wallet_id", walletID),
		slog.String("code", code),
	)
	return &LinkOffer{
		Code:        code,
		DeepLink:    s.profile.DeepLink(code),
		BotUsername: s.profile.BotUsername,
	}, nil
}

// Confirm 处理外部渠道对绑定码的确认。未知绑定码返回 ErrCodeNotFound 且
// 不产生任何修改；钱包已绑定时是幂等空操作。
func (s *Service) Confirm(ctx context.Context, code string, acct Account) (string, error) {
	if s.store == nil || s.registry == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "引导服务未初始化")
	}

	walletID, err := s.registry.Lookup(ctx, code)
	if err != nil {
		return "", err
	}
	if _, err := s.store.SetLinkedAccount(ctx, walletID, acct); err != nil {
		if stdErrors.Is(err, ErrAlreadyLinked) {
			return walletID, nil
		}
		s.alert(ctx, walletID, err)
		return "", err
	}
	logger.Audit().Info("钱包已绑定外部账号",
		slog.String("wallet_id", walletID),
		slog.String("account_id", acct.ID),
		slog.String("code", strings.ToUpper(strings.TrimSpace(code))),
	)
	return walletID, nil
}

// PollStatus 查询绑定状态。开启演示捷径且携带的绑定码指向该钱包时，
// 会用合成账号自动完成一次确认；生产路径上这里是纯读操作。
func (s *Service) PollStatus(ctx context.Context, walletID, code string) (*LinkStatus, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, xerrors.New(CodeValidation, "钱包标识不能为空")
	}
	if s.store == nil || s.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "引导服务未初始化")
	}

	record, err := s.store.Get(ctx, walletID)
	if err != nil && !stdErrors.Is(err, ErrWalletNotFound) {
		s.alert(ctx, walletID, err)
		return nil, err
	}
	if record != nil && record.LinkedAccount != nil {
		return &LinkStatus{Connected: true, Account: record.LinkedAccount}, nil
	}

	if s.autoConfirm && code != "" {
		owner, lookupErr := s.registry.Lookup(ctx, code)
		if lookupErr == nil && owner == walletID {
			return s.demoConfirm(ctx, walletID)
		}
	}
	return &LinkStatus{Connected: false}, nil
}

// demoConfirm 是演示部署的自动确认分支：没有记录时先补一条，再写入合成
// 账号。生产部署通过关闭 WithAutoConfirm 切断该分支。
func (s *Service) demoConfirm(ctx context.Context, walletID string) (*LinkStatus, error) {
	identity := messenger.SynthesizeDemoIdentity(walletID)
	acct := Account{
		ID:             identity.ID,
		TelegramUserID: identity.TelegramUserID,
		Username:       identity.Username,
	}

	record, err := s.store.SetLinkedAccount(ctx, walletID, acct)
	if stdErrors.Is(err, ErrWalletNotFound) {
		if _, _, ensureErr := s.store.EnsureAgent(ctx, walletID, s.prov.DeriveAddress()); ensureErr != nil {
			s.alert(ctx, walletID, ensureErr)
			return nil, ensureErr
		}
		record, err = s.store.SetLinkedAccount(ctx, walletID, acct)
	}
	if err != nil && !stdErrors.Is(err, ErrAlreadyLinked) {
		s.alert(ctx, walletID, err)
		return nil, err
	}
	logger.Audit().Info("演示模式自动完成绑定", slog.String("wallet_id", walletID))
	return &LinkStatus{Connected: true, Account: record.LinkedAccount}, nil
}

// Finalize 接受交易偏好并落账完成记录。前置条件：钱包已生成智能体地址
// 且已绑定外部账号。重复调用按最新输入覆盖偏好与部署。
func (s *Service) Finalize(ctx context.Context, walletID, externalRef string, prefs Preferences) (*SetupResult, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, xerrors.New(CodeValidation, "钱包标识不能为空")
	}
	if err := ValidatePreferences(prefs); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "引导服务未初始化")
	}

	record, err := s.store.Get(ctx, walletID)
	if err != nil {
		if !stdErrors.Is(err, ErrWalletNotFound) {
			s.alert(ctx, walletID, err)
		}
		return nil, err
	}
	if record.LinkedAccount == nil {
		return nil, xerrors.New(CodeValidation, "钱包尚未绑定外部账号")
	}

	agent := AgentInfo{ID: "agent-" + s.prov.NewCode(), Status: "active"}
	deployment := Deployment{Address: record.AgentAddress, Network: s.network}

	record, err = s.store.Finalize(ctx, walletID, externalRef, prefs, agent, deployment)
	if err != nil {
		s.alert(ctx, walletID, err)
		return nil, err
	}
	logger.Audit().Info("引导流程已完成",
		slog.String("wallet_id", walletID),
		slog.String("agent_id", agent.ID),
		slog.String("network", deployment.Network),
	)
	return &SetupResult{
		Success:      true,
		Agent:        record.Agent,
		Deployment:   record.Deployment,
		AgentAddress: record.AgentAddress,
	}, nil
}

// CheckSetup 查询引导完成状态。未知钱包返回全空状态而非错误，
// 方便前端向导在任意阶段轮询。
func (s *Service) CheckSetup(ctx context.Context, walletID string) (*SetupStatus, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, xerrors.New(CodeValidation, "钱包标识不能为空")
	}
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "引导服务未初始化")
	}

	record, err := s.store.Get(ctx, walletID)
	if stdErrors.Is(err, ErrWalletNotFound) {
		return &SetupStatus{}, nil
	}
	if err != nil {
		s.alert(ctx, walletID, err)
		return nil, err
	}
	status := &SetupStatus{
		SetupComplete: record.SetupComplete,
		AgentAddress:  record.AgentAddress,
		Account:       record.LinkedAccount,
	}
	if record.SetupComplete {
		status.Agent = record.Agent
		status.Preferences = record.Preferences
	}
	return status, nil
}

// Stats 返回引导记录的统计信息。
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "引导存储未初始化")
	}
	return s.store.Stats(ctx)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			return err
		}
	}
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// alert 根据错误属性决定是否派发告警。
func (s *Service) alert(ctx context.Context, walletID string, err error) {
	if s.alerter == nil || err == nil {
		return
	}
	var xerr *xerrors.Error
	if !stdErrors.As(err, &xerr) || !xerr.ShouldAlert() {
		return
	}
	event := alerting.Event{
		Code:       xerr.Code(),
		Message:    xerr.Message(),
		Severity:   xerr.Severity(),
		WalletID:   walletID,
		Metadata:   xerr.Metadata(),
		OccurredAt: time.Now(),
	}
	if notifyErr := s.alerter.Notify(ctx, event); notifyErr != nil {
		logger.L().Error("派发告警失败", slog.Any("error", notifyErr))
	}
}
