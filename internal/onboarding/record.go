package onboarding

import (
	xerrors "Maxxit-Agent/internal/errors"
)

// LinkState 表示钱包与消息账号绑定子状态机的状态。
type LinkState string

const (
	// StateNoLink 表示尚未签发绑定码，或签发的绑定码已过期。
	StateNoLink LinkState = "no_link"
	// StateCodeIssued 表示绑定码已签发但尚未被外部渠道确认。
	StateCodeIssued LinkState = "code_issued"
	// StateLinked 是终态，linked_account 一经写入不再改变。
	StateLinked LinkState = "linked"
)

// Account 描述已确认绑定的外部消息账号。
type Account struct {
	ID             string `json:"id"`
	TelegramUserID string `json:"telegram_user_id,omitempty"`
	Username       string `json:"telegram_username,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
}

// Preferences 保存交易偏好，每项取值范围为 [0,100]。
type Preferences map[string]float64

// AgentInfo 描述部署完成后的交易智能体。
type AgentInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Deployment 描述智能体的部署信息。
type Deployment struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

// Record 是以钱包为主键的引导记录。WalletID 与 AgentAddress 一经写入不可变，
// LinkedAccount 只允许设置一次，SetupComplete 只允许 false→true 单向翻转。
type Record struct {
	WalletID      string      `json:"wallet_id"`
	AgentAddress  string      `json:"agent_address"`
	LinkedAccount *Account    `json:"linked_account,omitempty"`
	ExternalRef   string      `json:"external_account_ref,omitempty"`
	Preferences   Preferences `json:"preferences,omitempty"`
	SetupComplete bool        `json:"setup_complete"`
	Agent         *AgentInfo  `json:"agent,omitempty"`
	Deployment    *Deployment `json:"deployment,omitempty"`
	CreatedAt     int64       `json:"created_at"`
	UpdatedAt     int64       `json:"updated_at"`
}

var (
	// ErrWalletNotFound 表示指定钱包尚未生成引导记录。
	ErrWalletNotFound = xerrors.New(CodeWalletNotFound, "wallet not found")
	// ErrCodeNotFound 表示绑定码不存在或已过期。
	ErrCodeNotFound = xerrors.New(CodeLinkNotFound, "link code not found")
	// ErrAlreadyLinked 表示钱包已绑定外部账号，再次绑定是幂等空操作。
	ErrAlreadyLinked = xerrors.New(CodeAlreadyLinked, "wallet already linked", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrCodeSpaceExhausted 表示重掷若干次后仍未得到可用绑定码。
	ErrCodeSpaceExhausted = xerrors.New(CodeLinkExhausted, "link code space exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeWalletNotFound Code = "WALLET_NOT_FOUND"
	CodeLinkNotFound   Code = "LINK_CODE_NOT_FOUND"
	CodeAlreadyLinked  Code = "WALLET_ALREADY_LINKED"
	CodeLinkExhausted  Code = "LINK_CODE_EXHAUSTED"
	CodeValidation     Code = "ONBOARDING_VALIDATION_FAILED"
)

// Code 是 onboarding 包内错误码的别名，便于注册与引用。
type Code = xerrors.Code

func init() {
	xerrors.Register(CodeWalletNotFound, xerrors.Attributes{
		Message:   "wallet not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeLinkNotFound, xerrors.Attributes{
		Message:   "link code not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeAlreadyLinked, xerrors.Attributes{
		Message:   "wallet already linked",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeLinkExhausted, xerrors.Attributes{
		Message:   "link code space exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeValidation, xerrors.Attributes{
		Message:   "onboarding validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// ValidatePreferences 校验交易偏好的键值是否合法。
func ValidatePreferences(prefs Preferences) error {
	for key, value := range prefs {
		if key == "" {
			return xerrors.New(CodeValidation, "偏好键不能为空")
		}
		if value < 0 || value > 100 {
			return xerrors.New(CodeValidation, "偏好取值必须位于 [0,100]",
				xerrors.WithMetadata("preference", key))
		}
	}
	return nil
}

// cloneRecord 返回记录的深拷贝，避免调用方看到存储内部状态。
func cloneRecord(record *Record) *Record {
	if record == nil {
		return nil
	}
	clone := *record
	if record.LinkedAccount != nil {
		acct := *record.LinkedAccount
		clone.LinkedAccount = &acct
	}
	if record.Agent != nil {
		agent := *record.Agent
		clone.Agent = &agent
	}
	if record.Deployment != nil {
		dep := *record.Deployment
		clone.Deployment = &dep
	}
	clone.Preferences = clonePreferences(record.Preferences)
	return &clone
}

func clonePreferences(prefs Preferences) Preferences {
	if prefs == nil {
		return nil
	}
	clone := make(Preferences, len(prefs))
	for k, v := range prefs {
		clone[k] = v
	}
	return clone
}
