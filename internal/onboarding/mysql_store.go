package onboarding

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	xerrors "Maxxit-Agent/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 持久化引导记录。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureAgent 插入新的引导记录。主键冲突说明已有胜者，返回其地址。
func (s *MySQLStore) EnsureAgent(ctx context.Context, walletID, addr string) (*Record, bool, error) {
	walletID = strings.TrimSpace(walletID)
	if walletID == "" {
		return nil, false, xerrors.New(CodeValidation, "钱包标识不能为空")
	}
	if strings.TrimSpace(addr) == "" {
		return nil, false, xerrors.New(CodeValidation, "智能体地址不能为空")
	}

	now := time.Now().Unix()
	const stmt = `INSERT INTO onboarding_records
        (wallet_id, agent_address, setup_complete, created_at, updated_at)
        VALUES (?, ?, 0, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt, walletID, addr, now, now)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			record, getErr := s.Get(ctx, walletID)
			if getErr != nil {
				return nil, false, getErr
			}
			return record, false, nil
		}
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入引导记录失败")
	}
	record, err := s.Get(ctx, walletID)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// Get 查询指定钱包的引导记录。
func (s *MySQLStore) Get(ctx context.Context, walletID string) (*Record, error) {
	const stmt = `SELECT wallet_id, agent_address, linked_account, preferences, external_ref, setup_complete,
        agent_id, agent_status, deploy_address, deploy_network, created_at, updated_at
        FROM onboarding_records WHERE wallet_id = ?`

	row := s.db.QueryRowContext(ctx, stmt, strings.TrimSpace(walletID))

	var record Record
	var linkedAccount, preferences sql.NullString
	var agentID, agentStatus, deployAddress, deployNetwork string
	var setupComplete int

	if err := row.Scan(
		&record.WalletID,
		&record.AgentAddress,
		&linkedAccount,
		&preferences,
		&record.ExternalRef,
		&setupComplete,
		&agentID,
		&agentStatus,
		&deployAddress,
		&deployNetwork,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询引导记录失败")
	}

	record.SetupComplete = setupComplete != 0
	if linkedAccount.Valid && linkedAccount.String != "" {
		var acct Account
		if err := json.Unmarshal([]byte(linkedAccount.String), &acct); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析绑定账号失败")
		}
		record.LinkedAccount = &acct
	}
	if preferences.Valid && preferences.String != "" {
		var prefs Preferences
		if err := json.Unmarshal([]byte(preferences.String), &prefs); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析交易偏好失败")
		}
		record.Preferences = prefs
	}
	if agentID != "" || agentStatus != "" {
		record.Agent = &AgentInfo{ID: agentID, Status: agentStatus}
	}
	if deployAddress != "" || deployNetwork != "" {
		record.Deployment = &Deployment{Address: deployAddress, Network: deployNetwork}
	}
	return &record, nil
}

// SetLinkedAccount 写入绑定账号。WHERE 条件保证账号只会被设置一次。
func (s *MySQLStore) SetLinkedAccount(ctx context.Context, walletID string, acct Account) (*Record, error) {
	payload, err := json.Marshal(acct)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码绑定账号失败")
	}

	const stmt = `UPDATE onboarding_records SET linked_account = ?, updated_at = ?
        WHERE wallet_id = ? AND linked_account IS NULL`

	res, err := s.db.ExecContext(ctx, stmt, string(payload), time.Now().Unix(), strings.TrimSpace(walletID))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入绑定账号失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	record, getErr := s.Get(ctx, walletID)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 0 && record.LinkedAccount != nil {
		return record, ErrAlreadyLinked
	}
	return record, nil
}

// Finalize 写入偏好与部署信息并标记完成。
func (s *MySQLStore) Finalize(ctx context.Context, walletID, externalRef string, prefs Preferences, agent AgentInfo, deployment Deployment) (*Record, error) {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码交易偏好失败")
	}

	const stmt = `UPDATE onboarding_records SET preferences = ?, external_ref = ?, agent_id = ?, agent_status = ?,
        deploy_address = ?, deploy_network = ?, setup_complete = 1, updated_at = ? WHERE wallet_id = ?`

	_, err = s.db.ExecContext(ctx, stmt,
		string(payload),
		externalRef,
		agent.ID,
		agent.Status,
		deployment.Address,
		deployment.Network,
		time.Now().Unix(),
		strings.TrimSpace(walletID),
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入完成记录失败")
	}
	return s.Get(ctx, walletID)
}

// Stats 统计各引导阶段的记录数量。
func (s *MySQLStore) Stats(ctx context.Context) (Stats, error) {
	const stmt = `SELECT COUNT(*),
        COALESCE(SUM(CASE WHEN linked_account IS NOT NULL THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN setup_complete = 1 THEN 1 ELSE 0 END), 0)
        FROM onboarding_records`

	var stats Stats
	row := s.db.QueryRowContext(ctx, stmt)
	if err := row.Scan(&stats.Total, &stats.Linked, &stats.SetupComplete); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计引导记录失败")
	}
	return stats, nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// ensure interface compliance at compile time
var _ Store = (*MySQLStore)(nil)
