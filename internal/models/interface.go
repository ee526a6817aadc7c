package models

import "context"

// ============================================================================
// SessionService 接口定义
// ============================================================================

// SessionServiceInterface 会话管理服务接口
type SessionServiceInterface interface {
	// CreateSession 创建会话
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error)

	// GetSession 查询会话
	GetSession(ctx context.Context, tenantID, sessionID string) (*Session, error)

	// ListSessions 查询会话列表
	ListSessions(ctx context.Context, tenantID, userID string, page, pageSize int) ([]*Session, int64, error)

	// UpdateSession 更新会话
	UpdateSession(ctx context.Context, tenantID, sessionID string, req *UpdateSessionRequest) (*Session, error)

	// DeleteSession 删除会话
	DeleteSession(ctx context.Context, tenantID, sessionID string) error

	// AddMessage 添加消息到会话
	AddMessage(ctx context.Context, sessionID string, message *Message) error

	// GetMessages 获取会话消息列表
	GetMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error)
}

// ============================================================================
// AuditLogService 接口定义
// ============================================================================

// AuditLogServiceInterface 审计日志服务接口
type AuditLogServiceInterface interface {
	// CreateLog 创建审计日志
	CreateLog(ctx context.Context, log *AuditLog) error

	// ListLogs 查询审计日志列表
	ListLogs(ctx context.Context, req *ListAuditLogsRequest) ([]*AuditLog, int64, error)

	// GetLog 查询单条审计日志
	GetLog(ctx context.Context, tenantID, logID string) (*AuditLog, error)

	// GetUserActions 获取用户操作历史
	GetUserActions(ctx context.Context, tenantID, userID string, limit int) ([]*AuditLog, error)

	// GetResourceHistory 获取资源变更历史
	GetResourceHistory(ctx context.Context, tenantID, resource, resourceID string, limit int) ([]*AuditLog, error)
}
