package models

import "time"

// ============================================================================
// Session相关请求类型
// ============================================================================

// CreateSessionRequest 创建会话请求
type CreateSessionRequest struct {
	TenantID     string         `json:"tenantId" binding:"required"`
	UserID       string         `json:"userId" binding:"required"`
	Title        string         `json:"title"`
	ModelID      string         `json:"modelId"`
	SystemPrompt string         `json:"systemPrompt"`
	Metadata     map[string]any `json:"metadata"`
}

// UpdateSessionRequest 更新会话请求
type UpdateSessionRequest struct {
	Title        string         `json:"title"`
	SystemPrompt string         `json:"systemPrompt"`
	Metadata     map[string]any `json:"metadata"`
	Status       string         `json:"status"`
}

// Message 消息类型
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Role      string         `json:"role"` // user, assistant, system
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ============================================================================
// AuditLog相关请求类型
// ============================================================================

// ListAuditLogsRequest 查询审计日志请求
type ListAuditLogsRequest struct {
	TenantID  string     `json:"tenantId" binding:"required"`
	UserID    string     `json:"userId"`
	Action    string     `json:"action"`
	Resource  string     `json:"resource"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Page      int        `json:"page"`
	PageSize  int        `json:"pageSize"`
}
