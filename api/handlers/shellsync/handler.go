package shellsync

import (
	"context"
	"net/http"
	"strings"

	"backend/internal/shellsync"

	"github.com/gin-gonic/gin"
)

// ShellHost is the subset of the tenant shell host the admin surface drives:
// locally originated release/reload, which the convergence service publishes
// to peer processes.
type ShellHost interface {
	ReleaseTenant(ctx context.Context, tenantID string)
	ReloadTenant(ctx context.Context, tenantID string)
}

// Handler exposes the admin surface for the cross-process tenant convergence
// service: read-only status plus operator-initiated release/reload.
type Handler struct {
	svc  *shellsync.Service
	host ShellHost
}

// NewHandler constructs a Handler for svc and host.
func NewHandler(svc *shellsync.Service, host ShellHost) *Handler {
	return &Handler{svc: svc, host: host}
}

// GetStatus 获取跨进程租户收敛状态
// @Summary 获取 shellsync 收敛状态
// @Description 返回当前进程观察到的心跳/创建标识及每个租户的本地 release/reload 标识
// @Tags 管理
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{} "收敛状态"
// @Router /api/v1/admin/shellsync/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	snap := h.svc.Snapshot()

	identifiers := make(map[string]gin.H, len(snap.Identifiers))
	for name, rec := range snap.Identifiers {
		identifiers[name] = gin.H{
			"releaseId": rec.ReleaseID,
			"reloadId":  rec.ReloadID,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"terminated":     snap.Terminated,
			"idleSeconds":    snap.Idle.Seconds(),
			"shellChangedId": snap.ShellChangedID,
			"shellCreatedId": snap.ShellCreatedID,
			"tenants":        identifiers,
		},
	})
}

// ReleaseTenant 释放租户 shell 上下文
// @Summary 释放租户 shell 上下文并通知其他进程
// @Tags 管理
// @Security ApiKeyAuth
// @Produce json
// @Param name path string true "租户 ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/shellsync/tenants/{name}/release [post]
func (h *Handler) ReleaseTenant(c *gin.Context) {
	name, ok := h.tenantName(c)
	if !ok {
		return
	}
	h.host.ReleaseTenant(c.Request.Context(), name)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"tenant": name, "op": "release"}})
}

// ReloadTenant 重载租户 shell 上下文
// @Summary 重载租户 shell 上下文并通知其他进程
// @Tags 管理
// @Security ApiKeyAuth
// @Produce json
// @Param name path string true "租户 ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/shellsync/tenants/{name}/reload [post]
func (h *Handler) ReloadTenant(c *gin.Context) {
	name, ok := h.tenantName(c)
	if !ok {
		return
	}
	h.host.ReloadTenant(c.Request.Context(), name)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"tenant": name, "op": "reload"}})
}

func (h *Handler) tenantName(c *gin.Context) (string, bool) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "缺少租户 ID"})
		return "", false
	}
	return name, true
}
