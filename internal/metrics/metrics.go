package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantsync_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets, // 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
		},
		[]string{"method", "path"},
	)

	// APIRequestSize API 请求体大小（字节）
	APIRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantsync_api_request_size_bytes",
			Help:    "API 请求体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantsync_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)
)

// 数据库指标
var (
	// DBConnections 数据库连接数
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantsync_db_connections",
			Help: "数据库连接数",
		},
		[]string{"state"}, // state: open, in_use, idle
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenantsync_build_info",
			Help: "TenantShellSync 构建信息",
		},
		[]string{"version", "go_version", "commit"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion, commit string) {
	BuildInfo.WithLabelValues(version, goVersion, commit).Set(1)
}

// ShellSync 指标
var (
	// ShellSyncReconciliationsTotal 跨进程租户收敛次数
	ShellSyncReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_shellsync_reconciliations_total",
			Help: "租户 release/reload 收敛次数",
		},
		[]string{"op", "source"}, // op: release, reload；source: publish, poll
	)

	// ShellSyncPollErrorsTotal 轮询过程中的缓存/配置存储错误数
	ShellSyncPollErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantsync_shellsync_poll_errors_total",
			Help: "轮询过程中缓存或配置存储读取失败次数",
		},
		[]string{"step"}, // step: heartbeat, creation, settings_rescan, reconcile
	)

	// ShellSyncPollIdleSeconds 轮询当前的空闲间隔（秒）
	ShellSyncPollIdleSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenantsync_shellsync_poll_idle_seconds",
			Help: "轮询当前的空闲等待间隔，缓存故障时随退避上升",
		},
	)
)
