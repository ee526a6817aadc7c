package api

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	auditHandlers "backend/api/handlers/audit"
	authHandlers "backend/api/handlers/auth"
	shellsyncHandlers "backend/api/handlers/shellsync"
	tenantHandlers "backend/api/handlers/tenant"
	auditpkg "backend/internal/audit"
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/logger"
	"backend/internal/metrics"
	middlewarepkg "backend/internal/middleware"

	modelSvc "backend/internal/models"
	"backend/internal/shellsync"
	tenantSvc "backend/internal/tenant"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SetupRouter 设置并返回 Gin 路由与跨进程租户收敛服务
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *shellsync.Service) {
	router := gin.New()

	// 统一归一化 Redis 配置，优先使用 cfg.Redis，再回退到环境变量
	redisCfg := normalizeRedisConfig(cfg.Redis)
	cfg.Redis = redisCfg

	// 初始化 Redis 客户端（OAuth2 state、跨进程租户收敛共享缓存等）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisCfg.Host, redisCfg.Port),
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
		MaintNotificationsConfig: &maintnotifications.Config{ // Redis 服务器不支持 maint_notifications
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Warn("Redis 不可用，跨进程租户收敛共享缓存与 OAuth2 状态将退回禁用/内存实现", zap.Error(err))
		redisClient = nil
	}

	// 初始化数据库指标采集（连接池 + Go 运行时）
	if sqlDB, err := db.DB(); err == nil {
		metrics.NewSystemCollector(sqlDB)
	}

	// 初始化认证服务
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	jwtSecretKey := strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))
	if jwtSecretKey == "" {
		// 生产模式必须显式配置密钥，防止使用弱默认值
		if strings.EqualFold(cfg.Server.Mode, "release") || strings.EqualFold(appEnv, "prod") || strings.EqualFold(appEnv, "production") {
			logger.Fatal("JWT_SECRET_KEY 未配置，生产环境禁止使用默认密钥")
		}
		jwtSecretKey = "default_jwt_secret_key_change_in_production" // 本地/测试默认值，需明确提示
		logger.Warn("JWT_SECRET_KEY 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}
	jwtService := auth.NewJWTService(jwtSecretKey, "TenantShellSync", redisClient)

	// 初始化 OAuth2 服务
	oauth2Service := auth.NewOAuth2Service()

	if googleClientID := os.Getenv("GOOGLE_CLIENT_ID"); googleClientID != "" {
		oauth2Service.RegisterProvider(auth.ProviderGoogle, &auth.OAuth2Config{
			ClientID:     googleClientID,
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		})
	}
	if githubClientID := os.Getenv("GITHUB_CLIENT_ID"); githubClientID != "" {
		oauth2Service.RegisterProvider(auth.ProviderGitHub, &auth.OAuth2Config{
			ClientID:     githubClientID,
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
		})
	}

	// 初始化会话与审计日志服务
	sessionService := modelSvc.NewSessionService(db)
	auditService := modelSvc.NewAuditLogService(db)

	// 初始化租户服务组件
	idGen := &UUIDGenerator{}
	hasher := &BcryptHasher{}
	auditAdapter := &TenantAuditAdapter{svc: auditService}

	// 获取底层 SQL DB（repository 使用标准 SQL 接口）
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层数据库连接失败", zap.Error(err))
	}

	tenantRepo := tenantSvc.NewTenantRepository(sqlDB)
	userRepo := tenantSvc.NewUserRepository(sqlDB)
	roleRepo := tenantSvc.NewRoleRepository(sqlDB)
	userRoleRepo := tenantSvc.NewUserRoleRepository(sqlDB)
	rolePermRepo := tenantSvc.NewRolePermissionRepository(sqlDB)
	permRepo := tenantSvc.NewPermissionRepository(sqlDB)
	configRepo := tenantSvc.NewTenantConfigRepository(sqlDB)
	configCache := tenantSvc.NewInMemoryTenantConfigCache(0) // 默认无 TTL

	// 跨进程租户收敛服务：release/reload 通过共享 Redis 缓存在多进程间传播。
	// Redis 不可用时 shellSyncCache 保持为 nil 接口值，shellsync 将其当作
	// "未启用分布式缓存特性"处理，而不是构造一个包裹了 nil *redis.Client
	// 的 cache 去崩溃。
	var shellSyncCache shellsync.DistributedCache
	if redisClient != nil {
		shellSyncCache = shellsync.NewRedisCache(redisClient)
	} else {
		logger.Warn("shellsync: 跨进程共享缓存已禁用，原因：Redis 未连接")
	}
	shellHost := tenantSvc.NewShellHostAdapter(tenantRepo, configRepo, shellSyncCache, logger.Get())
	shellSyncOpts := []shellsync.Option{}
	if cfg.ShellSync.IdleSeconds > 0 {
		shellSyncOpts = append(shellSyncOpts, shellsync.WithIdle(time.Duration(cfg.ShellSync.IdleSeconds)*time.Second))
	}
	if cfg.ShellSync.BusyMaxSeconds > 0 {
		shellSyncOpts = append(shellSyncOpts, shellsync.WithBusyMax(time.Duration(cfg.ShellSync.BusyMaxSeconds)*time.Second))
	}
	if cfg.ShellSync.RetryMaxSeconds > 0 {
		shellSyncOpts = append(shellSyncOpts, shellsync.WithRetryMax(time.Duration(cfg.ShellSync.RetryMaxSeconds)*time.Second))
	}
	shellSyncService := shellsync.NewService(shellHost, shellHost, shellHost, logger.Get(), shellSyncOpts...)
	shellHost.SetService(shellSyncService)
	if err := shellHost.Bootstrap(context.Background()); err != nil {
		logger.Warn("shellsync: 启动初始化失败", zap.Error(err))
	}
	shellSyncHandler := shellsyncHandlers.NewHandler(shellSyncService, shellHost)

	// 初始化租户相关 Services
	tenantService := tenantSvc.NewTenantService(tenantRepo, userRepo, nil, idGen, nil, auditAdapter)
	userService := tenantSvc.NewUserService(userRepo, hasher, auditAdapter)
	roleService := tenantSvc.NewRoleService(roleRepo, userRoleRepo, rolePermRepo, permRepo, idGen, auditAdapter)
	configService := tenantSvc.NewTenantConfigService(configRepo, configCache, auditAdapter)

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 审计中间件（记录所有请求）
	router.Use(auditpkg.AuditMiddleware(auditService))

	// 公开端点（不需要认证）
	router.GET("/health", HealthCheck(db))
	router.GET("/ready", ReadinessCheck(db))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 初始化权限检查器
	permChecker := auth.NewDatabasePermissionChecker(roleService)
	mwFactory := auth.NewMiddlewareFactory(permChecker)

	identityStore := auth.NewIdentityStore(db, os.Getenv("DEFAULT_TENANT_ID"))
	var stateStore auth.StateStore
	if redisClient != nil {
		stateStore = auth.NewRedisStateStore(redisClient)
	} else {
		stateStore = auth.NewMemoryStateStore(10 * time.Minute)
	}

	// 初始化 Handlers
	authHandler := authHandlers.NewAuthHandler(jwtService, oauth2Service, sessionService, auditService, db, identityStore, stateStore)
	auditHandler := auditHandlers.NewAuditHandler(auditService)
	tenantHandler := tenantHandlers.NewTenantHandler(tenantService, userService, roleService, configService, hasher)

	// 路由注册器，方便同时挂载 /api 与 /api/v1
	registerAPIRoutes := func(apiGroup *gin.RouterGroup) {
		// 管理端点
		admin := apiGroup.Group("/admin")
		admin.Use(mwFactory.RequireAdmin())
		{
			admin.GET("/shellsync/status", shellSyncHandler.GetStatus)
			admin.POST("/shellsync/tenants/:name/release", shellSyncHandler.ReleaseTenant)
			admin.POST("/shellsync/tenants/:name/reload", shellSyncHandler.ReloadTenant)
		}

		// 租户管理
		tenants := apiGroup.Group("/tenants")
		{
			tenants.POST("", tenantHandler.CreateTenant)
			tenants.GET("", tenantHandler.ListTenants)
			tenants.GET("/:id", tenantHandler.GetTenant)
			tenants.PUT("/:id", tenantHandler.UpdateTenant)
			tenants.DELETE("/:id", tenantHandler.DeleteTenant)
		}

		// 租户用户管理（建议使用层级式路由）
		tenantUsers := tenants.Group("/:id/users")
		{
			tenantUsers.POST("", tenantHandler.CreateUser)
			tenantUsers.GET("", tenantHandler.ListUsers)
		}
		// 兼容旧路由 /tenant/users
		tenantUsersLegacy := apiGroup.Group("/tenant/users")
		{
			tenantUsersLegacy.POST("", tenantHandler.CreateUser)
			tenantUsersLegacy.GET("", tenantHandler.ListUsers)
		}

		// 租户角色管理
		tenantRoles := tenants.Group("/:id/roles")
		{
			tenantRoles.POST("", tenantHandler.CreateRole)
			tenantRoles.PUT("", tenantHandler.UpdateRole)
		}
		// 兼容旧路由 /tenant/roles
		tenantRolesLegacy := apiGroup.Group("/tenant/roles")
		{
			tenantRolesLegacy.POST("", tenantHandler.CreateRole)
			tenantRolesLegacy.PUT("", tenantHandler.UpdateRole)
		}

		// 租户配置管理
		tenantConfig := apiGroup.Group("/tenant/config")
		{
			tenantConfig.GET("", tenantHandler.GetConfig)
			tenantConfig.PUT("", tenantHandler.UpdateConfig)
		}

		// 权限查询
		apiGroup.GET("/tenant/permissions", tenantHandler.ListPermissions)

		// 审计日志 API（需要管理员权限或仅查看自己的日志）
		auditGroup := apiGroup.Group("/audit")
		{
			auditGroup.POST("/logs/query", auditHandler.QueryLogs)
			auditGroup.GET("/logs/:id", auditHandler.GetLog)
			auditGroup.GET("/users/:userID/activity", auditHandler.GetUserActivity)
			auditGroup.GET("/my-activity", auditHandler.GetMyActivity)
		}
	}

	// 认证 API（公开，不需要 JWT）
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/oauth/:provider", authHandler.GetOAuth2AuthURL)
		authGroup.POST("/oauth/:provider/callback", authHandler.OAuth2Callback)
	}

	// 主 API 组（向后兼容）
	apiGroup := router.Group("/api")
	apiGroup.Use(auth.AuthMiddleware(jwtService), middlewarepkg.GinTenantContextMiddleware(logger.Get()))
	registerAPIRoutes(apiGroup)

	// 版本化 API 组
	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(jwtService), middlewarepkg.GinTenantContextMiddleware(logger.Get()))
	registerAPIRoutes(apiV1)

	return router, shellSyncService
}

// --- Helpers for Tenant Service Dependency Injection ---

type UUIDGenerator struct{}

func (g *UUIDGenerator) NewID() (string, error) {
	return uuid.New().String(), nil
}

type BcryptHasher struct{}

func (h *BcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

type TenantAuditAdapter struct {
	svc *modelSvc.AuditLogService
}

func (a *TenantAuditAdapter) LogAction(ctx context.Context, tc tenantSvc.TenantContext, action, resource string, details any) {
	// 转换 details 为 metadata map
	metadata := make(map[string]interface{})
	if details != nil {
		// 简单的尝试转换，如果类型不匹配可能会有问题，生产环境建议更严谨
		if m, ok := details.(map[string]interface{}); ok {
			metadata = m
		} else {
			// 尝试 JSON 序列化再反序列化
			if b, err := json.Marshal(details); err == nil {
				_ = json.Unmarshal(b, &metadata)
			}
		}
	}

	// 记录审计日志
	log := &modelSvc.AuditLog{
		TenantID:      tc.TenantID,
		UserID:        tc.UserID,
		EventType:     action,
		EventCategory: resource,
		EventLevel:    "info",
		Description:   "Action: " + action + " on " + resource,
		Metadata:      metadata,
		CreatedAt:     time.Now().UTC(),
	}

	// 异步写入，忽略错误以避免阻塞业务流程
	go func() {
		// 创建一个新的 context，因为原来的 request context 可能已取消
		_ = a.svc.CreateLog(context.Background(), log)
	}()
}
