package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"contentstudio/api"
	"contentstudio/internal/ai/openai"
	"contentstudio/internal/auth"
	"contentstudio/internal/catalog"
	"contentstudio/internal/config"
	"contentstudio/internal/generation"
	"contentstudio/internal/infra"
	"contentstudio/internal/infra/queue"
	"contentstudio/internal/logger"
	"contentstudio/internal/metrics"
	"contentstudio/internal/middleware"
	"contentstudio/internal/notification"
	"contentstudio/internal/persistence"
	"contentstudio/internal/platform"
	"contentstudio/internal/publish"
	"contentstudio/internal/security"
	"contentstudio/internal/studio"
	"contentstudio/internal/template"
	"contentstudio/internal/visual"
	"contentstudio/internal/worker"
	"contentstudio/pkg/aiinterface"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// 构建时通过 -ldflags 注入
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()
	log.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
		zap.String("version", version))
	metrics.RecordBuildInfo(version, runtime.Version(), commit)

	if err := run(cfg, log); err != nil {
		log.Fatal("服务异常退出", zap.Error(err))
	}
	log.Info("服务器已安全关闭")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 数据库与 Redis
	db, err := infra.OpenDatabase(ctx, &cfg.Database, log)
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	defer infra.CloseDatabase(db)

	rdb, err := infra.OpenRedis(ctx, &cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("初始化 Redis 失败: %w", err)
	}
	defer rdb.Close()

	gormStore := persistence.NewGormStore(db)
	var storeOpts []platform.StoreOption
	if cfg.Publish.TokenSecret != "" {
		cipher, err := security.NewSecretCipher(cfg.Publish.TokenSecret)
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, platform.WithTokenCipher(cipher))
	} else {
		log.Warn("未配置 publish.token_secret，平台令牌将明文存储")
	}
	connections := platform.NewGormConnectionStore(db, storeOpts...)
	publishLogs := publish.NewGormLogStore(db)
	var templateOpts []template.Option
	if cfg.Workflow.TemplateCacheSize > 0 {
		templateOpts = append(templateOpts, template.WithCache(cfg.Workflow.TemplateCacheSize, 10*time.Minute))
	}
	templates := template.NewTemplateService(db, templateOpts...)

	// 4. 数据库迁移（根据配置）
	if cfg.Database.AutoMigrate {
		if err := infra.Migrate(log, gormStore, connections, publishLogs, templates); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	} else {
		log.Info("跳过自动迁移（配置已禁用）")
	}
	if err := seedTemplates(ctx, templates, cfg.Workflow.TemplatesDir, log); err != nil {
		return err
	}

	// 5. 模型客户端与生成
	ai, err := openai.NewClient(&aiinterface.ClientConfig{
		Provider:   "openai",
		APIKey:     cfg.AI.OpenAI.APIKey,
		BaseURL:    cfg.AI.OpenAI.BaseURL,
		Model:      cfg.AI.OpenAI.Model,
		ImageModel: cfg.AI.OpenAI.ImageModel,
		OrgID:      cfg.AI.OpenAI.OrgID,
		MaxRetries: cfg.AI.OpenAI.MaxRetries,
		Timeout:    cfg.AI.OpenAI.Timeout,
	})
	if err != nil {
		return fmt.Errorf("初始化模型客户端失败: %w", err)
	}
	budget, err := generation.NewPromptBudget(cfg.AI.OpenAI.Model, cfg.Workflow.PromptTokenBudget)
	if err != nil {
		return fmt.Errorf("初始化 Token 预算失败: %w", err)
	}
	generator := generation.NewDispatcher(ai, templates, log,
		generation.WithBudget(budget),
		generation.WithTemperature(cfg.Workflow.Temperature),
		generation.WithMaxTokens(cfg.Workflow.MaxTokens))

	media, err := visual.NewLocalMediaStore(cfg.Media.Dir, cfg.Media.BaseURL, cfg.Media.MaxFileSize)
	if err != nil {
		return err
	}
	visuals := visual.NewResolver(ai, templates, media, log)

	// 6. 发布
	registry, err := buildRegistry(cfg.Publish)
	if err != nil {
		return err
	}
	authorizer := platform.NewAuthorizer(platform.NewSession(), connections, log)
	if conns, err := connections.List(ctx, true); err != nil {
		log.Warn("加载平台连接失败", zap.Error(err))
	} else {
		authorizer.Session().Init(conns)
	}
	store := persistence.NewTieredStore(gormStore, persistence.NewRedisSnapshotStore(rdb, cfg.Redis.SnapshotTTL), log)
	publisher := publish.NewDispatcher(registry, connections, store, log,
		publish.WithLogStore(publishLogs),
		publish.WithPlaceholderSource(visuals),
		publish.WithAuthorizer(authorizer))

	// 7. 队列、事件推送与会话服务
	redisOpt, err := infra.AsynqConnOpt(&cfg.Redis)
	if err != nil {
		return err
	}
	queueClient := queue.NewClient(redisOpt, log)
	defer queueClient.Close()

	hub := notification.NewEventHub(
		notification.WithOfflineStore(notification.NewRedisOfflineStore(rdb, 100, time.Hour)),
		notification.WithHubLogger(log))
	defer hub.Close()

	sessions := studio.NewService(store, generator, visuals, publisher, log,
		studio.WithEventSink(hub),
		studio.WithScheduler(queueClient),
		studio.WithAutosaveDebounce(cfg.Workflow.AutosaveDebounce))

	var workerServer *worker.Server
	if cfg.Worker.Enabled {
		workerServer = worker.NewServer(redisOpt, cfg.Worker, sessions, log)
		if err := workerServer.Start(); err != nil {
			return fmt.Errorf("Worker 服务器启动失败: %w", err)
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		go metrics.NewSystemCollector(sqlDB).Run(ctx)
	}

	// 8. HTTP 服务器
	gin.SetMode(cfg.Server.Mode)
	var verifier *auth.Verifier
	if !cfg.Auth.Disabled {
		if cfg.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret 未配置；本地开发可设置 auth.disabled=true")
		}
		verifier = auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, rdb)
	}
	router := api.NewRouter(api.Dependencies{
		DB:          db,
		Redis:       rdb,
		Sessions:    sessions,
		Recent:      gormStore,
		Posts:       publisher,
		PublishLogs: publishLogs,
		Templates:   templates,
		Library:     visuals,
		Queues:      queueClient,
		Hub:         hub,
		Verifier:    verifier,
		RateLimit: middleware.RateLimiterConfig{
			RequestsPerSecond: cfg.Server.RateLimitRPS,
			BurstSize:         cfg.Server.RateLimitBurst,
			IdleTTL:           10 * time.Minute,
		},
		MediaDir:     cfg.Media.Dir,
		MediaBaseURL: cfg.Media.BaseURL,
		Logger:       log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 9. 优雅关闭
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP 服务器启动失败: %w", err)
		}
	}
	log.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服务器关闭异常", zap.Error(err))
	}
	if workerServer != nil {
		workerServer.Shutdown()
	}
	// 写入所有未保存的编辑
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		log.Error("会话保存失败", zap.Error(err))
	}
	return nil
}

// buildRegistry 为配置了接口地址的平台注册适配器
func buildRegistry(cfg config.PublishConfig) (*platform.Registry, error) {
	registry, err := platform.NewRegistry()
	if err != nil {
		return nil, err
	}
	for name, pc := range cfg.Platforms {
		id, ok := catalog.ParsePlatform(name)
		if !ok {
			return nil, &platform.UnsupportedPlatformError{Platform: name}
		}
		profile, ok := platform.DefaultProfiles[id]
		if !ok {
			return nil, &platform.UnsupportedPlatformError{Platform: name}
		}
		adapter := platform.NewHTTPAdapter(profile, platform.HTTPConfig{
			BaseURL:      pc.BaseURL,
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			TokenURL:     pc.TokenURL,
			Timeout:      time.Duration(pc.Timeout) * time.Second,
			Retries:      pc.Retries,
		})
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// seedTemplates 从目录导入内置模板
func seedTemplates(ctx context.Context, svc *template.TemplateService, dir string, log *zap.Logger) error {
	if dir == "" {
		return nil
	}
	list, err := template.LoadDirectory(dir)
	if err != nil {
		return fmt.Errorf("加载模板目录失败: %w", err)
	}
	if err := svc.Seed(ctx, list); err != nil {
		return err
	}
	log.Info("内置模板已导入", zap.Int("count", len(list)), zap.String("dir", dir))
	return nil
}

// loadEnvFile 依次尝试加载当前目录及上级目录的 .env 文件
func loadEnvFile() {
	if path := resolveEnvPath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		} else {
			fmt.Printf("已加载环境变量文件: %s\n", path)
		}
	} else {
		fmt.Println("未找到 .env 文件，将仅使用系统环境变量和 config/* 配置")
	}
}

// resolveEnvPath 尝试从当前工作目录、可执行文件目录向上查找根目录 .env
func resolveEnvPath() string {
	candidates := collectEnvCandidates()
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func collectEnvCandidates() []string {
	seen := make(map[string]struct{})
	var candidates []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		candidates = append(candidates, path)
	}

	traverse := func(start string) {
		dir := filepath.Clean(start)
		for i := 0; i < 8; i++ {
			if dir == "" || dir == string(filepath.Separator) || dir == "." {
				break
			}
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if wd, err := os.Getwd(); err == nil {
		traverse(wd)
	}
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		traverse(exeDir)
	}

	return candidates
}
