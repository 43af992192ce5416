package api

import (
	"strings"

	"contentstudio/api/handlers/events"
	"contentstudio/api/handlers/ideas"
	"contentstudio/api/handlers/templates"
	"contentstudio/internal/auth"
	"contentstudio/internal/metrics"
	"contentstudio/internal/middleware"
	"contentstudio/internal/notification"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies 路由依赖；可选项为 nil 时对应功能关闭
type Dependencies struct {
	DB    *gorm.DB
	Redis redis.UniversalClient

	Sessions    ideas.SessionService
	Recent      ideas.RecentIdeas
	Posts       ideas.PostManager
	PublishLogs ideas.PublishLogReader
	Templates   templates.TemplateStore
	Library     ideas.MediaLibrary
	Queues      ideas.QueueInspector
	Hub         *notification.EventHub

	// nil 表示关闭认证
	Verifier *auth.Verifier
	// 生成类接口的限流配置
	RateLimit middleware.RateLimiterConfig

	// 本地素材目录与对外路径，路径以 / 开头时由本服务提供静态访问
	MediaDir     string
	MediaBaseURL string

	Logger *zap.Logger
}

// NewRouter 注册全部路由
func NewRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(log))
	router.Use(metrics.PrometheusMiddleware())
	router.Use(CORS())

	router.GET("/healthz", HealthCheck())
	router.GET("/readyz", ReadinessCheck(deps.DB, deps.Redis))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.MediaDir != "" && strings.HasPrefix(deps.MediaBaseURL, "/") {
		router.Static(deps.MediaBaseURL, deps.MediaDir)
	}

	v1 := router.Group("/api/v1")
	if deps.Verifier != nil {
		v1.Use(auth.Middleware(deps.Verifier))
	} else {
		log.Warn("认证已关闭，API 对所有请求开放")
	}

	limiter := middleware.NewRateLimiter(deps.RateLimit)
	limited := middleware.RateLimit(limiter, func(c *gin.Context) string {
		return auth.UserID(c)
	})

	resources := ideas.NewResourceHandler(deps.Library, deps.Queues, deps.Recent)
	v1.GET("/formats", resources.ListFormats)
	v1.GET("/media", resources.ListMedia)
	v1.GET("/queues", resources.QueueStats)

	if deps.Templates != nil {
		tpl := templates.NewTemplateHandler(deps.Templates)
		v1.GET("/templates", tpl.ListTemplates)
		v1.GET("/templates/:id", tpl.GetTemplate)
		v1.PUT("/templates/:id", tpl.PutTemplate)
	}

	if deps.Sessions != nil {
		h := ideas.NewIdeaHandler(deps.Sessions, deps.Posts, deps.PublishLogs, log)

		group := v1.Group("/ideas")
		group.POST("", h.CreateIdea)
		group.GET("", resources.ListIdeas)
		group.GET("/:id", h.GetIdea)
		group.PUT("/:id", h.UpdateIdea)
		group.POST("/:id/flush", h.Flush)
		group.DELETE("/:id/session", h.CloseSession)

		group.PUT("/:id/formats", h.SelectFormats)
		group.DELETE("/:id/formats/:format", h.RemoveFormat)

		group.POST("/:id/generate", limited, h.Generate)
		group.POST("/:id/regenerate", limited, h.Regenerate)
		group.PUT("/:id/content/:format", h.EditContent)

		group.PUT("/:id/visuals/:format", h.ChooseVisualMethod)
		group.POST("/:id/visuals/:format/generate", limited, h.GenerateVisuals)
		group.POST("/:id/visuals/:format/media", h.AttachMedia)
		group.PUT("/:id/editor/:format", h.SaveEditorScene)

		group.POST("/:id/step", h.Navigate)
		group.POST("/:id/publish", h.Publish)
		group.GET("/:id/posts", h.ListPosts)

		if deps.Posts != nil {
			v1.GET("/posts/:platform/:postId", h.PostStatus)
			v1.DELETE("/posts/:platform/:postId", h.DeletePost)
		}
	}

	if deps.Hub != nil {
		var lookup events.IdeaLookup
		if deps.Sessions != nil {
			lookup = deps.Sessions
		}
		v1.GET("/ws", events.NewWebSocketHandler(deps.Hub, lookup).Connect)
	}

	return router
}
