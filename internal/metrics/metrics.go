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
			Name: "contentstudio_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentstudio_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 文案生成指标
var (
	// GenerationCallsTotal 文案生成调用次数
	GenerationCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_generation_calls_total",
			Help: "文案生成调用次数",
		},
		[]string{"format", "mode", "status"}, // mode: full, regenerate
	)

	// GenerationDuration 文案生成耗时（秒）
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentstudio_generation_duration_seconds",
			Help:    "文案生成耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"format", "mode"},
	)

	// GenerationTokens 文案生成 Token 消耗
	GenerationTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_generation_tokens_total",
			Help: "文案生成 Token 消耗",
		},
		[]string{"type"}, // prompt, completion
	)

	// ImageGenerationsTotal 图片生成次数
	ImageGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_image_generations_total",
			Help: "图片生成次数",
		},
		[]string{"format", "status"},
	)
)

// 发布指标
var (
	// PublishAttemptsTotal 发布尝试次数
	PublishAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_publish_attempts_total",
			Help: "按平台统计的发布尝试次数",
		},
		[]string{"platform", "status"}, // succeeded, failed, skipped
	)

	// PublishDuration 单次平台发布耗时（秒）
	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentstudio_publish_duration_seconds",
			Help:    "单次平台发布耗时分布",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"platform"},
	)
)

// 持久化指标
var (
	// AutosaveWritesTotal 自动保存写入次数
	AutosaveWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_autosave_writes_total",
			Help: "自动保存写入次数",
		},
		[]string{"status"},
	)

	// ActiveSessions 当前打开的编辑会话数
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentstudio_active_sessions",
			Help: "当前打开的编辑会话数",
		},
	)

	// WebSocketConnections 事件推送连接数
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentstudio_websocket_connections",
			Help: "事件推送 WebSocket 连接数",
		},
	)

	// EventsDeliveredTotal 工作流事件推送次数
	EventsDeliveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_events_delivered_total",
			Help: "工作流事件推送次数",
		},
		[]string{"type", "status"}, // sent, buffered, dropped
	)
)

// 后台任务指标
var (
	// WorkerTasksTotal 后台任务处理次数
	WorkerTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_worker_tasks_total",
			Help: "后台任务处理次数",
		},
		[]string{"task_type", "status"},
	)
)

// 缓存指标
var (
	// CacheHitsTotal 缓存命中数
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_cache_hits_total",
			Help: "缓存命中总数",
		},
		[]string{"cache"},
	)

	// CacheMissesTotal 缓存未命中数
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_cache_misses_total",
			Help: "缓存未命中总数",
		},
		[]string{"cache"},
	)

	// CacheEvictionsTotal 缓存淘汰数
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentstudio_cache_evictions_total",
			Help: "缓存淘汰总数",
		},
		[]string{"cache"},
	)
)

// 系统指标
var (
	// DBConnections 数据库连接数
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contentstudio_db_connections",
			Help: "数据库连接数",
		},
		[]string{"state"}, // open, in_use, idle
	)

	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contentstudio_build_info",
			Help: "构建信息",
		},
		[]string{"version", "go_version", "commit"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion, commit string) {
	BuildInfo.WithLabelValues(version, goVersion, commit).Set(1)
}
