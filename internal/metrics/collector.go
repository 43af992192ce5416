package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SystemCollector 系统指标收集器
type SystemCollector struct {
	db       *sql.DB
	interval time.Duration
}

// NewSystemCollector 创建系统指标收集器，db 可为 nil
func NewSystemCollector(db *sql.DB) *SystemCollector {
	return &SystemCollector{
		db:       db,
		interval: 15 * time.Second,
	}
}

// Run 定期收集直到 ctx 结束
func (c *SystemCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collectOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collectOnce()
		}
	}
}

// collectOnce 收集一次系统指标
func (c *SystemCollector) collectOnce() {
	if c.db != nil {
		stats := c.db.Stats()
		DBConnections.WithLabelValues("open").Set(float64(stats.OpenConnections))
		DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
		DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goMemoryUsage.Set(float64(m.Alloc))
	goGoroutines.Set(float64(runtime.NumGoroutine()))
}

// Go 运行时指标
var (
	goMemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentstudio_go_memory_alloc_bytes",
			Help: "当前堆内存使用量",
		},
	)

	goGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentstudio_go_goroutines",
			Help: "当前 Goroutine 数量",
		},
	)
)

// RecordGeneration 记录一次文案生成
func RecordGeneration(format, mode string, fn func() (int, int, error)) error {
	start := time.Now()

	promptTokens, completionTokens, err := fn()

	GenerationDuration.WithLabelValues(format, mode).Observe(time.Since(start).Seconds())
	if promptTokens > 0 {
		GenerationTokens.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		GenerationTokens.WithLabelValues("completion").Add(float64(completionTokens))
	}

	status := "success"
	if err != nil {
		status = "failed"
	}
	GenerationCallsTotal.WithLabelValues(format, mode, status).Inc()

	return err
}

// RecordPublish 记录一次平台发布
func RecordPublish(platform string, fn func() error) error {
	start := time.Now()

	err := fn()

	PublishDuration.WithLabelValues(platform).Observe(time.Since(start).Seconds())
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	PublishAttemptsTotal.WithLabelValues(platform, status).Inc()

	return err
}
