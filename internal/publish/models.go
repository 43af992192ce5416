package publish

import (
	"time"

	"contentstudio/internal/catalog"
	"contentstudio/internal/workflow"
)

// Flags 每个 (格式, 平台) 的发布开关，缺省为关闭
type Flags map[catalog.FormatID]map[catalog.PlatformID]bool

// Enabled 判断组合是否启用
func (f Flags) Enabled(format catalog.FormatID, platform catalog.PlatformID) bool {
	return f[format][platform]
}

// Outcome 单个组合的发布结果
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Request 发布请求
type Request struct {
	Flags       Flags      `json:"flags"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// Result 单个 (格式, 平台) 的结果
type Result struct {
	Format   catalog.FormatID   `json:"format"`
	Platform catalog.PlatformID `json:"platform"`
	Outcome  Outcome            `json:"outcome"`
	PostID   string             `json:"postId,omitempty"`
	URL      string             `json:"url,omitempty"`
	PostedAt *time.Time         `json:"postedAt,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Err      error              `json:"-"`
}

// Summary 一次发布的汇总
type Summary struct {
	IdeaID      string          `json:"ideaId"`
	Status      workflow.Status `json:"status"`
	ScheduledAt *time.Time      `json:"scheduledAt,omitempty"`
	Results     []Result        `json:"results"`
	Succeeded   int             `json:"succeeded"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeFailed:
		s.Failed++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// LogEntry 发布日志
type LogEntry struct {
	ID        string             `json:"id" gorm:"primaryKey;size:64"`
	IdeaID    string             `json:"ideaId" gorm:"size:64;not null;index"`
	Format    catalog.FormatID   `json:"format" gorm:"size:32;not null"`
	Platform  catalog.PlatformID `json:"platform" gorm:"size:32;not null"`
	Outcome   Outcome            `json:"outcome" gorm:"size:16;not null;index"`
	PostID    string             `json:"postId,omitempty" gorm:"size:128"`
	URL       string             `json:"url,omitempty" gorm:"size:512"`
	Reason    string             `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt time.Time          `json:"createdAt"`
}

// TableName 表名
func (LogEntry) TableName() string {
	return "publish_logs"
}
