package workflow

import (
	"time"

	"contentstudio/internal/catalog"
)

// EventType 推送给前端的事件类型
type EventType string

const (
	EventStepChanged      EventType = "step_changed"
	EventFormatGenerated  EventType = "format_generated"
	EventGenerationFailed EventType = "generation_failed"
	EventVisualsReady     EventType = "visuals_ready"
	EventPublishCompleted EventType = "publish_completed"
)

// Event 工作流事件
type Event struct {
	Type      EventType        `json:"type"`
	IdeaID    string           `json:"ideaId"`
	Format    catalog.FormatID `json:"format,omitempty"`
	Step      Step             `json:"step,omitempty"`
	Message   string           `json:"message,omitempty"`
	Data      any              `json:"data,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventSink 事件接收方
type EventSink interface {
	Publish(event Event)
}

// NopSink 丢弃全部事件
type NopSink struct{}

func (NopSink) Publish(Event) {}
