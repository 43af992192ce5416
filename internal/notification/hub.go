package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"contentstudio/internal/metrics"
	"contentstudio/internal/workflow"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// EventHub 按想法 ID 推送工作流事件，实现 workflow.EventSink
// 没有在线连接时事件进入离线缓冲，连接建立后按顺序重放
type EventHub struct {
	mu                sync.RWMutex
	subs              map[string]map[*websocket.Conn]*subscriber
	offline           OfflineStore
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*EventHub)

// WithOfflineStore 指定离线存储，nil 表示不缓冲
func WithOfflineStore(store OfflineStore) HubOption {
	return func(h *EventHub) { h.offline = store }
}

// WithKeepAliveInterval 设置心跳间隔
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *EventHub) { h.keepAliveInterval = interval }
}

// WithHubLogger 设置日志器
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *EventHub) { h.logger = l }
}

// NewEventHub 创建 Hub
func NewEventHub(opts ...HubOption) *EventHub {
	hub := &EventHub{
		subs:              make(map[string]map[*websocket.Conn]*subscriber),
		offline:           NewMemoryOfflineStore(50),
		keepAliveInterval: 30 * time.Second,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Serve 注册连接并阻塞读取直到连接关闭
func (h *EventHub) Serve(ctx context.Context, ideaID string, conn *websocket.Conn) {
	sub := h.register(ctx, ideaID, conn)
	defer func() {
		h.unregister(ideaID, conn)
		_ = conn.Close()
	}()

	// 客户端只发送控制帧，读循环负责处理 pong 与关闭
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-sub.done:
			return
		default:
		}
	}
}

func (h *EventHub) register(ctx context.Context, ideaID string, conn *websocket.Conn) *subscriber {
	sub := &subscriber{conn: conn, done: make(chan struct{})}

	// 先重放再加入订阅，保证离线事件在实时事件之前
	h.replayOffline(ctx, ideaID, sub)

	h.mu.Lock()
	if _, ok := h.subs[ideaID]; !ok {
		h.subs[ideaID] = make(map[*websocket.Conn]*subscriber)
	}
	h.subs[ideaID][conn] = sub
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	h.logger.Debug("事件订阅", zap.String("idea_id", ideaID))
	h.startKeepAlive(ideaID, sub)
	return sub
}

func (h *EventHub) unregister(ideaID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.subs[ideaID]
	if !ok {
		return
	}
	if sub, ok := conns[conn]; ok {
		close(sub.done)
		delete(conns, conn)
		metrics.WebSocketConnections.Dec()
	}
	if len(conns) == 0 {
		delete(h.subs, ideaID)
	}
}

// Publish 推送事件给订阅该想法的全部连接
func (h *EventHub) Publish(event workflow.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("事件序列化失败", zap.String("type", string(event.Type)), zap.Error(err))
		metrics.EventsDeliveredTotal.WithLabelValues(string(event.Type), "dropped").Inc()
		return
	}

	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[event.IdeaID]))
	for _, sub := range h.subs[event.IdeaID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.buffer(event, data)
		return
	}

	delivered := false
	for _, sub := range targets {
		if err := sub.write(data); err != nil {
			h.logger.Debug("事件推送失败，断开连接", zap.String("idea_id", event.IdeaID), zap.Error(err))
			h.unregister(event.IdeaID, sub.conn)
			_ = sub.conn.Close()
			continue
		}
		delivered = true
	}
	if delivered {
		metrics.EventsDeliveredTotal.WithLabelValues(string(event.Type), "sent").Inc()
		return
	}
	h.buffer(event, data)
}

// ConnectedCount 想法当前的连接数
func (h *EventHub) ConnectedCount(ideaID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ideaID])
}

// Close 断开全部连接
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ideaID, conns := range h.subs {
		for conn, sub := range conns {
			close(sub.done)
			_ = conn.Close()
			metrics.WebSocketConnections.Dec()
		}
		delete(h.subs, ideaID)
	}
}

func (h *EventHub) buffer(event workflow.Event, data []byte) {
	if h.offline == nil {
		metrics.EventsDeliveredTotal.WithLabelValues(string(event.Type), "dropped").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := h.offline.Append(ctx, event.IdeaID, data); err != nil {
		h.logger.Warn("离线事件缓存失败", zap.String("idea_id", event.IdeaID), zap.Error(err))
		metrics.EventsDeliveredTotal.WithLabelValues(string(event.Type), "dropped").Inc()
		return
	}
	metrics.EventsDeliveredTotal.WithLabelValues(string(event.Type), "buffered").Inc()
}

func (h *EventHub) replayOffline(ctx context.Context, ideaID string, sub *subscriber) {
	if h.offline == nil {
		return
	}
	messages, err := h.offline.Drain(ctx, ideaID)
	if err != nil {
		h.logger.Warn("离线事件重放失败", zap.String("idea_id", ideaID), zap.Error(err))
		return
	}
	for _, msg := range messages {
		if err := sub.write(msg); err != nil {
			h.logger.Debug("推送离线事件失败", zap.Error(err))
			return
		}
	}
}

func (h *EventHub) startKeepAlive(ideaID string, sub *subscriber) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sub.done:
				return
			case <-ticker.C:
			}
			sub.mu.Lock()
			err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			sub.mu.Unlock()
			if err != nil {
				h.unregister(ideaID, sub.conn)
				_ = sub.conn.Close()
				return
			}
		}
	}()
}
