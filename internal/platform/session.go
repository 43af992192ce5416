package platform

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Session 进程内的令牌缓存，按连接 ID 保存最近一次刷新得到的令牌
// 生命周期显式管理：Init 载入、Clear 清空
type Session struct {
	mu     sync.RWMutex
	tokens map[string]*Tokens
}

// NewSession 创建空会话
func NewSession() *Session {
	return &Session{tokens: make(map[string]*Tokens)}
}

// Init 用已有连接的令牌初始化，覆盖之前的内容
func (s *Session) Init(conns []*Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]*Tokens, len(conns))
	for _, c := range conns {
		if c.AccessToken == "" {
			continue
		}
		s.tokens[c.ID] = &Tokens{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken, ExpiresAt: c.ExpiresAt}
	}
}

// Token 读取缓存的令牌
func (s *Session) Token(connID string) (*Tokens, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[connID]
	return t, ok
}

// Put 保存令牌
func (s *Session) Put(connID string, t *Tokens) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[connID] = t
}

// Clear 清空全部令牌
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]*Tokens)
}

// Authorizer 发布前确保连接令牌有效
type Authorizer struct {
	session *Session
	store   ConnectionStore
	logger  *zap.Logger
}

// NewAuthorizer 创建授权器；store 可为 nil（不回写刷新结果）
func NewAuthorizer(session *Session, store ConnectionStore, logger *zap.Logger) *Authorizer {
	if session == nil {
		session = NewSession()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{session: session, store: store, logger: logger}
}

// Session 令牌会话
func (a *Authorizer) Session() *Session {
	return a.session
}

// Authorize 返回令牌有效的连接副本；令牌过期时刷新并缓存
func (a *Authorizer) Authorize(ctx context.Context, adapter Adapter, conn *Connection) (*Connection, error) {
	current := conn
	if t, ok := a.session.Token(conn.ID); ok {
		current = conn.withTokens(t)
	}
	if !adapter.IsTokenExpired(current) {
		return current, nil
	}

	tokens, err := adapter.RefreshToken(ctx, current)
	if err != nil {
		return nil, err
	}
	a.session.Put(conn.ID, tokens)
	a.logger.Info("平台令牌已刷新",
		zap.String("platform", string(conn.Platform)),
		zap.String("connection_id", conn.ID))

	if a.store != nil {
		if err := a.store.UpdateTokens(ctx, conn.ID, tokens); err != nil {
			a.logger.Warn("回写平台令牌失败", zap.String("connection_id", conn.ID), zap.Error(err))
		}
	}
	return current.withTokens(tokens), nil
}
