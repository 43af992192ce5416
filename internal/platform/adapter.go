package platform

import (
	"context"

	"contentstudio/internal/catalog"
)

// Adapter 单个平台的发布能力
type Adapter interface {
	Platform() catalog.PlatformID
	FormatContent(p *Post) *FormattedContent
	ValidateContent(p *Post) ValidationResult
	IsTokenExpired(conn *Connection) bool
	RefreshToken(ctx context.Context, conn *Connection) (*Tokens, error)
	Post(ctx context.Context, conn *Connection, p *Post) (*PostResult, error)
	GetPostStatus(ctx context.Context, conn *Connection, postID string) (*PostStatus, error)
	// DeletePost 平台不支持删除时返回 CapabilityError
	DeletePost(ctx context.Context, conn *Connection, postID string) (bool, error)
}

// Registry 平台到适配器的映射
type Registry struct {
	adapters map[catalog.PlatformID]Adapter
}

// NewRegistry 创建注册表
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[catalog.PlatformID]Adapter)}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册适配器，平台必须属于已知枚举
func (r *Registry) Register(a Adapter) error {
	id, ok := catalog.ParsePlatform(string(a.Platform()))
	if !ok {
		return &UnsupportedPlatformError{Platform: string(a.Platform())}
	}
	r.adapters[id] = a
	return nil
}

// Get 获取适配器
func (r *Registry) Get(id catalog.PlatformID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, &UnsupportedPlatformError{Platform: string(id)}
	}
	return a, nil
}

// Lookup 按名称（不区分大小写）获取适配器
func (r *Registry) Lookup(name string) (Adapter, error) {
	id, ok := catalog.ParsePlatform(name)
	if !ok {
		return nil, &UnsupportedPlatformError{Platform: name}
	}
	return r.Get(id)
}

// Platforms 已注册的平台，按目录顺序
func (r *Registry) Platforms() []catalog.PlatformID {
	var out []catalog.PlatformID
	for _, p := range catalog.Platforms {
		if _, ok := r.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
