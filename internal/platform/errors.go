package platform

import (
	"errors"
	"fmt"

	"contentstudio/internal/catalog"
)

var (
	// ErrNoRefreshToken 连接没有可用的刷新凭据
	ErrNoRefreshToken = errors.New("缺少刷新令牌")
	// ErrConnectionNotFound 没有可用的平台连接
	ErrConnectionNotFound = errors.New("平台连接不存在")
)

// UnsupportedPlatformError 平台没有注册适配器
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("不支持的平台: %s", e.Platform)
}

// TokenRefreshError 令牌刷新失败
type TokenRefreshError struct {
	Platform     catalog.PlatformID
	ConnectionID string
	Err          error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("刷新 %s 令牌失败（连接 %s）: %v", e.Platform, e.ConnectionID, e.Err)
}

func (e *TokenRefreshError) Unwrap() error {
	return e.Err
}

// CapabilityError 平台不支持该操作
type CapabilityError struct {
	Platform   catalog.PlatformID
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("平台 %s 不支持 %s", e.Platform, e.Capability)
}
