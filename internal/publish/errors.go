package publish

import (
	"errors"
	"fmt"
	"strings"

	"contentstudio/internal/catalog"
)

// ErrEmptyPostResult 适配器没有返回发布结果
var ErrEmptyPostResult = errors.New("平台未返回发布结果")

// ValidationError 内容不满足格式或平台约束，只阻止该组合的发布
type ValidationError struct {
	Format   catalog.FormatID
	Platform catalog.PlatformID
	Problems []string
}

func (e *ValidationError) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("格式 %s 校验失败: %s", e.Format, strings.Join(e.Problems, "; "))
	}
	return fmt.Sprintf("格式 %s 在 %s 上校验失败: %s", e.Format, e.Platform, strings.Join(e.Problems, "; "))
}

// PublishError 平台发布调用失败
type PublishError struct {
	Format   catalog.FormatID
	Platform catalog.PlatformID
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("发布 %s 到 %s 失败: %v", e.Format, e.Platform, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
