package generation

import (
	"errors"
	"fmt"

	"contentstudio/internal/catalog"
)

// ErrNoFormats 没有选择任何格式
var ErrNoFormats = errors.New("未选择任何格式")

// GenerationError 单个格式的生成失败，不影响同批次其他格式
type GenerationError struct {
	Format catalog.FormatID
	Target string // 空表示整个格式
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("生成 %s [%s] 失败: %v", e.Format, e.Target, e.Err)
	}
	return fmt.Sprintf("生成 %s 失败: %v", e.Format, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
