package persistence

import (
	"errors"
	"fmt"
)

// ErrRecordNotFound 记录不存在
var ErrRecordNotFound = errors.New("想法记录不存在")

// PersistenceError 自动保存失败；只记录日志，不阻塞工作流
type PersistenceError struct {
	IdeaID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("保存想法 %s 失败: %v", e.IdeaID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
