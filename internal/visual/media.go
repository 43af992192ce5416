package visual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedMedia 不支持的文件类型
var ErrUnsupportedMedia = errors.New("不支持的媒体类型")

// LibraryItem 素材库条目
type LibraryItem struct {
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MediaStore 文件与素材库存储
type MediaStore interface {
	Upload(ctx context.Context, name string, r io.Reader) (string, error)
	List(ctx context.Context) ([]LibraryItem, error)
}

var allowedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
	".mp4": true, ".mov": true, ".webm": true,
}

// LocalMediaStore 保存到本地目录（一般为挂载卷），通过 baseURL 对外访问
type LocalMediaStore struct {
	dir     string
	baseURL string
	maxSize int64
}

// NewLocalMediaStore 创建本地素材存储
func NewLocalMediaStore(dir, baseURL string, maxSize int64) (*LocalMediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建素材目录失败: %w", err)
	}
	if maxSize <= 0 {
		maxSize = 50 << 20
	}
	return &LocalMediaStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxSize: maxSize}, nil
}

// Upload 写入文件并返回公开 URL；文件名使用随机 ID 避免覆盖
func (s *LocalMediaStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, ext)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName := uuid.NewString() + ext
	path := filepath.Join(s.dir, fileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("创建文件失败: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxSize {
		err = fmt.Errorf("文件超过大小限制 %d 字节", s.maxSize)
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("保存文件失败: %w", err)
	}
	return s.baseURL + "/" + fileName, nil
}

// List 按时间倒序列出素材库
func (s *LocalMediaStore) List(ctx context.Context) ([]LibraryItem, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("读取素材目录失败: %w", err)
	}
	items := make([]LibraryItem, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !allowedExt[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		items = append(items, LibraryItem{
			URL:         s.baseURL + "/" + e.Name(),
			Name:        e.Name(),
			ContentType: mime.TypeByExtension(filepath.Ext(e.Name())),
			Size:        info.Size(),
			CreatedAt:   info.ModTime(),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}
