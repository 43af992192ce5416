package platform

import (
	"context"
	"errors"
	"fmt"

	"contentstudio/internal/catalog"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionStore 平台连接存储
type ConnectionStore interface {
	// Find 不存在时返回 ErrConnectionNotFound
	Find(ctx context.Context, platform catalog.PlatformID, active bool) (*Connection, error)
	UpdateTokens(ctx context.Context, id string, t *Tokens) error
}

// TokenCipher 令牌落库加密
type TokenCipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(value string) (string, error)
}

// GormConnectionStore 基于 GORM 的连接存储
type GormConnectionStore struct {
	db     *gorm.DB
	cipher TokenCipher
}

// StoreOption 存储选项
type StoreOption func(*GormConnectionStore)

// WithTokenCipher 令牌加密存储
func WithTokenCipher(c TokenCipher) StoreOption {
	return func(s *GormConnectionStore) { s.cipher = c }
}

// NewGormConnectionStore 创建连接存储
func NewGormConnectionStore(db *gorm.DB, opts ...StoreOption) *GormConnectionStore {
	s := &GormConnectionStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormConnectionStore) seal(v string) (string, error) {
	if s.cipher == nil {
		return v, nil
	}
	return s.cipher.Encrypt(v)
}

func (s *GormConnectionStore) open(conn *Connection) error {
	if s.cipher == nil {
		return nil
	}
	var err error
	if conn.AccessToken, err = s.cipher.Decrypt(conn.AccessToken); err != nil {
		return fmt.Errorf("解密连接 %s 的令牌失败: %w", conn.ID, err)
	}
	if conn.RefreshToken, err = s.cipher.Decrypt(conn.RefreshToken); err != nil {
		return fmt.Errorf("解密连接 %s 的令牌失败: %w", conn.ID, err)
	}
	return nil
}

// AutoMigrate 创建表结构
func (s *GormConnectionStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Connection{})
}

// Find 按平台与启用状态查询，取最近更新的一条
func (s *GormConnectionStore) Find(ctx context.Context, platform catalog.PlatformID, active bool) (*Connection, error) {
	var conn Connection
	err := s.db.WithContext(ctx).
		Where("platform = ? AND is_active = ?", platform, active).
		Order("updated_at DESC").
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, platform)
		}
		return nil, fmt.Errorf("查询平台连接失败: %w", err)
	}
	if err := s.open(&conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// UpdateTokens 保存刷新后的令牌
func (s *GormConnectionStore) UpdateTokens(ctx context.Context, id string, t *Tokens) error {
	access, err := s.seal(t.AccessToken)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"access_token": access,
		"expires_at":   t.ExpiresAt,
	}
	if t.RefreshToken != "" {
		refresh, err := s.seal(t.RefreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token"] = refresh
	}
	res := s.db.WithContext(ctx).Model(&Connection{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新平台令牌失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	return nil
}

// Upsert 创建或更新连接
func (s *GormConnectionStore) Upsert(ctx context.Context, conn *Connection) error {
	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}
	if _, ok := catalog.ParsePlatform(string(conn.Platform)); !ok {
		return &UnsupportedPlatformError{Platform: string(conn.Platform)}
	}
	row := *conn
	var err error
	if row.AccessToken, err = s.seal(conn.AccessToken); err != nil {
		return err
	}
	if row.RefreshToken, err = s.seal(conn.RefreshToken); err != nil {
		return err
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("保存平台连接失败: %w", err)
	}
	return nil
}

// List 列出连接
func (s *GormConnectionStore) List(ctx context.Context, activeOnly bool) ([]*Connection, error) {
	q := s.db.WithContext(ctx).Order("platform, updated_at DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var list []*Connection
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("查询平台连接失败: %w", err)
	}
	for _, conn := range list {
		if err := s.open(conn); err != nil {
			return nil, err
		}
	}
	return list, nil
}
