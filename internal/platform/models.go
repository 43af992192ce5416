package platform

import (
	"time"

	"contentstudio/internal/catalog"

	"gorm.io/datatypes"
)

// Connection 平台账号连接，发布时只读
type Connection struct {
	ID           string             `json:"id" gorm:"primaryKey;size:64"`
	Platform     catalog.PlatformID `json:"platform" gorm:"size:32;not null;index:idx_platform_active"`
	AccountID    string             `json:"accountId" gorm:"size:128"`
	AccountName  string             `json:"accountName" gorm:"size:255"`
	AccessToken  string             `json:"-" gorm:"type:text"`
	RefreshToken string             `json:"-" gorm:"type:text"`
	ExpiresAt    *time.Time         `json:"expiresAt,omitempty"`
	IsActive     bool               `json:"isActive" gorm:"not null;index:idx_platform_active"`
	Metadata     datatypes.JSON     `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// TableName 表名
func (Connection) TableName() string {
	return "platform_connections"
}

// Tokens 刷新得到的新令牌
type Tokens struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// withTokens 返回使用新令牌的连接副本
func (c *Connection) withTokens(t *Tokens) *Connection {
	out := *c
	out.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		out.RefreshToken = t.RefreshToken
	}
	out.ExpiresAt = t.ExpiresAt
	return &out
}

// Post 待发布内容；话题标签不带 #
type Post struct {
	Format   catalog.FormatID `json:"format"`
	Text     string           `json:"text"`
	Parts    []string         `json:"parts,omitempty"` // 推文串逐条内容
	Hashtags []string         `json:"hashtags"`
	Media    []string         `json:"media"`
}

// FormattedContent 按平台规则排版后的内容
type FormattedContent struct {
	Text  string   `json:"text"`
	Media []string `json:"media,omitempty"`
}

// ValidationResult 内容校验结果
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// PostResult 发布成功后平台返回的信息
type PostResult struct {
	PostID   string    `json:"postId"`
	URL      string    `json:"url,omitempty"`
	PostedAt time.Time `json:"postedAt"`
}

// PostStatus 帖子状态与互动数据
type PostStatus struct {
	PostID  string           `json:"postId"`
	Status  string           `json:"status"`
	Metrics map[string]int64 `json:"metrics,omitempty"`
}
