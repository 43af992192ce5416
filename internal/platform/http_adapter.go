package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/pkg/httputil"

	"golang.org/x/oauth2"
)

// HTTPConfig 平台 API 与 OAuth 配置
type HTTPConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Timeout      time.Duration
	Retries      int
}

// HTTPAdapter 通过平台 REST API 发布的通用适配器，差异由 Profile 描述
type HTTPAdapter struct {
	profile Profile
	baseURL string
	client  *httputil.Client
	oauth   *oauth2.Config
	leeway  time.Duration
	now     func() time.Time
}

// NewHTTPAdapter 创建适配器；TokenURL 为空时不支持刷新令牌
func NewHTTPAdapter(profile Profile, cfg HTTPConfig) *HTTPAdapter {
	opts := []httputil.ClientOption{httputil.WithRetries(cfg.Retries)}
	if cfg.Timeout > 0 {
		opts = append(opts, httputil.WithTimeout(cfg.Timeout))
	}
	a := &HTTPAdapter{
		profile: profile,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httputil.NewClient(opts...),
		leeway:  time.Minute,
		now:     time.Now,
	}
	if cfg.TokenURL != "" {
		a.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
	return a
}

// Platform 平台标识
func (a *HTTPAdapter) Platform() catalog.PlatformID {
	return a.profile.Platform
}

// FormatContent 拼接正文与 # 话题标签，并按平台上限截断
func (a *HTTPAdapter) FormatContent(p *Post) *FormattedContent {
	tags := content.NormalizeHashtags(p.Hashtags)
	if a.profile.MaxHashtags > 0 && len(tags) > a.profile.MaxHashtags {
		tags = tags[:a.profile.MaxHashtags]
	}
	text := strings.TrimSpace(p.Text)
	if rendered := content.RenderHashtags(tags); rendered != "" {
		text = strings.TrimSpace(text + "\n\n" + rendered)
	}
	if a.profile.MaxTextLength > 0 && !a.threaded(p) {
		text = truncateRunes(text, a.profile.MaxTextLength)
	}

	media := p.Media
	if a.profile.MaxMedia > 0 && len(media) > a.profile.MaxMedia {
		media = media[:a.profile.MaxMedia]
	}
	return &FormattedContent{Text: text, Media: append([]string(nil), media...)}
}

// ValidateContent 发布前校验
func (a *HTTPAdapter) ValidateContent(p *Post) ValidationResult {
	res := ValidationResult{}
	if strings.TrimSpace(p.Text) == "" && len(p.Media) == 0 {
		res.Errors = append(res.Errors, "内容为空")
	}
	if a.profile.RequiresMedia && len(p.Media) == 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("%s 需要至少一个媒体文件", a.profile.Platform))
	}
	if a.profile.MaxMedia > 0 && len(p.Media) > a.profile.MaxMedia {
		res.Warnings = append(res.Warnings, fmt.Sprintf("媒体数量 %d 超过上限 %d，多余部分不发布", len(p.Media), a.profile.MaxMedia))
	}
	if a.profile.MaxHashtags > 0 && len(p.Hashtags) > a.profile.MaxHashtags {
		res.Warnings = append(res.Warnings, fmt.Sprintf("话题标签超过 %d 个，多余部分不发布", a.profile.MaxHashtags))
	}
	if a.threaded(p) {
		for i, part := range threadParts(p) {
			if utf8.RuneCountInString(part) > a.profile.MaxTextLength {
				res.Errors = append(res.Errors, fmt.Sprintf("第 %d 条超过 %d 字符", i+1, a.profile.MaxTextLength))
			}
		}
	} else if a.profile.MaxTextLength > 0 && utf8.RuneCountInString(p.Text) > a.profile.MaxTextLength {
		res.Warnings = append(res.Warnings, fmt.Sprintf("正文超过 %d 字符，将被截断", a.profile.MaxTextLength))
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// IsTokenExpired 访问令牌为空或即将过期
func (a *HTTPAdapter) IsTokenExpired(conn *Connection) bool {
	if conn.AccessToken == "" {
		return true
	}
	if conn.ExpiresAt == nil {
		return false
	}
	return !a.now().Add(a.leeway).Before(*conn.ExpiresAt)
}

// RefreshToken 用刷新令牌换取新的访问令牌
func (a *HTTPAdapter) RefreshToken(ctx context.Context, conn *Connection) (*Tokens, error) {
	if conn.RefreshToken == "" {
		return nil, &TokenRefreshError{Platform: a.profile.Platform, ConnectionID: conn.ID, Err: ErrNoRefreshToken}
	}
	if a.oauth == nil {
		return nil, &TokenRefreshError{Platform: a.profile.Platform, ConnectionID: conn.ID, Err: errors.New("未配置令牌端点")}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client.HTTPClient())
	expired := &oauth2.Token{RefreshToken: conn.RefreshToken, Expiry: a.now().Add(-time.Hour)}
	tok, err := a.oauth.TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, &TokenRefreshError{Platform: a.profile.Platform, ConnectionID: conn.ID, Err: err}
	}

	out := &Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		out.ExpiresAt = &exp
	}
	return out, nil
}

type postRequest struct {
	AccountID string   `json:"account_id,omitempty"`
	Text      string   `json:"text"`
	Parts     []string `json:"parts,omitempty"`
	Media     []string `json:"media,omitempty"`
}

type postResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Post 发布内容
func (a *HTTPAdapter) Post(ctx context.Context, conn *Connection, p *Post) (*PostResult, error) {
	formatted := a.FormatContent(p)
	req := postRequest{AccountID: conn.AccountID, Text: formatted.Text, Media: formatted.Media}
	if a.threaded(p) {
		req.Parts = threadParts(p)
		if rendered := content.RenderHashtags(p.Hashtags); rendered != "" && len(req.Parts) > 0 {
			last := len(req.Parts) - 1
			req.Parts[last] = truncateRunes(req.Parts[last]+"\n\n"+rendered, a.profile.MaxTextLength)
		}
	}

	var resp postResponse
	if err := a.client.PostJSON(ctx, a.baseURL+"/posts", conn.AccessToken, req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%s 未返回帖子 ID", a.profile.Platform)
	}
	return &PostResult{PostID: resp.ID, URL: resp.URL, PostedAt: a.now()}, nil
}

// GetPostStatus 查询帖子状态
func (a *HTTPAdapter) GetPostStatus(ctx context.Context, conn *Connection, postID string) (*PostStatus, error) {
	var resp struct {
		Status  string           `json:"status"`
		Metrics map[string]int64 `json:"metrics"`
	}
	if err := a.client.GetJSON(ctx, a.postURL(postID), conn.AccessToken, &resp); err != nil {
		return nil, err
	}
	return &PostStatus{PostID: postID, Status: resp.Status, Metrics: resp.Metrics}, nil
}

// DeletePost 删除帖子
func (a *HTTPAdapter) DeletePost(ctx context.Context, conn *Connection, postID string) (bool, error) {
	if !a.profile.SupportsDelete {
		return false, &CapabilityError{Platform: a.profile.Platform, Capability: "delete"}
	}
	if err := a.client.Delete(ctx, a.postURL(postID), conn.AccessToken); err != nil {
		return false, err
	}
	return true, nil
}

func (a *HTTPAdapter) postURL(postID string) string {
	return a.baseURL + "/posts/" + url.PathEscape(postID)
}

func (a *HTTPAdapter) threaded(p *Post) bool {
	return a.profile.SupportsThread && p.Format == catalog.FormatThread && a.profile.MaxTextLength > 0
}

// threadParts 优先使用逐条内容，否则按空行切分正文
func threadParts(p *Post) []string {
	if len(p.Parts) > 0 {
		return append([]string(nil), p.Parts...)
	}
	var parts []string
	for _, s := range strings.Split(p.Text, "\n\n") {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
