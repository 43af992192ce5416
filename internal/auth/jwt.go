package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

var ErrTokenRevoked = errors.New("令牌已失效")

// Verifier 校验外部签发的访问令牌（HS256）
type Verifier struct {
	secretKey   []byte
	issuer      string
	redisClient redis.UniversalClient // 可选，用于吊销名单
}

// NewVerifier 创建令牌校验器；issuer 为空时不校验签发方
func NewVerifier(secretKey, issuer string, redisClient redis.UniversalClient) *Verifier {
	return &Verifier{
		secretKey:   []byte(secretKey),
		issuer:      issuer,
		redisClient: redisClient,
	}
}

// Claims 访问令牌声明
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Verify 验证并解析令牌
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("解析令牌失败: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("无效的令牌")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if v.revoked(ctx, claims.ID) {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Issue 签发令牌，供本地调试与测试使用
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secretKey)
	if err != nil {
		return "", fmt.Errorf("签名令牌失败: %w", err)
	}
	return signed, nil
}

// Revoke 按 jti 吊销令牌直到其过期
func (v *Verifier) Revoke(ctx context.Context, jti string, until time.Time) error {
	if v.redisClient == nil || jti == "" {
		return nil
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := v.redisClient.Set(ctx, revokedKey(jti), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("加入吊销名单失败: %w", err)
	}
	return nil
}

// revoked Redis 故障时放行
func (v *Verifier) revoked(ctx context.Context, jti string) bool {
	if v.redisClient == nil || jti == "" {
		return false
	}
	n, err := v.redisClient.Exists(ctx, revokedKey(jti)).Result()
	return err == nil && n > 0
}

func revokedKey(jti string) string {
	return "auth:revoked:" + jti
}

// ExtractTokenFromBearer 从 Bearer 令牌中提取纯令牌字符串
func ExtractTokenFromBearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
