package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// encryptedPrefix 密文前缀，没有前缀的值按明文处理（兼容加密前写入的数据）
const encryptedPrefix = "enc:v1:"

// ErrEmptySeed 未配置密钥种子
var ErrEmptySeed = errors.New("密钥种子不能为空")

// SecretCipher 使用 AES-GCM 加解密敏感字符串，密钥由种子经 SHA-256 派生
type SecretCipher struct {
	gcm cipher.AEAD
}

// NewSecretCipher 创建加解密器
func NewSecretCipher(seed string) (*SecretCipher, error) {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return nil, ErrEmptySeed
	}
	sum := sha256.Sum256([]byte(seed))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("初始化密钥失败: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("初始化 GCM 失败: %w", err)
	}
	return &SecretCipher{gcm: gcm}, nil
}

// Encrypt 加密并编码为带前缀的 base64 字符串；空串原样返回
func (c *SecretCipher) Encrypt(plain string) (string, error) {
	if plain == "" || strings.HasPrefix(plain, encryptedPrefix) {
		return plain, nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("生成随机数失败: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plain), nil)
	return encryptedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Decrypt 对 Encrypt 生成的密文进行解密
func (c *SecretCipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encryptedPrefix) {
		return value, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("密文编码无效: %w", err)
	}
	nonceSize := c.gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("密文长度无效")
	}
	plain, err := c.gcm.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("解密失败: %w", err)
	}
	return string(plain), nil
}
