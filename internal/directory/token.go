package directory

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 目录服务以 time 声明校验请求方
const claimTime = "time"

// TokenSigner 生成 X-App-Token
type TokenSigner struct {
	key    []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// NewTokenSigner 创建签名器
// secret 优先按 base64 解码，失败则按原始字节使用；HS 算法随密钥长度选择
func NewTokenSigner(secret string) *TokenSigner {
	if secret == "" {
		return nil
	}
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(key) == 0 {
		key = []byte(secret)
	}
	return &TokenSigner{key: key, method: methodForKey(key), now: time.Now}
}

func methodForKey(key []byte) jwt.SigningMethod {
	switch {
	case len(key) >= 64:
		return jwt.SigningMethodHS512
	case len(key) >= 48:
		return jwt.SigningMethodHS384
	default:
		return jwt.SigningMethodHS256
	}
}

// Sign 生成带当前毫秒时间戳的 token
func (s *TokenSigner) Sign() (string, error) {
	tok := jwt.NewWithClaims(s.method, jwt.MapClaims{
		claimTime: s.now().UnixMilli(),
	})
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app token: %w", err)
	}
	return signed, nil
}

// Verify 校验 token 并返回签发时间（毫秒）
func (s *TokenSigner) Verify(token string) (int64, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid app token: %w", err)
	}
	v, ok := claims[claimTime].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid app token: missing %s claim", claimTime)
	}
	return int64(v), nil
}
