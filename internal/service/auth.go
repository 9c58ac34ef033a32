package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UIDClaim JWT 中保存用户 ID 的字段名
const UIDClaim = "uid"

// AuthService 签发匿名身份。房间操作只需要一个稳定的 uid，不做账号密码认证。
type AuthService struct {
	jwtSecret []byte
	jwtExpiry time.Duration
	now       func() time.Time
}

// AnonymousIdentity 匿名登录的结果
type AnonymousIdentity struct {
	UID       string    `json:"uid"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewAuthService 创建 AuthService 实例。
// jwtExpiryHours <= 0 时默认 24 小时。
func NewAuthService(jwtSecretKey string, jwtExpiryHours int) (*AuthService, error) {
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
		now:       time.Now,
	}, nil
}

// SignInAnonymously 生成新的 uid 并签发 token
func (s *AuthService) SignInAnonymously() (*AnonymousIdentity, error) {
	uid := uuid.NewString()
	now := s.now()
	expiresAt := now.Add(s.jwtExpiry)

	token, err := s.generateJWT(uid, now, expiresAt)
	if err != nil {
		logrus.WithError(err).Error("Failed to generate JWT token for anonymous sign-in")
		return nil, ErrInternalServer
	}

	logrus.WithField("user_id", uid).Info("Anonymous user signed in")
	return &AnonymousIdentity{UID: uid, Token: token, ExpiresAt: expiresAt}, nil
}

// generateJWT 为指定 uid 生成 HS256 token
func (s *AuthService) generateJWT(uid string, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		UIDClaim: uid,
		"exp":    expiresAt.Unix(),
		"iat":    issuedAt.Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
