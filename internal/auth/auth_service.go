package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleStaff 是学校管理员令牌的默认角色。
const RoleStaff = "staff"

// ErrSigningDisabled 表示服务只加载了公钥，无法签发令牌。
var ErrSigningDisabled = errors.New("token signing disabled: no private key")

// AuthService 负责 JWT 的签发与校验。API 进程只持有公钥。
type AuthService struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	tokenTTL   time.Duration
}

// TokenClaims 表示 JWT 中的业务字段，中间件据此确定租户。
type TokenClaims struct {
	SchoolID uint   `json:"school_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 密钥并构造服务实例；privateKeyPEM 可以为空。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, tokenTTL time.Duration) (*AuthService, error) {
	if len(publicKeyPEM) == 0 {
		return nil, errors.New("public key pem is required")
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}

	svc := &AuthService{publicKey: publicKey, tokenTTL: tokenTTL}
	if len(privateKeyPEM) > 0 {
		privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse rsa private key: %w", err)
		}
		svc.privateKey = privateKey
	}
	return svc, nil
}

// IssueToken 为学校签发访问令牌。
func (s *AuthService) IssueToken(schoolID uint, role string) (string, error) {
	if s.privateKey == nil {
		return "", ErrSigningDisabled
	}
	if schoolID == 0 {
		return "", errors.New("school id is required")
	}
	if role == "" {
		role = RoleStaff
	}

	now := time.Now()
	claims := TokenClaims{
		SchoolID: schoolID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(schoolID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken 解析并验证 JWT。
func (s *AuthService) ValidateToken(tokenString string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.SchoolID == 0 {
		return nil, errors.New("token has no school")
	}

	return claims, nil
}

// TokenTTL 暴露令牌有效期。
func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
