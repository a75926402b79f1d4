package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAdmin は管理者セッションのロール。
const RoleAdmin = "admin"

// AdminSubject は管理者トークンのsubject。管理者はDBに存在しない。
const AdminSubject = "admin"

// トークン検証エラーの分類。
var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token is expired")
	ErrTokenInvalid          = errors.New("token is invalid")
)

// Claims はセッショントークンのクレーム。
// sub に従業員ID（管理者は "admin"）、role に管理者ロールを持つ。
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin は管理者ロールを持つかどうかを返す。
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// TokenService はHS256署名のセッショントークンを発行・検証する。
// サーバー側には何も保存しない。
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService はTokenServiceを生成する。
func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock は時刻取得関数を差し替えたTokenServiceを返す。テスト用。
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	return &TokenService{secret: s.secret, now: now}
}

// Issue は subject と role を持つトークンを発行する。exp は now + ttl。
func (s *TokenService) Issue(subject, role string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify はトークンを検証してクレームを返す。
// 署名が一致しないトークンは期限切れであってもErrTokenSignatureInvalidになる。
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// classifyTokenError はjwtライブラリのエラーを4分類に変換する。
// jwt/v5 は署名検証をクレーム検証より先に行う。
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}
