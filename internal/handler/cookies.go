package handler

import (
	"net/http"
	"time"
)

// CookieConfig はセッションCookieの属性。
// 本番ではクロスサイトのフロントエンドから送れるよう SameSite=None と Secure を付ける。
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	MaxAge   int // 秒
}

// NewCookieConfig は環境とトークン有効期間からCookie設定を組み立てる。
func NewCookieConfig(production bool, ttl time.Duration) CookieConfig {
	cfg := CookieConfig{
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl / time.Second),
	}
	if production {
		cfg.Secure = true
		cfg.SameSite = http.SameSiteNoneMode
	}
	return cfg
}

func (c CookieConfig) set(w http.ResponseWriter, name, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		MaxAge:   c.MaxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

// clear は同じ属性でCookieを失効させる。
func (c CookieConfig) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}
