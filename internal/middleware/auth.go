// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/model"
)

// セッションCookie名
const (
	EmployeeCookieName = "token"
	AdminCookieName    = "adminToken"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	employeeIDContextKey  = contextKey("employee_id")
	roleContextKey        = contextKey("role")
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo はアクセスログ用に認証結果を外側のミドルウェアへ伝える。
type requestInfo struct {
	employeeID string
	role       string
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoContextKey, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoContextKey).(*requestInfo)
	return info
}

// TokenVerifier はトークン検証のインターフェース。auth.Serviceが実装する。
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// RejectionRecorder は認証ゲートでの拒否を記録する。nilの場合は記録しない。
type RejectionRecorder interface {
	RecordTokenRejection(reason string)
}

// TokenFromRequest はCookieからトークンを取り出し、無ければ
// Authorization: Bearer ヘッダーを参照する。
func TokenFromRequest(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

// NewEmployeeAuthMiddleware は従業員セッションを要求するミドルウェアを返す。
// 検証に成功すると従業員IDをコンテキストへ注入する。
// 管理者トークンは従業員セッションとして扱わず401を返す。
func NewEmployeeAuthMiddleware(verifier TokenVerifier, recorder RejectionRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, apiErr := verifyRequest(r, verifier, EmployeeCookieName)
			if apiErr == nil && claims.IsAdmin() {
				apiErr = model.NewTokenInvalidError()
			}
			if apiErr != nil {
				reject(w, recorder, apiErr)
				return
			}

			if info := requestInfoFrom(r.Context()); info != nil {
				info.employeeID = claims.Subject
			}
			ctx := ContextWithEmployeeID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewAdminAuthMiddleware は管理者セッションを要求するミドルウェアを返す。
// 未認証は401、adminロールを持たない有効なトークンは403を返す。
func NewAdminAuthMiddleware(verifier TokenVerifier, recorder RejectionRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, apiErr := verifyRequest(r, verifier, AdminCookieName)
			if apiErr != nil {
				reject(w, recorder, apiErr)
				return
			}
			if !claims.IsAdmin() {
				reject(w, recorder, model.NewForbiddenError())
				return
			}

			if info := requestInfoFrom(r.Context()); info != nil {
				info.role = auth.RoleAdmin
			}
			ctx := context.WithValue(r.Context(), roleContextKey, auth.RoleAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifyRequest(r *http.Request, verifier TokenVerifier, cookieName string) (*auth.Claims, *model.APIError) {
	token := TokenFromRequest(r, cookieName)
	if token == "" {
		return nil, model.NewTokenMissingError()
	}

	claims, err := verifier.VerifyToken(token)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, auth.ErrTokenExpired):
		return nil, model.NewTokenExpiredError()
	default:
		return nil, model.NewTokenInvalidError()
	}
}

// reject は拒否理由を記録して401/403を返す。ステータスはエラーコードから決まる。
func reject(w http.ResponseWriter, recorder RejectionRecorder, apiErr *model.APIError) {
	if recorder != nil {
		recorder.RecordTokenRejection(apiErr.Code)
	}
	WriteAPIError(w, apiErr)
}

// EmployeeIDFromContext はリクエストコンテキストから従業員IDを取得する。
// 従業員認証ミドルウェアを通過したリクエストでのみ有効。
func EmployeeIDFromContext(ctx context.Context) (string, error) {
	employeeID, ok := ctx.Value(employeeIDContextKey).(string)
	if !ok || employeeID == "" {
		return "", fmt.Errorf("employee ID not found in context")
	}
	return employeeID, nil
}

// ContextWithEmployeeID はコンテキストに従業員IDを注入する。
func ContextWithEmployeeID(ctx context.Context, employeeID string) context.Context {
	return context.WithValue(ctx, employeeIDContextKey, employeeID)
}

// RoleFromContext は管理者認証を通過した場合に "admin" を返す。
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey).(string)
	return role
}
