// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, input model.NewEmployee) (*model.AuthSession, error)
	Login(ctx context.Context, email, password string) (*model.AuthSession, error)
	AdminLogin(ctx context.Context, email, password string) (*model.AuthSession, error)
	CurrentEmployee(ctx context.Context, token string) (*model.Employee, error)
	IsAdminToken(token string) bool
	VerifyToken(token string) (*auth.Claims, error)
}

// AuthHandler は従業員・管理者のログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookies CookieConfig
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies CookieConfig, collector metrics.MetricsCollector) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AuthHandler{
		service: service,
		cookies: cookies,
		metrics: collector,
	}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Image    string `json:"image"`
}

func (r registerRequest) toNewEmployee() model.NewEmployee {
	return model.NewEmployee{
		Name:     r.Name,
		Email:    r.Email,
		Password: r.Password,
		Phone:    r.Phone,
		Image:    r.Image,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register は従業員を登録し、必須コースへ自動登録したうえでログイン状態にする。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.service.Register(r.Context(), req.toNewEmployee())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordRegistration()
	h.metrics.RecordEnrollments(metrics.EnrollmentSourceAuto, len(session.Employee.EnrolledCourses))

	h.cookies.set(w, middleware.EmployeeCookieName, session.Token)
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"employee": toUserSummary(session.Employee),
	})
}

// Login は従業員ログイン。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordLoginFailure(metrics.LoginKindEmployee, err)
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordLogin(metrics.LoginKindEmployee, true)

	h.cookies.set(w, middleware.EmployeeCookieName, session.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "ログインしました。",
		"user":    toUserSummary(session.Employee),
		"token":   session.Token,
	})
}

// Logout は従業員セッションのCookieを削除する。トークン自体はサーバー側で失効しない。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, middleware.EmployeeCookieName)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "ログアウトしました。",
	})
}

// Check は従業員のログイン状態を返す。認証エラーでも常に200を返す。
// GET /api/auth/check
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r, middleware.EmployeeCookieName)

	employee, err := h.service.CurrentEmployee(r.Context(), token)
	if err != nil {
		slog.Error("failed to check employee session", slog.String("error", err.Error()))
	}
	if err != nil || employee == nil {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loggedIn": true,
		"user":     toEmployeeResponse(employee),
	})
}

// AdminLogin は管理者ログイン。失敗時はCookieを設定しない。
// POST /api/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	session, err := h.service.AdminLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordLoginFailure(metrics.LoginKindAdmin, err)
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordLogin(metrics.LoginKindAdmin, true)

	h.cookies.set(w, middleware.AdminCookieName, session.Token)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "管理者としてログインしました。",
	})
}

// AdminCheck は管理者のログイン状態を返す。常に200を返す。
// GET /api/admin/check
func (h *AuthHandler) AdminCheck(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r, middleware.AdminCookieName)
	if !h.service.IsAdminToken(token) {
		writeJSON(w, http.StatusOK, map[string]any{"loggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loggedIn": true,
		"role":     auth.RoleAdmin,
	})
}

// AdminLogout は管理者セッションのCookieを削除する。
// POST /api/admin/logout
func (h *AuthHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, middleware.AdminCookieName)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "ログアウトしました。",
	})
}

// recordLoginFailure は資格情報の不一致のみを失敗として数える。
func (h *AuthHandler) recordLoginFailure(kind string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidCredentials {
		h.metrics.RecordLogin(kind, false)
	}
}
