// Package auth は従業員・管理者のログイン、登録、セッショントークンを提供する。
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// EmployeeFinder はログイン時の従業員検索インターフェース。
type EmployeeFinder interface {
	FindByID(ctx context.Context, id string) (*model.Employee, error)
	FindByEmail(ctx context.Context, email string) (*model.Employee, error)
}

// EmployeeRegistrar は従業員作成（必須コースの自動登録を含む）のインターフェース。
type EmployeeRegistrar interface {
	Create(ctx context.Context, input model.NewEmployee) (*model.Employee, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	TokenTTL      time.Duration
	AdminEmail    string
	AdminPassword string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	employees EmployeeFinder
	registrar EmployeeRegistrar
	tokens    *TokenService
	passwords *PasswordHasher
	config    ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	employees EmployeeFinder,
	registrar EmployeeRegistrar,
	tokens *TokenService,
	passwords *PasswordHasher,
	config ServiceConfig,
) *Service {
	if config.TokenTTL <= 0 {
		config.TokenTTL = 24 * time.Hour
	}
	return &Service{
		employees: employees,
		registrar: registrar,
		tokens:    tokens,
		passwords: passwords,
		config:    config,
	}
}

// TokenTTL はセッショントークンの有効期間を返す。Cookieの Max-Age に使用する。
func (s *Service) TokenTTL() time.Duration {
	return s.config.TokenTTL
}

// Register は従業員を登録し、そのままログイン状態のセッションを発行する。
// 登録と必須コースの自動登録はregistrar側で1回の書き込みとして行われる。
func (s *Service) Register(ctx context.Context, input model.NewEmployee) (*model.AuthSession, error) {
	employee, err := s.registrar.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	return s.issueEmployeeSession(employee)
}

// Login はメールアドレスとパスワードで従業員を認証する。
// メールアドレス不明とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.AuthSession, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードは必須です。")
	}

	employee, err := s.employees.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}
	if employee == nil {
		s.passwords.CompareDummy(password)
		slog.Info("employee login failed", slog.String("reason", "unknown_email"))
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.passwords.Compare(employee.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Info("employee login failed",
			slog.String("employee_id", employee.ID),
			slog.String("reason", "password_mismatch"),
		)
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("employee logged in", slog.String("employee_id", employee.ID))
	return s.issueEmployeeSession(employee)
}

// AdminLogin は設定された管理者資格情報と定数時間で比較する。
// 成功時のセッションにEmployeeは含まれない。
func (s *Service) AdminLogin(_ context.Context, email, password string) (*model.AuthSession, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("メールアドレスとパスワードは必須です。")
	}

	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(s.config.AdminEmail))
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.config.AdminPassword))
	if emailOK&passwordOK != 1 {
		slog.Warn("admin login failed")
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(AdminSubject, RoleAdmin, s.config.TokenTTL)
	if err != nil {
		return nil, err
	}

	slog.Info("admin logged in")
	return &model.AuthSession{Token: token, ExpiresAt: expiresAt}, nil
}

// VerifyToken はトークンを検証してクレームを返す。認証ミドルウェアから使用する。
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Verify(token)
}

// CurrentEmployee はトークンが有効な従業員セッションであれば従業員を返す。
// 無効なトークンや削除済み従業員の場合はnilを返す（エラーにはしない）。
func (s *Service) CurrentEmployee(ctx context.Context, token string) (*model.Employee, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := s.tokens.Verify(token)
	if err != nil || claims.IsAdmin() {
		return nil, nil
	}

	employee, err := s.employees.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}
	return employee, nil
}

// IsAdminToken はトークンが有効な管理者セッションかどうかを返す。
func (s *Service) IsAdminToken(token string) bool {
	if token == "" {
		return false
	}
	claims, err := s.tokens.Verify(token)
	return err == nil && claims.IsAdmin()
}

func (s *Service) issueEmployeeSession(employee *model.Employee) (*model.AuthSession, error) {
	token, expiresAt, err := s.tokens.Issue(employee.ID, "", s.config.TokenTTL)
	if err != nil {
		return nil, err
	}
	return &model.AuthSession{Token: token, ExpiresAt: expiresAt, Employee: employee}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
