// Package employee は従業員管理のドメインロジックを提供する。
package employee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/hitoshi/learnhub/internal/security"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// MandatoryPlanner は登録時に必須コースの受講登録を組み立てる。
// enrollment.Engineが実装する。
type MandatoryPlanner interface {
	PlanMandatory(ctx context.Context, employee *model.Employee) (int, error)
}

// Service は従業員管理のサービス層。
// 登録、プロフィール更新、管理者による一覧・更新・削除、ダッシュボード集計を提供する。
type Service struct {
	employees   repository.EmployeeRepository
	enrollments repository.EnrollmentRepository
	courses     repository.CourseRepository
	planner     MandatoryPlanner
	passwords   *auth.PasswordHasher
	sanitizer   security.Sanitizer
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	employees repository.EmployeeRepository,
	enrollments repository.EnrollmentRepository,
	courses repository.CourseRepository,
	planner MandatoryPlanner,
	passwords *auth.PasswordHasher,
	sanitizer security.Sanitizer,
) *Service {
	return &Service{
		employees:   employees,
		enrollments: enrollments,
		courses:     courses,
		planner:     planner,
		passwords:   passwords,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// Create は従業員を作成し、全必須コースへ受講登録する。
// 従業員と受講登録は1回の書き込みで保存されるため、途中で失敗しても
// 受講登録の無い従業員は残らない。
func (s *Service) Create(ctx context.Context, input model.NewEmployee) (*model.Employee, error) {
	name := s.sanitizer.Text(input.Name)
	email := normalizeEmail(input.Email)

	if name == "" || email == "" || input.Password == "" {
		return nil, model.NewValidationError("氏名、メールアドレス、パスワードは必須です。")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	existing, err := s.employees.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyExistsError()
	}

	hash, err := s.passwords.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	employee := &model.Employee{
		ID:              uuid.New().String(),
		Name:            name,
		Email:           email,
		Phone:           s.sanitizer.Text(input.Phone),
		PasswordHash:    hash,
		Image:           s.sanitizer.ImageRef(input.Image),
		EnrolledCourses: []model.Enrollment{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	planned, err := s.planner.PlanMandatory(ctx, employee)
	if err != nil {
		return nil, err
	}

	if err := s.employees.CreateWithEnrollments(ctx, employee); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyExistsError()
		}
		return nil, fmt.Errorf("従業員の作成に失敗しました: %w", err)
	}

	slog.Info("employee registered",
		slog.String("employee_id", employee.ID),
		slog.Int("auto_enrolled", planned),
	)
	return employee, nil
}

// Get は指定IDの従業員を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Employee, error) {
	employee, err := s.employees.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil {
		return nil, model.NewEmployeeNotFoundError()
	}
	return employee, nil
}

// List は全従業員を登録順に返す。
func (s *Service) List(ctx context.Context) ([]*model.Employee, error) {
	employees, err := s.employees.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("従業員一覧の取得に失敗しました: %w", err)
	}
	if employees == nil {
		employees = []*model.Employee{}
	}
	return employees, nil
}

// Update は管理者による従業員更新。氏名、メール、電話、画像、パスワードを変更できる。
func (s *Service) Update(ctx context.Context, id string, update model.EmployeeUpdate) (*model.Employee, error) {
	employee, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		name := s.sanitizer.Text(*update.Name)
		if name == "" {
			return nil, model.NewValidationError("氏名は必須です。")
		}
		employee.Name = name
	}
	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		employee.Email = email
	}
	if update.Phone != nil {
		employee.Phone = s.sanitizer.Text(*update.Phone)
	}
	if update.Image != nil {
		employee.Image = s.sanitizer.ImageRef(*update.Image)
	}
	if update.Password != nil && *update.Password != "" {
		if err := validatePassword(*update.Password); err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(*update.Password)
		if err != nil {
			return nil, err
		}
		employee.PasswordHash = hash
	}
	employee.UpdatedAt = s.now().UTC()

	if err := s.employees.Update(ctx, employee); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewEmailAlreadyExistsError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewEmployeeNotFoundError()
		}
		return nil, fmt.Errorf("従業員の更新に失敗しました: %w", err)
	}
	return employee, nil
}

// UpdateProfile は従業員本人によるプロフィール更新。
// メールアドレスとパスワードは変更できない。
func (s *Service) UpdateProfile(ctx context.Context, id string, update model.EmployeeUpdate) (*model.Employee, error) {
	update.Email = nil
	update.Password = nil
	return s.Update(ctx, id, update)
}

// Delete は従業員を受講登録ごと削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.employees.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewEmployeeNotFoundError()
		}
		return fmt.Errorf("従業員の削除に失敗しました: %w", err)
	}
	slog.Info("employee deleted", slog.String("employee_id", id))
	return nil
}

// DashboardStats は管理画面の集計値を返す。
func (s *Service) DashboardStats(ctx context.Context) (*model.DashboardStats, error) {
	employees, err := s.employees.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("従業員数の取得に失敗しました: %w", err)
	}
	courses, err := s.courses.Count(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("コース数の取得に失敗しました: %w", err)
	}
	mandatory, err := s.courses.Count(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("必須コース数の取得に失敗しました: %w", err)
	}
	enrollments, err := s.enrollments.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("受講登録数の取得に失敗しました: %w", err)
	}

	return &model.DashboardStats{
		TotalEmployees:   employees,
		TotalCourses:     courses,
		MandatoryCourses: mandatory,
		TotalEnrollments: enrollments,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError("メールアドレスの形式が正しくありません。")
	}
	return nil
}

func validatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で入力してください。", MinPasswordLength))
	}
	if len(password) > auth.MaxPasswordBytes {
		return model.NewValidationError(fmt.Sprintf("パスワードは%dバイト以内で入力してください。", auth.MaxPasswordBytes))
	}
	return nil
}
