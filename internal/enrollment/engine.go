// Package enrollment は受講登録のドメインロジックを提供する。
//
// 必須コースの自動登録、任意コースへの受講登録、進捗更新、
// 受講中コースの一覧を扱う。1人の従業員につき同一コースの
// 受講登録は最大1件で、重複はストア側の一意制約で防ぐ。
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/repository"
)

// DefaultDueDays は受講期限の既定日数。
const DefaultDueDays = 30

// Config はEngineの設定。
type Config struct {
	DueDays int // 受講登録日から期限までの日数
}

// Engine は受講登録のサービス層。
type Engine struct {
	employees   repository.EmployeeRepository
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	dueDays     int
	now         func() time.Time
}

// NewEngine はEngineを生成する。
func NewEngine(
	employees repository.EmployeeRepository,
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	config Config,
) *Engine {
	if config.DueDays <= 0 {
		config.DueDays = DefaultDueDays
	}
	return &Engine{
		employees:   employees,
		courses:     courses,
		enrollments: enrollments,
		dueDays:     config.DueDays,
		now:         time.Now,
	}
}

// WithClock は時刻取得関数を差し替えたEngineを返す。テスト用。
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

func (e *Engine) newEnrollment(courseID string) model.Enrollment {
	now := e.now().UTC()
	due := now.AddDate(0, 0, e.dueDays)
	return model.Enrollment{
		CourseID:       courseID,
		EnrollmentDate: now,
		DueDate:        &due,
		Status:         model.EnrollmentStatusEnrolled,
		Progress:       0,
	}
}

// PlanMandatory は未登録の必須コースの受講登録エントリを従業員に追加する（永続化はしない）。
// 登録時に従業員と受講登録を1回で書き込むために使う。追加した件数を返す。
func (e *Engine) PlanMandatory(ctx context.Context, employee *model.Employee) (int, error) {
	courses, err := e.courses.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("必須コースの取得に失敗しました: %w", err)
	}

	added := 0
	for _, c := range courses {
		if employee.EnrollmentFor(c.ID) != nil {
			continue
		}
		employee.EnrolledCourses = append(employee.EnrolledCourses, e.newEnrollment(c.ID))
		added++
	}
	return added, nil
}

// AutoEnroll は既存の従業員を全必須コースに受講登録する。
// 登録済みのコースはスキップするため、何度呼んでも結果は同じ。追加した件数を返す。
func (e *Engine) AutoEnroll(ctx context.Context, employeeID string) (int, error) {
	employee, err := e.employees.FindByID(ctx, employeeID)
	if err != nil {
		return 0, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil {
		return 0, model.NewEmployeeNotFoundError()
	}

	courses, err := e.courses.List(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("必須コースの取得に失敗しました: %w", err)
	}

	added := 0
	for _, c := range courses {
		if employee.EnrollmentFor(c.ID) != nil {
			continue
		}
		err := e.enrollments.Add(ctx, employeeID, e.newEnrollment(c.ID))
		switch {
		case err == nil:
			added++
		case errors.Is(err, repository.ErrDuplicate):
			// 並行して登録された
		case errors.Is(err, repository.ErrNotFound):
			// 従業員またはコースが途中で削除された
			slog.Warn("auto enroll skipped",
				slog.String("employee_id", employeeID),
				slog.String("course_id", c.ID),
			)
		default:
			return added, fmt.Errorf("受講登録の追加に失敗しました: %w", err)
		}
	}

	if added > 0 {
		slog.Info("mandatory courses enrolled",
			slog.String("employee_id", employeeID),
			slog.Int("count", added),
		)
	}
	return added, nil
}

// Enroll は従業員を指定コースに受講登録する。
func (e *Engine) Enroll(ctx context.Context, employeeID, courseID string) (*model.EnrolledCourse, error) {
	employee, err := e.employees.FindByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil {
		return nil, model.NewEmployeeNotFoundError()
	}

	course, err := e.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	if employee.EnrollmentFor(courseID) != nil {
		return nil, model.NewAlreadyEnrolledError()
	}

	entry := e.newEnrollment(courseID)
	if err := e.enrollments.Add(ctx, employeeID, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewAlreadyEnrolledError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewEmployeeNotFoundError()
		}
		return nil, fmt.Errorf("受講登録の追加に失敗しました: %w", err)
	}

	slog.Info("employee enrolled",
		slog.String("employee_id", employeeID),
		slog.String("course_id", courseID),
	)

	return &model.EnrolledCourse{Enrollment: entry, Course: course}, nil
}

// UpdateProgress は受講の進捗を更新する。進捗100で完了状態になる。
func (e *Engine) UpdateProgress(ctx context.Context, employeeID, courseID string, progress float64) (*model.EnrolledCourse, error) {
	if math.IsNaN(progress) || progress < 0 || progress > 100 {
		return nil, model.NewInvalidProgressError(progress)
	}

	employee, err := e.employees.FindByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil {
		return nil, model.NewEmployeeNotFoundError()
	}
	entry := employee.EnrollmentFor(courseID)
	if entry == nil {
		return nil, model.NewEnrollmentNotFoundError()
	}

	status := model.EnrollmentStatusEnrolled
	if progress >= 100 {
		status = model.EnrollmentStatusCompleted
	}

	if err := e.enrollments.UpdateProgress(ctx, employeeID, courseID, progress, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewEnrollmentNotFoundError()
		}
		return nil, fmt.Errorf("進捗の更新に失敗しました: %w", err)
	}

	course, err := e.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}

	updated := *entry
	updated.Progress = progress
	updated.Status = status
	return &model.EnrolledCourse{Enrollment: updated, Course: course}, nil
}

// ListEnrolled は従業員の受講登録をコース情報と結合して登録順に返す。
// コースが見つからないエントリは含めない。
func (e *Engine) ListEnrolled(ctx context.Context, employeeID string) ([]model.EnrolledCourse, error) {
	employee, err := e.employees.FindByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil {
		return nil, model.NewEmployeeNotFoundError()
	}
	return e.join(ctx, employee.EnrolledCourses)
}

func (e *Engine) join(ctx context.Context, entries []model.Enrollment) ([]model.EnrolledCourse, error) {
	if len(entries) == 0 {
		return []model.EnrolledCourse{}, nil
	}

	ids := make([]string, len(entries))
	for i, en := range entries {
		ids[i] = en.CourseID
	}
	courses, err := e.courses.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	byID := make(map[string]*model.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}

	out := make([]model.EnrolledCourse, 0, len(entries))
	for _, en := range entries {
		c, ok := byID[en.CourseID]
		if !ok {
			continue
		}
		out = append(out, model.EnrolledCourse{Enrollment: en, Course: c})
	}
	return out, nil
}

// IsEnrolled は従業員が指定コースに受講登録しているかを返す。
func (e *Engine) IsEnrolled(ctx context.Context, employeeID, courseID string) (bool, error) {
	employee, err := e.employees.FindByID(ctx, employeeID)
	if err != nil {
		return false, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil {
		return false, model.NewEmployeeNotFoundError()
	}
	return employee.EnrollmentFor(courseID) != nil, nil
}

// EnrolledEmployees は指定コースを受講登録している従業員を返す。
func (e *Engine) EnrolledEmployees(ctx context.Context, courseID string) ([]*model.Employee, error) {
	course, err := e.courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError(courseID)
	}

	employees, err := e.enrollments.ListEmployeesByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("受講者一覧の取得に失敗しました: %w", err)
	}
	if employees == nil {
		employees = []*model.Employee{}
	}
	return employees, nil
}
