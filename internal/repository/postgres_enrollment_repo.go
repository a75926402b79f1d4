package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/learnhub/internal/model"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した受講登録リポジトリ。
// (employee_id, course_id) の主キーで重複登録を防ぐ。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEnrollment(ctx context.Context, ex execer, employeeID string, en model.Enrollment) error {
	var due any
	if en.DueDate != nil {
		due = timestamp(*en.DueDate)
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO enrollments (employee_id, course_id, enrollment_date, due_date, status, progress)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		employeeID, en.CourseID, timestamp(en.EnrollmentDate), due, string(en.Status), en.Progress,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to insert enrollment: %w", err)
	}
	return nil
}

// Add は受講登録エントリを追加する。
func (r *PostgresEnrollmentRepo) Add(ctx context.Context, employeeID string, enrollment model.Enrollment) error {
	if !isUUID(employeeID) || !isUUID(enrollment.CourseID) {
		return ErrNotFound
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM employees WHERE id = $1)`, employeeID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check employee: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	return insertEnrollment(ctx, r.db, employeeID, enrollment)
}

// UpdateProgress は進捗と状態を更新する。
func (r *PostgresEnrollmentRepo) UpdateProgress(ctx context.Context, employeeID, courseID string, progress float64, status model.EnrollmentStatus) error {
	if !isUUID(employeeID) || !isUUID(courseID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET progress = $3, status = $4
		 WHERE employee_id = $1 AND course_id = $2`,
		employeeID, courseID, progress, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment progress: %w", err)
	}
	return requireAffected(result)
}

// ListEmployeesByCourse は指定コースを受講登録している従業員を返す。
func (r *PostgresEnrollmentRepo) ListEmployeesByCourse(ctx context.Context, courseID string) ([]*model.Employee, error) {
	if !isUUID(courseID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.name, e.email, e.phone, e.password_hash, e.image, e.created_at, e.updated_at
		 FROM employees e
		 JOIN enrollments en ON en.employee_id = e.id
		 WHERE en.course_id = $1
		 ORDER BY en.seq ASC`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees by course: %w", err)
	}
	defer rows.Close()

	return collectEmployees(ctx, r.db, rows)
}

// Count は受講登録エントリの総数を返す。
func (r *PostgresEnrollmentRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM enrollments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
