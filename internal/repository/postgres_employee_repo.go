package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/learnhub/internal/model"
)

// PostgreSQLのエラーコード
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// isUniqueViolation はlib/pqのエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// isForeignKeyViolation は参照先（従業員・コース）が存在しない場合のエラーかどうかを判定する。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// isUUID はIDがUUID形式かどうかを返す。
// UUID以外のIDはクエリを発行せず「見つからない」として扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// queryer は*sql.DBと*sql.Txの共通部分。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresEmployeeRepo はPostgreSQLを使用した従業員リポジトリ。
type PostgresEmployeeRepo struct {
	db *sql.DB
}

// NewPostgresEmployeeRepo はPostgresEmployeeRepoを生成する。
func NewPostgresEmployeeRepo(db *sql.DB) *PostgresEmployeeRepo {
	return &PostgresEmployeeRepo{db: db}
}

const employeeColumns = `id, name, email, phone, password_hash, image, created_at, updated_at`

func scanEmployee(row interface{ Scan(...any) error }) (*model.Employee, error) {
	e := &model.Employee{}
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Phone, &e.PasswordHash, &e.Image, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
func (r *PostgresEmployeeRepo) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return r.findOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id)
}

// FindByEmail はメールアドレスで従業員を検索する。見つからない場合はnilを返す。
func (r *PostgresEmployeeRepo) FindByEmail(ctx context.Context, email string) (*model.Employee, error) {
	return r.findOne(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email = $1`, email)
}

func (r *PostgresEmployeeRepo) findOne(ctx context.Context, query string, arg string) (*model.Employee, error) {
	e, err := scanEmployee(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}

	enrollments, err := loadEnrollments(ctx, r.db, []string{e.ID})
	if err != nil {
		return nil, err
	}
	e.EnrolledCourses = enrollments[e.ID]

	return e, nil
}

// List は全従業員を登録日時の昇順で返す。
func (r *PostgresEmployeeRepo) List(ctx context.Context) ([]*model.Employee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	return collectEmployees(ctx, r.db, rows)
}

// collectEmployees は従業員行を読み取り、受講登録エントリをまとめて付与する。
func collectEmployees(ctx context.Context, q queryer, rows *sql.Rows) ([]*model.Employee, error) {
	var employees []*model.Employee
	var ids []string
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate employees: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return employees, nil
	}

	enrollments, err := loadEnrollments(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range employees {
		e.EnrolledCourses = enrollments[e.ID]
	}

	return employees, nil
}

// loadEnrollments は従業員ごとの受講登録エントリを登録順に取得する。
func loadEnrollments(ctx context.Context, q queryer, employeeIDs []string) (map[string][]model.Enrollment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT employee_id, course_id, enrollment_date, due_date, status, progress
		 FROM enrollments
		 WHERE employee_id = ANY($1::uuid[])
		 ORDER BY seq ASC`,
		pq.Array(employeeIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]model.Enrollment, len(employeeIDs))
	for rows.Next() {
		var employeeID string
		var en model.Enrollment
		var due sql.NullTime
		var status string
		if err := rows.Scan(&employeeID, &en.CourseID, &en.EnrollmentDate, &due, &status, &en.Progress); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		if due.Valid {
			d := due.Time
			en.DueDate = &d
		}
		en.Status = model.EnrollmentStatus(status)
		result[employeeID] = append(result[employeeID], en)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate enrollments: %w", err)
	}

	return result, nil
}

// CreateWithEnrollments は従業員と受講登録エントリを同一トランザクションで作成する。
func (r *PostgresEmployeeRepo) CreateWithEnrollments(ctx context.Context, employee *model.Employee) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO employees (id, name, email, phone, password_hash, image, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		employee.ID, employee.Name, employee.Email, employee.Phone, employee.PasswordHash, employee.Image,
		timestamp(employee.CreatedAt), timestamp(employee.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert employee: %w", err)
	}

	for _, en := range employee.EnrolledCourses {
		if err := insertEnrollment(ctx, tx, employee.ID, en); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update は従業員のプロフィールを更新する。
func (r *PostgresEmployeeRepo) Update(ctx context.Context, employee *model.Employee) error {
	if !isUUID(employee.ID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE employees
		 SET name = $2, email = $3, phone = $4, image = $5, password_hash = $6, updated_at = $7
		 WHERE id = $1`,
		employee.ID, employee.Name, employee.Email, employee.Phone, employee.Image, employee.PasswordHash,
		timestamp(employee.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update employee: %w", err)
	}
	return requireAffected(result)
}

// DeleteByID は指定IDの従業員を削除する。
// 受講登録エントリはCASCADE削除される。
func (r *PostgresEmployeeRepo) DeleteByID(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete employee: %w", err)
	}
	return requireAffected(result)
}

// Count は従業員数を返す。
func (r *PostgresEmployeeRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM employees`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count employees: %w", err)
	}
	return n, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ EmployeeRepository = (*PostgresEmployeeRepo)(nil)
