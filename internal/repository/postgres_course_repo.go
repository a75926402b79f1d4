package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/learnhub/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用したコースリポジトリ。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

const courseColumns = `id, title, description, hours, difficulty, mandatory, images, created_at, updated_at`

func scanCourse(row interface{ Scan(...any) error }) (*model.Course, error) {
	c := &model.Course{}
	var difficulty string
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Hours, &difficulty, &c.Mandatory, &c.Images, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Difficulty = model.Difficulty(difficulty)
	return c, nil
}

// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	if !isUUID(id) {
		return nil, nil
	}
	c, err := scanCourse(r.db.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course by ID: %w", err)
	}
	return c, nil
}

// FindByIDs は指定IDのコースをまとめて取得する。
func (r *PostgresCourseRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Course, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = ANY($1::uuid[])`,
		pq.Array(valid),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find courses by IDs: %w", err)
	}
	defer rows.Close()

	return collectCourses(rows)
}

// List はコース一覧を作成日時の昇順で返す。
func (r *PostgresCourseRepo) List(ctx context.Context, mandatoryOnly bool) ([]*model.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses`
	if mandatoryOnly {
		query += ` WHERE mandatory = true`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	return collectCourses(rows)
}

func collectCourses(rows *sql.Rows) ([]*model.Course, error) {
	var courses []*model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}
	return courses, nil
}

// Create はコースを作成する。
func (r *PostgresCourseRepo) Create(ctx context.Context, course *model.Course) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (id, title, description, hours, difficulty, mandatory, images, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		course.ID, course.Title, course.Description, course.Hours, string(course.Difficulty),
		course.Mandatory, course.Images, timestamp(course.CreatedAt), timestamp(course.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert course: %w", err)
	}
	return nil
}

// Update はコースを更新する。
func (r *PostgresCourseRepo) Update(ctx context.Context, course *model.Course) error {
	if !isUUID(course.ID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE courses
		 SET title = $2, description = $3, hours = $4, difficulty = $5, mandatory = $6, images = $7, updated_at = $8
		 WHERE id = $1`,
		course.ID, course.Title, course.Description, course.Hours, string(course.Difficulty),
		course.Mandatory, course.Images, timestamp(course.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update course: %w", err)
	}
	return requireAffected(result)
}

// DeleteByID はコースを削除する。
// 受講登録エントリはCASCADE削除される。
func (r *PostgresCourseRepo) DeleteByID(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	return requireAffected(result)
}

// Count はコース数を返す。
func (r *PostgresCourseRepo) Count(ctx context.Context, mandatoryOnly bool) (int, error) {
	query := `SELECT count(*) FROM courses`
	if mandatoryOnly {
		query += ` WHERE mandatory = true`
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)

// PostgresPinger は*sql.DBの疎通確認を行う。
type PostgresPinger struct {
	db *sql.DB
}

// Ping はデータベースへの疎通を確認する。
func (p PostgresPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// NewPostgresStore はPostgreSQLバックエンドのリポジトリ一式を生成する。
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Employees:   NewPostgresEmployeeRepo(db),
		Enrollments: NewPostgresEnrollmentRepo(db),
		Courses:     NewPostgresCourseRepo(db),
		Health:      PostgresPinger{db: db},
		Close: func(context.Context) error {
			return db.Close()
		},
	}
}
