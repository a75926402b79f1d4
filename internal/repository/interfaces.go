// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// ErrDuplicate は一意制約（メールアドレス、コース名、受講登録の組）に違反した場合に返る。
var ErrDuplicate = errors.New("duplicate key")

// ErrNotFound は更新・削除対象が存在しない場合に返る。
// 参照系（FindXxx）は見つからない場合にnil, nilを返す。
var ErrNotFound = errors.New("not found")

// EmployeeRepository は従業員データの永続化インターフェース。
// 返される従業員には受講登録エントリが登録順に含まれる。
type EmployeeRepository interface {
	// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Employee, error)

	// FindByEmail はメールアドレスで従業員を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Employee, error)

	// List は全従業員を登録日時の昇順で返す。
	List(ctx context.Context) ([]*model.Employee, error)

	// CreateWithEnrollments は従業員とその受講登録エントリを1回の原子的な書き込みで作成する。
	// メールアドレスが重複する場合はErrDuplicateを返す。
	CreateWithEnrollments(ctx context.Context, employee *model.Employee) error

	// Update は従業員のプロフィール（氏名、メール、電話、画像、パスワードハッシュ）を更新する。
	// 受講登録エントリは変更しない。
	Update(ctx context.Context, employee *model.Employee) error

	// DeleteByID は指定IDの従業員を受講登録ごと削除する。
	DeleteByID(ctx context.Context, id string) error

	// Count は従業員数を返す。
	Count(ctx context.Context) (int, error)
}

// EnrollmentRepository は受講登録の永続化インターフェース。
type EnrollmentRepository interface {
	// Add は受講登録エントリを追加する。
	// 既に同じコースのエントリがある場合はErrDuplicate、従業員が居ない場合はErrNotFoundを返す。
	Add(ctx context.Context, employeeID string, enrollment model.Enrollment) error

	// UpdateProgress は進捗と状態を更新する。エントリが無い場合はErrNotFoundを返す。
	UpdateProgress(ctx context.Context, employeeID, courseID string, progress float64, status model.EnrollmentStatus) error

	// ListEmployeesByCourse は指定コースを受講登録している従業員を返す。
	ListEmployeesByCourse(ctx context.Context, courseID string) ([]*model.Employee, error)

	// Count は全従業員の受講登録エントリ数の合計を返す。
	Count(ctx context.Context) (int, error)
}

// CourseRepository はコースデータの永続化インターフェース。
type CourseRepository interface {
	// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Course, error)

	// FindByIDs は指定IDのコースをまとめて取得する。存在しないIDは無視する。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Course, error)

	// List はコース一覧を作成日時の昇順で返す。mandatoryOnlyがtrueの場合は必須コースのみ。
	List(ctx context.Context, mandatoryOnly bool) ([]*model.Course, error)

	// Create はコースを作成する。タイトルが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, course *model.Course) error

	// Update はコースを更新する。
	Update(ctx context.Context, course *model.Course) error

	// DeleteByID はコースを削除し、全従業員の受講登録からも取り除く。
	DeleteByID(ctx context.Context, id string) error

	// Count はコース数を返す。mandatoryOnlyがtrueの場合は必須コースのみ数える。
	Count(ctx context.Context, mandatoryOnly bool) (int, error)
}

// Pinger はデータストアの疎通確認インターフェース。ヘルスチェックで使用する。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store はバックエンドごとのリポジトリ一式。
type Store struct {
	Employees   EmployeeRepository
	Enrollments EnrollmentRepository
	Courses     CourseRepository
	Health      Pinger
	Close       func(ctx context.Context) error
}

// timestamp はDBに保存する時刻をマイクロ秒精度のUTCに揃える。
func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
