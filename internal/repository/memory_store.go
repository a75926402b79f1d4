package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/hitoshi/learnhub/internal/model"
)

// MemoryStore はプロセス内メモリに保持するデータストア。
// DATABASE_URL=memory:// でのローカル起動とテストで使用する。
// 3つのリポジトリインターフェースをまとめて実装する。
type MemoryStore struct {
	mu        sync.RWMutex
	employees map[string]*model.Employee
	courses   map[string]*model.Course
	// 挿入順を保持する
	employeeOrder []string
	courseOrder   []string
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		employees: make(map[string]*model.Employee),
		courses:   make(map[string]*model.Course),
	}
}

// NewMemoryBackedStore はMemoryStoreを使ったリポジトリ一式を生成する。
func NewMemoryBackedStore() *Store {
	m := NewMemoryStore()
	return &Store{
		Employees:   MemoryEmployees{m},
		Enrollments: MemoryEnrollments{m},
		Courses:     MemoryCourses{m},
		Health:      m,
		Close:       func(context.Context) error { return nil },
	}
}

// Ping は常に成功する。
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneEmployee(e *model.Employee) *model.Employee {
	c := *e
	c.EnrolledCourses = make([]model.Enrollment, len(e.EnrolledCourses))
	for i, en := range e.EnrolledCourses {
		if en.DueDate != nil {
			d := *en.DueDate
			en.DueDate = &d
		}
		c.EnrolledCourses[i] = en
	}
	return &c
}

func cloneCourse(c *model.Course) *model.Course {
	cc := *c
	return &cc
}

// MemoryEmployees はMemoryStoreのEmployeeRepository実装。
type MemoryEmployees struct{ m *MemoryStore }

// MemoryEnrollments はMemoryStoreのEnrollmentRepository実装。
type MemoryEnrollments struct{ m *MemoryStore }

// MemoryCourses はMemoryStoreのCourseRepository実装。
type MemoryCourses struct{ m *MemoryStore }

// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
func (r MemoryEmployees) FindByID(_ context.Context, id string) (*model.Employee, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if e, ok := r.m.employees[id]; ok {
		return cloneEmployee(e), nil
	}
	return nil, nil
}

// FindByEmail はメールアドレスで従業員を検索する。見つからない場合はnilを返す。
func (r MemoryEmployees) FindByEmail(_ context.Context, email string) (*model.Employee, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	for _, e := range r.m.employees {
		if e.Email == email {
			return cloneEmployee(e), nil
		}
	}
	return nil, nil
}

// List は全従業員を登録順に返す。
func (r MemoryEmployees) List(_ context.Context) ([]*model.Employee, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]*model.Employee, 0, len(r.m.employeeOrder))
	for _, id := range r.m.employeeOrder {
		out = append(out, cloneEmployee(r.m.employees[id]))
	}
	return out, nil
}

// CreateWithEnrollments は従業員と受講登録を1回のロック内で作成する。
func (r MemoryEmployees) CreateWithEnrollments(_ context.Context, employee *model.Employee) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, e := range r.m.employees {
		if e.Email == employee.Email {
			return ErrDuplicate
		}
	}
	if _, ok := r.m.employees[employee.ID]; ok {
		return ErrDuplicate
	}
	for _, en := range employee.EnrolledCourses {
		if _, ok := r.m.courses[en.CourseID]; !ok {
			return ErrNotFound
		}
	}
	r.m.employees[employee.ID] = cloneEmployee(employee)
	r.m.employeeOrder = append(r.m.employeeOrder, employee.ID)
	return nil
}

// Update は従業員のプロフィールを更新する。受講登録は変更しない。
func (r MemoryEmployees) Update(_ context.Context, employee *model.Employee) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.employees[employee.ID]
	if !ok {
		return ErrNotFound
	}
	for id, e := range r.m.employees {
		if id != employee.ID && e.Email == employee.Email {
			return ErrDuplicate
		}
	}
	cur.Name = employee.Name
	cur.Email = employee.Email
	cur.Phone = employee.Phone
	cur.Image = employee.Image
	cur.PasswordHash = employee.PasswordHash
	cur.UpdatedAt = employee.UpdatedAt
	return nil
}

// DeleteByID は指定IDの従業員を削除する。
func (r MemoryEmployees) DeleteByID(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.employees[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.employees, id)
	r.m.employeeOrder = removeID(r.m.employeeOrder, id)
	return nil
}

// Count は従業員数を返す。
func (r MemoryEmployees) Count(_ context.Context) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return len(r.m.employees), nil
}

// Add は受講登録エントリを追加する。
func (r MemoryEnrollments) Add(_ context.Context, employeeID string, enrollment model.Enrollment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.employees[employeeID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := r.m.courses[enrollment.CourseID]; !ok {
		return ErrNotFound
	}
	if e.EnrollmentFor(enrollment.CourseID) != nil {
		return ErrDuplicate
	}
	e.EnrolledCourses = append(e.EnrolledCourses, enrollment)
	return nil
}

// UpdateProgress は進捗と状態を更新する。
func (r MemoryEnrollments) UpdateProgress(_ context.Context, employeeID, courseID string, progress float64, status model.EnrollmentStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	e, ok := r.m.employees[employeeID]
	if !ok {
		return ErrNotFound
	}
	en := e.EnrollmentFor(courseID)
	if en == nil {
		return ErrNotFound
	}
	en.Progress = progress
	en.Status = status
	return nil
}

// ListEmployeesByCourse は指定コースを受講登録している従業員を返す。
func (r MemoryEnrollments) ListEmployeesByCourse(_ context.Context, courseID string) ([]*model.Employee, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*model.Employee
	for _, id := range r.m.employeeOrder {
		e := r.m.employees[id]
		if e.EnrollmentFor(courseID) != nil {
			out = append(out, cloneEmployee(e))
		}
	}
	return out, nil
}

// Count は受講登録エントリの総数を返す。
func (r MemoryEnrollments) Count(_ context.Context) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	n := 0
	for _, e := range r.m.employees {
		n += len(e.EnrolledCourses)
	}
	return n, nil
}

// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
func (r MemoryCourses) FindByID(_ context.Context, id string) (*model.Course, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if c, ok := r.m.courses[id]; ok {
		return cloneCourse(c), nil
	}
	return nil, nil
}

// FindByIDs は指定IDのコースをまとめて取得する。
func (r MemoryCourses) FindByIDs(_ context.Context, ids []string) ([]*model.Course, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*model.Course
	for _, id := range ids {
		if c, ok := r.m.courses[id]; ok {
			out = append(out, cloneCourse(c))
		}
	}
	return out, nil
}

// List はコース一覧を作成順に返す。
func (r MemoryCourses) List(_ context.Context, mandatoryOnly bool) ([]*model.Course, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*model.Course
	for _, id := range r.m.courseOrder {
		c := r.m.courses[id]
		if mandatoryOnly && !c.Mandatory {
			continue
		}
		out = append(out, cloneCourse(c))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Create はコースを作成する。
func (r MemoryCourses) Create(_ context.Context, course *model.Course) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, c := range r.m.courses {
		if c.Title == course.Title {
			return ErrDuplicate
		}
	}
	r.m.courses[course.ID] = cloneCourse(course)
	r.m.courseOrder = append(r.m.courseOrder, course.ID)
	return nil
}

// Update はコースを更新する。
func (r MemoryCourses) Update(_ context.Context, course *model.Course) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.courses[course.ID]; !ok {
		return ErrNotFound
	}
	for id, c := range r.m.courses {
		if id != course.ID && c.Title == course.Title {
			return ErrDuplicate
		}
	}
	r.m.courses[course.ID] = cloneCourse(course)
	return nil
}

// DeleteByID はコースを削除し、全従業員の受講登録からも取り除く。
func (r MemoryCourses) DeleteByID(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.courses[id]; !ok {
		return ErrNotFound
	}
	delete(r.m.courses, id)
	r.m.courseOrder = removeID(r.m.courseOrder, id)
	for _, e := range r.m.employees {
		kept := e.EnrolledCourses[:0]
		for _, en := range e.EnrolledCourses {
			if en.CourseID != id {
				kept = append(kept, en)
			}
		}
		e.EnrolledCourses = kept
	}
	return nil
}

// Count はコース数を返す。
func (r MemoryCourses) Count(_ context.Context, mandatoryOnly bool) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	n := 0
	for _, c := range r.m.courses {
		if !mandatoryOnly || c.Mandatory {
			n++
		}
	}
	return n, nil
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// compile-time interface check
var (
	_ EmployeeRepository   = MemoryEmployees{}
	_ EnrollmentRepository = MemoryEnrollments{}
	_ CourseRepository     = MemoryCourses{}
	_ Pinger               = (*MemoryStore)(nil)
)
