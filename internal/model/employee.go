package model

import "time"

// EnrollmentStatus は受講状態を表す。
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
)

// Enrollment は従業員に紐づく受講登録エントリ。
// 1人の従業員につき同一コースのエントリは最大1件。
type Enrollment struct {
	CourseID       string
	EnrollmentDate time.Time
	DueDate        *time.Time
	Status         EnrollmentStatus
	Progress       float64
}

// Employee は従業員を表すドメインモデル。
type Employee struct {
	ID              string
	Name            string
	Email           string
	Phone           string
	PasswordHash    string
	Image           string
	EnrolledCourses []Enrollment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EnrollmentFor は指定コースの受講エントリを返す。無ければnil。
func (e *Employee) EnrollmentFor(courseID string) *Enrollment {
	for i := range e.EnrolledCourses {
		if e.EnrolledCourses[i].CourseID == courseID {
			return &e.EnrolledCourses[i]
		}
	}
	return nil
}

// EnrolledCourse は受講エントリとコース本体を結合したもの。
type EnrolledCourse struct {
	Enrollment
	Course *Course
}

// NewEmployee は従業員登録の入力値。
type NewEmployee struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Image    string
}

// EmployeeUpdate は従業員更新の入力値。nilのフィールドは変更しない。
type EmployeeUpdate struct {
	Name     *string
	Email    *string
	Phone    *string
	Image    *string
	Password *string
}

// AuthSession はログイン・登録成功時に発行されるセッション。
type AuthSession struct {
	Token     string
	ExpiresAt time.Time
	Employee  *Employee
}

// DashboardStats は管理画面ダッシュボードの集計値。
type DashboardStats struct {
	TotalEmployees   int
	TotalCourses     int
	MandatoryCourses int
	TotalEnrollments int
}
