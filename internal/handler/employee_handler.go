package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
)

// EmployeeServiceInterface は従業員関連ハンドラーが必要とするサービスインターフェース。
type EmployeeServiceInterface interface {
	Create(ctx context.Context, input model.NewEmployee) (*model.Employee, error)
	Get(ctx context.Context, id string) (*model.Employee, error)
	List(ctx context.Context) ([]*model.Employee, error)
	Update(ctx context.Context, id string, update model.EmployeeUpdate) (*model.Employee, error)
	UpdateProfile(ctx context.Context, id string, update model.EmployeeUpdate) (*model.Employee, error)
	Delete(ctx context.Context, id string) error
	DashboardStats(ctx context.Context) (*model.DashboardStats, error)
}

// EnrollmentServiceInterface は受講登録ハンドラーが必要とするサービスインターフェース。
type EnrollmentServiceInterface interface {
	AutoEnroll(ctx context.Context, employeeID string) (int, error)
	Enroll(ctx context.Context, employeeID, courseID string) (*model.EnrolledCourse, error)
	UpdateProgress(ctx context.Context, employeeID, courseID string, progress float64) (*model.EnrolledCourse, error)
	ListEnrolled(ctx context.Context, employeeID string) ([]model.EnrolledCourse, error)
	IsEnrolled(ctx context.Context, employeeID, courseID string) (bool, error)
	EnrolledEmployees(ctx context.Context, courseID string) ([]*model.Employee, error)
}

// EmployeeHandler はログイン中の従業員本人向けのHTTPハンドラー。
type EmployeeHandler struct {
	employees   EmployeeServiceInterface
	enrollments EnrollmentServiceInterface
	metrics     metrics.MetricsCollector
}

// NewEmployeeHandler はEmployeeHandlerを生成する。
func NewEmployeeHandler(employees EmployeeServiceInterface, enrollments EnrollmentServiceInterface, collector metrics.MetricsCollector) *EmployeeHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &EmployeeHandler{
		employees:   employees,
		enrollments: enrollments,
		metrics:     collector,
	}
}

// profileRequest はプロフィール更新・管理者による従業員更新のボディ。
type profileRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Image    *string `json:"image"`
	Password *string `json:"password"`
}

func (r profileRequest) toUpdate() model.EmployeeUpdate {
	return model.EmployeeUpdate{
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone,
		Image:    r.Image,
		Password: r.Password,
	}
}

type progressRequest struct {
	Progress *float64 `json:"progress"`
}

// employeeID は認証ゲートが注入した従業員IDを取り出す。
func employeeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := middleware.EmployeeIDFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewTokenMissingError())
		return "", false
	}
	return id, true
}

// CurrentEmployee はログイン中の従業員のプロフィールを返す。
// GET /api/employee/current-employee
func (h *EmployeeHandler) CurrentEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	employee, err := h.employees.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"employee": toEmployeeResponse(employee),
	})
}

// UpdateProfile はログイン中の従業員のプロフィールを更新する。
// PUT /api/employee/profile
func (h *EmployeeHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	employee, err := h.employees.UpdateProfile(r.Context(), id, req.toUpdate())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"employee": toEmployeeResponse(employee),
	})
}

// Enroll はログイン中の従業員を指定コースに受講登録する。
// POST /api/employee/enroll-course/{courseId}
func (h *EmployeeHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	enrolled, err := h.enrollments.Enroll(r.Context(), id, chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordEnrollments(metrics.EnrollmentSourceManual, 1)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "受講登録しました。",
		"enrollment": toEnrolledCourseResponse(*enrolled),
	})
}

// CheckEnrollment は指定コースに受講登録済みかどうかを返す。
// GET /api/employee/check-enrollment/{courseId}
func (h *EmployeeHandler) CheckEnrollment(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	enrolled, err := h.enrollments.IsEnrolled(r.Context(), id, chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enrolled": enrolled})
}

// EnrolledCourses は受講中のコース一覧を返す。
// GET /api/employee/enrolled-courses
func (h *EmployeeHandler) EnrolledCourses(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	list, err := h.enrollments.ListEnrolled(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"courses": toEnrolledCourseResponses(list),
	})
}

// UpdateProgress は受講の進捗を更新する。
// PUT /api/employee/progress/{courseId}
func (h *EmployeeHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}

	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if req.Progress == nil {
		handleServiceError(w, model.NewValidationError("progressは必須です。"))
		return
	}

	updated, err := h.enrollments.UpdateProgress(r.Context(), id, chi.URLParam(r, "courseId"), *req.Progress)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"enrollment": toEnrolledCourseResponse(*updated),
	})
}
