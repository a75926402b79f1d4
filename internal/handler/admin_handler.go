package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/learnhub/internal/metrics"
)

// AdminHandler は管理画面向けの従業員管理HTTPハンドラー。
type AdminHandler struct {
	employees   EmployeeServiceInterface
	enrollments EnrollmentServiceInterface
	metrics     metrics.MetricsCollector
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(employees EmployeeServiceInterface, enrollments EnrollmentServiceInterface, collector metrics.MetricsCollector) *AdminHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AdminHandler{
		employees:   employees,
		enrollments: enrollments,
		metrics:     collector,
	}
}

// Dashboard は集計値を返す。
// GET /api/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.employees.DashboardStats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": map[string]int{
			"totalEmployees":   stats.TotalEmployees,
			"totalCourses":     stats.TotalCourses,
			"mandatoryCourses": stats.MandatoryCourses,
			"totalEnrollments": stats.TotalEnrollments,
		},
	})
}

// RegisterEmployee は管理者が従業員を作成する。Cookieは設定しない。
// POST /api/admin/employee-register
func (h *AdminHandler) RegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	employee, err := h.employees.Create(r.Context(), req.toNewEmployee())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordRegistration()
	h.metrics.RecordEnrollments(metrics.EnrollmentSourceAuto, len(employee.EnrolledCourses))

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"employee": toEmployeeResponse(employee),
	})
}

// ListEmployees は全従業員を返す。
// GET /api/admin/employees
func (h *AdminHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.employees.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"employees": toEmployeeResponses(employees),
	})
}

// GetEmployee は従業員詳細を返す。
// GET /api/admin/employee/{id}
func (h *AdminHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	employee, err := h.employees.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"employee": toEmployeeResponse(employee),
	})
}

// UpdateEmployee は従業員情報を更新する。
// PUT /api/admin/employee/{id}
func (h *AdminHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	employee, err := h.employees.Update(r.Context(), chi.URLParam(r, "id"), req.toUpdate())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"employee": toEmployeeResponse(employee),
	})
}

// DeleteEmployee は従業員を削除する。
// DELETE /api/admin/employee/{id}
func (h *AdminHandler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	if err := h.employees.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "従業員を削除しました。",
	})
}

// EmployeeCourses は従業員の受講中コースを返す。
// GET /api/admin/employee/{id}/courses
func (h *AdminHandler) EmployeeCourses(w http.ResponseWriter, r *http.Request) {
	list, err := h.enrollments.ListEnrolled(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"courses": toEnrolledCourseResponses(list),
	})
}

// SyncMandatory は既存の従業員を未登録の必須コースへ受講登録する。
// POST /api/admin/employee/{id}/sync-mandatory
func (h *AdminHandler) SyncMandatory(w http.ResponseWriter, r *http.Request) {
	added, err := h.enrollments.AutoEnroll(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordEnrollments(metrics.EnrollmentSourceAuto, added)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"added":   added,
	})
}

// EnrolledEmployees はコースを受講登録している従業員を返す。
// GET /api/admin/course/{courseId}/enrolled-employees
func (h *AdminHandler) EnrolledEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.enrollments.EnrolledEmployees(r.Context(), chi.URLParam(r, "courseId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"employees": toEmployeeResponses(employees),
	})
}
