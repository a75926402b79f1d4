package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/learnhub/internal/model"
)

// CourseServiceInterface はコースハンドラーが必要とするサービスインターフェース。
type CourseServiceInterface interface {
	List(ctx context.Context) ([]*model.Course, error)
	ListMandatory(ctx context.Context) ([]*model.Course, error)
	Get(ctx context.Context, id string) (*model.Course, error)
	Create(ctx context.Context, input model.CourseInput) (*model.Course, error)
	Update(ctx context.Context, id string, update model.CourseUpdate) (*model.Course, error)
	Delete(ctx context.Context, id string) error
}

// CourseHandler はコースカタログのHTTPハンドラー。
type CourseHandler struct {
	service CourseServiceInterface
}

// NewCourseHandler はCourseHandlerを生成する。
func NewCourseHandler(service CourseServiceInterface) *CourseHandler {
	return &CourseHandler{service: service}
}

// courseRequest はコース作成・更新リクエストのボディ。
// 更新では省略したフィールドを変更しない。
type courseRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Hours       *float64 `json:"hours"`
	Difficulty  *string  `json:"difficulty"`
	Mandatory   *bool    `json:"mandatory"`
	Images      *string  `json:"images"`
}

func (r courseRequest) toInput() model.CourseInput {
	in := model.CourseInput{}
	if r.Title != nil {
		in.Title = *r.Title
	}
	if r.Description != nil {
		in.Description = *r.Description
	}
	if r.Hours != nil {
		in.Hours = *r.Hours
	}
	if r.Difficulty != nil {
		in.Difficulty = model.Difficulty(*r.Difficulty)
	}
	if r.Mandatory != nil {
		in.Mandatory = *r.Mandatory
	}
	if r.Images != nil {
		in.Images = *r.Images
	}
	return in
}

func (r courseRequest) toUpdate() model.CourseUpdate {
	up := model.CourseUpdate{
		Title:       r.Title,
		Description: r.Description,
		Hours:       r.Hours,
		Mandatory:   r.Mandatory,
		Images:      r.Images,
	}
	if r.Difficulty != nil {
		d := model.Difficulty(*r.Difficulty)
		up.Difficulty = &d
	}
	return up
}

// ListCourses はコース一覧を返す。
// GET /api/courses, GET /api/admin/courses
func (h *CourseHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"courses": toCourseResponses(courses),
	})
}

// ListMandatoryCourses は必須コース一覧を返す。
// GET /api/admin/mandatory-courses
func (h *CourseHandler) ListMandatoryCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.ListMandatory(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"courses": toCourseResponses(courses),
	})
}

// GetCourse はコース詳細を返す。
// GET /api/courses/{id}
func (h *CourseHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"course":  toCourseResponse(course),
	})
}

// CreateCourse はコースを作成する。
// POST /api/courses, POST /api/admin/courses
func (h *CourseHandler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	course, err := h.service.Create(r.Context(), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"course":  toCourseResponse(course),
	})
}

// UpdateCourse はコースを更新する。
// PUT /api/courses/{id}, PUT /api/admin/courses/{id}
func (h *CourseHandler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var req courseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	course, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req.toUpdate())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"course":  toCourseResponse(course),
	})
}

// DeleteCourse はコースを削除する。
// DELETE /api/courses/{id}, DELETE /api/admin/courses/{id}
func (h *CourseHandler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "コースを削除しました。",
	})
}
