package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MB）。
const maxRequestBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONとして読み込む。
// 空ボディや不正なJSONはINVALID_REQUESTとして扱う。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("failed to decode request body", slog.String("error", err.Error()))
		return model.NewInvalidRequestError()
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーをレスポンスへ変換する。
// APIError以外は内部エラーとしてログに残し、500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// --- レスポンス表現 ---

// userSummary はログイン・登録レスポンスに含める最小限の従業員情報。
type userSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserSummary(e *model.Employee) userSummary {
	return userSummary{ID: e.ID, Name: e.Name, Email: e.Email}
}

// enrollmentResponse は従業員に埋め込まれた受講登録エントリ。
type enrollmentResponse struct {
	Course         string     `json:"course"`
	EnrollmentDate time.Time  `json:"enrollmentDate"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	Status         string     `json:"status"`
	Progress       float64    `json:"progress"`
}

// employeeResponse は従業員のAPIレスポンス。パスワードハッシュは含めない。
type employeeResponse struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Email           string               `json:"email"`
	Phone           string               `json:"phone"`
	Image           string               `json:"image"`
	EnrolledCourses []enrollmentResponse `json:"enrolledCourses"`
	CreatedAt       time.Time            `json:"createdAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
}

func toEmployeeResponse(e *model.Employee) employeeResponse {
	entries := make([]enrollmentResponse, len(e.EnrolledCourses))
	for i, en := range e.EnrolledCourses {
		entries[i] = enrollmentResponse{
			Course:         en.CourseID,
			EnrollmentDate: en.EnrollmentDate,
			DueDate:        en.DueDate,
			Status:         string(en.Status),
			Progress:       en.Progress,
		}
	}
	return employeeResponse{
		ID:              e.ID,
		Name:            e.Name,
		Email:           e.Email,
		Phone:           e.Phone,
		Image:           e.Image,
		EnrolledCourses: entries,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

func toEmployeeResponses(employees []*model.Employee) []employeeResponse {
	out := make([]employeeResponse, len(employees))
	for i, e := range employees {
		out[i] = toEmployeeResponse(e)
	}
	return out
}

// courseResponse はコースのAPIレスポンス。
type courseResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Hours       float64   `json:"hours"`
	Difficulty  string    `json:"difficulty"`
	Mandatory   bool      `json:"mandatory"`
	Images      string    `json:"images"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toCourseResponse(c *model.Course) courseResponse {
	return courseResponse{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Hours:       c.Hours,
		Difficulty:  string(c.Difficulty),
		Mandatory:   c.Mandatory,
		Images:      c.Images,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toCourseResponses(courses []*model.Course) []courseResponse {
	out := make([]courseResponse, len(courses))
	for i, c := range courses {
		out[i] = toCourseResponse(c)
	}
	return out
}

// enrolledCourseResponse はコース情報に受講状況を加えたもの。
type enrolledCourseResponse struct {
	courseResponse
	EnrollmentDate time.Time  `json:"enrollmentDate"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	Status         string     `json:"status"`
	Progress       float64    `json:"progress"`
}

func toEnrolledCourseResponse(ec model.EnrolledCourse) enrolledCourseResponse {
	resp := enrolledCourseResponse{
		EnrollmentDate: ec.EnrollmentDate,
		DueDate:        ec.DueDate,
		Status:         string(ec.Status),
		Progress:       ec.Progress,
	}
	if ec.Course != nil {
		resp.courseResponse = toCourseResponse(ec.Course)
	} else {
		resp.ID = ec.CourseID
	}
	return resp
}

func toEnrolledCourseResponses(list []model.EnrolledCourse) []enrolledCourseResponse {
	out := make([]enrolledCourseResponse, len(list))
	for i, ec := range list {
		out[i] = toEnrolledCourseResponse(ec)
	}
	return out
}
