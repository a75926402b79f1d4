// Package course はコースカタログのドメインロジックを提供する。
package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/hitoshi/learnhub/internal/security"
)

// Service はコース管理のサービス層。
type Service struct {
	courses   repository.CourseRepository
	sanitizer security.Sanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(courses repository.CourseRepository, sanitizer security.Sanitizer) *Service {
	return &Service{
		courses:   courses,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は全コースを作成順に返す。
func (s *Service) List(ctx context.Context) ([]*model.Course, error) {
	return s.list(ctx, false)
}

// ListMandatory は必須コースのみを返す。
func (s *Service) ListMandatory(ctx context.Context) ([]*model.Course, error) {
	return s.list(ctx, true)
}

func (s *Service) list(ctx context.Context, mandatoryOnly bool) ([]*model.Course, error) {
	courses, err := s.courses.List(ctx, mandatoryOnly)
	if err != nil {
		return nil, fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}
	if courses == nil {
		courses = []*model.Course{}
	}
	return courses, nil
}

// Get は指定IDのコースを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Course, error) {
	course, err := s.courses.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コースの取得に失敗しました: %w", err)
	}
	if course == nil {
		return nil, model.NewCourseNotFoundError(id)
	}
	return course, nil
}

// Create はコースを作成する。タイトルは一意。
// タイトル、説明、受講時間、難易度はすべて必須。
func (s *Service) Create(ctx context.Context, input model.CourseInput) (*model.Course, error) {
	now := s.now().UTC()
	course := &model.Course{
		ID:          uuid.New().String(),
		Title:       s.sanitizer.Text(input.Title),
		Description: s.sanitizer.Description(input.Description),
		Hours:       input.Hours,
		Difficulty:  input.Difficulty,
		Mandatory:   input.Mandatory,
		Images:      s.sanitizer.ImageRef(input.Images),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := validate(course); err != nil {
		return nil, err
	}

	if err := s.courses.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewCourseTitleExistsError()
		}
		return nil, fmt.Errorf("コースの作成に失敗しました: %w", err)
	}

	slog.Info("course created",
		slog.String("course_id", course.ID),
		slog.Bool("mandatory", course.Mandatory),
	)
	return course, nil
}

// Update はコースを部分更新する。nilのフィールドは変更しない。
// 必須フラグを後から立てた場合、既存従業員への反映はreconcileで行う。
func (s *Service) Update(ctx context.Context, id string, update model.CourseUpdate) (*model.Course, error) {
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Title != nil {
		course.Title = s.sanitizer.Text(*update.Title)
	}
	if update.Description != nil {
		course.Description = s.sanitizer.Description(*update.Description)
	}
	if update.Hours != nil {
		course.Hours = *update.Hours
	}
	if update.Difficulty != nil {
		course.Difficulty = *update.Difficulty
	}
	if update.Mandatory != nil {
		course.Mandatory = *update.Mandatory
	}
	if update.Images != nil {
		course.Images = s.sanitizer.ImageRef(*update.Images)
	}
	if err := validate(course); err != nil {
		return nil, err
	}
	course.UpdatedAt = s.now().UTC()

	if err := s.courses.Update(ctx, course); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, model.NewCourseTitleExistsError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewCourseNotFoundError(id)
		}
		return nil, fmt.Errorf("コースの更新に失敗しました: %w", err)
	}
	return course, nil
}

// Delete はコースを削除する。全従業員の受講登録からも取り除かれる。
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.courses.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewCourseNotFoundError(id)
		}
		return fmt.Errorf("コースの削除に失敗しました: %w", err)
	}
	slog.Info("course deleted", slog.String("course_id", id))
	return nil
}

func validate(c *model.Course) error {
	if c.Title == "" || c.Description == "" || c.Difficulty == "" {
		return model.NewValidationError("コース名、説明、受講時間、難易度は必須です。")
	}
	if math.IsNaN(c.Hours) || c.Hours <= 0 {
		return model.NewValidationError("受講時間は0より大きい値を指定してください。")
	}
	if !c.Difficulty.Valid() {
		return model.NewValidationError(fmt.Sprintf("難易度が不正です: %s", c.Difficulty))
	}
	return nil
}
