package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/learnhub/internal/database"
	"github.com/hitoshi/learnhub/internal/model"
)

func TestMongoRepos_ImplementInterfaces(t *testing.T) {
	var _ EmployeeRepository = (*MongoEmployeeRepo)(nil)
	var _ EnrollmentRepository = (*MongoEnrollmentRepo)(nil)
	var _ CourseRepository = (*MongoCourseRepo)(nil)
}

// TEST_MONGO_URL が設定されている場合のみ実行する結合テスト。
func TestMongoStore_EnrollmentLifecycle(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URL")
	if uri == "" {
		t.Skip("TEST_MONGO_URL が未設定のためスキップ")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rc := database.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, AttemptTimeout: 3 * time.Second}
	client, db, err := database.ConnectMongo(ctx, uri, "learnhub_test_"+uuid.NewString()[:8], rc)
	if err != nil {
		t.Skipf("MongoDBに接続できません（スキップ）: %v", err)
	}
	t.Cleanup(func() {
		db.Drop(context.Background())
		client.Disconnect(context.Background())
	})
	if err := database.EnsureMongoIndexes(ctx, db); err != nil {
		t.Fatalf("インデックス作成に失敗: %v", err)
	}

	store := NewMongoStore(client, db)
	now := time.Now().UTC().Truncate(time.Millisecond)

	course := newTestCourse(uuid.NewString(), "Security Basics", true, now)
	if err := store.Courses.Create(ctx, course); err != nil {
		t.Fatalf("コース作成に失敗: %v", err)
	}
	emp := newTestEmployee(uuid.NewString(), "alice@x.com")
	if err := store.Employees.CreateWithEnrollments(ctx, emp); err != nil {
		t.Fatalf("従業員作成に失敗: %v", err)
	}

	en := model.Enrollment{CourseID: course.ID, EnrollmentDate: now, Status: model.EnrollmentStatusEnrolled}
	if err := store.Enrollments.Add(ctx, emp.ID, en); err != nil {
		t.Fatalf("受講登録に失敗: %v", err)
	}
	if err := store.Enrollments.Add(ctx, emp.ID, en); !errors.Is(err, ErrDuplicate) {
		t.Errorf("重複登録はErrDuplicateになるべき: %v", err)
	}
	if err := store.Enrollments.Add(ctx, uuid.NewString(), en); !errors.Is(err, ErrNotFound) {
		t.Errorf("存在しない従業員はErrNotFoundになるべき: %v", err)
	}

	n, err := store.Enrollments.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v; want 1", n, err)
	}

	if err := store.Courses.DeleteByID(ctx, course.ID); err != nil {
		t.Fatalf("コース削除に失敗: %v", err)
	}
	got, _ := store.Employees.FindByID(ctx, emp.ID)
	if len(got.EnrolledCourses) != 0 {
		t.Errorf("コース削除後も受講登録が残っている: %+v", got.EnrolledCourses)
	}
}
