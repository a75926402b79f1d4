package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hitoshi/learnhub/internal/database"
	"github.com/hitoshi/learnhub/internal/model"
)

// MongoEnrollmentRepo は従業員ドキュメントに埋め込まれた受講登録を操作する。
// 重複登録は条件付き$pushで防ぐ。
type MongoEnrollmentRepo struct {
	coll *mongo.Collection
}

// NewMongoEnrollmentRepo はMongoEnrollmentRepoを生成する。
func NewMongoEnrollmentRepo(db *mongo.Database) *MongoEnrollmentRepo {
	return &MongoEnrollmentRepo{coll: db.Collection(database.EmployeesCollection)}
}

// Add は同じコースのエントリが無い場合に限り受講登録を追加する。
func (r *MongoEnrollmentRepo) Add(ctx context.Context, employeeID string, enrollment model.Enrollment) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":                    employeeID,
			"enrolledCourses.course": bson.M{"$ne": enrollment.CourseID},
		},
		bson.M{
			"$push": bson.M{"enrolledCourses": toEnrollmentDocument(enrollment)},
			"$set":  bson.M{"updatedAt": enrollment.EnrollmentDate},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to push enrollment: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// 一致しなかった理由が「従業員が居ない」のか「登録済み」なのかを判定する
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": employeeID})
	if err != nil {
		return fmt.Errorf("failed to check employee: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrDuplicate
}

// UpdateProgress は進捗と状態を更新する。
func (r *MongoEnrollmentRepo) UpdateProgress(ctx context.Context, employeeID, courseID string, progress float64, status model.EnrollmentStatus) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": employeeID, "enrolledCourses.course": courseID},
		bson.M{"$set": bson.M{
			"enrolledCourses.$.progress": progress,
			"enrolledCourses.$.status":   string(status),
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update enrollment progress: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEmployeesByCourse は指定コースを受講登録している従業員を返す。
func (r *MongoEnrollmentRepo) ListEmployeesByCourse(ctx context.Context, courseID string) ([]*model.Employee, error) {
	return findEmployees(ctx, r.coll, bson.M{"enrolledCourses.course": courseID})
}

// Count は全従業員の受講登録エントリ数を集計する。
func (r *MongoEnrollmentRepo) Count(ctx context.Context) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{
			"n": bson.M{"$size": bson.M{"$ifNull": bson.A{"$enrolledCourses", bson.A{}}}},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$n"},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollments: %w", err)
	}
	defer cur.Close(ctx)

	var out []struct {
		Total int `bson:"total"`
	}
	if err := cur.All(ctx, &out); err != nil {
		return 0, fmt.Errorf("failed to decode enrollment count: %w", err)
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Total, nil
}

// compile-time interface check
var _ EnrollmentRepository = (*MongoEnrollmentRepo)(nil)
