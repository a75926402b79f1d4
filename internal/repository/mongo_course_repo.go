package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hitoshi/learnhub/internal/database"
	"github.com/hitoshi/learnhub/internal/model"
)

type courseDocument struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Hours       float64   `bson:"hours"`
	Difficulty  string    `bson:"difficulty"`
	Mandatory   bool      `bson:"mandatory"`
	Images      string    `bson:"images"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func (d *courseDocument) toModel() *model.Course {
	return &model.Course{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Hours:       d.Hours,
		Difficulty:  model.Difficulty(d.Difficulty),
		Mandatory:   d.Mandatory,
		Images:      d.Images,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoCourseRepo はMongoDBを使用したコースリポジトリ。
type MongoCourseRepo struct {
	coll      *mongo.Collection
	employees *mongo.Collection
}

// NewMongoCourseRepo はMongoCourseRepoを生成する。
func NewMongoCourseRepo(db *mongo.Database) *MongoCourseRepo {
	return &MongoCourseRepo{
		coll:      db.Collection(database.CoursesCollection),
		employees: db.Collection(database.EmployeesCollection),
	}
}

// FindByID は指定IDのコースを取得する。見つからない場合はnilを返す。
func (r *MongoCourseRepo) FindByID(ctx context.Context, id string) (*model.Course, error) {
	var doc courseDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course by ID: %w", err)
	}
	return doc.toModel(), nil
}

// FindByIDs は指定IDのコースをまとめて取得する。
func (r *MongoCourseRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

// List はコース一覧を作成日時の昇順で返す。
func (r *MongoCourseRepo) List(ctx context.Context, mandatoryOnly bool) ([]*model.Course, error) {
	filter := bson.M{}
	if mandatoryOnly {
		filter["mandatory"] = true
	}
	return r.find(ctx, filter)
}

func (r *MongoCourseRepo) find(ctx context.Context, filter bson.M) ([]*model.Course, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer cur.Close(ctx)

	var courses []*model.Course
	for cur.Next(ctx) {
		var doc courseDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode course: %w", err)
		}
		courses = append(courses, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}
	return courses, nil
}

// Create はコースを作成する。
func (r *MongoCourseRepo) Create(ctx context.Context, course *model.Course) error {
	doc := courseDocument{
		ID:          course.ID,
		Title:       course.Title,
		Description: course.Description,
		Hours:       course.Hours,
		Difficulty:  string(course.Difficulty),
		Mandatory:   course.Mandatory,
		Images:      course.Images,
		CreatedAt:   course.CreatedAt,
		UpdatedAt:   course.UpdatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert course: %w", err)
	}
	return nil
}

// Update はコースを更新する。
func (r *MongoCourseRepo) Update(ctx context.Context, course *model.Course) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": course.ID},
		bson.M{"$set": bson.M{
			"title":       course.Title,
			"description": course.Description,
			"hours":       course.Hours,
			"difficulty":  string(course.Difficulty),
			"mandatory":   course.Mandatory,
			"images":      course.Images,
			"updatedAt":   course.UpdatedAt,
		}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update course: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID はコースを削除し、全従業員の受講登録からも取り除く。
func (r *MongoCourseRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete course: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}

	_, err = r.employees.UpdateMany(ctx,
		bson.M{"enrolledCourses.course": id},
		bson.M{"$pull": bson.M{"enrolledCourses": bson.M{"course": id}}},
	)
	if err != nil {
		return fmt.Errorf("failed to remove course from enrollments: %w", err)
	}
	return nil
}

// Count はコース数を返す。
func (r *MongoCourseRepo) Count(ctx context.Context, mandatoryOnly bool) (int, error) {
	filter := bson.M{}
	if mandatoryOnly {
		filter["mandatory"] = true
	}
	n, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count courses: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var _ CourseRepository = (*MongoCourseRepo)(nil)

// MongoPinger はMongoDBクライアントの疎通確認を行う。
type MongoPinger struct {
	client *mongo.Client
}

// Ping はプライマリへの疎通を確認する。
func (p MongoPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}

// NewMongoStore はMongoDBバックエンドのリポジトリ一式を生成する。
func NewMongoStore(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		Employees:   NewMongoEmployeeRepo(db),
		Enrollments: NewMongoEnrollmentRepo(db),
		Courses:     NewMongoCourseRepo(db),
		Health:      MongoPinger{client: client},
		Close:       client.Disconnect,
	}
}
