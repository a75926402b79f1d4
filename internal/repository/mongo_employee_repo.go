package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hitoshi/learnhub/internal/database"
	"github.com/hitoshi/learnhub/internal/model"
)

// employeeDocument はemployeesコレクションのドキュメント。
// 受講登録はドキュメント内に埋め込む。
type employeeDocument struct {
	ID              string               `bson:"_id"`
	Name            string               `bson:"name"`
	Email           string               `bson:"email"`
	Phone           string               `bson:"phone"`
	Password        string               `bson:"password"`
	Image           string               `bson:"image"`
	EnrolledCourses []enrollmentDocument `bson:"enrolledCourses"`
	CreatedAt       time.Time            `bson:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt"`
}

type enrollmentDocument struct {
	Course         string     `bson:"course"`
	EnrollmentDate time.Time  `bson:"enrollmentDate"`
	DueDate        *time.Time `bson:"dueDate,omitempty"`
	Status         string     `bson:"status"`
	Progress       float64    `bson:"progress"`
}

func toEnrollmentDocument(en model.Enrollment) enrollmentDocument {
	return enrollmentDocument{
		Course:         en.CourseID,
		EnrollmentDate: en.EnrollmentDate,
		DueDate:        en.DueDate,
		Status:         string(en.Status),
		Progress:       en.Progress,
	}
}

func (d *employeeDocument) toModel() *model.Employee {
	e := &model.Employee{
		ID:           d.ID,
		Name:         d.Name,
		Email:        d.Email,
		Phone:        d.Phone,
		PasswordHash: d.Password,
		Image:        d.Image,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	for _, en := range d.EnrolledCourses {
		e.EnrolledCourses = append(e.EnrolledCourses, model.Enrollment{
			CourseID:       en.Course,
			EnrollmentDate: en.EnrollmentDate,
			DueDate:        en.DueDate,
			Status:         model.EnrollmentStatus(en.Status),
			Progress:       en.Progress,
		})
	}
	return e
}

// MongoEmployeeRepo はMongoDBを使用した従業員リポジトリ。
type MongoEmployeeRepo struct {
	coll *mongo.Collection
}

// NewMongoEmployeeRepo はMongoEmployeeRepoを生成する。
func NewMongoEmployeeRepo(db *mongo.Database) *MongoEmployeeRepo {
	return &MongoEmployeeRepo{coll: db.Collection(database.EmployeesCollection)}
}

// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
func (r *MongoEmployeeRepo) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail はメールアドレスで従業員を検索する。見つからない場合はnilを返す。
func (r *MongoEmployeeRepo) FindByEmail(ctx context.Context, email string) (*model.Employee, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoEmployeeRepo) findOne(ctx context.Context, filter bson.M) (*model.Employee, error) {
	var doc employeeDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}
	return doc.toModel(), nil
}

// List は全従業員を登録日時の昇順で返す。
func (r *MongoEmployeeRepo) List(ctx context.Context) ([]*model.Employee, error) {
	return findEmployees(ctx, r.coll, bson.M{})
}

func findEmployees(ctx context.Context, coll *mongo.Collection, filter bson.M) ([]*model.Employee, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer cur.Close(ctx)

	var employees []*model.Employee
	for cur.Next(ctx) {
		var doc employeeDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode employee: %w", err)
		}
		employees = append(employees, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate employees: %w", err)
	}
	return employees, nil
}

// CreateWithEnrollments は受講登録を埋め込んだ従業員ドキュメントを1回の挿入で作成する。
func (r *MongoEmployeeRepo) CreateWithEnrollments(ctx context.Context, employee *model.Employee) error {
	doc := employeeDocument{
		ID:        employee.ID,
		Name:      employee.Name,
		Email:     employee.Email,
		Phone:     employee.Phone,
		Password:  employee.PasswordHash,
		Image:     employee.Image,
		CreatedAt: employee.CreatedAt,
		UpdatedAt: employee.UpdatedAt,
		// $push の対象になるため null ではなく空配列で保存する
		EnrolledCourses: make([]enrollmentDocument, 0, len(employee.EnrolledCourses)),
	}
	for _, en := range employee.EnrolledCourses {
		doc.EnrolledCourses = append(doc.EnrolledCourses, toEnrollmentDocument(en))
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert employee: %w", err)
	}
	return nil
}

// Update は従業員のプロフィールを更新する。
func (r *MongoEmployeeRepo) Update(ctx context.Context, employee *model.Employee) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": employee.ID},
		bson.M{"$set": bson.M{
			"name":      employee.Name,
			"email":     employee.Email,
			"phone":     employee.Phone,
			"image":     employee.Image,
			"password":  employee.PasswordHash,
			"updatedAt": employee.UpdatedAt,
		}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update employee: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByID は指定IDの従業員ドキュメントを削除する。
func (r *MongoEmployeeRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete employee: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Count は従業員数を返す。
func (r *MongoEmployeeRepo) Count(ctx context.Context) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count employees: %w", err)
	}
	return int(n), nil
}

// compile-time interface check
var _ EmployeeRepository = (*MongoEmployeeRepo)(nil)
