package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDBのコレクション名
const (
	EmployeesCollection = "employees"
	CoursesCollection   = "courses"
)

// ConnectMongo はMongoDBクライアントを生成し、リトライ付きでPingが通るまで待つ。
// サーバー選択タイムアウトは各試行のタイムアウトに合わせる。
func ConnectMongo(ctx context.Context, uri, dbName string, rc RetryConfig) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().ApplyURI(uri)
	if rc.AttemptTimeout > 0 {
		opts.SetServerSelectionTimeout(rc.AttemptTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	ping := func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
	if err := WithRetry(ctx, rc, string(BackendMongo), ping); err != nil {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
		return nil, nil, err
	}

	return client, client.Database(dbName), nil
}

// EnsureMongoIndexes は一意制約と検索用インデックスを作成する。
// 既に存在するインデックスはそのまま残る。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	employeeIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("employees_email_unique"),
		},
		{
			Keys:    bson.D{{Key: "enrolledCourses.course", Value: 1}},
			Options: options.Index().SetName("employees_enrolled_course"),
		},
	}
	if _, err := db.Collection(EmployeesCollection).Indexes().CreateMany(ctx, employeeIndexes); err != nil {
		return fmt.Errorf("failed to create employee indexes: %w", err)
	}

	courseIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "title", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("courses_title_unique"),
		},
		{
			Keys:    bson.D{{Key: "mandatory", Value: 1}},
			Options: options.Index().SetName("courses_mandatory"),
		},
	}
	if _, err := db.Collection(CoursesCollection).Indexes().CreateMany(ctx, courseIndexes); err != nil {
		return fmt.Errorf("failed to create course indexes: %w", err)
	}

	return nil
}
