// Package reconcile は必須コースの受講登録を全従業員へ反映するバッチジョブを提供する。
// 従業員の登録後に必須フラグが立ったコースを、既存従業員へ後追いで登録する。
// 登録済みのコースはスキップするため、何度実行しても結果は変わらない。
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/learnhub/internal/model"
)

// EmployeeLister は全従業員の取得を抽象化するインターフェース。
type EmployeeLister interface {
	List(ctx context.Context) ([]*model.Employee, error)
}

// MandatoryEnroller は従業員を未登録の必須コースへ登録する。
// enrollment.Engineが実装する。
type MandatoryEnroller interface {
	AutoEnroll(ctx context.Context, employeeID string) (int, error)
}

// Summary はジョブ1回分の実行結果。
type Summary struct {
	Employees int // 処理した従業員数
	Enrolled  int // 追加した受講登録の件数
	Failed    int // 登録に失敗した従業員数
}

// Job は必須コースの再同期ジョブ。
type Job struct {
	employees EmployeeLister
	enroller  MandatoryEnroller
	logger    *slog.Logger
}

// NewJob は新しいJobを生成する。
func NewJob(employees EmployeeLister, enroller MandatoryEnroller, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		employees: employees,
		enroller:  enroller,
		logger:    logger,
	}
}

// Run は全従業員に対してAutoEnrollを実行する。
// 個々の従業員の失敗はログに残して処理を続け、Summary.Failedに数える。
// 従業員一覧の取得失敗とコンテキストのキャンセルはエラーとして返す。
func (j *Job) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	employees, err := j.employees.List(ctx)
	if err != nil {
		j.logger.Error("従業員一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return summary, fmt.Errorf("従業員一覧の取得に失敗: %w", err)
	}

	for _, e := range employees {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		added, err := j.enroller.AutoEnroll(ctx, e.ID)
		summary.Employees++
		summary.Enrolled += added
		if err != nil {
			summary.Failed++
			j.logger.Warn("必須コースの同期に失敗しました",
				slog.String("employee_id", e.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	j.logger.Info("必須コースの同期ジョブが完了しました",
		slog.Int("employees", summary.Employees),
		slog.Int("enrolled", summary.Enrolled),
		slog.Int("failed", summary.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return summary, nil
}
