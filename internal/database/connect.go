package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

// RetryConfig はデータベース接続リトライの設定。
// 待機時間は InitialDelay から倍々に伸びる（1s, 2s, 4s, ...）。
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryConfig は既定のリトライ設定を返す。
func DefaultRetryConfig(attempts int, attemptTimeout time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: attemptTimeout,
	}
}

// WithRetry はpingが成功するまで指数バックオフでリトライする。
// 各試行はAttemptTimeoutで打ち切られ、試行回数を使い切るとエラーを返す。
func WithRetry(ctx context.Context, rc RetryConfig, name string, ping func(ctx context.Context) error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = 30 * time.Second
	}

	retrier := retry.New[struct{}](retry.Config{
		MaxAttempts:   rc.MaxAttempts,
		InitialDelay:  rc.InitialDelay,
		MaxDelay:      rc.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        false,
		IsRetryable: func(err error) bool {
			return ctx.Err() == nil
		},
	})

	attempt := 0
	_, err := retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		attempt++
		attemptCtx := ctx
		if rc.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, rc.AttemptTimeout)
			defer cancel()
		}

		if err := ping(attemptCtx); err != nil {
			slog.Warn("database connection attempt failed",
				slog.String("backend", name),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", rc.MaxAttempts),
				slog.String("error", err.Error()),
			)
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s after %d attempts: %w", name, attempt, err)
	}

	slog.Info("database connected", slog.String("backend", name), slog.Int("attempt", attempt))
	return nil
}
