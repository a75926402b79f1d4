package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
)

// NewRecoveryMiddleware はハンドラーのpanicを捕捉して500を返すミドルウェアを生成する。
// ログにはルートパターンと、認証ゲートを通過していれば従業員IDまたはロールを残す。
// レスポンスを書き始めた後のpanicではボディを重ねて書かない。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)

			info := requestInfoFrom(r.Context())
			if info == nil {
				info = &requestInfo{}
				r = r.WithContext(withRequestInfo(r.Context(), info))
			}

			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				attrs := []any{
					slog.Any("panic", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", rec.written),
					slog.String("stack", string(debug.Stack())),
				}
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					attrs = append(attrs, slog.String("route", rctx.RoutePattern()))
				}
				if info.employeeID != "" {
					attrs = append(attrs, slog.String("employee_id", info.employeeID))
				}
				if info.role != "" {
					attrs = append(attrs, slog.String("role", info.role))
				}
				logger.Error("panic recovered", attrs...)

				if !rec.written {
					WriteInternalServerError(rec)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}
