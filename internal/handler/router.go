package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger         *slog.Logger
	Metrics        metrics.MetricsCollector
	Gatherer       prometheus.Gatherer // nilの場合は /metrics を公開しない
	AllowedOrigins []string
	Production     bool
	TrustProxy     bool                    // trueの場合のみX-Forwarded-For等からクライアントIPを取得する
	RateLimiter    *middleware.RateLimiter // ログイン試行の制限。nilの場合は制限しない

	// 認証
	AuthService AuthServiceInterface
	Cookies     CookieConfig

	// ドメインサービス
	CourseService     CourseServiceInterface
	EmployeeService   EmployeeServiceInterface
	EnrollmentService EnrollmentServiceInterface

	// ヘルスチェック
	Health repository.Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	[RealIP] → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// RealIPはTrustProxyが有効な場合のみ適用する。無効時はソケットのRemoteAddrを
// そのまま使うため、ヘッダーの偽装でレート制限を回避できない。
// 従業員ルートはEmployeeAuth、管理者ルートはAdminAuthのゲートを通す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Production))
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))

	employeeGate := middleware.NewEmployeeAuthMiddleware(deps.AuthService, collector)
	adminGate := middleware.NewAdminAuthMiddleware(deps.AuthService, collector)
	loginLimit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		loginLimit = deps.RateLimiter.Middleware()
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies, collector)
	courseHandler := NewCourseHandler(deps.CourseService)
	employeeHandler := NewEmployeeHandler(deps.EmployeeService, deps.EnrollmentService, collector)
	adminHandler := NewAdminHandler(deps.EmployeeService, deps.EnrollmentService, collector)
	healthHandler := NewHealthHandler(deps.Health)

	// --- 認証不要のルート ---
	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// 従業員認証
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.With(loginLimit).Post("/login", authHandler.Login)
		r.Get("/check", authHandler.Check)
		r.With(employeeGate).Post("/logout", authHandler.Logout)
	})

	// コースカタログ（参照は公開、変更は管理者のみ）
	r.Route("/api/courses", func(r chi.Router) {
		r.Get("/", courseHandler.ListCourses)
		r.Get("/{id}", courseHandler.GetCourse)

		r.Group(func(r chi.Router) {
			r.Use(adminGate)
			r.Post("/", courseHandler.CreateCourse)
			r.Put("/{id}", courseHandler.UpdateCourse)
			r.Delete("/{id}", courseHandler.DeleteCourse)
		})
	})

	// 管理者
	r.Route("/api/admin", func(r chi.Router) {
		r.With(loginLimit).Post("/login", authHandler.AdminLogin)
		r.Get("/check", authHandler.AdminCheck)

		r.Group(func(r chi.Router) {
			r.Use(adminGate)

			r.Post("/logout", authHandler.AdminLogout)
			r.Get("/dashboard", adminHandler.Dashboard)

			// 従業員管理
			r.Post("/employee-register", adminHandler.RegisterEmployee)
			r.Get("/employees", adminHandler.ListEmployees)
			r.Route("/employee/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.GetEmployee)
				r.Put("/", adminHandler.UpdateEmployee)
				r.Delete("/", adminHandler.DeleteEmployee)
				r.Get("/courses", adminHandler.EmployeeCourses)
				r.Post("/sync-mandatory", adminHandler.SyncMandatory)
			})

			// コース管理
			r.Get("/courses", courseHandler.ListCourses)
			r.Post("/courses", courseHandler.CreateCourse)
			r.Put("/courses/{id}", courseHandler.UpdateCourse)
			r.Delete("/courses/{id}", courseHandler.DeleteCourse)
			r.Get("/mandatory-courses", courseHandler.ListMandatoryCourses)
			r.Get("/course/{courseId}/enrolled-employees", adminHandler.EnrolledEmployees)
		})
	})

	// ログイン中の従業員本人
	r.Route("/api/employee", func(r chi.Router) {
		r.Use(employeeGate)

		r.Get("/current-employee", employeeHandler.CurrentEmployee)
		r.Put("/profile", employeeHandler.UpdateProfile)
		r.Post("/enroll-course/{courseId}", employeeHandler.Enroll)
		r.Get("/check-enrollment/{courseId}", employeeHandler.CheckEnrollment)
		r.Get("/enrolled-courses", employeeHandler.EnrolledCourses)
		r.Put("/progress/{courseId}", employeeHandler.UpdateProgress)
	})

	return r
}
