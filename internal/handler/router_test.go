package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/learnhub/internal/auth"
	"github.com/hitoshi/learnhub/internal/course"
	"github.com/hitoshi/learnhub/internal/employee"
	"github.com/hitoshi/learnhub/internal/enrollment"
	"github.com/hitoshi/learnhub/internal/metrics"
	"github.com/hitoshi/learnhub/internal/middleware"
	"github.com/hitoshi/learnhub/internal/model"
	"github.com/hitoshi/learnhub/internal/repository"
	"github.com/hitoshi/learnhub/internal/security"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "admin-pass"
)

var testNow = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

// testApp は実際のサービスとメモリストアで組み立てたルーター。
type testApp struct {
	t       *testing.T
	router  http.Handler
	store   *repository.Store
	courses *course.Service
}

func newTestApp(t *testing.T, loginPerMinute int) *testApp {
	t.Helper()
	return newTestAppWith(t, loginPerMinute, nil)
}

// newTestAppWith はRouterDepsを調整してからルーターを組み立てる。
func newTestAppWith(t *testing.T, loginPerMinute int, configure func(*RouterDeps)) *testApp {
	t.Helper()

	store := repository.NewMemoryBackedStore()
	sanitizer := security.NewSanitizer()
	passwords := auth.NewPasswordHasher(bcrypt.MinCost)
	tokens := auth.NewTokenService("test-jwt-secret-32bytes-long!!!!")

	engine := enrollment.NewEngine(store.Employees, store.Courses, store.Enrollments, enrollment.Config{DueDays: 30}).
		WithClock(func() time.Time { return testNow })
	courseSvc := course.NewService(store.Courses, sanitizer)
	employeeSvc := employee.NewService(store.Employees, store.Enrollments, store.Courses, engine, passwords, sanitizer)
	authSvc := auth.NewService(store.Employees, employeeSvc, tokens, passwords, auth.ServiceConfig{
		TokenTTL:      time.Hour,
		AdminEmail:    testAdminEmail,
		AdminPassword: testAdminPassword,
	})

	limiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(loginPerMinute))
	t.Cleanup(limiter.Stop)

	reg := prometheus.NewRegistry()

	deps := &RouterDeps{
		Metrics:           metrics.NewCollector(reg),
		Gatherer:          reg,
		AllowedOrigins:    []string{"http://localhost:5173"},
		RateLimiter:       limiter,
		AuthService:       authSvc,
		Cookies:           NewCookieConfig(false, time.Hour),
		CourseService:     courseSvc,
		EmployeeService:   employeeSvc,
		EnrollmentService: engine,
		Health:            store.Health,
	}
	if configure != nil {
		configure(deps)
	}
	router := NewRouter(deps)

	return &testApp{t: t, router: router, store: store, courses: courseSvc}
}

func (a *testApp) addCourse(title string, mandatory bool) *model.Course {
	a.t.Helper()
	c, err := a.courses.Create(context.Background(), model.CourseInput{
		Title:       title,
		Description: title + " course",
		Hours:       1,
		Difficulty:  model.DifficultyBeginner,
		Mandatory:   mandatory,
	})
	if err != nil {
		a.t.Fatalf("failed to create course %s: %v", title, err)
	}
	return c
}

func (a *testApp) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.doWithHeaders(method, path, body, nil, cookies...)
}

func (a *testApp) doWithHeaders(method, path, body string, headers map[string]string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = "192.0.2.1:12345"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) register(email string) *http.Cookie {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/auth/register", `{"name":"Alice","email":"`+email+`","password":"pw123456"}`)
	if w.Code != http.StatusCreated {
		a.t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	c := findCookie(w.Result(), middleware.EmployeeCookieName)
	if c == nil {
		a.t.Fatal("register did not set token cookie")
	}
	return c
}

func (a *testApp) adminLogin() *http.Cookie {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/admin/login", `{"email":"`+testAdminEmail+`","password":"`+testAdminPassword+`"}`)
	if w.Code != http.StatusOK {
		a.t.Fatalf("admin login status = %d, body = %s", w.Code, w.Body.String())
	}
	c := findCookie(w.Result(), middleware.AdminCookieName)
	if c == nil {
		a.t.Fatal("admin login did not set adminToken cookie")
	}
	return c
}

// --- テスト ---

func TestRouter_Root_And_Health(t *testing.T) {
	app := newTestApp(t, 100)

	w := app.do(http.MethodGet, "/", "")
	if w.Code != http.StatusOK || w.Body.String() != "API is running" {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}

	w = app.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("GET /health = %d", w.Code)
	}
}

func TestRouter_Register_AutoEnrollsMandatoryCourses(t *testing.T) {
	app := newTestApp(t, 100)
	app.addCourse("Safety", true)
	app.addCourse("Compliance", true)
	app.addCourse("Go", false)

	cookie := app.register("alice@x.com")
	if !cookie.HttpOnly || cookie.MaxAge != 3600 {
		t.Errorf("cookie = %+v", cookie)
	}

	emp, err := app.store.Employees.FindByEmail(context.Background(), "alice@x.com")
	if err != nil || emp == nil {
		t.Fatalf("employee not stored: %v", err)
	}
	if len(emp.EnrolledCourses) != 2 {
		t.Fatalf("enrolled = %d, want 2", len(emp.EnrolledCourses))
	}
	wantDue := testNow.AddDate(0, 0, 30)
	for _, en := range emp.EnrolledCourses {
		if en.Status != model.EnrollmentStatusEnrolled || en.Progress != 0 {
			t.Errorf("entry = %+v", en)
		}
		if en.DueDate == nil || !en.DueDate.Equal(wantDue) {
			t.Errorf("due = %v, want %v", en.DueDate, wantDue)
		}
	}

	w := app.do(http.MethodGet, "/api/employee/enrolled-courses", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("enrolled-courses status = %d", w.Code)
	}
	body := decodeBody(t, w)
	courses, _ := body["courses"].([]any)
	if len(courses) != 2 {
		t.Fatalf("courses = %v", body["courses"])
	}
	if first := courses[0].(map[string]any); first["title"] != "Safety" {
		t.Errorf("first course = %v, want registration order", first["title"])
	}
}

func TestRouter_Register_DuplicateEmail_Returns400(t *testing.T) {
	app := newTestApp(t, 100)
	app.register("alice@x.com")

	w := app.do(http.MethodPost, "/api/auth/register", `{"name":"Other","email":"ALICE@x.com","password":"pw123456"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if body := decodeBody(t, w); body["code"] != model.ErrCodeEmailAlreadyExists {
		t.Errorf("code = %v", body["code"])
	}
}

func TestRouter_Register_OverlongPassword_Returns400(t *testing.T) {
	app := newTestApp(t, 100)

	body := fmt.Sprintf(`{"name":"Alice","email":"alice@x.com","password":"%s"}`, strings.Repeat("p", 80))
	w := app.do(http.MethodPost, "/api/auth/register", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
	if got := decodeBody(t, w)["code"]; got != model.ErrCodeValidationFailed {
		t.Errorf("code = %v, want %s", got, model.ErrCodeValidationFailed)
	}
}

func TestRouter_Login_And_Check(t *testing.T) {
	app := newTestApp(t, 100)
	app.register("alice@x.com")

	w := app.do(http.MethodPost, "/api/auth/login", `{"email":"alice@x.com","password":"wrong-pass"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", w.Code)
	}

	w = app.do(http.MethodPost, "/api/auth/login", `{"email":"alice@x.com","password":"pw123456"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	cookie := findCookie(w.Result(), middleware.EmployeeCookieName)
	if cookie == nil {
		t.Fatal("login did not set token cookie")
	}

	w = app.do(http.MethodGet, "/api/auth/check", "", cookie)
	body := decodeBody(t, w)
	if body["loggedIn"] != true {
		t.Errorf("check with cookie = %v", body)
	}

	w = app.do(http.MethodGet, "/api/auth/check", "")
	if w.Code != http.StatusOK {
		t.Fatalf("check without cookie status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["loggedIn"] != false {
		t.Errorf("check without cookie = %v", body)
	}
}

func TestRouter_Logout_ClearsCookie(t *testing.T) {
	app := newTestApp(t, 100)
	cookie := app.register("alice@x.com")

	w := app.do(http.MethodPost, "/api/auth/logout", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}
	cleared := findCookie(w.Result(), middleware.EmployeeCookieName)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want expired", cleared)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Errorf("Set-Cookie = %q", w.Header().Get("Set-Cookie"))
	}

	w = app.do(http.MethodPost, "/api/auth/logout", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("logout without cookie status = %d, want 401", w.Code)
	}
}

func TestRouter_Enroll_Duplicate_Returns400(t *testing.T) {
	app := newTestApp(t, 100)
	optional := app.addCourse("Go", false)
	cookie := app.register("alice@x.com")

	path := "/api/employee/enroll-course/" + optional.ID
	if w := app.do(http.MethodPost, path, "", cookie); w.Code != http.StatusOK {
		t.Fatalf("first enroll status = %d, body = %s", w.Code, w.Body.String())
	}

	w := app.do(http.MethodPost, path, "", cookie)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("second enroll status = %d, want 400", w.Code)
	}
	if body := decodeBody(t, w); body["code"] != model.ErrCodeAlreadyEnrolled {
		t.Errorf("code = %v", body["code"])
	}

	w = app.do(http.MethodGet, "/api/employee/check-enrollment/"+optional.ID, "", cookie)
	if body := decodeBody(t, w); body["enrolled"] != true {
		t.Errorf("check-enrollment = %v", body)
	}

	w = app.do(http.MethodPost, "/api/employee/enroll-course/missing", "", cookie)
	if w.Code != http.StatusNotFound {
		t.Errorf("enroll unknown course status = %d, want 404", w.Code)
	}
}

func TestRouter_UpdateProgress(t *testing.T) {
	app := newTestApp(t, 100)
	mandatory := app.addCourse("Safety", true)
	cookie := app.register("alice@x.com")
	path := "/api/employee/progress/" + mandatory.ID

	w := app.do(http.MethodPut, path, `{"progress":150}`, cookie)
	if w.Code != http.StatusBadRequest {
		t.Errorf("progress 150 status = %d, want 400", w.Code)
	}

	w = app.do(http.MethodPut, path, `{"progress":100}`, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("progress 100 status = %d, body = %s", w.Code, w.Body.String())
	}
	enrollment, _ := decodeBody(t, w)["enrollment"].(map[string]any)
	if enrollment["status"] != "completed" || enrollment["progress"] != float64(100) {
		t.Errorf("enrollment = %v", enrollment)
	}
}

func TestRouter_AdminLogin_WrongPassword_NoCookie(t *testing.T) {
	app := newTestApp(t, 100)

	w := app.do(http.MethodPost, "/api/admin/login", `{"email":"`+testAdminEmail+`","password":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Errorf("cookies = %v, want none", w.Result().Cookies())
	}
}

func TestRouter_AdminGate(t *testing.T) {
	app := newTestApp(t, 100)
	employeeCookie := app.register("alice@x.com")

	w := app.do(http.MethodGet, "/api/admin/dashboard", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+employeeCookie.Value)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("employee token status = %d, want 403", rec.Code)
	}

	adminCookie := app.adminLogin()
	w = app.do(http.MethodGet, "/api/employee/current-employee", "",
		&http.Cookie{Name: middleware.EmployeeCookieName, Value: adminCookie.Value})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("admin token at employee gate status = %d, want 401", w.Code)
	}

	w = app.do(http.MethodGet, "/api/admin/check", "", adminCookie)
	if body := decodeBody(t, w); body["loggedIn"] != true || body["role"] != "admin" {
		t.Errorf("admin check = %v", body)
	}
}

func TestRouter_AdminFlow(t *testing.T) {
	app := newTestApp(t, 100)
	admin := app.adminLogin()
	app.register("alice@x.com")

	// 管理者がコースを作成する
	w := app.do(http.MethodPost, "/api/admin/courses", `{"title":"Security","description":"security basics","hours":2,"difficulty":"Beginner","mandatory":true}`, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create course status = %d, body = %s", w.Code, w.Body.String())
	}
	created, _ := decodeBody(t, w)["course"].(map[string]any)
	courseID, _ := created["id"].(string)

	// 既存従業員には同期で反映される
	alice, _ := app.store.Employees.FindByEmail(context.Background(), "alice@x.com")
	w = app.do(http.MethodPost, "/api/admin/employee/"+alice.ID+"/sync-mandatory", "", admin)
	if body := decodeBody(t, w); body["added"] != float64(1) {
		t.Errorf("sync-mandatory = %v", body)
	}
	w = app.do(http.MethodPost, "/api/admin/employee/"+alice.ID+"/sync-mandatory", "", admin)
	if body := decodeBody(t, w); body["added"] != float64(0) {
		t.Errorf("second sync-mandatory = %v, want 0 added", body)
	}

	// 管理者による従業員登録は必須コースへ自動登録されCookieは設定されない
	w = app.do(http.MethodPost, "/api/admin/employee-register", `{"name":"Bob","email":"bob@x.com","password":"pw123456"}`, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("employee-register status = %d, body = %s", w.Code, w.Body.String())
	}
	if findCookie(w.Result(), middleware.EmployeeCookieName) != nil {
		t.Error("admin registration must not set token cookie")
	}

	w = app.do(http.MethodGet, "/api/admin/dashboard", "", admin)
	stats, _ := decodeBody(t, w)["stats"].(map[string]any)
	if stats["totalEmployees"] != float64(2) || stats["totalCourses"] != float64(1) ||
		stats["mandatoryCourses"] != float64(1) || stats["totalEnrollments"] != float64(2) {
		t.Errorf("stats = %v", stats)
	}

	w = app.do(http.MethodGet, "/api/admin/course/"+courseID+"/enrolled-employees", "", admin)
	if list, _ := decodeBody(t, w)["employees"].([]any); len(list) != 2 {
		t.Errorf("enrolled employees = %d, want 2", len(list))
	}

	// コース削除は全従業員の受講登録からも取り除く
	w = app.do(http.MethodDelete, "/api/courses/"+courseID, "", admin)
	if w.Code != http.StatusOK {
		t.Fatalf("delete course status = %d", w.Code)
	}
	alice, _ = app.store.Employees.FindByEmail(context.Background(), "alice@x.com")
	if len(alice.EnrolledCourses) != 0 {
		t.Errorf("alice enrollments after delete = %v", alice.EnrolledCourses)
	}

	w = app.do(http.MethodPost, "/api/admin/logout", "", admin)
	if c := findCookie(w.Result(), middleware.AdminCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("admin logout cookie = %+v", c)
	}
}

func TestRouter_PublicCatalog_AdminOnlyWrites(t *testing.T) {
	app := newTestApp(t, 100)
	c := app.addCourse("Go", false)
	employeeCookie := app.register("alice@x.com")

	if w := app.do(http.MethodGet, "/api/courses", ""); w.Code != http.StatusOK {
		t.Errorf("GET /api/courses status = %d", w.Code)
	}
	if w := app.do(http.MethodGet, "/api/courses/"+c.ID, ""); w.Code != http.StatusOK {
		t.Errorf("GET /api/courses/{id} status = %d", w.Code)
	}
	if w := app.do(http.MethodPost, "/api/courses", `{"title":"X","hours":1}`); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous create status = %d, want 401", w.Code)
	}
	// 従業員Cookieは adminToken ではないためトークン無しとして扱われる
	if w := app.do(http.MethodDelete, "/api/courses/"+c.ID, "", employeeCookie); w.Code != http.StatusUnauthorized {
		t.Errorf("employee delete status = %d, want 401", w.Code)
	}
}

func TestRouter_LoginRateLimited(t *testing.T) {
	app := newTestApp(t, 2)

	body := `{"email":"nobody@x.com","password":"pw123456"}`
	for i := 0; i < 2; i++ {
		if w := app.do(http.MethodPost, "/api/auth/login", body); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, w.Code)
		}
	}

	w := app.do(http.MethodPost, "/api/auth/login", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// 登録は制限対象外
	app.register("alice@x.com")
}

func TestRouter_LoginRateLimit_IgnoresForwardedHeadersByDefault(t *testing.T) {
	app := newTestApp(t, 1)

	body := `{"email":"nobody@x.com","password":"pw123456"}`
	limited := 0
	for i := 0; i < 20; i++ {
		headers := map[string]string{
			"X-Forwarded-For": fmt.Sprintf("10.0.0.%d", i),
			"X-Real-IP":       fmt.Sprintf("10.0.1.%d", i),
			"True-Client-IP":  fmt.Sprintf("10.0.2.%d", i),
		}
		if w := app.doWithHeaders(http.MethodPost, "/api/auth/login", body, headers); w.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	if limited != 19 {
		t.Errorf("429 responses = %d, want 19 (one attempt per minute from a single socket)", limited)
	}
}

func TestRouter_LoginRateLimit_TrustProxyUsesForwardedIP(t *testing.T) {
	app := newTestAppWith(t, 1, func(d *RouterDeps) { d.TrustProxy = true })

	body := `{"email":"nobody@x.com","password":"pw123456"}`
	first := map[string]string{"X-Forwarded-For": "203.0.113.10"}
	second := map[string]string{"X-Forwarded-For": "203.0.113.20"}

	if w := app.doWithHeaders(http.MethodPost, "/api/auth/login", body, first); w.Code != http.StatusUnauthorized {
		t.Fatalf("first client status = %d, want 401", w.Code)
	}
	if w := app.doWithHeaders(http.MethodPost, "/api/auth/login", body, first); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client retry status = %d, want 429", w.Code)
	}
	// プロキシの背後の別クライアントは独立して数える
	if w := app.doWithHeaders(http.MethodPost, "/api/auth/login", body, second); w.Code != http.StatusUnauthorized {
		t.Fatalf("second client status = %d, want 401", w.Code)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	app := newTestApp(t, 100)
	app.register("alice@x.com")

	w := app.do(http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	out := w.Body.Bytes()
	for _, name := range []string{"learnhub_registrations_total", "learnhub_http_requests_total"} {
		if !bytes.Contains(out, []byte(name)) {
			t.Errorf("metrics output missing %s", name)
		}
	}
	if !bytes.Contains(out, []byte(`route="/api/auth/register"`)) {
		t.Error("http metrics should be labelled by route pattern")
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	app := newTestApp(t, 100)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q", got)
	}
}

func TestRouter_ErrorBodyFormat(t *testing.T) {
	app := newTestApp(t, 100)

	w := app.do(http.MethodGet, "/api/employee/enrolled-courses", "")
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"code", "message", "category", "action"} {
		if body[key] == "" {
			t.Errorf("%s missing in %v", key, body)
		}
	}
	if body["code"] != model.ErrCodeTokenMissing {
		t.Errorf("code = %q", body["code"])
	}
}
