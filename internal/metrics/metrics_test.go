package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestRecordHTTPRequest_CountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest("GET", "/api/courses/{id}", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("GET", "/api/courses/{id}", 200, 20*time.Millisecond)
	c.RecordHTTPRequest("GET", "", 404, time.Millisecond)

	m := findMetric(t, reg, "learnhub_http_requests_total", map[string]string{
		"method": "GET", "route": "/api/courses/{id}", "status_code": "200",
	})
	if m == nil || m.GetCounter().GetValue() != 2 {
		t.Errorf("http_requests_total = %v, want 2", m)
	}

	if findMetric(t, reg, "learnhub_http_requests_total", map[string]string{"route": "unmatched"}) == nil {
		t.Error("empty route should be recorded as 'unmatched'")
	}

	h := findMetric(t, reg, "learnhub_http_request_duration_seconds", map[string]string{"route": "/api/courses/{id}"})
	if h == nil || h.GetHistogram().GetSampleCount() != 2 {
		t.Errorf("latency sample count = %v, want 2", h)
	}
}

func TestRecordLogin_SeparatesResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(LoginKindAdmin, false)
	c.RecordLogin(LoginKindAdmin, false)
	c.RecordLogin(LoginKindEmployee, true)

	fail := findMetric(t, reg, "learnhub_logins_total", map[string]string{"kind": "admin", "result": "failure"})
	if fail == nil || fail.GetCounter().GetValue() != 2 {
		t.Errorf("admin failures = %v, want 2", fail)
	}
	ok := findMetric(t, reg, "learnhub_logins_total", map[string]string{"kind": "employee", "result": "success"})
	if ok == nil || ok.GetCounter().GetValue() != 1 {
		t.Errorf("employee successes = %v, want 1", ok)
	}
}

func TestRecordEnrollments_IgnoresZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEnrollments(EnrollmentSourceAuto, 0)
	c.RecordEnrollments(EnrollmentSourceAuto, 3)
	c.RecordEnrollments(EnrollmentSourceManual, 1)
	c.RecordRegistration()

	auto := findMetric(t, reg, "learnhub_enrollments_total", map[string]string{"source": "auto"})
	if auto == nil || auto.GetCounter().GetValue() != 3 {
		t.Errorf("auto enrollments = %v, want 3", auto)
	}
	reg1 := findMetric(t, reg, "learnhub_registrations_total", nil)
	if reg1 == nil || reg1.GetCounter().GetValue() != 1 {
		t.Errorf("registrations = %v, want 1", reg1)
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTokenRejection("TOKEN_EXPIRED")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `learnhub_token_rejections_total{reason="TOKEN_EXPIRED"} 1`) {
		t.Errorf("metrics output missing token rejection counter:\n%s", body)
	}
}
