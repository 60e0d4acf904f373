package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

type fakeSource struct {
	snapshot  goAuthClient.MetricsSnapshot
	dropped   uint64
	exchanges uint64
}

func (f fakeSource) MetricsSnapshot() goAuthClient.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                          { return f.dropped }
func (f fakeSource) RefreshExchanges() uint64                      { return f.exchanges }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAuthClient.MetricsSnapshot{
			Counters:   map[goAuthClient.MetricID]uint64{},
			Histograms: map[goAuthClient.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAuthClient.MetricsSnapshot{
			Counters: map[goAuthClient.MetricID]uint64{
				goAuthClient.MetricLoginSuccess: 7,
			},
			Histograms: map[goAuthClient.MetricID][]uint64{
				goAuthClient.MetricRequestLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped:   2,
		exchanges: 5,
	})

	out := exp.Render()
	if !strings.Contains(out, "authclient_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authclient_request_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authclient_request_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authclient_refresh_exchanges_total 5") {
		t.Fatalf("expected refresh exchanges counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authclient_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAuthClient.MetricsSnapshot{
			Counters:   map[goAuthClient.MetricID]uint64{goAuthClient.MetricLoginSuccess: 1},
			Histograms: map[goAuthClient.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRenderFromLiveClient(t *testing.T) {
	client, err := goAuthClient.New().WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	defer client.Close()

	_, _ = client.Login(context.Background(), "", "")

	out := NewPrometheusExporter(client).Render()
	if !strings.Contains(out, "authclient_validation_rejected_total 1") {
		t.Fatalf("expected validation counter from client, got:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE authclient_request_latency_seconds histogram") {
		t.Fatalf("expected histogram type line, got:\n%s", out)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: goAuthClient.MetricsSnapshot{
			Counters: map[goAuthClient.MetricID]uint64{
				goAuthClient.MetricLoginSuccess:   1000,
				goAuthClient.MetricLoginFailure:   40,
				goAuthClient.MetricRefreshSuccess: 800,
				goAuthClient.MetricRefreshFailure: 10,
				goAuthClient.MetricReplay:         800,
				goAuthClient.MetricForcedLogout:   10,
			},
			Histograms: map[goAuthClient.MetricID][]uint64{
				goAuthClient.MetricRequestLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
