package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
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
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok {
			if v != lp.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordIngestion_IncrementsCounterWithLabels は種別・結果ラベルごとに計数されることを検証する。
func TestRecordIngestion_IncrementsCounterWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestion("pronunciation", OutcomeSaved)
	c.RecordIngestion("pronunciation", OutcomeSaved)
	c.RecordIngestion("pronunciation", OutcomeQuotaExceeded)

	saved := findMetric(t, reg, "vocalearn_ingestions_total", map[string]string{"kind": "pronunciation", "outcome": "saved"})
	if v := saved.GetCounter().GetValue(); v != 2 {
		t.Errorf("saved = %v, want 2", v)
	}
	exceeded := findMetric(t, reg, "vocalearn_ingestions_total", map[string]string{"kind": "pronunciation", "outcome": "quota_exceeded"})
	if v := exceeded.GetCounter().GetValue(); v != 1 {
		t.Errorf("quota_exceeded = %v, want 1", v)
	}
}

// TestRecordRecognitionLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordRecognitionLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRecognitionLatency("speech_to_text", 1500*time.Millisecond)

	m := findMetric(t, reg, "vocalearn_recognition_latency_seconds", map[string]string{"kind": "speech_to_text"})
	if n := m.GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
	if sum := m.GetHistogram().GetSampleSum(); sum != 1.5 {
		t.Errorf("sample sum = %v, want 1.5", sum)
	}
}

// TestRecordRecognitionFailure_IncrementsCounter は失敗理由ごとに計数されることを検証する。
func TestRecordRecognitionFailure_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRecognitionFailure("speech_to_text", "timeout")

	m := findMetric(t, reg, "vocalearn_recognition_fail_total", map[string]string{"kind": "speech_to_text", "reason": "timeout"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("recognition_fail_total = %v, want 1", v)
	}
}

// TestRecordUploadedBytes_AddsSize は保存バイト数が加算されることを検証する。
func TestRecordUploadedBytes_AddsSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUploadedBytes(1024)
	c.RecordUploadedBytes(512)

	m := findMetric(t, reg, "vocalearn_uploaded_bytes_total", nil)
	if v := m.GetCounter().GetValue(); v != 1536 {
		t.Errorf("uploaded_bytes_total = %v, want 1536", v)
	}
}

// TestRecordReview_LabelsCorrectness は正誤ラベルごとに計数されることを検証する。
func TestRecordReview_LabelsCorrectness(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReview(true)
	c.RecordReview(false)
	c.RecordReview(true)

	correct := findMetric(t, reg, "vocalearn_reviews_total", map[string]string{"correct": "true"})
	if v := correct.GetCounter().GetValue(); v != 2 {
		t.Errorf("correct = %v, want 2", v)
	}
	wrong := findMetric(t, reg, "vocalearn_reviews_total", map[string]string{"correct": "false"})
	if v := wrong.GetCounter().GetValue(); v != 1 {
		t.Errorf("incorrect = %v, want 1", v)
	}
}

// TestRecordCleanup_AddsRemoved はジョブごとの処理件数が加算されることを検証する。
func TestRecordCleanup_AddsRemoved(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCleanup("temp_sweep", 3)
	c.RecordCleanup("temp_sweep", 0)

	m := findMetric(t, reg, "vocalearn_cleanup_removed_total", map[string]string{"job": "temp_sweep"})
	if v := m.GetCounter().GetValue(); v != 3 {
		t.Errorf("cleanup_removed_total = %v, want 3", v)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はステータスコード別に計数されることを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(502)

	ok := findMetric(t, reg, "vocalearn_http_status_total", map[string]string{"status_code": "200"})
	if v := ok.GetCounter().GetValue(); v != 2 {
		t.Errorf("status 200 = %v, want 2", v)
	}
	bad := findMetric(t, reg, "vocalearn_http_status_total", map[string]string{"status_code": "502"})
	if v := bad.GetCounter().GetValue(); v != 1 {
		t.Errorf("status 502 = %v, want 1", v)
	}
}

// TestMultipleCollectors_IndependentRegistries は別レジストリのCollectorが干渉しないことを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordUploadedBytes(10)

	m := findMetric(t, reg2, "vocalearn_uploaded_bytes_total", nil)
	if v := m.GetCounter().GetValue(); v != 0 {
		t.Errorf("reg2 uploaded_bytes_total = %v, want 0", v)
	}
}

// TestNop_DoesNotPanic はNopが何もせずに呼び出せることを検証する。
func TestNop_DoesNotPanic(t *testing.T) {
	var m MetricsCollector = Nop{}
	m.RecordIngestion("translation", OutcomeAnonymous)
	m.RecordRecognitionLatency("speech_to_text", time.Second)
	m.RecordRecognitionFailure("speech_to_text", "canceled")
	m.RecordUploadedBytes(1)
	m.RecordReview(true)
	m.RecordCleanup("stale_sessions", 1)
	m.RecordHTTPStatus(500)
}
