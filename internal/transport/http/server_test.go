package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sable/internal/analysis"
	"sable/internal/market"
	"sable/internal/store"
	"sable/internal/tracker"
)

func newTestServer(t *testing.T) (*Server, *tracker.Registry, *tracker.Store, *store.MemoryKlineStore) {
	t.Helper()
	registry := tracker.NewRegistry()
	tr := tracker.NewStore(30)
	ks := store.NewMemoryKlineStore()
	s, err := NewServer(ServerParams{
		Addr:     ":0",
		Registry: registry,
		Tracker:  tr,
		Klines:   ks,
	})
	if err != nil {
		t.Fatalf("创建 server 失败: %v", err)
	}
	return s, registry, tr, ks
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestNewServerRequiresStores(t *testing.T) {
	if _, err := NewServer(ServerParams{}); err == nil {
		t.Fatalf("缺少 registry/tracker 应拒绝创建")
	}
}

func TestHealth(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	w := doRequest(s, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码应为 200, 实际=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("响应应包含 status ok: %s", w.Body.String())
	}
}

func TestSignalsFilter(t *testing.T) {
	s, registry, _, _ := newTestServer(t)
	registry.Load([]tracker.SignalRecord{
		{ID: "a", Symbol: "BTCUSDT", SignalType: analysis.SignalRSIDivergence, Status: tracker.StatusActive, EntryTime: 1},
		{ID: "b", Symbol: "BTCUSDT", SignalType: analysis.SignalScalp, Status: tracker.StatusTPHit, EntryTime: 2},
		{ID: "c", Symbol: "ETHUSDT", SignalType: analysis.SignalScalp, Status: tracker.StatusActive, EntryTime: 3},
	})

	w := doRequest(s, http.MethodGet, "/api/signals?symbol=btcusdt&type=scalp")
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("过滤后应剩 1 条, 实际=%d", resp.Total)
	}

	w = doRequest(s, http.MethodGet, "/api/signals/active")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("ACTIVE 应为 2 条, 实际=%d", resp.Total)
	}
}

func TestStats(t *testing.T) {
	s, registry, _, _ := newTestServer(t)
	registry.Load([]tracker.SignalRecord{
		{ID: "a", Symbol: "BTCUSDT", SignalType: analysis.SignalScalp, Status: tracker.StatusTPHit, PnLPercent: 2},
	})
	w := doRequest(s, http.MethodGet, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("状态码应为 200, 实际=%d", w.Code)
	}
	var sum tracker.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if sum.Total != 1 || sum.Wins != 1 {
		t.Fatalf("统计错误: %+v", sum.TypeStats)
	}
}

func TestStateEndpoint(t *testing.T) {
	s, _, tr, _ := newTestServer(t)
	if w := doRequest(s, http.MethodGet, "/api/state/BTCUSDT"); w.Code != http.StatusNotFound {
		t.Fatalf("未跟踪的交易对应返回 404, 实际=%d", w.Code)
	}
	tr.ApplyCandle("BTCUSDT", "5m", market.Candle{OpenTime: 1, Close: 100, Final: true})
	if w := doRequest(s, http.MethodGet, "/api/state/btcusdt"); w.Code != http.StatusOK {
		t.Fatalf("应返回 200, 实际=%d", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/api/state/BTCUSDT?interval=1h"); w.Code != http.StatusNotFound {
		t.Fatalf("未跟踪的周期应返回 404, 实际=%d", w.Code)
	}
}

func TestMetricsWithoutProvider(t *testing.T) {
	s, _, _, _ := newTestServer(t)
	if w := doRequest(s, http.MethodGet, "/api/metrics/BTCUSDT"); w.Code != http.StatusNotImplemented {
		t.Fatalf("无衍生品数据源应返回 501, 实际=%d", w.Code)
	}
}

func TestExport(t *testing.T) {
	s, _, _, ks := newTestServer(t)
	if w := doRequest(s, http.MethodGet, "/api/export/BTCUSDT"); w.Code != http.StatusNotFound {
		t.Fatalf("无数据应返回 404, 实际=%d", w.Code)
	}
	_ = ks.Set(context.Background(), "BTCUSDT", "1h", []market.Candle{
		{CloseTime: 1700000099999, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Trades: 3, Final: true},
	})
	w := doRequest(s, http.MethodGet, "/api/export/BTCUSDT")
	if w.Code != http.StatusOK {
		t.Fatalf("应返回 200, 实际=%d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "btcusdt_1h.csv") {
		t.Fatalf("附件名错误: %q", got)
	}
	if !strings.HasPrefix(w.Body.String(), "Time,O,H,L,C,V,Trades") {
		t.Fatalf("CSV 表头错误: %q", w.Body.String())
	}
}

func TestExportLimit(t *testing.T) {
	s, _, _, ks := newTestServer(t)
	_ = ks.Set(context.Background(), "BTCUSDT", "1h", []market.Candle{
		{OpenTime: 1, CloseTime: 3599999, Close: 1, Final: true},
		{OpenTime: 3600000, CloseTime: 7199999, Close: 2, Final: true},
		{OpenTime: 7200000, CloseTime: 10799999, Close: 3, Final: true},
	})
	w := doRequest(s, http.MethodGet, "/api/export/BTCUSDT?limit=1")
	if w.Code != http.StatusOK {
		t.Fatalf("应返回 200, 实际=%d", w.Code)
	}
	// 表头 + 1 行数据，每行以换行结尾。
	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("limit=1 应只导出 1 行数据, 实际行数=%d", len(lines))
	}
	if !strings.Contains(lines[1], ",3,") {
		t.Fatalf("应导出最新一根 K 线, 实际=%q", lines[1])
	}
	if w := doRequest(s, http.MethodGet, "/api/export/BTCUSDT?limit=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("非法 limit 应返回 400, 实际=%d", w.Code)
	}
}
