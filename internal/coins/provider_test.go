package coins

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestNormalizeSymbols(t *testing.T) {
	got, err := NormalizeSymbols([]string{"btc", "ETH/USDT", "ethusdt", " ", "solusdt"})
	if err != nil {
		t.Fatalf("规整失败: %v", err)
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("规整结果应为 %v, 实际=%v", want, got)
	}
	if _, err := NormalizeSymbols(nil); err == nil {
		t.Fatalf("空列表应报错")
	}
	if _, err := NormalizeSymbols([]string{" ", ""}); err == nil {
		t.Fatalf("规整后为空应报错")
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider([]string{"btc", "eth"})
	got, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if len(got) != 2 || got[0] != "BTCUSDT" {
		t.Fatalf("静态列表应被规整, 实际=%v", got)
	}
	if p.Name() != "static" {
		t.Fatalf("Name 应为 static")
	}
}

func TestRemoteProviderBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["solusdt", "dogeusdt"]`))
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{URL: srv.URL, Fallback: []string{"BTCUSDT"}})
	got, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	want := []string{"BTCUSDT", "DOGEUSDT", "SOLUSDT"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("应合并远端与 fallback 并排序, 实际=%v", got)
	}
}

func TestRemoteProviderObjectForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbols": ["xrpusdt"]}`))
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{URL: srv.URL})
	got, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if len(got) != 1 || got[0] != "XRPUSDT" {
		t.Fatalf("应解析对象形式响应, 实际=%v", got)
	}
}

func TestRemoteProviderFallbackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{URL: srv.URL, Fallback: []string{"BTCUSDT"}})
	got, err := p.List(context.Background())
	if err != nil {
		t.Fatalf("远端失败时应退回 fallback: %v", err)
	}
	if len(got) != 1 || got[0] != "BTCUSDT" {
		t.Fatalf("应返回 fallback 列表, 实际=%v", got)
	}
}

func TestRemoteProviderRefreshGate(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`["btcusdt"]`))
	}))
	defer srv.Close()

	p := NewRemoteProvider(RemoteConfig{URL: srv.URL, Refresh: time.Hour})
	ctx := context.Background()
	if _, err := p.List(ctx); err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if _, err := p.List(ctx); err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if calls != 1 {
		t.Fatalf("刷新窗口内只应请求一次, 实际=%d", calls)
	}
}
