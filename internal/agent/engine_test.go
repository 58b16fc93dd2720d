package agent

import (
	"context"
	"sync"
	"testing"

	"sable/internal/config"
	"sable/internal/market"
	"sable/internal/store"
	"sable/internal/tracker"
)

type fakeSource struct {
	ticksErr error
}

func (f *fakeSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	return nil, nil
}

func (f *fakeSource) Subscribe(ctx context.Context, symbols, intervals []string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	ch := make(chan market.CandleEvent)
	close(ch)
	return ch, nil
}

func (f *fakeSource) SubscribeTicks(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	if f.ticksErr != nil {
		return nil, f.ticksErr
	}
	ch := make(chan market.TickEvent)
	close(ch)
	return ch, nil
}

func (f *fakeSource) Stats() market.SourceStats { return market.SourceStats{} }

func (f *fakeSource) Close() error { return nil }

// risingCandles 生成 n 根单调上涨的收盘 K 线（5 分钟周期）。
func risingCandles(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, market.Candle{
			OpenTime:  int64(i) * 300000,
			CloseTime: int64(i)*300000 + 299999,
			Open:      100 + float64(i),
			High:      100.5 + float64(i),
			Low:       99.5 + float64(i),
			Close:     100 + float64(i),
			Final:     true,
		})
	}
	return out
}

func newTestEngine(t *testing.T, cfg config.Config) (*Engine, *tracker.Store, *store.MemoryKlineStore) {
	t.Helper()
	tr := tracker.NewStore(30)
	ks := store.NewMemoryKlineStore()
	e, err := NewEngine(EngineParams{
		Config:   cfg,
		Source:   &fakeSource{},
		Klines:   ks,
		Tracker:  tr,
		Registry: tracker.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("创建 engine 失败: %v", err)
	}
	return e, tr, ks
}

func TestEvaluatePairRecordsRSI(t *testing.T) {
	cfg := config.Default()
	cfg.Detectors.RSI = config.RSIDetectorConfig{Enabled: true, Period: 3, BullLevel: 30, BearLevel: 70, MinDiff: 5}
	cfg.Detectors.MACD.Enabled = false
	cfg.Detectors.Volume.Enabled = false
	cfg.Detectors.Structure.Enabled = false
	cfg.Detectors.Scalp.Enabled = false

	e, tr, ks := newTestEngine(t, cfg)
	ctx := context.Background()
	if err := ks.Set(ctx, "BTCUSDT", "5m", risingCandles(10)); err != nil {
		t.Fatalf("写入 K 线失败: %v", err)
	}
	e.evaluatePair(ctx, "BTCUSDT", "5m")

	hist := tr.Snapshot()["BTCUSDT"]["5m"].IndicatorHistory["rsi"]
	if len(hist) != 1 {
		t.Fatalf("每轮评估应记录 1 个 RSI 值, 实际=%v", hist)
	}
	// 单调上涨序列的 Wilder RSI 为 100。
	if hist[0] != 100 {
		t.Fatalf("RSI 应为 100, 实际=%v", hist[0])
	}
}

func TestEvaluatePairRecordsScalpEMA(t *testing.T) {
	cfg := config.Default()
	cfg.Detectors.RSI.Enabled = false
	cfg.Detectors.MACD.Enabled = false
	cfg.Detectors.Volume.Enabled = false
	cfg.Detectors.Structure.Enabled = false
	cfg.Detectors.Scalp = config.ScalpDetectorConfig{Enabled: true, Interval: "5m"}

	e, tr, ks := newTestEngine(t, cfg)
	ctx := context.Background()
	if err := ks.Set(ctx, "BTCUSDT", "5m", risingCandles(10)); err != nil {
		t.Fatalf("写入 K 线失败: %v", err)
	}
	e.evaluatePair(ctx, "BTCUSDT", "5m")

	hist := tr.Snapshot()["BTCUSDT"]["5m"].IndicatorHistory["ema_fast"]
	// 100..109 的 EMA9: 种子为前 9 个均值 104，再吸收 109 得 105。
	if len(hist) != 1 || hist[0] != 105 {
		t.Fatalf("快线 EMA 应记录为 [105], 实际=%v", hist)
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []struct {
		symbol string
		price  float64
	}
}

func (o *recordingObserver) NotifyPrice(symbol string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, struct {
		symbol string
		price  float64
	}{symbol, price})
}

func (o *recordingObserver) snapshot() []struct {
	symbol string
	price  float64
} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]struct {
		symbol string
		price  float64
	}(nil), o.calls...)
}
