package tracker

import (
	"testing"
	"time"

	"sable/internal/analysis"
	"sable/internal/market"
)

func TestAllowFirstTime(t *testing.T) {
	s := NewStore(30)
	now := time.Now()
	rule := CooldownRule{Cooldown: 5 * time.Minute, MinChangePct: 1}
	if !s.Allow("BTCUSDT", "5m", analysis.SignalRSIDivergence, analysis.Bullish, 100, now, rule) {
		t.Fatalf("首次信号应放行")
	}
}

func TestAllowCooldownAndSignificance(t *testing.T) {
	s := NewStore(30)
	now := time.Now()
	rule := CooldownRule{Cooldown: 5 * time.Minute, MinChangePct: 1}
	s.Mark("BTCUSDT", "5m", analysis.SignalRSIDivergence, analysis.Bullish, 100, now)

	// 冷却期内直接拒绝。
	if s.Allow("BTCUSDT", "5m", analysis.SignalRSIDivergence, analysis.Bullish, 110, now.Add(time.Minute), rule) {
		t.Fatalf("冷却期内应拒绝")
	}
	// 冷却期过但同向且价格变化 0.5% ≤ 1% → 拒绝。
	if s.Allow("BTCUSDT", "5m", analysis.SignalRSIDivergence, analysis.Bullish, 100.5, now.Add(6*time.Minute), rule) {
		t.Fatalf("价格变化不显著应拒绝")
	}
	// 变化 2% → 放行。
	if !s.Allow("BTCUSDT", "5m", analysis.SignalRSIDivergence, analysis.Bullish, 102, now.Add(6*time.Minute), rule) {
		t.Fatalf("价格变化显著应放行")
	}
	// 方向翻转不受显著性过滤。
	if !s.Allow("BTCUSDT", "5m", analysis.SignalRSIDivergence, analysis.Bearish, 100.1, now.Add(6*time.Minute), rule) {
		t.Fatalf("方向翻转应放行")
	}
	// 同类冷却不影响其它信号类型。
	if !s.Allow("BTCUSDT", "5m", analysis.SignalStructure, analysis.Bullish, 100, now.Add(time.Minute), rule) {
		t.Fatalf("不同类型信号应互不影响")
	}
}

func TestApplyCandle(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.ApplyCandle("BTCUSDT", "5m", market.Candle{OpenTime: int64(i), Close: float64(i), Final: true})
	}
	// 未收盘 K 线被忽略。
	s.ApplyCandle("BTCUSDT", "5m", market.Candle{OpenTime: 99, Final: false})

	candles := s.Snapshot()["BTCUSDT"]["5m"].RecentCandles
	if len(candles) != 3 {
		t.Fatalf("历史应裁剪到 3 根, 实际=%d", len(candles))
	}
	if candles[2].OpenTime != 4 {
		t.Fatalf("末根 OpenTime 应为 4, 实际=%d", candles[2].OpenTime)
	}

	// 同一 OpenTime 覆盖而非追加。
	s.ApplyCandle("BTCUSDT", "5m", market.Candle{OpenTime: 4, Close: 42, Final: true})
	candles = s.Snapshot()["BTCUSDT"]["5m"].RecentCandles
	if len(candles) != 3 || candles[2].Close != 42 {
		t.Fatalf("同一根收盘重放应覆盖, 实际=%+v", candles)
	}
}

func TestRecordIndicator(t *testing.T) {
	s := NewStore(2)
	s.RecordIndicator("BTCUSDT", "5m", "rsi", 50)
	s.RecordIndicator("BTCUSDT", "5m", "rsi", 55)
	s.RecordIndicator("BTCUSDT", "5m", "rsi", 60)
	snap := s.Snapshot()
	hist := snap["BTCUSDT"]["5m"].IndicatorHistory["rsi"]
	if len(hist) != 2 || hist[0] != 55 || hist[1] != 60 {
		t.Fatalf("指标历史应裁剪为 [55 60], 实际=%v", hist)
	}
}

func TestSnapshotRestore(t *testing.T) {
	src := NewStore(30)
	now := time.Now()
	src.Mark("BTCUSDT", "5m", analysis.SignalScalp, analysis.Bullish, 100, now)
	src.ApplyCandle("BTCUSDT", "5m", market.Candle{OpenTime: 1, Close: 100, Final: true})

	dst := NewStore(30)
	dst.Restore(src.Snapshot())

	rule := CooldownRule{Cooldown: 5 * time.Minute}
	if dst.Allow("BTCUSDT", "5m", analysis.SignalScalp, analysis.Bullish, 100, now.Add(time.Minute), rule) {
		t.Fatalf("恢复后的冷却状态应继续生效")
	}
	if got := dst.Snapshot()["BTCUSDT"]["5m"].RecentCandles; len(got) != 1 {
		t.Fatalf("K 线历史应随快照恢复, 实际=%d", len(got))
	}
}
