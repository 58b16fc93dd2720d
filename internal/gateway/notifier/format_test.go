package notifier

import (
	"strings"
	"testing"

	"sable/internal/analysis"
	"sable/internal/tracker"
)

func TestFormatSignalBullish(t *testing.T) {
	msg := FormatSignal(analysis.Signal{
		Type:       analysis.SignalRSIDivergence,
		Direction:  analysis.Bullish,
		Symbol:     "BTCUSDT",
		Interval:   "5m",
		Price:      43210.5,
		Confidence: 60,
		TakeProfit: 43642.6,
		StopLoss:   42778.4,
		RiskReward: 1,
		Timestamp:  1700000000000,
	})
	if !strings.HasPrefix(msg, "🟢") {
		t.Fatalf("多头应以绿灯开头: %q", msg)
	}
	for _, want := range []string{"RSI 背离", "BTCUSDT", "43210.50", "TP:", "SL:", "RR: 1.00"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("消息应包含 %q: %q", want, msg)
		}
	}
}

func TestFormatSignalBearishSpike(t *testing.T) {
	msg := FormatSignal(analysis.Signal{
		Type:        analysis.SignalVolumeSpike,
		Direction:   analysis.Bearish,
		Symbol:      "ETHUSDT",
		Interval:    "1m",
		Price:       0.1234,
		VolumeRatio: 2.5,
		Reversal:    analysis.ReversalHigh,
	})
	if !strings.HasPrefix(msg, "🔴") {
		t.Fatalf("空头应以红灯开头: %q", msg)
	}
	if !strings.Contains(msg, "量比: 2.50x") || !strings.Contains(msg, "反转概率: HIGH") {
		t.Fatalf("应包含量比与反转概率: %q", msg)
	}
	// 小币种保留 8 位小数。
	if !strings.Contains(msg, "0.12340000") {
		t.Fatalf("小币种价格精度错误: %q", msg)
	}
	// 无 TP/SL 时不渲染该行。
	if strings.Contains(msg, "TP:") {
		t.Fatalf("无水位时不应渲染 TP 行: %q", msg)
	}
}

func TestFormatOutcome(t *testing.T) {
	msg := FormatOutcome(tracker.SignalRecord{
		Symbol:          "BTCUSDT",
		Interval:        "5m",
		SignalType:      analysis.SignalScalp,
		Status:          tracker.StatusTPHit,
		EntryPrice:      100,
		ExitPrice:       102,
		PnLPercent:      2,
		DurationMinutes: 15,
	})
	if !strings.HasPrefix(msg, "✅") {
		t.Fatalf("TP_HIT 应以 ✅ 开头: %q", msg)
	}
	if !strings.Contains(msg, "+2.00%") || !strings.Contains(msg, "15 分钟") {
		t.Fatalf("应包含盈亏与持续时间: %q", msg)
	}

	expired := FormatOutcome(tracker.SignalRecord{Status: tracker.StatusExpired})
	if !strings.HasPrefix(expired, "⏰") {
		t.Fatalf("EXPIRED 应以 ⏰ 开头: %q", expired)
	}
}

func TestFormatSummary(t *testing.T) {
	summary := tracker.Summarize([]tracker.SignalRecord{
		{SignalType: analysis.SignalRSIDivergence, Status: tracker.StatusTPHit, PnLPercent: 2},
		{SignalType: analysis.SignalScalp, Status: tracker.StatusSLHit, PnLPercent: -1},
	})
	msg := FormatSummary(summary)
	if !strings.Contains(msg, "```") {
		t.Fatalf("表格应包在 code fence 内: %q", msg)
	}
	for _, want := range []string{"rsi_divergence", "scalp", "ALL"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("汇总应包含 %q: %q", want, msg)
		}
	}
}
