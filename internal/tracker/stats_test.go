package tracker

import (
	"math"
	"testing"

	"sable/internal/analysis"
)

func TestSummarize(t *testing.T) {
	records := []SignalRecord{
		{SignalType: analysis.SignalRSIDivergence, Status: StatusTPHit, PnLPercent: 2},
		{SignalType: analysis.SignalRSIDivergence, Status: StatusTPHit, PnLPercent: 4},
		{SignalType: analysis.SignalRSIDivergence, Status: StatusSLHit, PnLPercent: -1},
		{SignalType: analysis.SignalScalp, Status: StatusExpired, PnLPercent: 0.5},
		{SignalType: analysis.SignalScalp, Status: StatusActive},
	}
	sum := Summarize(records)

	if sum.Total != 5 || sum.Wins != 2 || sum.Losses != 1 || sum.Expired != 1 || sum.Active != 1 {
		t.Fatalf("计数错误: %+v", sum.TypeStats)
	}
	// 胜率只看已分胜负的：2/(2+1)。
	if math.Abs(sum.WinRate-200.0/3) > 1e-6 {
		t.Fatalf("胜率应为 66.67, 实际=%v", sum.WinRate)
	}
	// 平均盈亏包含过期、不含 ACTIVE：(2+4-1+0.5)/4。
	if math.Abs(sum.AvgPnL-1.375) > 1e-6 {
		t.Fatalf("平均盈亏应为 1.375, 实际=%v", sum.AvgPnL)
	}

	rsi := sum.ByType[analysis.SignalRSIDivergence]
	if rsi.Total != 3 || rsi.Wins != 2 || rsi.Losses != 1 {
		t.Fatalf("RSI 分项计数错误: %+v", rsi)
	}
	scalp := sum.ByType[analysis.SignalScalp]
	if scalp.WinRate != 0 {
		t.Fatalf("无胜负样本时胜率应为 0, 实际=%v", scalp.WinRate)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil)
	if sum.Total != 0 || sum.WinRate != 0 || sum.AvgPnL != 0 {
		t.Fatalf("空输入应得到零值统计: %+v", sum.TypeStats)
	}
	if len(sum.ByType) != 0 {
		t.Fatalf("空输入 ByType 应为空")
	}
}
