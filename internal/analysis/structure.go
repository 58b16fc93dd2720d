package analysis

import (
	"sort"

	"sable/internal/market"
)

// StructureLabel 市场结构分类。
type StructureLabel string

const (
	StructureHH StructureLabel = "HH" // higher high，多头破位
	StructureHL StructureLabel = "HL" // higher low，多头延续
	StructureLH StructureLabel = "LH" // lower high，空头延续
	StructureLL StructureLabel = "LL" // lower low，空头破位
)

// StructureConfig 控制摆动点检测窗口。
type StructureConfig struct {
	LeftBars  int
	RightBars int
}

func (c StructureConfig) withDefaults() StructureConfig {
	if c.LeftBars <= 0 {
		c.LeftBars = 2
	}
	if c.RightBars <= 0 {
		c.RightBars = 2
	}
	return c
}

// SwingPoints 从最高价/最低价序列提取摆动点并按出现顺序合并。
// 同一下标同时是高低点的情况不会出现（pivot 判定互斥）。
func SwingPoints(candles []market.Candle, cfg StructureConfig) []PivotPoint {
	cfg = cfg.withDefaults()
	times := make([]int64, len(candles))
	for i, c := range candles {
		times[i] = c.CloseTime
	}
	highs := StampPivots(FindPivots(market.Highs(candles), cfg.LeftBars, cfg.RightBars), times)
	lows := StampPivots(FindPivots(market.Lows(candles), cfg.LeftBars, cfg.RightBars), times)
	// Lows 序列上找到的是 PivotLow 之外还可能有 PivotHigh（低价序列的局部高点），
	// 只保留各自方向的真实摆动点。
	merged := make([]PivotPoint, 0, len(highs)+len(lows))
	for _, p := range highs {
		if p.Kind == PivotHigh {
			merged = append(merged, p)
		}
	}
	for _, p := range lows {
		if p.Kind == PivotLow {
			merged = append(merged, p)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Index < merged[j].Index })
	return merged
}

// DetectStructureBreak 取最近 4 个摆动点，要求 HIGH/LOW 严格交替，
// 按 HH/HL/LH/LL 分类。交替被打破（连续同类摆动点）时不给信号，
// 沿用上游行为。少于 4 点同样静默跳过。
func DetectStructureBreak(symbol, interval string, candles []market.Candle, cfg StructureConfig) *Signal {
	swings := SwingPoints(candles, cfg)
	if len(swings) < 4 {
		return nil
	}
	last4 := swings[len(swings)-4:]
	for i := 1; i < len(last4); i++ {
		if last4[i].Kind == last4[i-1].Kind {
			return nil
		}
	}
	// p0 最新，p3 最老。
	p0, p1, p2, p3 := last4[3], last4[2], last4[1], last4[0]

	var label StructureLabel
	var direction Direction
	var isBreak bool
	if p0.Kind == PivotHigh {
		// 序列（新→旧）为 HIGH,LOW,HIGH,LOW。
		switch {
		case p0.Value > p2.Value && p1.Value > p3.Value:
			label, direction, isBreak = StructureHH, Bullish, true
		case p0.Value < p2.Value:
			label, direction = StructureLH, Bearish
		default:
			return nil
		}
	} else {
		// 序列（新→旧）为 LOW,HIGH,LOW,HIGH。
		switch {
		case p0.Value < p2.Value && p1.Value < p3.Value:
			label, direction, isBreak = StructureLL, Bearish, true
		case p0.Value > p2.Value:
			label, direction = StructureHL, Bullish
		default:
			return nil
		}
	}

	confidence := 65.0
	if isBreak {
		confidence = 80
	}
	return &Signal{
		Type:       SignalStructure,
		SubType:    string(label),
		Direction:  direction,
		Symbol:     symbol,
		Interval:   interval,
		Price:      p0.Value,
		Confidence: confidence,
		Timestamp:  p0.Timestamp,
		Details: map[string]any{
			"break":      isBreak,
			"swing_prev": p2.Value,
		},
	}
}

// NearestLevels 返回最近的支撑（最近 LOW 摆动）与压力（最近 HIGH 摆动），
// 供止损计算使用；缺失时对应值为 0。
func NearestLevels(candles []market.Candle, cfg StructureConfig) (support, resistance float64) {
	swings := SwingPoints(candles, cfg)
	for i := len(swings) - 1; i >= 0; i-- {
		switch swings[i].Kind {
		case PivotLow:
			if support == 0 {
				support = swings[i].Value
			}
		case PivotHigh:
			if resistance == 0 {
				resistance = swings[i].Value
			}
		}
		if support != 0 && resistance != 0 {
			break
		}
	}
	return support, resistance
}
