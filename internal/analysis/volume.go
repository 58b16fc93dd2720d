package analysis

import (
	"math"

	"sable/internal/market"
	"sable/internal/strategy"
)

// VolumeConfig 控制量价背离与放量检测。
type VolumeConfig struct {
	// Lookback 是趋势判定窗口（按步数多数方向计）。
	Lookback int
	// SpikeThreshold 当前量 ≥ 阈值 × 此前均量时视为放量。
	SpikeThreshold float64
	// BullRatio 双降场景下，量的相对变化要超过价的多少倍才算多头背离。
	BullRatio float64
}

func (c VolumeConfig) withDefaults() VolumeConfig {
	if c.Lookback <= 0 {
		c.Lookback = 10
	}
	if c.SpikeThreshold <= 0 {
		c.SpikeThreshold = 1.5
	}
	if c.BullRatio <= 0 {
		c.BullRatio = 1.5
	}
	return c
}

// DetectVolumeDivergence 按多数步方向比较价格趋势与量能趋势：
//   - 价升量缩 → BEARISH；
//   - 价量双降且量的相对跌幅超过价的 BullRatio 倍 → BULLISH
//     （沿用上游的非常规定义，见 DESIGN.md）。
//
// 反转概率按 量变/价变 比值分档。
func DetectVolumeDivergence(symbol, interval string, candles []market.Candle, cfg VolumeConfig) *Signal {
	cfg = cfg.withDefaults()
	if len(candles) < cfg.Lookback+1 {
		return nil
	}
	window := candles[len(candles)-cfg.Lookback-1:]
	closes := market.Closes(window)
	volumes := market.Volumes(window)

	priceTrend := majorityTrend(closes)
	volumeTrend := majorityTrend(volumes)
	priceChange := relativeChange(closes)
	volumeChange := relativeChange(volumes)

	last := window[len(window)-1]
	base := Signal{
		Type:      SignalVolumeDivergence,
		Symbol:    symbol,
		Interval:  interval,
		Price:     last.Close,
		Timestamp: last.CloseTime,
		Details: map[string]any{
			"price_change_pct":  priceChange * 100,
			"volume_change_pct": volumeChange * 100,
		},
	}
	if flow, ok := market.ComputeFlow(window); ok {
		base.Details["flow"] = flow
	}

	switch {
	case priceTrend > 0 && volumeTrend < 0:
		sig := base
		sig.Direction = Bearish
		sig.Reversal = reversalBucket(volumeChange, priceChange)
		sig.Confidence = volumeDivergenceConfidence(volumeChange, priceChange)
		return &sig
	case priceTrend < 0 && volumeTrend < 0 &&
		math.Abs(volumeChange) > cfg.BullRatio*math.Abs(priceChange):
		sig := base
		sig.Direction = Bullish
		sig.Reversal = reversalBucket(volumeChange, priceChange)
		sig.Confidence = volumeDivergenceConfidence(volumeChange, priceChange)
		return &sig
	}
	return nil
}

// DetectVolumeSpike 判定最新一根是否放量（均量不含当前这根）。
// 未收盘的末尾 K 线也可以参与，放量本质是即时事件。
func DetectVolumeSpike(symbol, interval string, candles []market.Candle, cfg VolumeConfig) *Signal {
	cfg = cfg.withDefaults()
	stats, ok := strategy.ComputeVolumeStats(candles, cfg.Lookback)
	if !ok || stats.Average <= 0 {
		return nil
	}
	if stats.Ratio < cfg.SpikeThreshold {
		return nil
	}
	last := candles[len(candles)-1]
	direction := Bullish
	if last.Close < last.Open {
		direction = Bearish
	}
	return &Signal{
		Type:        SignalVolumeSpike,
		Direction:   direction,
		Symbol:      symbol,
		Interval:    interval,
		Price:       last.Close,
		VolumeRatio: stats.Ratio,
		Confidence:  clampConfidence(stats.Ratio / cfg.SpikeThreshold * 70),
		Timestamp:   last.CloseTime,
		Details: map[string]any{
			"avg_volume":     stats.Average,
			"current_volume": stats.Current,
		},
	}
}

// majorityTrend 统计相邻步的方向多数：>0 上行，<0 下行，0 无明显方向。
func majorityTrend(values []float64) int {
	up, down := 0, 0
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > values[i-1]:
			up++
		case values[i] < values[i-1]:
			down++
		}
	}
	switch {
	case up > down:
		return 1
	case down > up:
		return -1
	default:
		return 0
	}
}

func relativeChange(values []float64) float64 {
	if len(values) < 2 || values[0] == 0 {
		return 0
	}
	return (values[len(values)-1] - values[0]) / values[0]
}

// reversalBucket 按 |量变|/|价变| 比值分档。
func reversalBucket(volumeChange, priceChange float64) ReversalProbability {
	ratio := math.Abs(volumeChange)
	if priceChange != 0 {
		ratio = math.Abs(volumeChange) / math.Abs(priceChange)
	}
	switch {
	case ratio >= 3:
		return ReversalHigh
	case ratio >= 1.5:
		return ReversalMedium
	default:
		return ReversalLow
	}
}

func volumeDivergenceConfidence(volumeChange, priceChange float64) float64 {
	ratio := math.Abs(volumeChange)
	if priceChange != 0 {
		ratio = math.Abs(volumeChange) / math.Abs(priceChange)
	}
	return clampConfidence(40 + ratio*15)
}
