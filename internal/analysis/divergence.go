package analysis

import (
	"fmt"
	"math"

	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/strategy"
)

// DivergenceConfig 控制单个振荡器背离检测。
type DivergenceConfig struct {
	LeftBars  int
	RightBars int
	// 多头侧：最新指标 pivot 低点必须 ≤ BullLevel，且比前一个低点高出 MinDiff 以上。
	BullLevel float64
	// 空头侧：最新指标 pivot 高点必须 ≥ BearLevel，且比前一个高点低 MinDiff 以上。
	BearLevel float64
	MinDiff   float64
}

func (c DivergenceConfig) withDefaults() DivergenceConfig {
	if c.LeftBars <= 0 {
		c.LeftBars = 2
	}
	if c.RightBars <= 0 {
		c.RightBars = 2
	}
	if c.MinDiff <= 0 {
		c.MinDiff = 5
	}
	return c
}

// DefaultRSIDivergence 对应 RSI 的常用带区。
func DefaultRSIDivergence() DivergenceConfig {
	return DivergenceConfig{LeftBars: 2, RightBars: 2, BullLevel: 45, BearLevel: 55, MinDiff: 5}
}

// DefaultMACDDivergence 以零轴为带区，阈值放宽到柱体量级。
func DefaultMACDDivergence() DivergenceConfig {
	return DivergenceConfig{LeftBars: 2, RightBars: 2, BullLevel: 0, BearLevel: 0, MinDiff: 0.0001}
}

// DetectDivergence 在价格收盘序列与指标序列上独立找 pivot，
// 用两侧各自最近的两个同类 pivot 判定常规背离。
// 输入要求均为已收盘 K 线对齐的序列；返回 nil 表示无信号。
func DetectDivergence(sigType SignalType, symbol, interval string, candles []market.Candle, indicator []float64, cfg DivergenceConfig) *Signal {
	cfg = cfg.withDefaults()
	if len(candles) < cfg.LeftBars+cfg.RightBars+1 || len(indicator) != len(candles) {
		return nil
	}
	closes := market.Closes(candles)
	times := make([]int64, len(candles))
	for i, c := range candles {
		times[i] = c.CloseTime
	}

	pricePivots := StampPivots(FindPivots(closes, cfg.LeftBars, cfg.RightBars), times)
	indPivots := FindPivots(indicator, cfg.LeftBars, cfg.RightBars)

	if sig := bearishDivergence(sigType, symbol, interval, pricePivots, indPivots, cfg); sig != nil {
		return sig
	}
	return bullishDivergence(sigType, symbol, interval, pricePivots, indPivots, cfg)
}

func bearishDivergence(sigType SignalType, symbol, interval string, pricePivots, indPivots []PivotPoint, cfg DivergenceConfig) *Signal {
	priceHighs := LastOfKind(pricePivots, PivotHigh, 2)
	indHighs := LastOfKind(indPivots, PivotHigh, 2)
	if len(priceHighs) < 2 || len(indHighs) < 2 {
		return nil
	}
	pPrev, pLast := priceHighs[0], priceHighs[1]
	iPrev, iLast := indHighs[0], indHighs[1]
	if !(pLast.Value > pPrev.Value) {
		return nil
	}
	diff := iPrev.Value - iLast.Value
	if !(diff > cfg.MinDiff) {
		return nil
	}
	if iLast.Value < cfg.BearLevel {
		return nil
	}
	logger.Debugf("[divergence] %s %s %s bearish price %.6f>%.6f ind %.4f<%.4f",
		symbol, interval, sigType, pLast.Value, pPrev.Value, iLast.Value, iPrev.Value)
	return &Signal{
		Type:           sigType,
		Direction:      Bearish,
		Symbol:         symbol,
		Interval:       interval,
		Price:          pLast.Value,
		IndicatorValue: iLast.Value,
		Confidence:     divergenceConfidence(diff, cfg.MinDiff),
		Timestamp:      pLast.Timestamp,
		Details: map[string]any{
			"price_prev": pPrev.Value,
			"ind_prev":   iPrev.Value,
		},
	}
}

func bullishDivergence(sigType SignalType, symbol, interval string, pricePivots, indPivots []PivotPoint, cfg DivergenceConfig) *Signal {
	priceLows := LastOfKind(pricePivots, PivotLow, 2)
	indLows := LastOfKind(indPivots, PivotLow, 2)
	if len(priceLows) < 2 || len(indLows) < 2 {
		return nil
	}
	pPrev, pLast := priceLows[0], priceLows[1]
	iPrev, iLast := indLows[0], indLows[1]
	if !(pLast.Value < pPrev.Value) {
		return nil
	}
	diff := iLast.Value - iPrev.Value
	if !(diff > cfg.MinDiff) {
		return nil
	}
	if iLast.Value > cfg.BullLevel {
		return nil
	}
	logger.Debugf("[divergence] %s %s %s bullish price %.6f<%.6f ind %.4f>%.4f",
		symbol, interval, sigType, pLast.Value, pPrev.Value, iLast.Value, iPrev.Value)
	return &Signal{
		Type:           sigType,
		Direction:      Bullish,
		Symbol:         symbol,
		Interval:       interval,
		Price:          pLast.Value,
		IndicatorValue: iLast.Value,
		Confidence:     divergenceConfidence(diff, cfg.MinDiff),
		Timestamp:      pLast.Timestamp,
		Details: map[string]any{
			"price_prev": pPrev.Value,
			"ind_prev":   iPrev.Value,
		},
	}
}

// divergenceConfidence 与背离幅度成正比，上限 100。
// 刚过阈值记 50 分，幅度每超出阈值一倍再加 25 分。
func divergenceConfidence(diff, minDiff float64) float64 {
	if minDiff <= 0 {
		minDiff = 1
	}
	excess := math.Abs(diff)/minDiff - 1
	return clampConfidence(50 + excess*25)
}

// DetectRSIDivergence 基于收盘价计算 RSI 后调用通用背离检测。
// RSI 数据不足按"无信号"降级，不向上抛错。
func DetectRSIDivergence(symbol, interval string, candles []market.Candle, period int, cfg DivergenceConfig) *Signal {
	if period <= 0 {
		period = 14
	}
	rsi, err := strategy.RSI(market.Closes(candles), period)
	if err != nil {
		logger.Debugf("[divergence] %s %s rsi skipped: %v", symbol, interval, err)
		return nil
	}
	return DetectDivergence(SignalRSIDivergence, symbol, interval, candles, rsi, cfg)
}

// DetectMACDDivergence 对 MACD 线做背离检测。
func DetectMACDDivergence(symbol, interval string, candles []market.Candle, fast, slow, signal int, cfg DivergenceConfig) *Signal {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		fast, slow, signal = 12, 26, 9
	}
	macd := strategy.MACD(market.Closes(candles), fast, slow, signal)
	sig := DetectDivergence(SignalMACDDivergence, symbol, interval, candles, macd.Line, cfg)
	if sig != nil && sig.Details != nil {
		sig.Details["macd_hist"] = strategy.LastValid(macd.Histogram)
	}
	return sig
}

// String 便于日志输出。
func (s *Signal) String() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s/%s %s %s @%.6f conf=%.0f", s.Symbol, s.Interval, s.Type, s.Direction, s.Price, s.Confidence)
}
