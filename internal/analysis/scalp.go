package analysis

import (
	"math"

	"sable/internal/market"
	"sable/internal/strategy"
)

// ScalpConfig 控制最短周期上的剥头皮检测。
type ScalpConfig struct {
	FastEMA       int
	SlowEMA       int
	StochK        int
	StochD        int
	Oversold      float64
	Overbought    float64
	BollPeriod    int
	BollMult      float64
	VolumeConfig  VolumeConfig
	MinConfidence float64
}

func (c ScalpConfig) withDefaults() ScalpConfig {
	if c.FastEMA <= 0 {
		c.FastEMA = 9
	}
	if c.SlowEMA <= 0 {
		c.SlowEMA = 21
	}
	if c.StochK <= 0 {
		c.StochK = 14
	}
	if c.StochD <= 0 {
		c.StochD = 3
	}
	if c.Oversold <= 0 {
		c.Oversold = 20
	}
	if c.Overbought <= 0 {
		c.Overbought = 80
	}
	if c.BollPeriod <= 0 {
		c.BollPeriod = 20
	}
	if c.BollMult <= 0 {
		c.BollMult = 2
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 60
	}
	c.VolumeConfig = c.VolumeConfig.withDefaults()
	return c
}

// DefaultScalpConfig 返回全部缺省参数的短线配置。
func DefaultScalpConfig() ScalpConfig {
	return ScalpConfig{}.withDefaults()
}

const (
	ScalpEMACross   = "ema_cross"
	ScalpStochCross = "stoch_cross"
	ScalpBollTouch  = "boll_touch"
	ScalpBollBreak  = "boll_break"
	ScalpVolSpike   = "vol_spike"
)

// DetectScalpSignals 在已收盘序列上跑四个独立子检查，每个子检查至多
// 产出一条信号；置信度低于 MinConfidence 的直接丢弃。共享冷却由
// tracker 统一把关，这里只负责产出候选。
func DetectScalpSignals(symbol, interval string, candles []market.Candle, cfg ScalpConfig) []Signal {
	cfg = cfg.withDefaults()
	if len(candles) < 3 {
		return nil
	}
	out := make([]Signal, 0, 4)
	if sig := scalpEMACross(symbol, interval, candles, cfg); sig != nil {
		out = append(out, *sig)
	}
	if sig := scalpStochCross(symbol, interval, candles, cfg); sig != nil {
		out = append(out, *sig)
	}
	if sig := scalpBollinger(symbol, interval, candles, cfg); sig != nil {
		out = append(out, *sig)
	}
	if sig := DetectVolumeSpike(symbol, interval, candles, cfg.VolumeConfig); sig != nil {
		// 剥头皮语境下放量视为多头动能确认。
		spike := *sig
		spike.Type = SignalScalp
		spike.SubType = ScalpVolSpike
		spike.Direction = Bullish
		out = append(out, spike)
	}
	filtered := out[:0]
	for _, sig := range out {
		if sig.Confidence >= cfg.MinConfidence {
			filtered = append(filtered, sig)
		}
	}
	return filtered
}

func scalpEMACross(symbol, interval string, candles []market.Candle, cfg ScalpConfig) *Signal {
	closes := market.Closes(candles)
	fast := strategy.EMA(closes, cfg.FastEMA)
	slow := strategy.EMA(closes, cfg.SlowEMA)

	var direction Direction
	switch {
	case strategy.CrossedAbove(fast, slow):
		direction = Bullish
	case strategy.CrossedBelow(fast, slow):
		direction = Bearish
	default:
		return nil
	}
	f := strategy.LastValid(fast)
	s := strategy.LastValid(slow)
	if math.IsNaN(f) || math.IsNaN(s) || s == 0 {
		return nil
	}
	gapPct := math.Abs(f-s) / s * 100
	last := candles[len(candles)-1]
	return &Signal{
		Type:           SignalScalp,
		SubType:        ScalpEMACross,
		Direction:      direction,
		Symbol:         symbol,
		Interval:       interval,
		Price:          last.Close,
		IndicatorValue: f,
		Confidence:     math.Min(90, 60+gapPct*30),
		Timestamp:      last.CloseTime,
		Details:        map[string]any{"ema_fast": f, "ema_slow": s, "gap_pct": gapPct},
	}
}

func scalpStochCross(symbol, interval string, candles []market.Candle, cfg ScalpConfig) *Signal {
	stoch := strategy.Stoch(candles, cfg.StochK, cfg.StochD)
	k := strategy.LastValid(stoch.K)
	d := strategy.LastValid(stoch.D)
	if math.IsNaN(k) || math.IsNaN(d) {
		return nil
	}
	last := candles[len(candles)-1]
	// BUY：%K 上穿 %D 且 %K 仍贴近超卖带（高出不超过 10 个点）。
	if strategy.CrossedAbove(stoch.K, stoch.D) && k <= cfg.Oversold+10 {
		return &Signal{
			Type:           SignalScalp,
			SubType:        ScalpStochCross,
			Direction:      Bullish,
			Symbol:         symbol,
			Interval:       interval,
			Price:          last.Close,
			IndicatorValue: k,
			Confidence:     75,
			Timestamp:      last.CloseTime,
			Details:        map[string]any{"stoch_k": k, "stoch_d": d},
		}
	}
	if strategy.CrossedBelow(stoch.K, stoch.D) && k >= cfg.Overbought-10 {
		return &Signal{
			Type:           SignalScalp,
			SubType:        ScalpStochCross,
			Direction:      Bearish,
			Symbol:         symbol,
			Interval:       interval,
			Price:          last.Close,
			IndicatorValue: k,
			Confidence:     75,
			Timestamp:      last.CloseTime,
			Details:        map[string]any{"stoch_k": k, "stoch_d": d},
		}
	}
	return nil
}

func scalpBollinger(symbol, interval string, candles []market.Candle, cfg ScalpConfig) *Signal {
	boll := strategy.Bollinger(market.Closes(candles), cfg.BollPeriod, cfg.BollMult)
	upper := strategy.LastValid(boll.Upper)
	lower := strategy.LastValid(boll.Lower)
	if math.IsNaN(upper) || math.IsNaN(lower) {
		return nil
	}
	last := candles[len(candles)-1]
	var direction Direction
	var subType string
	var confidence float64
	var band float64
	switch {
	case last.Close < lower:
		direction, subType, confidence, band = Bullish, ScalpBollBreak, 80, lower
	case last.Low <= lower:
		direction, subType, confidence, band = Bullish, ScalpBollTouch, 75, lower
	case last.Close > upper:
		direction, subType, confidence, band = Bearish, ScalpBollBreak, 80, upper
	case last.High >= upper:
		direction, subType, confidence, band = Bearish, ScalpBollTouch, 75, upper
	default:
		return nil
	}
	return &Signal{
		Type:           SignalScalp,
		SubType:        subType,
		Direction:      direction,
		Symbol:         symbol,
		Interval:       interval,
		Price:          last.Close,
		IndicatorValue: band,
		Confidence:     confidence,
		Timestamp:      last.CloseTime,
		Details:        map[string]any{"boll_upper": upper, "boll_lower": lower},
	}
}
