package strategy

import (
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"

	"sable/internal/market"
)

// ErrInsufficientData 表示历史 K 线不足以计算指定周期的指标。
var ErrInsufficientData = errors.New("insufficient data")

// 所有序列函数的约定：输出与输入等长，预热段填 NaN。
// pivot 检测会跳过 NaN（而不是否决），因此 NaN 对齐是安全的。

// SMA 简单移动平均。
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	for i := range values {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		sum := 0.0
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if !isFinite(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if !valid {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// EMA 指数移动平均：首值为前 period 个输入的简单平均，之后使用
// 乘数 2/(period+1)。talib 的实现即此定义，这里只负责把预热段标成 NaN。
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	ema := talib.Ema(values, period)
	for i := range ema {
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = ema[i]
	}
	return out
}

// EMALatest 返回序列末端的 EMA 值，数据不足时返回 NaN。
func EMALatest(values []float64, period int) float64 {
	return LastValid(EMA(values, period))
}

// RSI Wilder 平滑 RSI。与其它指标不同，这里把数据不足视为显式前置
// 条件错误：period+1 根之内无法形成首个均值。平均跌幅为 0 时 RSI=100。
func RSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: 非法周期 %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("rsi: 需要至少 %d 根收盘价，实际 %d: %w", period+1, len(closes), ErrInsufficientData)
	}
	out := make([]float64, len(closes))
	for i := 0; i < period; i++ {
		out[i] = math.NaN()
	}
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDResult 持有 MACD 三条序列（与输入等长，NaN 预热）。
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD 快慢 EMA 之差 + 信号 EMA + 柱状图，默认 12/26/9。
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	n := len(closes)
	res := MACDResult{
		Line:      nanSeries(n),
		Signal:    nanSeries(n),
		Histogram: nanSeries(n),
	}
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow || n < slow+signal {
		return res
	}
	line, sig, hist := talib.Macd(closes, fast, slow, signal)
	warmup := slow + signal - 2
	for i := warmup; i < n; i++ {
		res.Line[i] = line[i]
		res.Signal[i] = sig[i]
		res.Histogram[i] = hist[i]
	}
	return res
}

// StochResult 持有 %K 与 %D。
type StochResult struct {
	K []float64
	D []float64
}

// Stoch 随机指标。窗口高低价相等时 %K 取 50（中性，避免除零），
// 这一点与 talib 约定不同，因此手写实现。
func Stoch(candles []market.Candle, kPeriod, dPeriod int) StochResult {
	n := len(candles)
	res := StochResult{K: nanSeries(n), D: nanSeries(n)}
	if kPeriod <= 0 || dPeriod <= 0 || n < kPeriod {
		return res
	}
	for i := kPeriod - 1; i < n; i++ {
		lo := candles[i].Low
		hi := candles[i].High
		for j := i - kPeriod + 1; j <= i; j++ {
			if candles[j].Low < lo {
				lo = candles[j].Low
			}
			if candles[j].High > hi {
				hi = candles[j].High
			}
		}
		if hi-lo == 0 {
			res.K[i] = 50
			continue
		}
		res.K[i] = (candles[i].Close - lo) / (hi - lo) * 100
	}
	res.D = SMA(res.K, dPeriod)
	return res
}

// BollingerResult 持有布林带三条轨道。
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger 中轨为 SMA，上下轨为中轨 ± multiplier × 总体标准差。
// talib.BBands 正是总体（而非样本）标准差。
func Bollinger(closes []float64, period int, multiplier float64) BollingerResult {
	n := len(closes)
	res := BollingerResult{Upper: nanSeries(n), Middle: nanSeries(n), Lower: nanSeries(n)}
	if period <= 0 || n < period {
		return res
	}
	upper, middle, lower := talib.BBands(closes, period, multiplier, multiplier, talib.SMA)
	for i := period - 1; i < n; i++ {
		res.Upper[i] = upper[i]
		res.Middle[i] = middle[i]
		res.Lower[i] = lower[i]
	}
	return res
}

// ATR 真实波幅的简单平均（非 Wilder 平滑，talib.Atr 是后者）。
// 首根的 TR 取 high-low。
func ATR(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}
	tr := make([]float64, n)
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	for i := period - 1; i < n; i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += tr[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// ATRLatest 返回最新 ATR，数据不足时返回 0。
func ATRLatest(candles []market.Candle, period int) float64 {
	v := LastValid(ATR(candles, period))
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// VWAP 对典型价 (H+L+C)/3 做成交量加权的滚动均值。
func VWAP(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := nanSeries(n)
	if period <= 0 || n < period {
		return out
	}
	for i := period - 1; i < n; i++ {
		sumPV := 0.0
		sumV := 0.0
		for j := i - period + 1; j <= i; j++ {
			sumPV += candles[j].TypicalPrice() * candles[j].Volume
			sumV += candles[j].Volume
		}
		if sumV == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sumPV / sumV
	}
	return out
}

// VolumeStats 描述窗口内的量能状态。Average 不含最新一根。
type VolumeStats struct {
	Average float64
	Current float64
	Ratio   float64
}

// ComputeVolumeStats 统计最新一根相对此前均量的放量倍数。
func ComputeVolumeStats(candles []market.Candle, lookback int) (VolumeStats, bool) {
	if len(candles) < 2 {
		return VolumeStats{}, false
	}
	prior := candles[:len(candles)-1]
	if lookback > 0 && len(prior) > lookback {
		prior = prior[len(prior)-lookback:]
	}
	sum := 0.0
	for _, c := range prior {
		sum += c.Volume
	}
	avg := sum / float64(len(prior))
	cur := candles[len(candles)-1].Volume
	stats := VolumeStats{Average: avg, Current: cur}
	if avg > 0 {
		stats.Ratio = cur / avg
	}
	return stats, true
}
