package market

import "github.com/shopspring/decimal"

// FlowMetrics 汇总一段 K 线内的主动买卖量差，作为量价背离
// 告警的佐证信息附带输出。
type FlowMetrics struct {
	Delta      decimal.Decimal `json:"delta"`
	Normalized decimal.Decimal `json:"normalized"`
	Bias       string          `json:"bias"`
	PeakFlip   string          `json:"peak_flip"`
}

// ComputeFlow 逐根累计 taker_buy - taker_sell：
//   - Delta: 窗口末的累计差值；
//   - Normalized: 累计序列上的 min-max 归一化末值，序列平坦时取 0.5；
//   - Bias: 价格步多数上行而逐根差值多数为负 → "down"（买盘衰竭）；
//     镜像情形 → "up"；其余 "neutral"。与量价背离的多数步判定同一口径。
//   - PeakFlip: 累计序列末三值构成局部顶/底时给出 "local_top"/"local_bottom"。
func ComputeFlow(candles []Candle) (FlowMetrics, bool) {
	if len(candles) == 0 {
		return FlowMetrics{}, false
	}
	steps := make([]decimal.Decimal, len(candles))
	cum := make([]decimal.Decimal, len(candles))
	total := decimal.Zero
	for i, c := range candles {
		d := decimal.NewFromFloat(c.TakerBuyVolume).Sub(decimal.NewFromFloat(c.TakerSellVolume))
		steps[i] = d
		total = total.Add(d)
		cum[i] = total
	}
	return FlowMetrics{
		Delta:      total,
		Normalized: normalizeLast(cum),
		Bias:       flowBias(candles, steps),
		PeakFlip:   peakFlip(cum),
	}, true
}

func normalizeLast(series []decimal.Decimal) decimal.Decimal {
	lo, hi := series[0], series[0]
	for _, v := range series[1:] {
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	if !hi.GreaterThan(lo) {
		return decimal.NewFromFloat(0.5)
	}
	return series[len(series)-1].Sub(lo).Div(hi.Sub(lo))
}

// flowBias 把价格步的多数方向与逐根量差的多数符号对照。
func flowBias(candles []Candle, steps []decimal.Decimal) string {
	priceUp, priceDown := 0, 0
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			priceUp++
		case candles[i].Close < candles[i-1].Close:
			priceDown++
		}
	}
	flowPos, flowNeg := 0, 0
	for _, d := range steps {
		switch d.Sign() {
		case 1:
			flowPos++
		case -1:
			flowNeg++
		}
	}
	switch {
	case priceUp > priceDown && flowNeg > flowPos:
		return "down"
	case priceDown > priceUp && flowPos > flowNeg:
		return "up"
	default:
		return "neutral"
	}
}

func peakFlip(series []decimal.Decimal) string {
	n := len(series)
	if n < 4 {
		return "none"
	}
	last, mid, prev := series[n-1], series[n-2], series[n-3]
	switch {
	case mid.GreaterThan(prev) && last.LessThan(mid):
		return "local_top"
	case mid.LessThan(prev) && last.GreaterThan(mid):
		return "local_bottom"
	}
	return "none"
}
