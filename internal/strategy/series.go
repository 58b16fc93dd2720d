package strategy

import "math"

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// LastValid 返回序列末端最近一个有限值，全 NaN 时返回 NaN。
func LastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if isFinite(series[i]) {
			return series[i]
		}
	}
	return math.NaN()
}

// Valid 去掉序列头部的 NaN 预热段。
func Valid(series []float64) []float64 {
	start := 0
	for start < len(series) && !isFinite(series[start]) {
		start++
	}
	return series[start:]
}

// At 按 barsAgo 从序列末端取值，越界或非有限值时 ok=false。
func At(series []float64, barsAgo int) (float64, bool) {
	if barsAgo < 0 || len(series) == 0 {
		return 0, false
	}
	idx := len(series) - 1 - barsAgo
	if idx < 0 || idx >= len(series) {
		return 0, false
	}
	if !isFinite(series[idx]) {
		return 0, false
	}
	return series[idx], true
}

// CrossedAbove 判断 a 是否在最近一根上穿 b（上一根 a<=b，最新 a>b）。
func CrossedAbove(a, b []float64) bool {
	a0, ok0 := At(a, 0)
	a1, ok1 := At(a, 1)
	b0, ok2 := At(b, 0)
	b1, ok3 := At(b, 1)
	if !(ok0 && ok1 && ok2 && ok3) {
		return false
	}
	return a1 <= b1 && a0 > b0
}

// CrossedBelow 判断 a 是否在最近一根下穿 b。
func CrossedBelow(a, b []float64) bool {
	a0, ok0 := At(a, 0)
	a1, ok1 := At(a, 1)
	b0, ok2 := At(b, 0)
	b1, ok3 := At(b, 1)
	if !(ok0 && ok1 && ok2 && ok3) {
		return false
	}
	return a1 >= b1 && a0 < b0
}
