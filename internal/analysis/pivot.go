package analysis

import "math"

// PivotKind 标识极值方向。
type PivotKind string

const (
	PivotHigh PivotKind = "HIGH"
	PivotLow  PivotKind = "LOW"
)

// PivotPoint 是对称窗口内的局部极值。
type PivotPoint struct {
	Value     float64   `json:"value"`
	Index     int       `json:"index"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Kind      PivotKind `json:"kind"`
}

// FindPivots 在任意数值序列上寻找局部极值。窗口为 [i-leftBars, i+rightBars]，
// 中心与窗口内任一值相等即不算极值。NaN/Inf 邻居被跳过而非否决，
// 但窗口内至少要有一个可比较的邻居。纯函数，结果可复现。
func FindPivots(values []float64, leftBars, rightBars int) []PivotPoint {
	if leftBars <= 0 {
		leftBars = 2
	}
	if rightBars <= 0 {
		rightBars = 2
	}
	n := len(values)
	if n < leftBars+rightBars+1 {
		return nil
	}
	out := make([]PivotPoint, 0, 8)
	for i := leftBars; i < n-rightBars; i++ {
		center := values[i]
		if !finite(center) {
			continue
		}
		isHigh, isLow := true, true
		compared := 0
		for j := i - leftBars; j <= i+rightBars; j++ {
			if j == i {
				continue
			}
			v := values[j]
			if !finite(v) {
				continue
			}
			compared++
			if v >= center {
				isHigh = false
			}
			if v <= center {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}
		if compared == 0 {
			continue
		}
		switch {
		case isHigh:
			out = append(out, PivotPoint{Value: center, Index: i, Kind: PivotHigh})
		case isLow:
			out = append(out, PivotPoint{Value: center, Index: i, Kind: PivotLow})
		}
	}
	return out
}

// StampPivots 用对应下标的时间戳回填 Timestamp 字段。
func StampPivots(pivots []PivotPoint, times []int64) []PivotPoint {
	for i := range pivots {
		if pivots[i].Index >= 0 && pivots[i].Index < len(times) {
			pivots[i].Timestamp = times[pivots[i].Index]
		}
	}
	return pivots
}

// LastOfKind 返回序列中最近的 count 个指定类型 pivot（按时间升序）。
func LastOfKind(pivots []PivotPoint, kind PivotKind, count int) []PivotPoint {
	if count <= 0 {
		return nil
	}
	matched := make([]PivotPoint, 0, count)
	for i := len(pivots) - 1; i >= 0 && len(matched) < count; i-- {
		if pivots[i].Kind == kind {
			matched = append(matched, pivots[i])
		}
	}
	// 反转为时间升序
	for l, r := 0, len(matched)-1; l < r; l, r = l+1, r-1 {
		matched[l], matched[r] = matched[r], matched[l]
	}
	return matched
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
