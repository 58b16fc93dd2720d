package market

import "time"

// Gap 表示缺失的连续 K 线区间。
type Gap struct {
	From  int64 `json:"from"`
	To    int64 `json:"to"`
	Count int64 `json:"count"`
}

// IntegrityReport 描述一段 K 线序列的覆盖情况。
type IntegrityReport struct {
	Expected int64 `json:"expected"`
	Present  int64 `json:"present"`
	Gaps     []Gap `json:"gaps"`
}

func (r IntegrityReport) Complete() bool { return len(r.Gaps) == 0 }

// CheckIntegrity 按固定步长扫描 OpenTime，找出缺口。
// 输入须按时间升序；乱序数据会被当作缺口报告出来。
func CheckIntegrity(candles []Candle, step time.Duration) IntegrityReport {
	var report IntegrityReport
	stepMs := step.Milliseconds()
	if len(candles) == 0 || stepMs <= 0 {
		return report
	}
	first := candles[0].OpenTime
	last := candles[len(candles)-1].OpenTime
	report.Expected = (last-first)/stepMs + 1
	report.Present = int64(len(candles))

	idx := 0
	cursor := first
	for cursor <= last {
		if idx < len(candles) && candles[idx].OpenTime == cursor {
			idx++
			cursor += stepMs
			continue
		}
		gapStart := cursor
		var missing int64
		for cursor <= last {
			if idx < len(candles) && candles[idx].OpenTime == cursor {
				break
			}
			cursor += stepMs
			missing++
		}
		gapEnd := cursor - stepMs
		if gapEnd < gapStart {
			gapEnd = gapStart
		}
		if missing > 0 {
			report.Gaps = append(report.Gaps, Gap{From: gapStart, To: gapEnd, Count: missing})
		}
		if cursor == gapStart {
			cursor += stepMs
		}
	}
	return report
}
