package tracker

import "sable/internal/analysis"

// TypeStats 是单一信号类型的聚合。
type TypeStats struct {
	Total   int     `json:"total"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Expired int     `json:"expired"`
	Active  int     `json:"active"`
	WinRate float64 `json:"win_rate"`
	AvgPnL  float64 `json:"avg_pnl_percent"`
}

// Summary 是全量记录的派生视图，每次按需重算，从不落盘。
type Summary struct {
	TypeStats
	ByType map[analysis.SignalType]TypeStats `json:"by_type"`
}

// Summarize 聚合统计。胜率 = TP_HIT / 已完结（不含过期仍计入总数的约定：
// 过期不计入胜负，但计入平均盈亏）。
func Summarize(records []SignalRecord) Summary {
	out := Summary{ByType: make(map[analysis.SignalType]TypeStats)}
	type acc struct {
		stats  TypeStats
		pnlSum float64
		closed int
	}
	total := &acc{}
	byType := make(map[analysis.SignalType]*acc)

	apply := func(a *acc, rec SignalRecord) {
		a.stats.Total++
		switch rec.Status {
		case StatusTPHit:
			a.stats.Wins++
		case StatusSLHit:
			a.stats.Losses++
		case StatusExpired:
			a.stats.Expired++
		case StatusActive:
			a.stats.Active++
		}
		if rec.Status != StatusActive {
			a.pnlSum += rec.PnLPercent
			a.closed++
		}
	}

	for _, rec := range records {
		apply(total, rec)
		a, ok := byType[rec.SignalType]
		if !ok {
			a = &acc{}
			byType[rec.SignalType] = a
		}
		apply(a, rec)
	}

	finalize := func(a *acc) TypeStats {
		s := a.stats
		if decided := s.Wins + s.Losses; decided > 0 {
			s.WinRate = float64(s.Wins) / float64(decided) * 100
		}
		if a.closed > 0 {
			s.AvgPnL = a.pnlSum / float64(a.closed)
		}
		return s
	}

	out.TypeStats = finalize(total)
	for t, a := range byType {
		out.ByType[t] = finalize(a)
	}
	return out
}
