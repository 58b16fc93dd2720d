package tracker

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sable/internal/analysis"
)

// Status 信号记录的生命周期状态。ACTIVE 是唯一入口，
// 三个终态互斥且只进不出。
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusTPHit   Status = "TP_HIT"
	StatusSLHit   Status = "SL_HIT"
	StatusExpired Status = "EXPIRED"
)

// SignalRecord 是一条已发出信号的完整生命周期记录。
type SignalRecord struct {
	ID              string              `json:"id"`
	Symbol          string              `json:"symbol"`
	Interval        string              `json:"interval"`
	SignalType      analysis.SignalType `json:"signal_type"`
	SubType         string              `json:"sub_type,omitempty"`
	Direction       analysis.Direction  `json:"direction"`
	EntryPrice      float64             `json:"entry_price"`
	TakeProfit      float64             `json:"take_profit"`
	StopLoss        float64             `json:"stop_loss"`
	EntryTime       int64               `json:"entry_time"`
	Confidence      float64             `json:"confidence"`
	RiskReward      float64             `json:"risk_reward"`
	Status          Status              `json:"status"`
	ExitPrice       float64             `json:"exit_price,omitempty"`
	ExitTime        int64               `json:"exit_time,omitempty"`
	PnL             float64             `json:"pnl,omitempty"`
	PnLPercent      float64             `json:"pnl_percent,omitempty"`
	DurationMinutes int64               `json:"duration_minutes,omitempty"`
}

// NewRecord 由信号生成一条 ACTIVE 记录。
func NewRecord(sig analysis.Signal) *SignalRecord {
	return &SignalRecord{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Interval:   sig.Interval,
		SignalType: sig.Type,
		SubType:    sig.SubType,
		Direction:  sig.Direction,
		EntryPrice: sig.Price,
		TakeProfit: sig.TakeProfit,
		StopLoss:   sig.StopLoss,
		EntryTime:  sig.Timestamp,
		Confidence: sig.Confidence,
		RiskReward: sig.RiskReward,
		Status:     StatusActive,
	}
}

// Observe 用一次价格观察推进记录状态。返回 true 表示本次发生了
// ACTIVE → 终态 的迁移；已在终态的记录原样返回 false。
// 优先级：过期 > TP > SL。
func (r *SignalRecord) Observe(price float64, now time.Time, expiry time.Duration) bool {
	if r == nil || r.Status != StatusActive {
		return false
	}
	nowMs := now.UnixMilli()
	if expiry > 0 && nowMs-r.EntryTime > expiry.Milliseconds() {
		r.finish(StatusExpired, price, nowMs)
		return true
	}
	if r.Direction == analysis.Bullish {
		switch {
		case price >= r.TakeProfit:
			r.finish(StatusTPHit, price, nowMs)
			return true
		case price <= r.StopLoss:
			r.finish(StatusSLHit, price, nowMs)
			return true
		}
		return false
	}
	switch {
	case price <= r.TakeProfit:
		r.finish(StatusTPHit, price, nowMs)
		return true
	case price >= r.StopLoss:
		r.finish(StatusSLHit, price, nowMs)
		return true
	}
	return false
}

func (r *SignalRecord) finish(status Status, price float64, nowMs int64) {
	r.Status = status
	r.ExitPrice = price
	r.ExitTime = nowMs
	r.DurationMinutes = int64(math.Round(float64(nowMs-r.EntryTime) / 60000))
	if r.Direction == analysis.Bullish {
		r.PnL = price - r.EntryPrice
	} else {
		r.PnL = r.EntryPrice - price
	}
	if r.EntryPrice != 0 {
		r.PnLPercent = r.PnL / r.EntryPrice * 100
	}
}

// Registry 持有全部信号记录。终态记录保留用于统计，
// 可由调用方按时间截断归档。
type Registry struct {
	mu      sync.RWMutex
	records map[string]*SignalRecord
}

func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*SignalRecord)}
}

// Add 登记一条新记录。
func (g *Registry) Add(rec *SignalRecord) {
	if rec == nil || rec.ID == "" {
		return
	}
	g.mu.Lock()
	g.records[rec.ID] = rec
	g.mu.Unlock()
}

// Load 批量载入（持久化恢复用）。
func (g *Registry) Load(records []SignalRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range records {
		rec := records[i]
		if rec.ID == "" {
			continue
		}
		g.records[rec.ID] = &rec
	}
}

// ObservePrice 把一次价格观察应用到该 symbol 的所有 ACTIVE 记录，
// 返回本次完成迁移的记录拷贝。
func (g *Registry) ObservePrice(symbol string, price float64, now time.Time, expiry time.Duration) []SignalRecord {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	g.mu.Lock()
	defer g.mu.Unlock()
	var changed []SignalRecord
	for _, rec := range g.records {
		if rec.Symbol != symbol || rec.Status != StatusActive {
			continue
		}
		if rec.Observe(price, now, expiry) {
			changed = append(changed, *rec)
		}
	}
	return changed
}

// All 返回全部记录拷贝，按入场时间升序。
func (g *Registry) All() []SignalRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]SignalRecord, 0, len(g.records))
	for _, rec := range g.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime < out[j].EntryTime })
	return out
}

// Active 返回所有 ACTIVE 记录拷贝。
func (g *Registry) Active() []SignalRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]SignalRecord, 0)
	for _, rec := range g.records {
		if rec.Status == StatusActive {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime < out[j].EntryTime })
	return out
}
