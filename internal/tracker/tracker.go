package tracker

import (
	"math"
	"strings"
	"sync"
	"time"

	"sable/internal/analysis"
	"sable/internal/market"
)

// AlertMark 记录某一信号类型最近一次放行的告警。
type AlertMark struct {
	Timestamp int64              `json:"timestamp"`
	Price     float64            `json:"price"`
	Direction analysis.Direction `json:"direction"`
}

// State 是单个 symbol×interval 的跟踪状态。生命周期内只被处理
// 该 key 的 tick 修改，内存上界由 HistorySize 保证。
type State struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`

	RecentCandles    []market.Candle                   `json:"recent_candles,omitempty"`
	IndicatorHistory map[string][]float64              `json:"indicator_history,omitempty"`
	LastAlerts       map[analysis.SignalType]AlertMark `json:"last_alerts,omitempty"`
}

// Store 按 symbol×interval 维护 State，懒创建、永不显式销毁。
// 以依赖注入的方式传给引擎，便于单 pair 的隔离测试。
type Store struct {
	mu          sync.RWMutex
	states      map[string]*State
	historySize int
}

// NewStore 创建状态仓。historySize 控制每个 key 保留的收盘 K 线
// 和指标值条数，非正值回退到 30。
func NewStore(historySize int) *Store {
	if historySize <= 0 {
		historySize = 30
	}
	return &Store{
		states:      make(map[string]*State),
		historySize: historySize,
	}
}

func stateKey(symbol, interval string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "@" + strings.ToLower(strings.TrimSpace(interval))
}

func (s *Store) get(symbol, interval string) *State {
	key := stateKey(symbol, interval)
	st, ok := s.states[key]
	if !ok {
		st = &State{
			Symbol:           strings.ToUpper(strings.TrimSpace(symbol)),
			Interval:         strings.ToLower(strings.TrimSpace(interval)),
			IndicatorHistory: make(map[string][]float64),
			LastAlerts:       make(map[analysis.SignalType]AlertMark),
		}
		s.states[key] = st
	}
	return st
}

// ApplyCandle 追加一根已收盘 K 线并裁剪历史。未收盘 K 线被忽略。
func (s *Store) ApplyCandle(symbol, interval string, c market.Candle) {
	if !c.Final {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(symbol, interval)
	n := len(st.RecentCandles)
	if n > 0 && st.RecentCandles[n-1].OpenTime == c.OpenTime {
		st.RecentCandles[n-1] = c
	} else {
		st.RecentCandles = append(st.RecentCandles, c)
	}
	if len(st.RecentCandles) > s.historySize {
		st.RecentCandles = st.RecentCandles[len(st.RecentCandles)-s.historySize:]
	}
}

// RecordIndicator 追加一条指标历史值（如每根收盘后的 RSI）。
func (s *Store) RecordIndicator(symbol, interval, name string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(symbol, interval)
	hist := append(st.IndicatorHistory[name], value)
	if len(hist) > s.historySize {
		hist = hist[len(hist)-s.historySize:]
	}
	st.IndicatorHistory[name] = hist
}

// CooldownRule 描述一类信号的放行条件。
type CooldownRule struct {
	Cooldown time.Duration
	// MinChangePct 为 0 时不做价格显著性过滤。
	MinChangePct float64
}

// Allow 判断该类型信号当前能否放行：
//  1. 距上次放行不足冷却时间 → 拒绝；
//  2. 方向相同且价格变化未超过 MinChangePct → 拒绝。
//
// 放行不等于登记，调用方确认发出后需再调 Mark。
func (s *Store) Allow(symbol, interval string, sigType analysis.SignalType, direction analysis.Direction, price float64, now time.Time, rule CooldownRule) bool {
	s.mu.RLock()
	st, ok := s.states[stateKey(symbol, interval)]
	var mark AlertMark
	var marked bool
	if ok {
		mark, marked = st.LastAlerts[sigType]
	}
	s.mu.RUnlock()
	if !marked {
		return true
	}
	if rule.Cooldown > 0 && now.UnixMilli()-mark.Timestamp < rule.Cooldown.Milliseconds() {
		return false
	}
	if rule.MinChangePct > 0 && mark.Direction == direction && mark.Price > 0 {
		changePct := math.Abs(price-mark.Price) / mark.Price * 100
		if changePct <= rule.MinChangePct {
			return false
		}
	}
	return true
}

// Mark 登记一次已放行的告警。
func (s *Store) Mark(symbol, interval string, sigType analysis.SignalType, direction analysis.Direction, price float64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(symbol, interval)
	st.LastAlerts[sigType] = AlertMark{
		Timestamp: now.UnixMilli(),
		Price:     price,
		Direction: direction,
	}
}

// Snapshot 导出全部状态（symbol → interval → State），供持久化边界使用。
func (s *Store) Snapshot() map[string]map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]State)
	for _, st := range s.states {
		bySymbol, ok := out[st.Symbol]
		if !ok {
			bySymbol = make(map[string]State)
			out[st.Symbol] = bySymbol
		}
		bySymbol[st.Interval] = cloneState(st)
	}
	return out
}

// Restore 从持久化快照恢复。与现有状态冲突的 key 以快照为准。
func (s *Store) Restore(snapshot map[string]map[string]State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byInterval := range snapshot {
		for _, st := range byInterval {
			restored := cloneState(&st)
			s.states[stateKey(st.Symbol, st.Interval)] = &restored
		}
	}
}

func cloneState(st *State) State {
	out := State{
		Symbol:           st.Symbol,
		Interval:         st.Interval,
		RecentCandles:    append([]market.Candle(nil), st.RecentCandles...),
		IndicatorHistory: make(map[string][]float64, len(st.IndicatorHistory)),
		LastAlerts:       make(map[analysis.SignalType]AlertMark, len(st.LastAlerts)),
	}
	for name, hist := range st.IndicatorHistory {
		out.IndicatorHistory[name] = append([]float64(nil), hist...)
	}
	for k, v := range st.LastAlerts {
		out.LastAlerts[k] = v
	}
	return out
}
