package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sable/internal/gateway/notifier"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/store"
)

// PriceObserver 接收实时成交价，典型实现是 Engine（推进信号生命周期）。
type PriceObserver interface {
	NotifyPrice(symbol string, price float64)
}

type MonitorParams struct {
	Source   market.Source
	Klines   store.KlineStore
	Symbols  []string
	Interval string // 价格回退用的最小周期
	Telegram *notifier.Telegram
	Observer PriceObserver
}

// PriceMonitor 维护最新成交价缓存，并把价格喂给 Observer。
// WS 断线时 LatestPrice 回退到最近一根 K 线收盘价（限时效）。
type PriceMonitor struct {
	source   market.Source
	ks       store.KlineStore
	symbols  []string
	interval string
	tg       *notifier.Telegram
	observer PriceObserver

	sweepEvery time.Duration

	lastPriceMu sync.RWMutex
	lastPrice   map[string]lastPriceEntry

	tradeStreamMu sync.Mutex
	tradeStreamUp bool
}

type lastPriceEntry struct {
	price float64
	ts    int64
}

const (
	lastPriceMaxAge = 10 * time.Second
	klineMaxAge     = 30 * time.Second
	sweepInterval   = 15 * time.Second
)

func NewPriceMonitor(p MonitorParams) *PriceMonitor {
	if p.Source == nil {
		return nil
	}
	interval := strings.ToLower(strings.TrimSpace(p.Interval))
	if interval == "" {
		interval = "1m"
	}
	return &PriceMonitor{
		source:     p.Source,
		ks:         p.Klines,
		symbols:    append([]string(nil), p.Symbols...),
		interval:   interval,
		tg:         p.Telegram,
		observer:   p.Observer,
		sweepEvery: sweepInterval,
		lastPrice:  make(map[string]lastPriceEntry),
	}
}

// Start 建立 aggTrade 订阅。订阅失败只告警，此时价格轮询兜底
// 继续推进信号生命周期。
func (m *PriceMonitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	go m.sweepLoop(ctx)
	opts := market.SubscribeOptions{
		Buffer: 2048,
		OnConnect: func() {
			if ctx.Err() != nil {
				return
			}
			m.tradeStreamMu.Lock()
			wasUp := m.tradeStreamUp
			m.tradeStreamUp = true
			m.tradeStreamMu.Unlock()
			if m.tg != nil {
				msg := "实时成交价流已建立 ✅"
				if wasUp {
					msg = "实时成交价流已恢复 ✅"
				}
				_ = m.tg.SendText(ctx, msg)
			}
		},
		OnDisconnect: func(err error) {
			if ctx.Err() != nil {
				return
			}
			m.tradeStreamMu.Lock()
			m.tradeStreamUp = false
			m.tradeStreamMu.Unlock()
			if m.tg != nil {
				reason := "未知"
				if err != nil && err.Error() != "" {
					reason = err.Error()
				}
				_ = m.tg.SendText(ctx, fmt.Sprintf("实时成交价流断线 ⚠️\n错误: %s", reason))
			}
		},
	}
	stream, err := m.source.SubscribeTicks(ctx, m.symbols, opts)
	if err != nil {
		logger.Warnf("订阅实时成交价失败，改用收盘价轮询: %v", err)
		return
	}
	logger.Infof("✓ 实时成交价订阅已启动 (aggTrade)")
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-stream:
				if !ok {
					return
				}
				m.handleTradePrice(ev)
			}
		}
	}()
}

func (m *PriceMonitor) handleTradePrice(ev market.TickEvent) {
	if m == nil || ev.Price <= 0 {
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	if symbol == "" {
		return
	}
	ts := ev.EventTime
	if ts == 0 {
		ts = ev.TradeTime
	}
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	m.lastPriceMu.Lock()
	m.lastPrice[symbol] = lastPriceEntry{price: ev.Price, ts: ts}
	m.lastPriceMu.Unlock()

	if m.observer != nil {
		m.observer.NotifyPrice(symbol, ev.Price)
	}
}

// sweepLoop 周期性用回退价格推进信号生命周期。成交流在线时空转，
// 离线（订阅失败或断线）期间接管观察。
func (m *PriceMonitor) sweepLoop(ctx context.Context) {
	if m.observer == nil {
		return
	}
	t := time.NewTicker(m.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *PriceMonitor) sweepOnce(ctx context.Context) {
	m.tradeStreamMu.Lock()
	up := m.tradeStreamUp
	m.tradeStreamMu.Unlock()
	if up || m.observer == nil {
		return
	}
	for _, sym := range m.symbols {
		symbol := strings.ToUpper(strings.TrimSpace(sym))
		if symbol == "" {
			continue
		}
		if price := m.LatestPrice(ctx, symbol); price > 0 {
			m.observer.NotifyPrice(symbol, price)
		}
	}
}

func (m *PriceMonitor) freshLastPrice(symbol string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	m.lastPriceMu.RLock()
	entry, ok := m.lastPrice[symbol]
	m.lastPriceMu.RUnlock()
	if !ok || entry.price <= 0 {
		return 0, false
	}
	if entry.ts > 0 && time.Since(time.UnixMilli(entry.ts)) > lastPriceMaxAge {
		return 0, false
	}
	return entry.price, true
}

// LatestPrice 返回最新成交价；成交流不可用时回退到最近收盘价。
// 回退数据过期则返回 0，调用方应视为"当前无可信价格"。
func (m *PriceMonitor) LatestPrice(ctx context.Context, symbol string) float64 {
	if m == nil {
		return 0
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if lp, ok := m.freshLastPrice(symbol); ok {
		return lp
	}
	if m.ks == nil {
		return 0
	}
	last, ok := m.ks.Latest(ctx, symbol, m.interval)
	if !ok {
		return 0
	}
	ts := last.CloseTime
	if ts == 0 {
		ts = last.OpenTime
	}
	if ts > 0 {
		age := time.Since(time.UnixMilli(ts))
		if age > klineMaxAge {
			logger.Warnf("价格回退数据过期: %s %s age=%s", symbol, m.interval, age.Truncate(time.Second))
			return 0
		}
	}
	return last.Close
}
