package market

import "context"

// CandleEvent 封装了来源于外部行情源的单根 K 线。
type CandleEvent struct {
	Symbol   string
	Interval string
	Candle   Candle
}

// TickEvent 表示实时成交价事件（例如 aggTrade）。
type TickEvent struct {
	Symbol    string
	Price     float64
	Quantity  float64
	EventTime int64
	TradeTime int64
}

// SubscribeOptions 控制实时订阅行为。
type SubscribeOptions struct {
	BatchSize    int
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

// OpenInterestPoint 某一时刻的持仓量统计。
type OpenInterestPoint struct {
	Symbol               string  `json:"symbol"`
	SumOpenInterest      float64 `json:"sum_open_interest"`
	SumOpenInterestValue float64 `json:"sum_open_interest_value"`
	Timestamp            int64   `json:"timestamp"`
}

// DerivativesSnapshot 汇总单个交易对的衍生品指标：
// 最新资金费率加上一段持仓量轨迹及其区间变化率。
type DerivativesSnapshot struct {
	Symbol       string              `json:"symbol"`
	FundingRate  float64             `json:"funding_rate"`
	OpenInterest []OpenInterestPoint `json:"open_interest,omitempty"`
	OIChangePct  float64             `json:"oi_change_pct"`
}

// SourceStats 记录数据源运行期的一些指标。
type SourceStats struct {
	Reconnects      int
	SubscribeErrors int
	LastError       string
}

// Source 统一对接外部行情供应商。
type Source interface {
	// FetchHistory 拉取最近 limit 根 K 线并按时间升序返回；
	// 末尾元素可能尚未收盘（Final=false）。
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// Subscribe 订阅实时 K 线，返回只读事件通道；通道关闭意味着订阅已结束。
	Subscribe(ctx context.Context, symbols, intervals []string, opts SubscribeOptions) (<-chan CandleEvent, error)
	// SubscribeTicks 订阅实时成交价（如 aggTrade），供信号生命周期用真实成交价驱动。
	SubscribeTicks(ctx context.Context, symbols []string, opts SubscribeOptions) (<-chan TickEvent, error)
	// Stats 返回当前运行状态（若 source 不支持则返回零值）。
	Stats() SourceStats
	// Close 释放底层资源，例如关闭 WS 连接。
	Close() error
}
