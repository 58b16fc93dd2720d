package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"sable/internal/logger"
	"sable/internal/market"
)

const maxHistoryLimit = 1500

// Source 实现了 market.Source，负责 Binance 合约行情的 REST/WS 接入。
// REST 走官方 SDK，WS 走 combined streams。
type Source struct {
	cfg    Config
	client *futures.Client

	mu      sync.Mutex
	klineWS *wsClient
	tickWS  *wsClient
	cancels []context.CancelFunc
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	if final.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient("", "")
	client.HTTPClient.Timeout = final.HTTPTimeout
	return &Source{cfg: final, client: client}, nil
}

// FetchHistory 拉取最近 limit 根 K 线，升序返回。
// 末尾一根若还没走完则标记 Final=false，供上层决定是否参与检测。
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("binance source 未初始化")
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	logger.Debugf("[binance] REST klines %s %s limit=%d", symbol, interval, limit)
	raw, err := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("拉取历史 K 线失败: %w", err)
	}
	nowMs := time.Now().UnixMilli()
	out := make([]market.Candle, 0, len(raw))
	for _, k := range raw {
		if k == nil {
			continue
		}
		vol := parseFloat(k.Volume)
		buy := parseFloat(k.TakerBuyBaseAssetVolume)
		out = append(out, market.Candle{
			OpenTime:        k.OpenTime,
			CloseTime:       k.CloseTime,
			Open:            parseFloat(k.Open),
			High:            parseFloat(k.High),
			Low:             parseFloat(k.Low),
			Close:           parseFloat(k.Close),
			Volume:          vol,
			Trades:          k.TradeNum,
			TakerBuyVolume:  buy,
			TakerSellVolume: vol - buy,
			Final:           k.CloseTime <= nowMs,
		})
	}
	return out, nil
}

// Subscribe 订阅实时 K 线。每根 K 线在走完前会多次推送（Final=false），
// 收盘那一帧 Final=true。
func (s *Source) Subscribe(ctx context.Context, symbols, intervals []string, opts market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	if len(symbols) == 0 || len(intervals) == 0 {
		return nil, fmt.Errorf("symbols and intervals are required for subscription")
	}
	ws, subCtx, err := s.openWS(ctx, opts, func(c *Source, ws *wsClient) { c.klineWS = ws })
	if err != nil {
		return nil, err
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 512
	}
	out := make(chan market.CandleEvent, buffer)
	var wg sync.WaitGroup

	nIntervals := normalizeIntervals(intervals)
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		for _, iv := range nIntervals {
			stream := strings.ToLower(sym) + "@kline_" + iv
			sub := ws.AddSubscriber(stream, 200)
			wg.Add(1)
			go func(symbol, interval string, ch <-chan []byte) {
				defer wg.Done()
				s.forwardKlines(subCtx, symbol, interval, ch, out)
			}(upper, iv, sub)
		}
	}
	for _, iv := range nIntervals {
		if err := ws.BatchSubscribe(klineStreams(symbols, iv)); err != nil {
			ws.Close()
			return nil, err
		}
	}

	go func() {
		<-subCtx.Done()
		ws.Close()
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// SubscribeTicks 订阅逐笔成交（aggTrade），驱动信号的 TP/SL 判定。
func (s *Source) SubscribeTicks(ctx context.Context, symbols []string, opts market.SubscribeOptions) (<-chan market.TickEvent, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols are required for tick subscription")
	}
	ws, subCtx, err := s.openWS(ctx, opts, func(c *Source, ws *wsClient) { c.tickWS = ws })
	if err != nil {
		return nil, err
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	out := make(chan market.TickEvent, buffer)
	var wg sync.WaitGroup
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		stream := strings.ToLower(sym) + "@aggTrade"
		streams = append(streams, stream)
		sub := ws.AddSubscriber(stream, 500)
		wg.Add(1)
		go func(symbol string, ch <-chan []byte) {
			defer wg.Done()
			s.forwardTicks(subCtx, symbol, ch, out)
		}(upper, sub)
	}
	if err := ws.BatchSubscribe(streams); err != nil {
		ws.Close()
		return nil, err
	}

	go func() {
		<-subCtx.Done()
		ws.Close()
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// openWS 建立一条新的 combined streams 连接并登记到 Source 上。
func (s *Source) openWS(ctx context.Context, opts market.SubscribeOptions, attach func(*Source, *wsClient)) (*wsClient, context.Context, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = s.cfg.WSBatchSize
	}
	ws := newWSClient(s.cfg.WSBaseURL, batch)
	ws.SetCallbacks(opts.OnConnect, opts.OnDisconnect)
	if err := ws.Connect(); err != nil {
		return nil, nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	attach(s, ws)
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()
	return ws, subCtx, nil
}

func (s *Source) forwardKlines(ctx context.Context, symbol, interval string, stream <-chan []byte, out chan<- market.CandleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			var ev klineEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				logger.Warnf("[binance] 解码 WS 帧失败: %v", err)
				continue
			}
			vol := ev.Kline.Volume.Float()
			buy := ev.Kline.TakerBuyBaseVolume.Float()
			c := market.Candle{
				OpenTime:        ev.Kline.StartTime,
				CloseTime:       ev.Kline.CloseTime,
				Open:            ev.Kline.OpenPrice.Float(),
				High:            ev.Kline.HighPrice.Float(),
				Low:             ev.Kline.LowPrice.Float(),
				Close:           ev.Kline.ClosePrice.Float(),
				Volume:          vol,
				Trades:          int64(ev.Kline.NumberOfTrades),
				TakerBuyVolume:  buy,
				TakerSellVolume: vol - buy,
				Final:           ev.Kline.IsFinal,
			}
			event := market.CandleEvent{Symbol: symbol, Interval: interval, Candle: c}
			select {
			case out <- event:
			default:
				logger.Warnf("[binance] 事件通道已满，丢弃 %s %s", symbol, interval)
			}
		}
	}
}

func (s *Source) forwardTicks(ctx context.Context, symbol string, stream <-chan []byte, out chan<- market.TickEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			var ev aggTradeEvent
			if err := json.Unmarshal(msg, &ev); err != nil {
				logger.Warnf("[binance] 解码 aggTrade 失败: %v", err)
				continue
			}
			event := market.TickEvent{
				Symbol:    symbol,
				Price:     ev.Price.Float(),
				Quantity:  ev.Quantity.Float(),
				EventTime: ev.EventTime,
				TradeTime: ev.TradeTime,
			}
			select {
			case out <- event:
			default:
				// tick 丢一两帧无所谓，下一笔成交马上覆盖
			}
		}
	}
}

func (s *Source) Stats() market.SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out market.SourceStats
	for _, ws := range []*wsClient{s.klineWS, s.tickWS} {
		if ws == nil {
			continue
		}
		st := ws.Stats()
		out.Reconnects += st.Reconnects
		out.SubscribeErrors += st.SubscribeErrors
		if st.LastError != "" {
			out.LastError = st.LastError
		}
	}
	return out
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	if s.klineWS != nil {
		s.klineWS.Close()
		s.klineWS = nil
	}
	if s.tickWS != nil {
		s.tickWS.Close()
		s.tickWS = nil
	}
	return nil
}

func klineStreams(symbols []string, interval string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		out = append(out, strings.ToLower(sym)+"@kline_"+interval)
	}
	return out
}

func normalizeIntervals(intervals []string) []string {
	out := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		trimmed := strings.ToLower(strings.TrimSpace(iv))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

type klineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime           int64    `json:"t"`
		CloseTime           int64    `json:"T"`
		Symbol              string   `json:"s"`
		Interval            string   `json:"i"`
		OpenPrice           strOrNum `json:"o"`
		ClosePrice          strOrNum `json:"c"`
		HighPrice           strOrNum `json:"h"`
		LowPrice            strOrNum `json:"l"`
		Volume              strOrNum `json:"v"`
		NumberOfTrades      int      `json:"n"`
		IsFinal             bool     `json:"x"`
		QuoteVolume         strOrNum `json:"q"`
		TakerBuyBaseVolume  strOrNum `json:"V"`
		TakerBuyQuoteVolume strOrNum `json:"Q"`
		Ignore              strOrNum `json:"B"`
	} `json:"k"`
}

type aggTradeEvent struct {
	EventType string   `json:"e"`
	EventTime int64    `json:"E"`
	Symbol    string   `json:"s"`
	Price     strOrNum `json:"p"`
	Quantity  strOrNum `json:"q"`
	TradeTime int64    `json:"T"`
}

type strOrNum string

func (s *strOrNum) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = strOrNum(v)
		return nil
	}
	*s = strOrNum(string(b))
	return nil
}

func (s strOrNum) Float() float64 {
	f, _ := strconv.ParseFloat(string(s), 64)
	return f
}
