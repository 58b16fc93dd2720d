package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sable/internal/analysis"
	"sable/internal/config"
	"sable/internal/decision"
	"sable/internal/gateway/notifier"
	"sable/internal/logger"
	"sable/internal/market"
	"sable/internal/report"
	"sable/internal/scheduler"
	"sable/internal/store"
	"sable/internal/strategy"
	"sable/internal/tracker"
)

const (
	atrPeriod     = 14
	maxConcurrent = 8
)

type EngineParams struct {
	Config   config.Config
	Source   market.Source
	Klines   store.KlineStore
	Tracker  *tracker.Store
	Registry *tracker.Registry
	Signals  *store.SignalStore // 可为 nil，此时不落盘
	Telegram *notifier.Telegram // 可为 nil，此时不推送
}

// Engine 把行情、检测器、冷却与信号生命周期串起来。
// 每个 K 线边界触发一轮评估；评估只读已收盘数据。
type Engine struct {
	cfg      config.Config
	source   market.Source
	ks       store.KlineStore
	tr       *tracker.Store
	registry *tracker.Registry
	signals  *store.SignalStore
	tg       *notifier.Telegram

	intervals []string // watch 周期 ∪ 短线周期，去重后升序
}

func NewEngine(p EngineParams) (*Engine, error) {
	if p.Source == nil || p.Klines == nil || p.Tracker == nil || p.Registry == nil {
		return nil, fmt.Errorf("engine 缺少必要依赖")
	}
	return &Engine{
		cfg:       p.Config,
		source:    p.Source,
		ks:        p.Klines,
		tr:        p.Tracker,
		registry:  p.Registry,
		signals:   p.Signals,
		tg:        p.Telegram,
		intervals: mergeIntervals(p.Config),
	}, nil
}

func mergeIntervals(cfg config.Config) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(cfg.Watch.Intervals)+1)
	add := func(iv string) {
		iv = strings.ToLower(strings.TrimSpace(iv))
		if iv == "" || seen[iv] {
			return
		}
		seen[iv] = true
		out = append(out, iv)
	}
	for _, iv := range cfg.Watch.Intervals {
		add(iv)
	}
	if cfg.Detectors.Scalp.Enabled {
		add(cfg.Detectors.Scalp.Interval)
	}
	sort.Slice(out, func(i, j int) bool {
		di, _ := scheduler.ParseIntervalDuration(out[i])
		dj, _ := scheduler.ParseIntervalDuration(out[j])
		return di < dj
	})
	return out
}

// Intervals 返回引擎实际评估的周期集合。
func (e *Engine) Intervals() []string {
	return append([]string(nil), e.intervals...)
}

// Warmup 回补历史 K 线，喂给 kline store 与 tracker。
// 单个 pair 失败只告警，不阻塞启动。
func (e *Engine) Warmup(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, sym := range e.cfg.Watch.Symbols {
		symbol := config.NormalizeSymbol(sym)
		for _, iv := range e.intervals {
			symbol, iv := symbol, iv
			g.Go(func() error {
				candles, err := e.source.FetchHistory(gctx, symbol, iv, e.cfg.Watch.HistoryLimit)
				if err != nil {
					logger.Warnf("回补 %s %s 失败: %v", symbol, iv, err)
					return nil
				}
				if err := e.ks.Set(gctx, symbol, iv, candles); err != nil {
					return err
				}
				if step, ok := scheduler.ParseIntervalDuration(iv); ok {
					if rep := market.CheckIntegrity(candles, step); !rep.Complete() {
						logger.Warnf("%s %s 历史数据有 %d 处缺口（%d/%d 根）", symbol, iv, len(rep.Gaps), rep.Present, rep.Expected)
					}
				}
				for _, c := range market.ClosedOnly(candles) {
					e.tr.ApplyCandle(symbol, iv, c)
				}
				logger.Debugf("回补 %s %s: %d 根", symbol, iv, len(candles))
				return nil
			})
		}
	}
	return g.Wait()
}

// Run 启动实时订阅与边界评估，阻塞到 ctx 结束。
func (e *Engine) Run(ctx context.Context) error {
	stream, err := e.source.Subscribe(ctx, e.cfg.Watch.Symbols, e.intervals, market.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("订阅 K 线失败: %w", err)
	}
	go e.ingest(ctx, stream)

	sync, err := scheduler.NewCandleSync(e.intervals, 2*time.Second)
	if err != nil {
		return err
	}
	sync.Run(ctx, func(tickCtx context.Context, tick scheduler.Tick) {
		e.Evaluate(tickCtx, tick.DueIntervals)
	})
	return ctx.Err()
}

func (e *Engine) ingest(ctx context.Context, stream <-chan market.CandleEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				return
			}
			if err := e.ks.Put(ctx, ev.Symbol, ev.Interval, []market.Candle{ev.Candle}, e.cfg.Watch.HistoryLimit); err != nil {
				logger.Warnf("写入 K 线失败 %s %s: %v", ev.Symbol, ev.Interval, err)
				continue
			}
			if ev.Candle.Final {
				e.tr.ApplyCandle(ev.Symbol, ev.Interval, ev.Candle)
			}
		}
	}
}

// Evaluate 对给定周期跑一轮全币种检测。各 pair 互不影响，
// 单个失败不会拖垮整轮。
func (e *Engine) Evaluate(ctx context.Context, intervals []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, sym := range e.cfg.Watch.Symbols {
		symbol := config.NormalizeSymbol(sym)
		for _, iv := range intervals {
			symbol, iv := symbol, iv
			g.Go(func() error {
				e.evaluatePair(gctx, symbol, iv)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (e *Engine) evaluatePair(ctx context.Context, symbol, interval string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("检测 %s %s panic: %v", symbol, interval, r)
		}
	}()
	raw, err := e.ks.Get(ctx, symbol, interval)
	if err != nil || len(raw) == 0 {
		return
	}
	candles := market.ClosedOnly(raw)
	if len(candles) == 0 {
		return
	}
	now := time.UnixMilli(candles[len(candles)-1].CloseTime)
	e.recordIndicators(symbol, interval, candles)

	var signals []analysis.Signal
	det := e.cfg.Detectors
	if det.RSI.Enabled {
		cfg := analysis.DefaultRSIDivergence()
		cfg.BullLevel, cfg.BearLevel, cfg.MinDiff = det.RSI.BullLevel, det.RSI.BearLevel, det.RSI.MinDiff
		if sig := analysis.DetectRSIDivergence(symbol, interval, candles, det.RSI.Period, cfg); sig != nil {
			signals = append(signals, *sig)
		}
	}
	if det.MACD.Enabled {
		if sig := analysis.DetectMACDDivergence(symbol, interval, candles, det.MACD.Fast, det.MACD.Slow, det.MACD.Signal, analysis.DefaultMACDDivergence()); sig != nil {
			signals = append(signals, *sig)
		}
	}
	if det.Volume.Enabled {
		vcfg := analysis.VolumeConfig{Lookback: det.Volume.Lookback, SpikeThreshold: det.Volume.SpikeThreshold}
		if sig := analysis.DetectVolumeDivergence(symbol, interval, candles, vcfg); sig != nil {
			signals = append(signals, *sig)
		}
		if sig := analysis.DetectVolumeSpike(symbol, interval, candles, vcfg); sig != nil {
			signals = append(signals, *sig)
		}
	}
	if det.Structure.Enabled {
		if sig := analysis.DetectStructureBreak(symbol, interval, candles, analysis.StructureConfig{}); sig != nil {
			signals = append(signals, *sig)
		}
	}
	if det.Scalp.Enabled && interval == strings.ToLower(det.Scalp.Interval) {
		scfg := analysis.ScalpConfig{MinConfidence: det.Scalp.MinConfidence}
		signals = append(signals, analysis.DetectScalpSignals(symbol, interval, candles, scfg)...)
	}

	for i := range signals {
		e.emit(ctx, &signals[i], candles, now)
	}
}

// recordIndicators 每轮评估把最新指标值写进跟踪状态，随状态持久化。
// 数据不足时 LastValid 返回 NaN，RecordIndicator 会直接丢弃。
func (e *Engine) recordIndicators(symbol, interval string, candles []market.Candle) {
	closes := market.Closes(candles)
	det := e.cfg.Detectors
	if det.RSI.Enabled {
		if rsi, err := strategy.RSI(closes, det.RSI.Period); err == nil {
			e.tr.RecordIndicator(symbol, interval, "rsi", strategy.LastValid(rsi))
		}
	}
	if det.MACD.Enabled {
		macd := strategy.MACD(closes, det.MACD.Fast, det.MACD.Slow, det.MACD.Signal)
		e.tr.RecordIndicator(symbol, interval, "macd", strategy.LastValid(macd.Line))
	}
	if det.Scalp.Enabled && interval == strings.ToLower(det.Scalp.Interval) {
		fast := analysis.DefaultScalpConfig().FastEMA
		e.tr.RecordIndicator(symbol, interval, "ema_fast", strategy.EMALatest(closes, fast))
	}
}

// emit 过冷却、补 TP/SL，然后登记、落盘、推送。
func (e *Engine) emit(ctx context.Context, sig *analysis.Signal, candles []market.Candle, now time.Time) {
	rule := e.cooldownRule(sig.Type)
	if !e.tr.Allow(sig.Symbol, sig.Interval, sig.Type, sig.Direction, sig.Price, now, rule) {
		logger.Debugf("冷却中，忽略 %s %s %s", sig.Symbol, sig.Interval, sig.Type)
		return
	}

	if sig.TakeProfit == 0 || sig.StopLoss == 0 {
		support, resistance := analysis.NearestLevels(candles, analysis.StructureConfig{})
		targets := decision.Compute(sig.Type, decision.TargetInputs{
			Entry:       sig.Price,
			Direction:   sig.Direction,
			ATR:         strategy.ATRLatest(candles, atrPeriod),
			Support:     support,
			Resistance:  resistance,
			VolumeRatio: sig.VolumeRatio,
			Reversal:    sig.Reversal,
		}, decision.TargetConfig{})
		sig.TakeProfit = targets.TakeProfit
		sig.StopLoss = targets.StopLoss
		sig.RiskReward = targets.RiskReward
		for _, w := range targets.Warnings {
			logger.Warnf("目标位校验 %s %s: %s", sig.Symbol, sig.Interval, w)
		}
	}

	e.tr.Mark(sig.Symbol, sig.Interval, sig.Type, sig.Direction, sig.Price, now)
	rec := tracker.NewRecord(*sig)
	e.registry.Add(rec)
	logger.Infof("信号 %s", sig.String())

	if e.signals != nil {
		if err := e.signals.SaveRecord(ctx, *rec); err != nil {
			logger.Warnf("信号落盘失败: %v", err)
		}
		if err := e.signals.SaveTrackerState(ctx, e.trackerState(sig.Symbol, sig.Interval)); err != nil {
			logger.Warnf("tracker 状态落盘失败: %v", err)
		}
	}
	if e.tg != nil {
		if err := e.tg.SendText(ctx, notifier.FormatSignal(*sig)); err != nil {
			logger.Warnf("推送信号失败: %v", err)
		}
		if e.cfg.Report.Enabled && e.cfg.Report.Snapshot {
			go e.sendSnapshot(*sig, candles)
		}
	}
}

// sendSnapshot 渲染行情快照并作为图片补发。耗时且依赖本机 Chrome，
// 所以异步执行，失败不影响文字告警。
func (e *Engine) sendSnapshot(sig analysis.Signal, candles []market.Candle) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	records := make([]tracker.SignalRecord, 0, 8)
	for _, rec := range e.registry.All() {
		if rec.Symbol == sig.Symbol && rec.Interval == sig.Interval {
			records = append(records, rec)
		}
	}
	htmlPath, err := report.WriteHTML(e.cfg.Report.OutputDir, sig.Symbol, sig.Interval, candles, records)
	if err != nil {
		logger.Warnf("生成图表失败 %s %s: %v", sig.Symbol, sig.Interval, err)
		return
	}
	png, err := report.SnapshotPNG(ctx, htmlPath)
	if err != nil {
		logger.Warnf("渲染快照失败 %s %s: %v", sig.Symbol, sig.Interval, err)
		return
	}
	caption := fmt.Sprintf("%s %s %s", sig.Symbol, sig.Interval, sig.Type)
	if err := e.tg.SendPhoto(ctx, sig.Symbol+".png", png, caption); err != nil {
		logger.Warnf("推送快照失败: %v", err)
	}
}

func (e *Engine) trackerState(symbol, interval string) tracker.State {
	snap := e.tr.Snapshot()
	if byIv, ok := snap[symbol]; ok {
		if st, ok := byIv[interval]; ok {
			return st
		}
	}
	return tracker.State{Symbol: symbol, Interval: interval}
}

func (e *Engine) cooldownRule(sigType analysis.SignalType) tracker.CooldownRule {
	t := e.cfg.Tracker
	switch sigType {
	case analysis.SignalRSIDivergence, analysis.SignalMACDDivergence:
		return tracker.CooldownRule{Cooldown: t.DivergenceCD.Std(), MinChangePct: t.DivergenceMinPct}
	case analysis.SignalStructure:
		return tracker.CooldownRule{Cooldown: t.StructureCD.Std(), MinChangePct: t.StructureMinPct}
	case analysis.SignalVolumeDivergence, analysis.SignalVolumeSpike:
		return tracker.CooldownRule{Cooldown: t.VolumeCD.Std()}
	case analysis.SignalScalp:
		return tracker.CooldownRule{Cooldown: t.ScalpCD.Std()}
	default:
		return tracker.CooldownRule{Cooldown: t.DivergenceCD.Std()}
	}
}

// NotifyPrice 用实时成交价推进信号生命周期。实现 PriceObserver。
func (e *Engine) NotifyPrice(symbol string, price float64) {
	closed := e.registry.ObservePrice(symbol, price, time.Now(), e.cfg.Tracker.SignalExpiry.Std())
	if len(closed) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, rec := range closed {
		logger.Infof("信号完结 %s %s %s → %s (%.2f%%)", rec.Symbol, rec.Interval, rec.SignalType, rec.Status, rec.PnLPercent)
		if e.signals != nil {
			if err := e.signals.SaveRecord(ctx, rec); err != nil {
				logger.Warnf("信号落盘失败: %v", err)
			}
		}
		if e.tg != nil {
			if err := e.tg.SendText(ctx, notifier.FormatOutcome(rec)); err != nil {
				logger.Warnf("推送完结失败: %v", err)
			}
		}
	}
}
