package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sable/internal/agent"
	"sable/internal/coins"
	"sable/internal/config"
	"sable/internal/gateway/binance"
	"sable/internal/gateway/notifier"
	"sable/internal/logger"
	"sable/internal/store"
	"sable/internal/tracker"
	httpapi "sable/internal/transport/http"
)

func main() {
	configPath := flag.String("config", "", "TOML 配置文件路径，留空用缺省值")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 币种列表：配置了 API 就动态拉取，否则用静态配置
	var provider coins.SymbolProvider
	if cfg.Watch.SymbolsURL != "" {
		remote := coins.NewRemoteProvider(coins.RemoteConfig{
			URL:      cfg.Watch.SymbolsURL,
			Fallback: cfg.Watch.Symbols,
		})
		remote.StartAutoRefresh(ctx)
		provider = remote
	} else {
		provider = coins.NewStaticProvider(cfg.Watch.Symbols)
	}
	symbols, err := provider.List(ctx)
	if err != nil {
		return fmt.Errorf("解析币种列表失败: %w", err)
	}
	cfg.Watch.Symbols = symbols
	logger.Infof("监控 %d 个交易对（%s），周期 %v", len(symbols), provider.Name(), cfg.Watch.Intervals)

	source, err := binance.New(binance.Config{Testnet: cfg.Watch.Testnet})
	if err != nil {
		return err
	}
	defer source.Close()

	klines := store.NewMemoryKlineStore()
	tr := tracker.NewStore(cfg.Tracker.HistorySize)
	registry := tracker.NewRegistry()

	var signals *store.SignalStore
	if cfg.Store.Path != "" {
		signals, err = store.OpenSignalStore(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("打开信号存储失败: %w", err)
		}
		defer signals.Close()
		restore(ctx, signals, registry, tr)
	}

	var tg *notifier.Telegram
	if cfg.Telegram.Enabled {
		tg, err = notifier.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return err
		}
	}

	engine, err := agent.NewEngine(agent.EngineParams{
		Config:   cfg,
		Source:   source,
		Klines:   klines,
		Tracker:  tr,
		Registry: registry,
		Signals:  signals,
		Telegram: tg,
	})
	if err != nil {
		return err
	}

	logger.Infof("回补历史 K 线...")
	if err := engine.Warmup(ctx); err != nil {
		return fmt.Errorf("回补历史失败: %w", err)
	}

	monitor := agent.NewPriceMonitor(agent.MonitorParams{
		Source:   source,
		Klines:   klines,
		Symbols:  cfg.Watch.Symbols,
		Interval: engine.Intervals()[0],
		Telegram: tg,
		Observer: engine,
	})
	monitor.Start(ctx)

	if cfg.HTTP.Enabled {
		server, err := httpapi.NewServer(httpapi.ServerParams{
			Addr:        cfg.HTTP.Listen,
			Registry:    registry,
			Tracker:     tr,
			Klines:      klines,
			Source:      source,
			Derivatives: source,
		})
		if err != nil {
			return err
		}
		server.Start(ctx)
	}

	if tg != nil {
		summary := notifier.FormatSummary(tracker.Summarize(registry.All()))
		_ = tg.SendText(ctx, "*Sable 启动成功* ✅\n"+summary)
	}

	err = engine.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Infof("收到退出信号，正在关停")
	persist(signals, registry, tr)
	return nil
}

// restore 启动时恢复历史信号与跟踪状态。失败只告警，空状态启动。
func restore(ctx context.Context, signals *store.SignalStore, registry *tracker.Registry, tr *tracker.Store) {
	records, err := signals.LoadRecords(ctx)
	if err != nil {
		logger.Warnf("恢复信号记录失败，从空状态启动: %v", err)
	} else if len(records) > 0 {
		registry.Load(records)
		logger.Infof("已恢复 %d 条信号记录", len(records))
	}
	states, err := signals.LoadTrackerStates(ctx)
	if err != nil {
		logger.Warnf("恢复跟踪状态失败，从空状态启动: %v", err)
	} else if len(states) > 0 {
		tr.Restore(states)
	}
}

// persist 退出前把内存状态整体写回。
func persist(signals *store.SignalStore, registry *tracker.Registry, tr *tracker.Store) {
	if signals == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, rec := range registry.All() {
		if err := signals.SaveRecord(ctx, rec); err != nil {
			logger.Warnf("退出落盘信号失败: %v", err)
			break
		}
	}
	for _, byInterval := range tr.Snapshot() {
		for _, st := range byInterval {
			if err := signals.SaveTrackerState(ctx, st); err != nil {
				logger.Warnf("退出落盘状态失败: %v", err)
				return
			}
		}
	}
}
