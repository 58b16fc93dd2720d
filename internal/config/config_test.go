package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("缺省配置应通过校验: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("空路径应返回缺省配置: %v", err)
	}
	if len(cfg.Watch.Symbols) == 0 || cfg.Watch.Symbols[0] != "BTCUSDT" {
		t.Fatalf("缺省 symbol 应为 BTCUSDT, 实际=%v", cfg.Watch.Symbols)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[watch]
symbols = ["ethusdt", "SOLUSDT"]
intervals = ["15m", "4h"]
history_limit = 500

[detectors.rsi]
enabled = true
period = 7
bull_level = 40.0
bear_level = 60.0
min_diff = 3.0

[http]
enabled = false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("写临时配置失败: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if len(cfg.Watch.Intervals) != 2 || cfg.Watch.Intervals[0] != "15m" {
		t.Fatalf("intervals 应被覆盖, 实际=%v", cfg.Watch.Intervals)
	}
	if cfg.Watch.HistoryLimit != 500 {
		t.Fatalf("history_limit 应为 500, 实际=%d", cfg.Watch.HistoryLimit)
	}
	if cfg.Detectors.RSI.Period != 7 || cfg.Detectors.RSI.BullLevel != 40 {
		t.Fatalf("RSI 配置应被覆盖, 实际=%+v", cfg.Detectors.RSI)
	}
	if cfg.HTTP.Enabled {
		t.Fatalf("http.enabled 应被关闭")
	}
	// 未覆盖的段保持缺省。
	if !cfg.Detectors.MACD.Enabled || cfg.Detectors.MACD.Slow != 26 {
		t.Fatalf("MACD 缺省值不应丢失, 实际=%+v", cfg.Detectors.MACD)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("不存在的配置文件应报错")
	}
}

func TestTelegramEnvOverride(t *testing.T) {
	t.Setenv("SABLE_TELEGRAM_TOKEN", "tok-from-env")
	t.Setenv("SABLE_TELEGRAM_CHAT_ID", "chat-from-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Telegram.Token != "tok-from-env" || cfg.Telegram.ChatID != "chat-from-env" {
		t.Fatalf("环境变量应覆盖凭证, 实际=%+v", cfg.Telegram)
	}
}

func TestValidateRejects(t *testing.T) {
	base := Default()

	cfg := base
	cfg.Watch.Symbols = nil
	if err := cfg.Validate(); err == nil {
		t.Fatalf("空 symbol 列表应拒绝")
	}

	cfg = base
	cfg.Watch.Intervals = []string{"5m", "bogus"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非法周期应拒绝")
	}

	cfg = base
	cfg.Detectors.Scalp.Interval = "??"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非法短线周期应拒绝")
	}

	cfg = base
	cfg.Detectors.RSI.Period = 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("RSI 周期过小应拒绝")
	}

	cfg = base
	cfg.Detectors.MACD.Fast = 30
	if err := cfg.Validate(); err == nil {
		t.Fatalf("macd fast >= slow 应拒绝")
	}

	cfg = base
	cfg.Telegram.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatalf("telegram 启用但缺凭证应拒绝")
	}
}

func TestNormalizeSymbol(t *testing.T) {
	if got := NormalizeSymbol(" btc/usdt "); got != "BTCUSDT" {
		t.Fatalf("应规整为 BTCUSDT, 实际=%q", got)
	}
}

func TestLoadDurationStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[tracker]
signal_expiry = "1h30m"
divergence_cooldown = "10m"
scalp_cooldown = "2d"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("写临时配置失败: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if got := cfg.Tracker.SignalExpiry.Std(); got != 90*time.Minute {
		t.Fatalf("signal_expiry 应为 1h30m, 实际=%v", got)
	}
	if got := cfg.Tracker.DivergenceCD.Std(); got != 10*time.Minute {
		t.Fatalf("divergence_cooldown 应为 10m, 实际=%v", got)
	}
	if got := cfg.Tracker.ScalpCD.Std(); got != 48*time.Hour {
		t.Fatalf("scalp_cooldown 应支持 2d 写法, 实际=%v", got)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("[tracker]\ndivergence_cooldown = \"soon\"\n"), 0o644); err != nil {
		t.Fatalf("写临时配置失败: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("非法时长字符串应报错")
	}
}
