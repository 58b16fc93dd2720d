package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sable/internal/scheduler"
)

// Config 是进程级配置。Load 之后不再修改，各组件只读。
type Config struct {
	App       AppConfig       `toml:"app"`
	Watch     WatchConfig     `toml:"watch"`
	Detectors DetectorsConfig `toml:"detectors"`
	Tracker   TrackerConfig   `toml:"tracker"`
	Store     StoreConfig     `toml:"store"`
	HTTP      HTTPConfig      `toml:"http"`
	Report    ReportConfig    `toml:"report"`
	Telegram  TelegramConfig  `toml:"telegram"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level"`
}

// WatchConfig 监控的交易对与周期。
type WatchConfig struct {
	Symbols      []string `toml:"symbols"`
	SymbolsURL   string   `toml:"symbols_url"` // 可选：从 API 拉取币种列表，Symbols 作为 fallback
	Intervals    []string `toml:"intervals"`
	HistoryLimit int      `toml:"history_limit"` // 启动时回补的 K 线数
	Testnet      bool     `toml:"testnet"`
}

type DetectorsConfig struct {
	RSI       RSIDetectorConfig    `toml:"rsi"`
	MACD      MACDDetectorConfig   `toml:"macd"`
	Volume    VolumeDetectorConfig `toml:"volume"`
	Structure ToggleConfig         `toml:"structure"`
	Scalp     ScalpDetectorConfig  `toml:"scalp"`
}

type ToggleConfig struct {
	Enabled bool `toml:"enabled"`
}

type RSIDetectorConfig struct {
	Enabled   bool    `toml:"enabled"`
	Period    int     `toml:"period"`
	BullLevel float64 `toml:"bull_level"`
	BearLevel float64 `toml:"bear_level"`
	MinDiff   float64 `toml:"min_diff"`
}

type MACDDetectorConfig struct {
	Enabled bool `toml:"enabled"`
	Fast    int  `toml:"fast"`
	Slow    int  `toml:"slow"`
	Signal  int  `toml:"signal"`
}

type VolumeDetectorConfig struct {
	Enabled        bool    `toml:"enabled"`
	Lookback       int     `toml:"lookback"`
	SpikeThreshold float64 `toml:"spike_threshold"`
}

type ScalpDetectorConfig struct {
	Enabled       bool    `toml:"enabled"`
	Interval      string  `toml:"interval"` // 只在该周期上跑短线检测
	MinConfidence float64 `toml:"min_confidence"`
}

// Duration 让时长配置能写成 "5m"、"1h30m"、"2d" 这类字符串。
// 单一周期写法走 scheduler 的解析（支持 d/w），其余交给 time.ParseDuration。
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if v, ok := scheduler.ParseIntervalDuration(s); ok {
		*d = Duration(v)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("非法时长 %q（例: \"5m\"、\"1h30m\"、\"2d\"）", s)
	}
	*d = Duration(v)
	return nil
}

// Std 转回标准库时长。
func (d Duration) Std() time.Duration { return time.Duration(d) }

// TrackerConfig 冷却与记录生命周期参数。
type TrackerConfig struct {
	HistorySize      int      `toml:"history_size"`
	SignalExpiry     Duration `toml:"signal_expiry"`
	DivergenceCD     Duration `toml:"divergence_cooldown"`
	StructureCD      Duration `toml:"structure_cooldown"`
	VolumeCD         Duration `toml:"volume_cooldown"`
	ScalpCD          Duration `toml:"scalp_cooldown"`
	DivergenceMinPct float64  `toml:"divergence_min_pct"`
	StructureMinPct  float64  `toml:"structure_min_pct"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

type ReportConfig struct {
	Enabled   bool   `toml:"enabled"`
	OutputDir string `toml:"output_dir"`
	Snapshot  bool   `toml:"snapshot"` // 是否用无头浏览器渲染 PNG
}

type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	ChatID  string `toml:"chat_id"`
}

// Default 返回可直接运行的缺省配置。
func Default() Config {
	return Config{
		App: AppConfig{LogLevel: "info"},
		Watch: WatchConfig{
			Symbols:      []string{"BTCUSDT"},
			Intervals:    []string{"5m", "1h"},
			HistoryLimit: 200,
		},
		Detectors: DetectorsConfig{
			RSI:       RSIDetectorConfig{Enabled: true, Period: 14, BullLevel: 45, BearLevel: 55, MinDiff: 5},
			MACD:      MACDDetectorConfig{Enabled: true, Fast: 12, Slow: 26, Signal: 9},
			Volume:    VolumeDetectorConfig{Enabled: true, Lookback: 10, SpikeThreshold: 1.5},
			Structure: ToggleConfig{Enabled: true},
			Scalp:     ScalpDetectorConfig{Enabled: true, Interval: "1m", MinConfidence: 60},
		},
		Tracker: TrackerConfig{
			HistorySize:      30,
			SignalExpiry:     Duration(24 * time.Hour),
			DivergenceCD:     Duration(5 * time.Minute),
			StructureCD:      Duration(10 * time.Minute),
			VolumeCD:         Duration(3 * time.Minute),
			ScalpCD:          Duration(5 * time.Minute),
			DivergenceMinPct: 1,
			StructureMinPct:  2,
		},
		Store:  StoreConfig{Path: "sable.db"},
		HTTP:   HTTPConfig{Enabled: true, Listen: ":8080"},
		Report: ReportConfig{OutputDir: "reports"},
	}
}

// Load 读取 TOML 配置并叠加到缺省值上。path 为空时只用缺省值。
// Telegram 凭证允许用环境变量覆盖，避免写进文件。
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("读取配置失败: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("解析配置失败: %w", err)
		}
	}
	if v := os.Getenv("SABLE_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("SABLE_TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查致命配置错误。周期非法直接拒绝启动。
func (c Config) Validate() error {
	if len(c.Watch.Symbols) == 0 {
		return fmt.Errorf("watch.symbols 不能为空")
	}
	if err := scheduler.ValidateIntervals(c.Watch.Intervals); err != nil {
		return err
	}
	if c.Detectors.Scalp.Enabled {
		if _, ok := scheduler.ParseIntervalDuration(c.Detectors.Scalp.Interval); !ok {
			return fmt.Errorf("非法短线周期 %q", c.Detectors.Scalp.Interval)
		}
	}
	if c.Detectors.RSI.Period < 2 {
		return fmt.Errorf("detectors.rsi.period 过小: %d", c.Detectors.RSI.Period)
	}
	if c.Detectors.MACD.Fast >= c.Detectors.MACD.Slow {
		return fmt.Errorf("detectors.macd fast 必须小于 slow")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram 已启用但缺少 token 或 chat_id")
	}
	return nil
}

// NormalizeSymbol 统一交易对写法，容忍小写和 "/" 分隔。
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "/", "")
}
