package coins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"sable/internal/logger"
)

// SymbolProvider 提供待监控的交易对列表。
type SymbolProvider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// NormalizeSymbols 统一写法并去重，裸币名自动补 USDT。
func NormalizeSymbols(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, errors.New("symbol list is empty")
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		s = strings.ReplaceAll(s, "/", "")
		if s == "" {
			continue
		}
		if !strings.HasSuffix(s, "USDT") {
			s += "USDT"
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("symbol list is empty after normalization")
	}
	return out, nil
}

// StaticProvider 用配置里的固定列表。
type StaticProvider struct{ symbols []string }

func NewStaticProvider(symbols []string) *StaticProvider {
	return &StaticProvider{symbols: symbols}
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) List(_ context.Context) ([]string, error) {
	return NormalizeSymbols(p.symbols)
}

// RemoteProvider 从外部 API 拉取币种列表，带缓存与 fallback。
// API 不可用时退回静态列表，保证启动永远有东西可订阅。
type RemoteProvider struct {
	url      string
	refresh  time.Duration
	fallback []string
	client   *http.Client

	mu          sync.RWMutex
	symbols     []string
	lastFetched time.Time
}

type RemoteConfig struct {
	URL      string
	Refresh  time.Duration
	Timeout  time.Duration
	Fallback []string
}

func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = time.Hour
	}
	fallback, _ := NormalizeSymbols(cfg.Fallback)
	return &RemoteProvider{
		url:      strings.TrimSpace(cfg.URL),
		refresh:  refresh,
		fallback: fallback,
		client:   &http.Client{Timeout: timeout},
		symbols:  fallback,
	}
}

func (p *RemoteProvider) Name() string { return "remote" }

func (p *RemoteProvider) List(ctx context.Context) ([]string, error) {
	_ = p.Refresh(ctx)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.symbols) == 0 {
		return nil, errors.New("远端与 fallback 均为空")
	}
	return append([]string(nil), p.symbols...), nil
}

// Refresh 到期才真正访问 API，未到期直接返回。
func (p *RemoteProvider) Refresh(ctx context.Context) error {
	if p.url == "" {
		return nil
	}
	p.mu.RLock()
	lastFetched := p.lastFetched
	p.mu.RUnlock()
	if !lastFetched.IsZero() && time.Since(lastFetched) < p.refresh {
		return nil
	}

	symbols, err := p.fetch(ctx)
	if err != nil {
		logger.Warnf("拉取币种列表失败，沿用当前列表: %v", err)
		return err
	}
	merged := mergeAndDedup(symbols, p.fallback)

	p.mu.Lock()
	p.symbols = merged
	p.lastFetched = time.Now()
	p.mu.Unlock()
	logger.Infof("币种列表已更新，共 %d 个", len(merged))
	return nil
}

// fetch 兼容两种响应：裸数组或 {"symbols": [...]}。
func (p *RemoteProvider) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching symbols: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var arr []string
	if err := json.Unmarshal(body, &arr); err == nil {
		return NormalizeSymbols(arr)
	}
	var obj struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return NormalizeSymbols(obj.Symbols)
}

// StartAutoRefresh 后台定时刷新，ctx 结束即停。
func (p *RemoteProvider) StartAutoRefresh(ctx context.Context) {
	if p.url == "" {
		return
	}
	if err := p.Refresh(ctx); err != nil {
		logger.Warnf("初始刷新币种列表失败: %v", err)
	}
	go func() {
		ticker := time.NewTicker(p.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil {
					logger.Warnf("定时刷新币种列表失败: %v", err)
				}
			}
		}
	}()
}

func mergeAndDedup(a, b []string) []string {
	seen := make(map[string]struct{})
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
