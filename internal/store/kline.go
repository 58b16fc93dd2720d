package store

import (
	"context"
	"errors"
	"sync"

	"sable/internal/market"
)

// KlineStore 抽象：读写 symbol+interval 的 K 线序列。
type KlineStore interface {
	Put(ctx context.Context, symbol, interval string, ks []market.Candle, max int) error
	Set(ctx context.Context, symbol, interval string, ks []market.Candle) error
	Get(ctx context.Context, symbol, interval string) ([]market.Candle, error)
	Latest(ctx context.Context, symbol, interval string) (market.Candle, bool)
}

// SnapshotExporter 导出固定窗口 K 线的抽象。
type SnapshotExporter interface {
	Export(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

var errEmptyKey = errors.New("symbol/interval 不能为空")

// series 持有单个 symbol+interval 的 K 线，调用方负责加锁。
type series struct {
	candles []market.Candle
}

// merge 逐根并入：OpenTime 与末尾相同视为同一根 K 线的增量更新，
// 覆盖末尾而非重复追加；Final 翻转为 true 的那次覆盖即视为收盘。
func (sr *series) merge(ks []market.Candle, max int) {
	for _, c := range ks {
		if n := len(sr.candles); n > 0 && sr.candles[n-1].OpenTime == c.OpenTime {
			sr.candles[n-1] = c
			continue
		}
		sr.candles = append(sr.candles, c)
	}
	if len(sr.candles) > max {
		sr.candles = sr.candles[len(sr.candles)-max:]
	}
}

// tail 返回最近 n 根的拷贝（按时间升序）。
func (sr *series) tail(n int) []market.Candle {
	if n > len(sr.candles) {
		n = len(sr.candles)
	}
	if n <= 0 {
		return nil
	}
	out := make([]market.Candle, n)
	copy(out, sr.candles[len(sr.candles)-n:])
	return out
}

// MemoryKlineStore 内存实现。
type MemoryKlineStore struct {
	mu     sync.RWMutex
	series map[string]*series
}

func NewMemoryKlineStore() *MemoryKlineStore {
	return &MemoryKlineStore{series: make(map[string]*series)}
}

func seriesKey(symbol, interval string) string { return symbol + "@" + interval }

func (s *MemoryKlineStore) locked(symbol, interval string) *series {
	k := seriesKey(symbol, interval)
	sr := s.series[k]
	if sr == nil {
		sr = &series{}
		s.series[k] = sr
	}
	return sr
}

// Put 追加并裁剪。
func (s *MemoryKlineStore) Put(ctx context.Context, symbol, interval string, ks []market.Candle, max int) error {
	if symbol == "" || interval == "" {
		return errEmptyKey
	}
	if len(ks) == 0 {
		return nil
	}
	if max <= 0 {
		max = 200
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked(symbol, interval).merge(ks, max)
	return nil
}

// Set 全量替换指定 symbol+interval 的序列。
func (s *MemoryKlineStore) Set(ctx context.Context, symbol, interval string, ks []market.Candle) error {
	if symbol == "" || interval == "" {
		return errEmptyKey
	}
	dst := make([]market.Candle, len(ks))
	copy(dst, ks)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked(symbol, interval).candles = dst
	return nil
}

// Get 返回拷贝。
func (s *MemoryKlineStore) Get(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr := s.series[seriesKey(symbol, interval)]
	if sr == nil {
		return []market.Candle{}, nil
	}
	out := sr.tail(len(sr.candles))
	if out == nil {
		out = []market.Candle{}
	}
	return out, nil
}

// Latest 返回最新一根 K 线（可能未收盘）。
func (s *MemoryKlineStore) Latest(ctx context.Context, symbol, interval string) (market.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr := s.series[seriesKey(symbol, interval)]
	if sr == nil || len(sr.candles) == 0 {
		return market.Candle{}, false
	}
	return sr.candles[len(sr.candles)-1], true
}

// Export 返回最近 limit 根 K 线（按时间升序）。
func (s *MemoryKlineStore) Export(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, errEmptyKey
	}
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sr := s.series[seriesKey(symbol, interval)]
	if sr == nil || len(sr.candles) == 0 {
		return nil, nil
	}
	return sr.tail(limit), nil
}
