package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sable/internal/logger"
)

// ParseIntervalDuration 解析 "1m"/"5m"/"1h"/"4h"/"1d" 这类周期字符串。
// 不支持的单位返回 ok=false。
func ParseIntervalDuration(interval string) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(interval))
	if len(s) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	switch s[len(s)-1] {
	case 's':
		return time.Duration(n) * time.Second, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// ValidateIntervals 校验所有周期均可解析，任何一个失败都视为致命配置错误。
func ValidateIntervals(intervals []string) error {
	if len(intervals) == 0 {
		return fmt.Errorf("interval 列表不能为空")
	}
	for _, iv := range intervals {
		if _, ok := ParseIntervalDuration(iv); !ok {
			return fmt.Errorf("不支持的周期: %q", iv)
		}
	}
	return nil
}

// Smallest 返回最小的已知周期，用作同步 tick 基准。
func Smallest(intervals []string) (string, time.Duration) {
	type parsed struct {
		raw string
		dur time.Duration
	}
	list := make([]parsed, 0, len(intervals))
	for _, iv := range intervals {
		if d, ok := ParseIntervalDuration(iv); ok {
			list = append(list, parsed{raw: iv, dur: d})
		}
	}
	if len(list) == 0 {
		return "", 0
	}
	sort.Slice(list, func(i, j int) bool { return list[i].dur < list[j].dur })
	return list[0].raw, list[0].dur
}

// NextBoundary 返回 now 之后下一个 interval 对齐边界。
func NextBoundary(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return now
	}
	truncated := now.Truncate(interval)
	if !truncated.After(now) {
		truncated = truncated.Add(interval)
	}
	return truncated
}

// AlignedNow 判断 ts 是否落在 interval 边界上（毫秒粒度）。
func AlignedNow(ts time.Time, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	return ts.UnixMilli()%interval.Milliseconds() == 0
}

// Tick 描述一次同步触发。
type Tick struct {
	At time.Time
	// DueIntervals 列出本次边界命中的全部周期（含基准周期本身）。
	DueIntervals []string
}

// CandleSync 在最小周期的收盘边界驱动回调。多周期 pair 在各自边界
// 与同步 tick 重合时一并列入 DueIntervals。
type CandleSync struct {
	intervals []string
	base      time.Duration
	grace     time.Duration
}

// NewCandleSync 创建同步调度器。grace 是边界后的等待时间，
// 留给交易所把最后一根 K 线标记为已收盘。
func NewCandleSync(intervals []string, grace time.Duration) (*CandleSync, error) {
	if err := ValidateIntervals(intervals); err != nil {
		return nil, err
	}
	_, base := Smallest(intervals)
	if grace < 0 {
		grace = 0
	}
	return &CandleSync{
		intervals: append([]string(nil), intervals...),
		base:      base,
		grace:     grace,
	}, nil
}

// Run 阻塞运行，直到 ctx 结束。每个基准边界调用一次 fn。
func (s *CandleSync) Run(ctx context.Context, fn func(ctx context.Context, tick Tick)) {
	if s == nil || fn == nil {
		return
	}
	for {
		now := time.Now()
		next := NextBoundary(now, s.base).Add(s.grace)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case fired := <-timer.C:
			boundary := fired.Add(-s.grace).Truncate(s.base)
			tick := Tick{At: fired, DueIntervals: s.dueAt(boundary)}
			logger.Debugf("[scheduler] tick %s due=%v", boundary.Format(time.RFC3339), tick.DueIntervals)
			fn(ctx, tick)
		}
	}
}

func (s *CandleSync) dueAt(boundary time.Time) []string {
	due := make([]string, 0, len(s.intervals))
	for _, iv := range s.intervals {
		d, ok := ParseIntervalDuration(iv)
		if !ok {
			continue
		}
		if AlignedNow(boundary, d) {
			due = append(due, iv)
		}
	}
	return due
}
