package scheduler

import (
	"testing"
	"time"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"1m", time.Minute, true},
		{"5m", 5 * time.Minute, true},
		{"30s", 30 * time.Second, true},
		{"4h", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{" 15M ", 15 * time.Minute, true},
		{"5x", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseIntervalDuration(c.in)
		if ok != c.ok || got != c.want {
			t.Fatalf("ParseIntervalDuration(%q) = (%v, %v), 期望 (%v, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestValidateIntervals(t *testing.T) {
	if err := ValidateIntervals(nil); err == nil {
		t.Fatalf("空列表应报错")
	}
	if err := ValidateIntervals([]string{"5m", "bogus"}); err == nil {
		t.Fatalf("含非法周期应报错")
	}
	if err := ValidateIntervals([]string{"5m", "1h"}); err != nil {
		t.Fatalf("合法周期不应报错: %v", err)
	}
}

func TestSmallest(t *testing.T) {
	raw, dur := Smallest([]string{"1h", "5m", "1m"})
	if raw != "1m" || dur != time.Minute {
		t.Fatalf("最小周期应为 1m, 实际=%q %v", raw, dur)
	}
	if raw, dur := Smallest(nil); raw != "" || dur != 0 {
		t.Fatalf("空输入应返回零值")
	}
}

func TestNextBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 3, 21, 0, time.UTC)
	next := NextBoundary(now, 5*time.Minute)
	want := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("下一边界应为 12:05:00, 实际=%v", next)
	}
	// 正好在边界上：返回下一个而非当前。
	next = NextBoundary(want, 5*time.Minute)
	if !next.Equal(want.Add(5 * time.Minute)) {
		t.Fatalf("边界时刻应推进到下一边界, 实际=%v", next)
	}
}

func TestAlignedNow(t *testing.T) {
	boundary := time.Date(2025, 3, 1, 12, 5, 0, 0, time.UTC)
	if !AlignedNow(boundary, 5*time.Minute) {
		t.Fatalf("12:05 应落在 5m 边界上")
	}
	if AlignedNow(boundary, time.Hour) {
		t.Fatalf("12:05 不应落在 1h 边界上")
	}
	if AlignedNow(boundary, 0) {
		t.Fatalf("非法周期应返回 false")
	}
}

func TestNewCandleSync(t *testing.T) {
	if _, err := NewCandleSync([]string{"bogus"}, time.Second); err == nil {
		t.Fatalf("非法周期应拒绝创建")
	}
	sync, err := NewCandleSync([]string{"1h", "5m"}, -time.Second)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if sync.base != 5*time.Minute {
		t.Fatalf("基准周期应为最小周期 5m, 实际=%v", sync.base)
	}
	if sync.grace != 0 {
		t.Fatalf("负 grace 应归零, 实际=%v", sync.grace)
	}
}

func TestDueAt(t *testing.T) {
	sync, err := NewCandleSync([]string{"5m", "1h"}, time.Second)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	onHour := time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)
	due := sync.dueAt(onHour)
	if len(due) != 2 {
		t.Fatalf("整点应命中两个周期, 实际=%v", due)
	}
	offHour := time.Date(2025, 3, 1, 13, 35, 0, 0, time.UTC)
	due = sync.dueAt(offHour)
	if len(due) != 1 || due[0] != "5m" {
		t.Fatalf("13:35 只应命中 5m, 实际=%v", due)
	}
}
