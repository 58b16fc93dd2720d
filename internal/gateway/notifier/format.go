package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"sable/internal/analysis"
	"sable/internal/tracker"
)

// FormatSignal 把一条信号渲染成 Telegram Markdown 消息。
func FormatSignal(sig analysis.Signal) string {
	emoji := "🟢"
	if sig.Direction == analysis.Bearish {
		emoji = "🔴"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* `%s %s`\n", emoji, signalTitle(sig), sig.Symbol, sig.Interval)
	fmt.Fprintf(&b, "方向: %s  置信度: %.0f%%\n", sig.Direction, sig.Confidence)
	fmt.Fprintf(&b, "价格: %s\n", formatPrice(sig.Price))
	if sig.TakeProfit > 0 && sig.StopLoss > 0 {
		fmt.Fprintf(&b, "TP: %s  SL: %s", formatPrice(sig.TakeProfit), formatPrice(sig.StopLoss))
		if sig.RiskReward > 0 {
			fmt.Fprintf(&b, "  RR: %.2f", sig.RiskReward)
		}
		b.WriteString("\n")
	}
	if sig.VolumeRatio > 0 {
		fmt.Fprintf(&b, "量比: %.2fx", sig.VolumeRatio)
		if sig.Reversal != "" {
			fmt.Fprintf(&b, "  反转概率: %s", sig.Reversal)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "_%s_", time.UnixMilli(sig.Timestamp).UTC().Format("2006-01-02 15:04:05"))
	return b.String()
}

// FormatOutcome 渲染一条已完结的信号记录。
func FormatOutcome(rec tracker.SignalRecord) string {
	emoji := map[tracker.Status]string{
		tracker.StatusTPHit:   "✅",
		tracker.StatusSLHit:   "❌",
		tracker.StatusExpired: "⏰",
	}[rec.Status]
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* `%s %s` %s\n", emoji, rec.Status, rec.Symbol, rec.Interval, rec.SignalType)
	fmt.Fprintf(&b, "入场: %s  出场: %s\n", formatPrice(rec.EntryPrice), formatPrice(rec.ExitPrice))
	fmt.Fprintf(&b, "盈亏: %+.2f%%  持续: %d 分钟", rec.PnLPercent, rec.DurationMinutes)
	return b.String()
}

// FormatSummary 把统计汇总渲染成等宽表格，外层包 code fence 保持对齐。
func FormatSummary(summary tracker.Summary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Type", "Total", "Win", "Loss", "WinRate", "AvgPnL"})
	types := make([]analysis.SignalType, 0, len(summary.ByType))
	for typ := range summary.ByType {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, typ := range types {
		s := summary.ByType[typ]
		t.AppendRow(table.Row{string(typ), s.Total, s.Wins, s.Losses,
			fmt.Sprintf("%.1f%%", s.WinRate), fmt.Sprintf("%+.2f%%", s.AvgPnL)})
	}
	t.AppendFooter(table.Row{"ALL", summary.Total, summary.Wins, summary.Losses,
		fmt.Sprintf("%.1f%%", summary.WinRate), fmt.Sprintf("%+.2f%%", summary.AvgPnL)})
	return "📊 *信号统计*\n```\n" + t.Render() + "\n```"
}

func signalTitle(sig analysis.Signal) string {
	switch sig.Type {
	case analysis.SignalRSIDivergence:
		return "RSI 背离"
	case analysis.SignalMACDDivergence:
		return "MACD 背离"
	case analysis.SignalVolumeDivergence:
		return "量价背离"
	case analysis.SignalVolumeSpike:
		return "成交量异动"
	case analysis.SignalStructure:
		return "结构信号"
	case analysis.SignalScalp:
		return "短线信号 " + sig.SubType
	default:
		return string(sig.Type)
	}
}

// formatPrice 按价位自适应精度，小币种保留更多小数。
func formatPrice(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	default:
		return fmt.Sprintf("%.8f", v)
	}
}
