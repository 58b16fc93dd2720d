package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"sable/internal/market"
	"sable/internal/tracker"
)

// BuildKlineChart 画出 K 线并把信号入场点叠加成散点。
func BuildKlineChart(symbol, interval string, candles []market.Candle, records []tracker.SignalRecord) *charts.Kline {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", symbol, interval),
			Subtitle: fmt.Sprintf("生成于 %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 50, End: 100}),
	)

	x := make([]string, 0, len(candles))
	y := make([]opts.KlineData, 0, len(candles))
	timeIndex := make(map[int64]int, len(candles))
	for i, c := range candles {
		label := time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04")
		x = append(x, label)
		y = append(y, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
		timeIndex[c.OpenTime] = i
	}
	kline.SetXAxis(x).AddSeries("kline", y)

	if entries := entryPoints(candles, records, timeIndex); len(entries) > 0 {
		scatter := charts.NewScatter()
		scatter.SetXAxis(x).AddSeries("signals", entries)
		kline.Overlap(scatter)
	}
	return kline
}

// entryPoints 把每条记录对齐到所属 K 线的横轴位置。
// 找不到对应 K 线的记录跳过（比如图表窗口外的陈年信号）。
func entryPoints(candles []market.Candle, records []tracker.SignalRecord, timeIndex map[int64]int) []opts.ScatterData {
	if len(candles) == 0 {
		return nil
	}
	span := candles[0].CloseTime - candles[0].OpenTime
	if span <= 0 {
		return nil
	}
	out := make([]opts.ScatterData, 0, len(records))
	for _, rec := range records {
		openTime := rec.EntryTime - rec.EntryTime%span
		idx, ok := timeIndex[openTime]
		if !ok {
			continue
		}
		symbol := "triangle"
		if rec.Direction == "BEARISH" {
			symbol = "pin"
		}
		out = append(out, opts.ScatterData{
			Name:       string(rec.SignalType),
			Value:      []any{idx, rec.EntryPrice},
			Symbol:     symbol,
			SymbolSize: 14,
		})
	}
	return out
}

// RenderHTML 渲染图表到 w。
func RenderHTML(w io.Writer, symbol, interval string, candles []market.Candle, records []tracker.SignalRecord) error {
	return BuildKlineChart(symbol, interval, candles, records).Render(w)
}

// WriteHTML 落盘到 outputDir，返回文件路径。
func WriteHTML(outputDir, symbol, interval string, candles []market.Candle, records []tracker.SignalRecord) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.html", strings.ToLower(symbol), strings.ToLower(interval))
	path := filepath.Join(outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := RenderHTML(f, symbol, interval, candles, records); err != nil {
		return "", err
	}
	return path, nil
}
