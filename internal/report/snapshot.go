package report

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

const snapshotTimeout = 30 * time.Second

// SnapshotPNG 用无头浏览器把已生成的 HTML 图表渲染成 PNG。
// 机器上没有 Chrome 时直接报错，调用方应把快照视为可选能力。
func SnapshotPNG(ctx context.Context, htmlPath string) ([]byte, error) {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	ctx, cancelChrome := chromedp.NewContext(ctx)
	defer cancelChrome()

	var buf []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(1280, 720),
		chromedp.Navigate("file://" + abs),
		chromedp.Sleep(2 * time.Second), // 等 echarts 动画画完
		chromedp.FullScreenshot(&buf, 90),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("渲染快照失败: %w", err)
	}
	return buf, nil
}
