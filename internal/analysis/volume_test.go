package analysis

import (
	"math"
	"testing"

	"sable/internal/market"
)

func volumeCandles(closes, volumes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i := range closes {
		out[i] = market.Candle{
			OpenTime:       int64(i) * 60000,
			CloseTime:      int64(i)*60000 + 59999,
			Open:           closes[i],
			High:           closes[i],
			Low:            closes[i],
			Close:          closes[i],
			Volume:         volumes[i],
			TakerBuyVolume: volumes[i] / 2,
			Final:          true,
		}
	}
	return out
}

func TestDetectVolumeDivergenceBearish(t *testing.T) {
	// 价升量缩：放量衰竭。
	candles := volumeCandles(
		[]float64{100, 101, 102, 103, 104},
		[]float64{200, 180, 160, 140, 120},
	)
	sig := DetectVolumeDivergence("BTCUSDT", "5m", candles, VolumeConfig{Lookback: 4})
	if sig == nil {
		t.Fatalf("价升量缩应检出空头背离")
	}
	if sig.Direction != Bearish {
		t.Fatalf("方向应为 BEARISH, 实际=%v", sig.Direction)
	}
	// |量变 40%| / |价变 4%| = 10 ≥ 3
	if sig.Reversal != ReversalHigh {
		t.Fatalf("反转概率应为 HIGH, 实际=%v", sig.Reversal)
	}
	if sig.Price != 104 {
		t.Fatalf("价格应为最新收盘 104, 实际=%v", sig.Price)
	}
	if _, ok := sig.Details["flow"]; !ok {
		t.Fatalf("Details 应附带 flow 佐证")
	}
}

func TestDetectVolumeDivergenceBullish(t *testing.T) {
	// 价量双降且量的相对跌幅远超价格。
	candles := volumeCandles(
		[]float64{104, 103, 102, 101, 100},
		[]float64{200, 180, 160, 140, 100},
	)
	sig := DetectVolumeDivergence("BTCUSDT", "5m", candles, VolumeConfig{Lookback: 4})
	if sig == nil {
		t.Fatalf("双降 + 量跌幅超价跌幅应检出多头背离")
	}
	if sig.Direction != Bullish {
		t.Fatalf("方向应为 BULLISH, 实际=%v", sig.Direction)
	}
}

func TestDetectVolumeDivergenceMediumBucket(t *testing.T) {
	candles := volumeCandles(
		[]float64{100, 101, 102, 103, 110},
		[]float64{200, 190, 180, 170, 160},
	)
	sig := DetectVolumeDivergence("BTCUSDT", "5m", candles, VolumeConfig{Lookback: 4})
	if sig == nil {
		t.Fatalf("应检出空头背离")
	}
	// |量变 20%| / |价变 10%| = 2 → MEDIUM, 置信度 40+2*15=70
	if sig.Reversal != ReversalMedium {
		t.Fatalf("反转概率应为 MEDIUM, 实际=%v", sig.Reversal)
	}
	if math.Abs(sig.Confidence-70) > 1e-6 {
		t.Fatalf("置信度应为 70, 实际=%v", sig.Confidence)
	}
}

func TestDetectVolumeDivergenceNoSignal(t *testing.T) {
	// 价量同升：健康上涨，无背离。
	candles := volumeCandles(
		[]float64{100, 101, 102, 103, 104},
		[]float64{100, 110, 120, 130, 140},
	)
	if sig := DetectVolumeDivergence("BTCUSDT", "5m", candles, VolumeConfig{Lookback: 4}); sig != nil {
		t.Fatalf("价量同升不应出信号: %v", sig)
	}
	// 数据不足
	if sig := DetectVolumeDivergence("BTCUSDT", "5m", candles[:3], VolumeConfig{Lookback: 4}); sig != nil {
		t.Fatalf("数据不足应返回 nil")
	}
}

func TestDetectVolumeSpike(t *testing.T) {
	candles := volumeCandles(
		[]float64{100, 100, 100, 101},
		[]float64{100, 100, 100, 160},
	)
	// 最新一根收涨
	candles[3].Open = 100
	sig := DetectVolumeSpike("BTCUSDT", "1m", candles, VolumeConfig{Lookback: 3, SpikeThreshold: 1.5})
	if sig == nil {
		t.Fatalf("1.6 倍均量应判定为放量")
	}
	if sig.Direction != Bullish {
		t.Fatalf("收涨放量方向应为 BULLISH, 实际=%v", sig.Direction)
	}
	if math.Abs(sig.VolumeRatio-1.6) > 1e-6 {
		t.Fatalf("放量倍数应为 1.6, 实际=%v", sig.VolumeRatio)
	}
	if math.Abs(sig.Confidence-1.6/1.5*70) > 1e-6 {
		t.Fatalf("置信度计算错误, 实际=%v", sig.Confidence)
	}
}

func TestDetectVolumeSpikeBelowThreshold(t *testing.T) {
	candles := volumeCandles(
		[]float64{100, 100, 100, 101},
		[]float64{100, 100, 100, 140},
	)
	if sig := DetectVolumeSpike("BTCUSDT", "1m", candles, VolumeConfig{Lookback: 3, SpikeThreshold: 1.5}); sig != nil {
		t.Fatalf("1.4 倍未达阈值, 不应出信号: %v", sig)
	}
}

func TestDetectVolumeSpikeBearishCandle(t *testing.T) {
	candles := volumeCandles(
		[]float64{100, 100, 100, 98},
		[]float64{100, 100, 100, 200},
	)
	candles[3].Open = 100
	sig := DetectVolumeSpike("BTCUSDT", "1m", candles, VolumeConfig{Lookback: 3, SpikeThreshold: 1.5})
	if sig == nil {
		t.Fatalf("应判定为放量")
	}
	if sig.Direction != Bearish {
		t.Fatalf("收跌放量方向应为 BEARISH, 实际=%v", sig.Direction)
	}
}

func TestMajorityTrend(t *testing.T) {
	if got := majorityTrend([]float64{1, 2, 3, 2}); got != 1 {
		t.Fatalf("多数上行应返回 1, 实际=%d", got)
	}
	if got := majorityTrend([]float64{3, 2, 1, 2}); got != -1 {
		t.Fatalf("多数下行应返回 -1, 实际=%d", got)
	}
	if got := majorityTrend([]float64{1, 2, 1}); got != 0 {
		t.Fatalf("方向均衡应返回 0, 实际=%d", got)
	}
}
