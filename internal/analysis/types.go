package analysis

// Direction 信号方向。
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
)

// SignalType 信号大类，同时也是冷却窗口的 key。
type SignalType string

const (
	SignalRSIDivergence    SignalType = "rsi_divergence"
	SignalMACDDivergence   SignalType = "macd_divergence"
	SignalVolumeDivergence SignalType = "volume_divergence"
	SignalVolumeSpike      SignalType = "volume_spike"
	SignalStructure        SignalType = "structure"
	SignalScalp            SignalType = "scalp"
)

// ReversalProbability 量价背离给出的反转概率档位。
type ReversalProbability string

const (
	ReversalLow    ReversalProbability = "LOW"
	ReversalMedium ReversalProbability = "MEDIUM"
	ReversalHigh   ReversalProbability = "HIGH"
)

// Signal 是所有检测器的统一输出。TakeProfit/StopLoss/RiskReward
// 由 decision 包在发信前回填。
type Signal struct {
	Type           SignalType          `json:"type"`
	SubType        string              `json:"sub_type,omitempty"`
	Direction      Direction           `json:"direction"`
	Symbol         string              `json:"symbol"`
	Interval       string              `json:"interval"`
	Price          float64             `json:"price"`
	IndicatorValue float64             `json:"indicator_value,omitempty"`
	Confidence     float64             `json:"confidence"`
	VolumeRatio    float64             `json:"volume_ratio,omitempty"`
	Reversal       ReversalProbability `json:"reversal,omitempty"`
	TakeProfit     float64             `json:"take_profit,omitempty"`
	StopLoss       float64             `json:"stop_loss,omitempty"`
	RiskReward     float64             `json:"risk_reward,omitempty"`
	Timestamp      int64               `json:"timestamp"`
	Details        map[string]any      `json:"details,omitempty"`
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
