package decision

import (
	"fmt"
	"math"

	"sable/internal/analysis"
)

// TargetConfig 是 TP/SL 计算的基础参数（百分比均为绝对百分数）。
type TargetConfig struct {
	BaseTakeProfitPct float64
	BaseStopLossPct   float64
	ATRMultiplier     float64
}

func (c TargetConfig) withDefaults() TargetConfig {
	if c.BaseTakeProfitPct <= 0 {
		c.BaseTakeProfitPct = 1
	}
	if c.BaseStopLossPct <= 0 {
		c.BaseStopLossPct = 1
	}
	if c.ATRMultiplier <= 0 {
		c.ATRMultiplier = 1.5
	}
	return c
}

// TargetInputs 携带各策略可选的上下文。
type TargetInputs struct {
	Entry     float64
	Direction analysis.Direction
	ATR       float64
	// 结构策略使用：最近支撑/压力，0 表示缺失。
	Support    float64
	Resistance float64
	// 强度策略使用：放量倍数或反转概率档位。
	VolumeRatio float64
	Reversal    analysis.ReversalProbability
}

// Targets 是计算结果。Warnings 为建议性校验结论，不阻断发信。
type Targets struct {
	TakeProfit float64  `json:"take_profit"`
	StopLoss   float64  `json:"stop_loss"`
	RiskReward float64  `json:"risk_reward"`
	Strategy   string   `json:"strategy"`
	Warnings   []string `json:"warnings,omitempty"`
}

const (
	strategyATR       = "atr"
	strategyStructure = "structure"
	strategyStrength  = "strength"
	strategyPercent   = "percent"
)

// Compute 先按 entry × (1 ± basePct/100) 得到基础水位，再按信号类型
// 选择一种收紧/放宽策略，最后做风险回报校验。
func Compute(sigType analysis.SignalType, in TargetInputs, cfg TargetConfig) Targets {
	cfg = cfg.withDefaults()
	bullish := in.Direction == analysis.Bullish

	tpPct := cfg.BaseTakeProfitPct
	slPct := cfg.BaseStopLossPct
	strategyName := strategyPercent

	// 强度策略先调整百分比，再落到价格。
	if sigType == analysis.SignalVolumeDivergence || sigType == analysis.SignalVolumeSpike {
		tpMult, slMult := strengthMultipliers(in)
		tpPct *= tpMult
		slPct *= slMult
		strategyName = strategyStrength
	}

	var tp, sl float64
	if bullish {
		tp = in.Entry * (1 + tpPct/100)
		sl = in.Entry * (1 - slPct/100)
	} else {
		tp = in.Entry * (1 - tpPct/100)
		sl = in.Entry * (1 + slPct/100)
	}

	switch sigType {
	case analysis.SignalRSIDivergence, analysis.SignalMACDDivergence, analysis.SignalScalp:
		// ATR 策略：若 ATR 止损更紧则收紧。
		if in.ATR > 0 {
			if bullish {
				if atrStop := in.Entry - in.ATR*cfg.ATRMultiplier; atrStop > sl {
					sl = atrStop
					strategyName = strategyATR
				}
			} else {
				if atrStop := in.Entry + in.ATR*cfg.ATRMultiplier; atrStop < sl {
					sl = atrStop
					strategyName = strategyATR
				}
			}
		}
	case analysis.SignalStructure:
		// 结构策略：止损贴到最近支撑/压力外半个 ATR。
		half := in.ATR / 2
		if bullish && in.Support > 0 {
			sl = in.Support - half
			strategyName = strategyStructure
		} else if !bullish && in.Resistance > 0 {
			sl = in.Resistance + half
			strategyName = strategyStructure
		}
	}

	out := Targets{
		TakeProfit: tp,
		StopLoss:   sl,
		Strategy:   strategyName,
	}
	out.RiskReward = RiskReward(in.Entry, tp, sl)
	out.Warnings = Validate(in.Entry, tp, sl, bullish)
	return out
}

// strengthMultipliers 把放量倍数或反转概率映射为 TP/SL 缩放：
// 强信号 → 更宽目标 + 更紧止损，弱信号反之。
func strengthMultipliers(in TargetInputs) (tpMult, slMult float64) {
	switch in.Reversal {
	case analysis.ReversalHigh:
		return 1.5, 0.8
	case analysis.ReversalMedium:
		return 1.2, 1.0
	case analysis.ReversalLow:
		return 0.8, 1.2
	}
	switch {
	case in.VolumeRatio >= 2.5:
		return 1.5, 0.8
	case in.VolumeRatio >= 1.5:
		return 1.2, 1.0
	case in.VolumeRatio > 0:
		return 0.8, 1.2
	}
	return 1, 1
}

// RiskReward = |回报| / |风险|；风险为 0 时返回 0。
func RiskReward(entry, takeProfit, stopLoss float64) float64 {
	risk := math.Abs(entry - stopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}

// Validate 输出建议性告警：风险回报比失衡、止损贴脸、目标过远。
func Validate(entry, takeProfit, stopLoss float64, bullish bool) []string {
	var warnings []string
	if entry <= 0 {
		return []string{"entry 非法"}
	}
	if bullish {
		if !(takeProfit > entry && entry > stopLoss) {
			warnings = append(warnings, "多头水位次序异常：应满足 TP > entry > SL")
		}
	} else {
		if !(takeProfit < entry && entry < stopLoss) {
			warnings = append(warnings, "空头水位次序异常：应满足 TP < entry < SL")
		}
	}
	rr := RiskReward(entry, takeProfit, stopLoss)
	if rr < 1 {
		warnings = append(warnings, fmt.Sprintf("风险回报比过低: %.2f", rr))
	} else if rr > 5 {
		warnings = append(warnings, fmt.Sprintf("风险回报比异常偏高: %.2f", rr))
	}
	if stopDist := math.Abs(entry-stopLoss) / entry * 100; stopDist < 0.5 {
		warnings = append(warnings, fmt.Sprintf("止损距离过近: %.2f%%", stopDist))
	}
	if tpDist := math.Abs(takeProfit-entry) / entry * 100; tpDist > 10 {
		warnings = append(warnings, fmt.Sprintf("目标距离过远: %.2f%%", tpDist))
	}
	return warnings
}
