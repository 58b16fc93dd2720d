package market

// Candle 表示一根 OHLCV K 线，时间戳均为毫秒。
// Final=false 表示该 K 线尚未收盘，只能用于现价/量能检查，
// 不得参与 pivot / 背离类计算。
type Candle struct {
	OpenTime        int64   `json:"open_time"`
	CloseTime       int64   `json:"close_time"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	Trades          int64   `json:"trades,omitempty"`
	TakerBuyVolume  float64 `json:"taker_buy_volume,omitempty"`
	TakerSellVolume float64 `json:"taker_sell_volume,omitempty"`
	Final           bool    `json:"final"`
}

// TypicalPrice 返回 (high+low+close)/3。
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Closes 提取收盘价序列。
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs 提取最高价序列。
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows 提取最低价序列。
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// Volumes 提取成交量序列。
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// ClosedOnly 去掉末尾未收盘的 K 线，返回可用于 pivot/背离计算的切片。
// 序列中间不应出现未收盘 K 线，只检查末尾。
func ClosedOnly(candles []Candle) []Candle {
	n := len(candles)
	for n > 0 && !candles[n-1].Final {
		n--
	}
	return candles[:n]
}
