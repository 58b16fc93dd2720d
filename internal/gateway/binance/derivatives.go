package binance

import (
	"context"
	"fmt"
	"strings"

	"sable/internal/logger"
	"sable/internal/market"
)

const (
	oiPeriod = "1h"
	oiPoints = 24
)

// DerivativesSnapshot 汇总资金费率与持仓量轨迹。
// 资金费率拉取失败时整体失败；OI 失败只记日志，快照里留空。
func (s *Source) DerivativesSnapshot(ctx context.Context, symbol string) (market.DerivativesSnapshot, error) {
	if s == nil || s.client == nil {
		return market.DerivativesSnapshot{}, fmt.Errorf("binance source not initialized")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return market.DerivativesSnapshot{}, fmt.Errorf("symbol is required")
	}

	funding, err := s.fundingRate(ctx, symbol)
	if err != nil {
		return market.DerivativesSnapshot{}, err
	}

	snap := market.DerivativesSnapshot{Symbol: symbol, FundingRate: funding}
	points, err := s.openInterest(ctx, symbol)
	if err != nil {
		logger.Warnf("获取 OI 失败 %s: %v", symbol, err)
		return snap, nil
	}
	snap.OpenInterest = points
	snap.OIChangePct = oiChangePct(points)
	return snap, nil
}

func (s *Source) fundingRate(ctx context.Context, symbol string) (float64, error) {
	res, err := s.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, entry := range res {
		if entry != nil && strings.EqualFold(entry.Symbol, symbol) {
			return parseFloat(entry.LastFundingRate), nil
		}
	}
	return 0, fmt.Errorf("funding rate not available for %s", symbol)
}

func (s *Source) openInterest(ctx context.Context, symbol string) ([]market.OpenInterestPoint, error) {
	stats, err := s.client.NewOpenInterestStatisticsService().
		Symbol(symbol).Period(oiPeriod).Limit(oiPoints).Do(ctx)
	if err != nil {
		return nil, err
	}
	points := make([]market.OpenInterestPoint, 0, len(stats))
	for _, item := range stats {
		if item == nil {
			continue
		}
		points = append(points, market.OpenInterestPoint{
			Symbol:               item.Symbol,
			SumOpenInterest:      parseFloat(item.SumOpenInterest),
			SumOpenInterestValue: parseFloat(item.SumOpenInterestValue),
			Timestamp:            item.Timestamp,
		})
	}
	return points, nil
}

// oiChangePct 区间首尾持仓量的百分比变化，数据不足或首值为 0 时返回 0。
func oiChangePct(points []market.OpenInterestPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	first := points[0].SumOpenInterest
	last := points[len(points)-1].SumOpenInterest
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}
