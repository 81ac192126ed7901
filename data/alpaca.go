package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"

	"github.com/kiwiquant/kiwitrader/types"
)

// AlpacaSource fetches bars from the Alpaca market data API.
type AlpacaSource struct {
	client *marketdata.Client
	log    zerolog.Logger
}

// NewAlpacaSource builds a data source over Alpaca market data.
func NewAlpacaSource(apiKey, apiSecret string, logger zerolog.Logger) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return &AlpacaSource{
		client: client,
		log:    logger.With().Str("component", "data").Logger(),
	}
}

func (s *AlpacaSource) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]types.Bar, error) {
	tf, dur, err := ParseTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("bar limit must be positive, got %d", limit)
	}

	// Reach back far enough to cover weekends and non-trading hours.
	start := time.Now().Add(-time.Duration(limit) * dur * 4)
	return s.fetch(ctx, symbol, timeframe, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      start,
		TotalLimit: limit,
	})
}

func (s *AlpacaSource) GetBarsRange(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]types.Bar, error) {
	tf, _, err := ParseTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, symbol, timeframe, marketdata.GetBarsRequest{
		TimeFrame: tf,
		Start:     start,
		End:       end,
	})
}

func (s *AlpacaSource) fetch(ctx context.Context, symbol, timeframe string, req marketdata.GetBarsRequest) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := s.client.GetBars(symbol, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	bars := make([]types.Bar, len(raw))
	for i, b := range raw {
		bars[i] = types.Bar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		}
	}
	bars, err = ValidateSeries(bars)
	if err != nil {
		return nil, fmt.Errorf("invalid series for %s: %w", symbol, err)
	}

	s.log.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("bars", len(bars)).
		Msg("fetched bars")
	return bars, nil
}

// ParseTimeFrame maps a timeframe string to the Alpaca timeframe and its
// wall-clock duration. Unrecognized strings default to one day.
func ParseTimeFrame(timeframe string) (marketdata.TimeFrame, time.Duration, error) {
	switch strings.ToLower(timeframe) {
	case "1min", "1m":
		return marketdata.OneMin, time.Minute, nil
	case "5min", "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), 5 * time.Minute, nil
	case "15min", "15m":
		return marketdata.NewTimeFrame(15, marketdata.Min), 15 * time.Minute, nil
	case "1hour", "1h":
		return marketdata.OneHour, time.Hour, nil
	case "1day", "1d", "":
		return marketdata.OneDay, 24 * time.Hour, nil
	default:
		return marketdata.OneDay, 24 * time.Hour, fmt.Errorf("unknown timeframe %q", timeframe)
	}
}
