// Package risk sizes positions and vets trades against portfolio limits.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/kiwiquant/kiwitrader/indicator"
	"github.com/kiwiquant/kiwitrader/types"
)

// Default risk limits as fractions of capital.
const (
	DefaultMaxRiskPerTrade  = 0.02
	DefaultMaxPositionSize  = 0.10
	DefaultMaxPortfolioRisk = 0.25

	// Fraction of the drawdown ceiling at which CheckPortfolioRisk starts
	// warning.
	portfolioWarnFraction = 0.75

	// Fallback per-share risk when the stop sits on the entry.
	degenerateStopPct = 0.01
)

// StopMethod selects how CalculateStopLoss derives the stop price.
type StopMethod string

const (
	StopPercentage StopMethod = "percentage"
	StopATR        StopMethod = "atr"
	StopFixed      StopMethod = "fixed"
)

// Summary reports the current risk posture of the account: value, return,
// drawdown against peak equity, exposure, and the configured limits.
type Summary struct {
	AccountValue     float64 `json:"account_value"`
	InitialCapital   float64 `json:"initial_capital"`
	TotalReturnPct   float64 `json:"total_return_pct"`
	DrawdownPct      float64 `json:"drawdown_pct"`
	CashPct          float64 `json:"cash_pct"`
	OpenPositions    int     `json:"open_positions"`
	TotalExposure    float64 `json:"total_exposure"`
	ExposurePct      float64 `json:"exposure_pct"`
	MaxRiskPerTrade  float64 `json:"max_risk_per_trade"`
	MaxPositionSize  float64 `json:"max_position_size"`
	MaxPortfolioRisk float64 `json:"max_portfolio_risk"`
	Status           string  `json:"status"`
}

// Manager enforces position sizing, concentration limits and the portfolio
// drawdown ceiling. Methods are pure with respect to broker state; callers
// pass in current positions and equity.
type Manager struct {
	initialCapital   float64
	maxRiskPerTrade  float64
	maxPositionSize  float64
	maxPortfolioRisk float64
	log              zerolog.Logger
}

// NewManager builds a Manager, substituting defaults for non-positive
// limits. initialCapital serves as the peak-equity baseline before any
// equity sample is recorded.
func NewManager(initialCapital, maxRiskPerTrade, maxPositionSize, maxPortfolioRisk float64, logger zerolog.Logger) *Manager {
	if maxRiskPerTrade <= 0 {
		maxRiskPerTrade = DefaultMaxRiskPerTrade
	}
	if maxPositionSize <= 0 {
		maxPositionSize = DefaultMaxPositionSize
	}
	if maxPortfolioRisk <= 0 {
		maxPortfolioRisk = DefaultMaxPortfolioRisk
	}
	return &Manager{
		initialCapital:   initialCapital,
		maxRiskPerTrade:  maxRiskPerTrade,
		maxPositionSize:  maxPositionSize,
		maxPortfolioRisk: maxPortfolioRisk,
		log:              logger.With().Str("component", "risk").Logger(),
	}
}

// CalculatePositionSize returns the share count for a new position given
// the entry price, protective stop, and available capital. The size is the
// lesser of the risk-based count and the per-position capital cap. A single
// share is allowed when the caps round to zero but one share is affordable.
func (m *Manager) CalculatePositionSize(entryPrice, stopLoss, capital float64) (int, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %.4f", entryPrice)
	}
	if capital <= 0 {
		return 0, fmt.Errorf("capital must be positive, got %.2f", capital)
	}

	riskPerShare := math.Abs(entryPrice - stopLoss)
	if riskPerShare == 0 || math.IsNaN(riskPerShare) {
		riskPerShare = entryPrice * degenerateStopPct
	}

	riskAmount := capital * m.maxRiskPerTrade
	riskShares := int(riskAmount / riskPerShare)

	maxPositionValue := capital * m.maxPositionSize
	capShares := int(maxPositionValue / entryPrice)

	shares := riskShares
	if capShares < shares {
		shares = capShares
	}
	if shares <= 0 {
		if entryPrice <= maxPositionValue {
			shares = 1
		} else {
			return 0, fmt.Errorf("one share at %.2f exceeds position limit %.2f", entryPrice, maxPositionValue)
		}
	}

	m.log.Debug().
		Float64("entry", entryPrice).
		Float64("stop", stopLoss).
		Int("shares", shares).
		Msg("position sized")
	return shares, nil
}

// ValidateTrade checks a proposed order against capital and concentration
// limits, accounting for any existing position in the same symbol.
func (m *Manager) ValidateTrade(order types.OrderRequest, price, capital float64, positions []types.Position) error {
	if order.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive, got %d", order.Quantity)
	}
	orderValue := float64(order.Quantity) * price
	if orderValue > capital {
		return fmt.Errorf("order value %.2f exceeds available capital %.2f", orderValue, capital)
	}

	existing := 0.0
	for _, p := range positions {
		if p.Symbol == order.Symbol {
			existing += math.Abs(p.MarketValue)
		}
	}
	if existing+orderValue > capital*m.maxPositionSize {
		return fmt.Errorf("position in %s would reach %.2f, above limit %.2f",
			order.Symbol, existing+orderValue, capital*m.maxPositionSize)
	}

	total := orderValue
	for _, p := range positions {
		total += math.Abs(p.MarketValue)
	}
	if total > capital*0.95 {
		return fmt.Errorf("total exposure %.2f would exceed 95%% of capital %.2f", total, capital)
	}
	return nil
}

// CheckPortfolioRisk checks the equity drawdown from peak against the
// portfolio drawdown ceiling. peakEquity falls back to the initial capital
// when no peak has been recorded yet. It returns a warning string (empty
// if none) while the drawdown approaches the ceiling, and an error once it
// is breached.
func (m *Manager) CheckPortfolioRisk(currentEquity, peakEquity float64) (string, error) {
	if peakEquity <= 0 {
		peakEquity = m.initialCapital
	}
	if peakEquity <= 0 {
		return "", fmt.Errorf("peak equity must be positive, got %.2f", peakEquity)
	}
	drawdown := (peakEquity - currentEquity) / peakEquity
	if drawdown > m.maxPortfolioRisk {
		return "", fmt.Errorf("portfolio drawdown %.1f%% exceeds limit %.1f%%",
			drawdown*100, m.maxPortfolioRisk*100)
	}
	if drawdown > m.maxPortfolioRisk*portfolioWarnFraction {
		warn := fmt.Sprintf("portfolio drawdown %.1f%% approaching limit %.1f%%",
			drawdown*100, m.maxPortfolioRisk*100)
		m.log.Warn().Float64("drawdown", drawdown).Float64("limit", m.maxPortfolioRisk).
			Msg("drawdown approaching portfolio limit")
		return warn, nil
	}
	return "", nil
}

// CalculateStopLoss derives a protective stop for a position entered at
// entryPrice. direction is +1 for long, -1 for short. The param is the
// stop distance: a fraction for StopPercentage, an ATR multiple for
// StopATR, and an absolute price offset for StopFixed.
func (m *Manager) CalculateStopLoss(entryPrice float64, direction types.Signal, method StopMethod, param float64, bars []types.Bar) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %.4f", entryPrice)
	}
	var distance float64
	switch method {
	case StopPercentage:
		distance = entryPrice * param
	case StopATR:
		atr := indicator.ATR(bars, 14)
		if len(atr) == 0 || math.IsNaN(atr[len(atr)-1]) {
			return 0, fmt.Errorf("not enough bars for ATR stop: have %d", len(bars))
		}
		distance = atr[len(atr)-1] * param
	case StopFixed:
		distance = param
	default:
		return 0, fmt.Errorf("unknown stop method %q", method)
	}

	stop := entryPrice - float64(direction)*distance
	if stop < 0 {
		stop = 0
	}
	return stop, nil
}

// CalculateTakeProfit places the target at rewardRatio times the stop
// distance on the profitable side of the entry.
func (m *Manager) CalculateTakeProfit(entryPrice, stopLoss float64, direction types.Signal, rewardRatio float64) (float64, error) {
	if entryPrice <= 0 {
		return 0, fmt.Errorf("entry price must be positive, got %.4f", entryPrice)
	}
	if rewardRatio <= 0 {
		return 0, fmt.Errorf("reward ratio must be positive, got %.2f", rewardRatio)
	}
	distance := math.Abs(entryPrice - stopLoss)
	return entryPrice + float64(direction)*distance*rewardRatio, nil
}

// GetSummary reports the account's current risk metrics: value, return
// since inception, drawdown against peak equity, cash fraction, exposure
// and status. peakEquity falls back to the larger of the account value and
// the initial capital.
func (m *Manager) GetSummary(account *types.Account, positions []types.Position, peakEquity float64) Summary {
	value := account.PortfolioValue
	if value <= 0 {
		value = m.initialCapital
	}
	peak := math.Max(peakEquity, math.Max(value, m.initialCapital))

	total := 0.0
	for _, p := range positions {
		total += math.Abs(p.MarketValue)
	}
	exposurePct := 0.0
	cashPct := 0.0
	if value > 0 {
		exposurePct = total / value * 100
		cashPct = account.Cash / value * 100
	}

	totalReturnPct := 0.0
	if m.initialCapital > 0 {
		totalReturnPct = (value/m.initialCapital - 1) * 100
	}
	drawdown := 0.0
	if peak > 0 {
		drawdown = (peak - value) / peak
	}

	status := "ok"
	switch {
	case drawdown > m.maxPortfolioRisk:
		status = "over_limit"
	case drawdown > m.maxPortfolioRisk*portfolioWarnFraction:
		status = "warning"
	}
	return Summary{
		AccountValue:     value,
		InitialCapital:   m.initialCapital,
		TotalReturnPct:   totalReturnPct,
		DrawdownPct:      drawdown * 100,
		CashPct:          cashPct,
		OpenPositions:    len(positions),
		TotalExposure:    total,
		ExposurePct:      exposurePct,
		MaxRiskPerTrade:  m.maxRiskPerTrade,
		MaxPositionSize:  m.maxPositionSize,
		MaxPortfolioRisk: m.maxPortfolioRisk,
		Status:           status,
	}
}
