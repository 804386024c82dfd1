package execution

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// Planner превращает слитый сигнал в план позиции с целями и размером
type Planner struct {
	risk config.RiskConfig
}

// NewPlanner создает новый планировщик ордеров
func NewPlanner(riskCfg config.RiskConfig) *Planner {
	return &Planner{risk: riskCfg}
}

// CreatePosition строит позицию по сигналу, капиталу и цене входа.
// volatility — последний ATR, NaN если не рассчитан.
// Сигналы flat и неположительная цена отклоняются как некорректный вход.
func (p *Planner) CreatePosition(sig *models.Signal, equity, price, volatility float64, now time.Time) (*models.Position, error) {
	if price <= 0 || math.IsNaN(price) {
		return nil, fmt.Errorf("неположительная цена входа %f: %w", price, models.ErrInvalidInput)
	}
	if sig.Direction == models.DirectionFlat {
		return nil, fmt.Errorf("сигнал без направления не открывает позицию: %w", models.ErrInvalidInput)
	}

	confidenceScale := math.Min(sig.Confidence/p.risk.MaxConfidence(), 1.0)

	tpPct, slPct := p.targetPercents(price, volatility)
	takeProfit := applyTarget(price, tpPct, sig.Direction, true)
	stopLoss := applyTarget(price, slPct, sig.Direction, false)

	// Риск-капитал от дистанции до стопа; запасной вариант — сайзинг от капитала
	riskCapital := equity * p.risk.RiskPerTrade * confidenceScale
	size := 0.0
	if dist := math.Abs(price - stopLoss); dist > 0 {
		size = riskCapital / dist
	} else {
		size = equity * confidenceScale * p.risk.Leverage / price
	}

	// Ограничение максимальной номинальной экспозиции при заданном плече
	maxSize := equity * p.risk.Leverage / price
	size = math.Min(math.Max(size, 0), maxSize)

	return &models.Position{
		ID:         uuid.NewString(),
		Symbol:     sig.Symbol,
		Direction:  sig.Direction,
		Size:       size,
		EntryPrice: price,
		Leverage:   p.risk.Leverage,
		OpenTime:   now,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		FeesPaid:   size * price * p.risk.FeeRate,
	}, nil
}

// targetPercents проценты дистанции до целей: по ATR при включенном
// ATR-таргетинге и известной волатильности, иначе — фиксированные
func (p *Planner) targetPercents(price, volatility float64) (tpPct, slPct float64) {
	if p.risk.UseATRTargets && !math.IsNaN(volatility) && volatility > 0 {
		return volatility / price * p.risk.ATRTakeProfitMult,
			volatility / price * p.risk.ATRStopLossMult
	}
	return p.risk.TakeProfitPct, p.risk.StopLossPct
}

// applyTarget целевая цена: long прибавляет процент тейка и вычитает стоп,
// short зеркально; flat оставляет цену без изменений
func applyTarget(price, pct float64, direction models.Direction, isTakeProfit bool) float64 {
	switch direction {
	case models.DirectionLong:
		if isTakeProfit {
			return price * (1 + pct)
		}
		return price * (1 - pct)
	case models.DirectionShort:
		if isTakeProfit {
			return price * (1 - pct)
		}
		return price * (1 + pct)
	}
	return price
}
