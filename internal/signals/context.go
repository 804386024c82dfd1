package signals

import (
	"math"
	"sync"
	"time"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// ContextBuilder кэширует последние срезы рынка по символам и
// собирает структурированный запрос для AI-оракула.
// Кэш по принципу последней записи; данные других символов не трогаются.
type ContextBuilder struct {
	mu         sync.RWMutex
	indicators map[string]*models.IndicatorSet
	signals    map[string]*models.Signal
	risk       config.RiskConfig
}

// NewContextBuilder создает новый строитель контекста
func NewContextBuilder(riskCfg config.RiskConfig) *ContextBuilder {
	return &ContextBuilder{
		indicators: make(map[string]*models.IndicatorSet),
		signals:    make(map[string]*models.Signal),
		risk:       riskCfg,
	}
}

// UpdateSnapshot запоминает свежий срез индикаторов и сигнал символа
func (b *ContextBuilder) UpdateSnapshot(ind *models.IndicatorSet, sig *models.Signal) {
	if ind == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.indicators[ind.Symbol] = ind
	if sig != nil {
		b.signals[ind.Symbol] = sig
	}
}

// Latest возвращает последний срез индикаторов и сигнал символа
func (b *ContextBuilder) Latest(symbol string) (*models.IndicatorSet, *models.Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.indicators[symbol], b.signals[symbol]
}

// CurrentPrice последняя известная цена символа.
// Без кэшированного среза откатывается к цене входа позиции:
// это известное приближение, нереализованный PnL при нем равен нулю.
func (b *ContextBuilder) CurrentPrice(position *models.Position) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if ind, ok := b.indicators[position.Symbol]; ok {
		return ind.Close
	}
	return position.EntryPrice
}

// BuildAiPayload собирает запрос оракулу: снимок позиции, оценка PnL,
// длительность удержания, последний срез рынка, последний сигнал и риск-лимиты
func (b *ContextBuilder) BuildAiPayload(position *models.Position, now time.Time) map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	indicator := b.indicators[position.Symbol]
	signal := b.signals[position.Symbol]

	currentPrice := position.EntryPrice
	if indicator != nil {
		currentPrice = indicator.Close
	}

	payload := map[string]interface{}{
		"symbol":          position.Symbol,
		"direction":       string(position.Direction),
		"entry_price":     position.EntryPrice,
		"take_profit":     position.TakeProfit,
		"stop_loss":       position.StopLoss,
		"size":            position.Size,
		"leverage":        position.Leverage,
		"fees_paid":       position.FeesPaid,
		"current_price":   currentPrice,
		"holding_minutes": now.Sub(position.OpenTime).Minutes(),
		"unrealized_pnl":  position.UnrealizedPnL(currentPrice),
	}

	if indicator != nil {
		payload["market_snapshot"] = map[string]interface{}{
			"timestamp":    indicator.Timestamp.UTC().Format(time.RFC3339),
			"interval":     indicator.Interval,
			"close":        indicator.Close,
			"atr":          jsonFloat(indicator.ATR),
			"volume_ratio": jsonFloat(indicator.VolumeRatio),
			"macd": map[string]interface{}{
				"line":   jsonFloat(indicator.MACD.Line),
				"signal": jsonFloat(indicator.MACD.Signal),
				"hist":   jsonFloat(indicator.MACD.Histogram),
			},
			"ma":  jsonFloatMap(indicator.MA),
			"ema": jsonFloatMap(indicator.EMA),
			"rsi": jsonFloatMap(indicator.RSI),
		}
	}

	if signal != nil {
		payload["latest_signal"] = map[string]interface{}{
			"direction":    string(signal.Direction),
			"confidence":   signal.Confidence,
			"reason":       signal.Reason,
			"generated_at": signal.Timestamp.UTC().Format(time.RFC3339),
		}
	}

	payload["risk_constraints"] = riskConstraints(b.risk)

	return payload
}

func riskConstraints(risk config.RiskConfig) map[string]interface{} {
	return map[string]interface{}{
		"leverage":             risk.Leverage,
		"take_profit_pct":      risk.TakeProfitPct,
		"stop_loss_pct":        risk.StopLossPct,
		"max_position_minutes": risk.MaxPositionMinutes,
		"use_atr_targets":      risk.UseATRTargets,
	}
}

// jsonFloat заменяет NaN на null: encoding/json не сериализует NaN
func jsonFloat(v float64) interface{} {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func jsonFloatMap(m map[int]float64) map[int]interface{} {
	out := make(map[int]interface{}, len(m))
	for k, v := range m {
		out[k] = jsonFloat(v)
	}
	return out
}
