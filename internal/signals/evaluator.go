package signals

import (
	"math"
	"strings"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// Пороговые значения правил оценки. Значения являются торговой политикой,
// менять их без пересмотра стратегии нельзя.
const (
	rsiOverbought  = 65.0
	rsiOversold    = 35.0
	volumeSurge    = 1.5
	volumeDryUp    = 0.7
	volatilityHigh = 0.03
	volatilityLow  = 0.015
	longThreshold  = 0.1
	shortThreshold = -0.1
)

// Evaluator превращает срез индикаторов в направленный сигнал
// по аддитивной балльной эвристике
type Evaluator struct {
	indicator config.IndicatorConfig
	risk      config.RiskConfig
}

// NewEvaluator создает новый оценщик сигналов
func NewEvaluator(indicatorCfg config.IndicatorConfig, riskCfg config.RiskConfig) *Evaluator {
	return &Evaluator{indicator: indicatorCfg, risk: riskCfg}
}

// Evaluate оценивает один срез индикаторов.
// Правила аддитивны и независимы; недоступные (NaN) входы правило пропускают.
func (e *Evaluator) Evaluate(ind *models.IndicatorSet) *models.Signal {
	score := 0.0
	var reasons []string

	hist := ind.MACD.Histogram
	macdSignal := ind.MACD.Signal
	if hist > 0 && hist > macdSignal {
		score += 0.30
		reasons = append(reasons, "MACD: бычий импульс усиливается")
	} else if hist < 0 && hist < macdSignal {
		score -= 0.30
		reasons = append(reasons, "MACD: медвежий импульс усиливается")
	}

	maFast := ind.MAAt(e.indicator.FastMA())
	maSlow := ind.MAAt(e.indicator.SlowMA())
	if maFast > maSlow {
		score += 0.20
		reasons = append(reasons, "золотой крест MA")
	} else if maFast < maSlow {
		score -= 0.20
		reasons = append(reasons, "мертвый крест MA")
	}

	emaFast := ind.EMAAt(e.indicator.FastEMA())
	emaSlow := ind.EMAAt(e.indicator.SlowEMA())
	if emaFast > emaSlow {
		score += 0.10
		reasons = append(reasons, "быстрая EMA выше медленной")
	} else if emaFast < emaSlow {
		score -= 0.10
		reasons = append(reasons, "быстрая EMA ниже медленной")
	}

	maLong := ind.MAAt(e.indicator.LongMA())
	if ind.Close > maLong {
		score += 0.05
		reasons = append(reasons, "цена выше долгосрочной MA")
	} else if ind.Close < maLong {
		score -= 0.05
		reasons = append(reasons, "цена ниже долгосрочной MA")
	}

	rsiShort := ind.RSIAt(e.indicator.ShortRSI())
	if rsiShort > rsiOverbought {
		score -= 0.10
		reasons = append(reasons, "RSI: перекупленность")
	} else if rsiShort < rsiOversold {
		score += 0.10
		reasons = append(reasons, "RSI: перепроданность")
	}

	if ind.VolumeRatio > volumeSurge {
		score += 0.10
		reasons = append(reasons, "рост объема")
	} else if ind.VolumeRatio < volumeDryUp {
		score -= 0.05
		reasons = append(reasons, "падение объема")
	}

	volatility := math.NaN()
	if ind.Close > 0 {
		volatility = ind.ATR / ind.Close
	}
	if volatility > volatilityHigh {
		score -= 0.05
		reasons = append(reasons, "высокая волатильность")
	} else if volatility < volatilityLow {
		score += 0.05
		reasons = append(reasons, "низкая волатильность")
	}

	direction := models.DirectionFlat
	if score > longThreshold {
		direction = models.DirectionLong
	} else if score < shortThreshold {
		direction = models.DirectionShort
	}

	reason := "слабый сигнал"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, "; ")
	}

	return &models.Signal{
		Symbol:     ind.Symbol,
		Interval:   ind.Interval,
		Direction:  direction,
		Confidence: e.mapScoreToConfidence(math.Abs(score)),
		Reason:     reason,
		Timestamp:  ind.Timestamp,
		Metadata: map[string]float64{
			"score":          score,
			"atr":            ind.ATR,
			"volatility_pct": volatility,
			"close":          ind.Close,
			"volume_ratio":   ind.VolumeRatio,
			"macd_hist":      hist,
		},
	}
}

// mapScoreToConfidence проецирует |score| на дискретные уровни уверенности
func (e *Evaluator) mapScoreToConfidence(score float64) float64 {
	buckets := e.risk.ConfidenceBuckets
	switch {
	case score < 0.2:
		return buckets[0]
	case score < 0.4:
		return buckets[1]
	case score < 0.6:
		return buckets[2]
	case score < 0.8:
		return buckets[3]
	}
	return buckets[4]
}
