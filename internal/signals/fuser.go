package signals

import (
	"fmt"
	"math"
	"strings"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// confirmationBonus прибавка к уверенности за каждый подтверждающий таймфрейм
const confirmationBonus = 0.05

// TimeframeSignal пара (индикаторы, сигнал) одного таймфрейма
type TimeframeSignal struct {
	Interval   string
	Indicators *models.IndicatorSet
	Signal     *models.Signal
}

// Fuser сливает сигналы нескольких таймфреймов в одно решение.
// Конфликт любого таймфрейма с базовым всегда перевешивает подтверждения.
type Fuser struct {
	risk config.RiskConfig
}

// NewFuser создает новый слиятель сигналов
func NewFuser(riskCfg config.RiskConfig) *Fuser {
	return &Fuser{risk: riskCfg}
}

// Fuse сливает сигналы таймфреймов относительно базового.
// Отсутствие базового таймфрейма во входе — ошибка входных данных.
func (f *Fuser) Fuse(baseInterval string, frames []TimeframeSignal) (*models.Signal, error) {
	var base *models.Signal
	breakdown := make(map[string]models.Direction, len(frames))
	for _, frame := range frames {
		if frame.Signal == nil {
			continue
		}
		breakdown[frame.Interval] = frame.Signal.Direction
		if frame.Interval == baseInterval {
			base = frame.Signal
		}
	}
	if base == nil {
		return nil, fmt.Errorf("нет сигнала базового таймфрейма %s: %w", baseInterval, models.ErrInvalidInput)
	}

	var confirms, conflicts []string
	if base.Direction != models.DirectionFlat {
		for _, frame := range frames {
			if frame.Signal == nil || frame.Interval == baseInterval {
				continue
			}
			switch frame.Signal.Direction {
			case base.Direction:
				confirms = append(confirms, frame.Interval)
			case models.DirectionFlat:
				// нейтральный таймфрейм не подтверждает и не конфликтует
			default:
				conflicts = append(conflicts, frame.Interval)
			}
		}
	}

	fused := &models.Signal{
		Symbol:    base.Symbol,
		Interval:  baseInterval,
		Timestamp: base.Timestamp,
		Metadata:  make(map[string]float64, len(base.Metadata)+2),
		Breakdown: breakdown,
	}
	for k, v := range base.Metadata {
		fused.Metadata[k] = v
	}
	fused.Metadata["confirmations"] = float64(len(confirms))
	fused.Metadata["conflicts"] = float64(len(conflicts))

	if len(conflicts) > 0 {
		fused.Direction = models.DirectionFlat
		fused.Confidence = f.risk.MinConfidence()
		fused.Reason = fmt.Sprintf("конфликт таймфреймов: %s", strings.Join(conflicts, ", "))
		return fused, nil
	}

	fused.Direction = base.Direction
	fused.Confidence = math.Min(
		base.Confidence+confirmationBonus*float64(len(confirms)),
		f.risk.MaxConfidence(),
	)
	fused.Reason = base.Reason
	if len(confirms) > 0 {
		fused.Reason += fmt.Sprintf("; подтверждение: %s", strings.Join(confirms, ", "))
	}
	return fused, nil
}
