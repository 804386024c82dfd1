package models

import (
	"math"
	"time"
)

// Direction направление сделки
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// Multiplier возвращает знак направления для расчета PnL
func (d Direction) Multiplier() float64 {
	switch d {
	case DirectionLong:
		return 1.0
	case DirectionShort:
		return -1.0
	}
	return 0.0
}

// AiAction действие, рекомендованное AI-оракулом
type AiAction string

const (
	ActionHold       AiAction = "hold"
	ActionClose      AiAction = "close"
	ActionTakeProfit AiAction = "take_profit"
	ActionStopLoss   AiAction = "stop_loss"
)

// NormalizeAiAction приводит ответ оракула к известному действию.
// Неизвестные действия трактуются как hold.
func NormalizeAiAction(raw string) AiAction {
	switch AiAction(raw) {
	case ActionHold, ActionClose, ActionTakeProfit, ActionStopLoss:
		return AiAction(raw)
	}
	return ActionHold
}

// IsExit сообщает, требует ли действие закрытия позиции
func (a AiAction) IsExit() bool {
	return a == ActionClose || a == ActionTakeProfit || a == ActionStopLoss
}

// Candle представляет свечу.
// Ключ уникальности (Symbol, Interval, OpenTime), серии упорядочены по OpenTime.
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// MACD тройка значений MACD
type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// IndicatorSet срез индикаторов на момент одной свечи.
// Недоступные значения (недостаточно истории) представлены NaN.
type IndicatorSet struct {
	Symbol      string
	Interval    string
	Timestamp   time.Time
	Close       float64
	Volume      float64
	MA          map[int]float64
	EMA         map[int]float64
	MACD        MACD
	RSI         map[int]float64
	ATR         float64
	VolumeRatio float64
}

// MAAt возвращает MA окна w или NaN, если окно не рассчитано
func (s *IndicatorSet) MAAt(w int) float64 {
	if v, ok := s.MA[w]; ok {
		return v
	}
	return math.NaN()
}

// EMAAt возвращает EMA окна w или NaN
func (s *IndicatorSet) EMAAt(w int) float64 {
	if v, ok := s.EMA[w]; ok {
		return v
	}
	return math.NaN()
}

// RSIAt возвращает RSI окна w или NaN
func (s *IndicatorSet) RSIAt(w int) float64 {
	if v, ok := s.RSI[w]; ok {
		return v
	}
	return math.NaN()
}

// Signal направленный сигнал с дискретной уверенностью
type Signal struct {
	Symbol     string
	Interval   string
	Direction  Direction
	Confidence float64
	Reason     string
	Timestamp  time.Time
	// Metadata свободные числовые метаданные: score, atr, volatility_pct, close и т.п.
	Metadata map[string]float64
	// Breakdown направления по таймфреймам, заполняется только у слитого сигнала
	Breakdown map[string]Direction
}

// Position открытая позиция. Одновременно существует не более одной.
// StopLoss и TakeProfit фиксируются при создании и далее не изменяются.
type Position struct {
	ID         string
	Symbol     string
	Direction  Direction
	Size       float64
	EntryPrice float64
	Leverage   float64
	OpenTime   time.Time
	StopLoss   float64
	TakeProfit float64
	FeesPaid   float64
}

// UnrealizedPnL оценка нереализованного PnL по текущей цене
func (p *Position) UnrealizedPnL(markPrice float64) float64 {
	return p.Direction.Multiplier() * (markPrice - p.EntryPrice) * p.Size
}

// AiEvaluation результат обзора позиции оракулом
type AiEvaluation struct {
	Action      AiAction
	Reason      string
	RiskLevel   string
	Confidence  float64
	RawResponse []byte
	Timestamp   time.Time
}

// StrategyState состояние стратегии на время жизни процесса.
// Владелец — машина состояний, все мутации идут через нее.
type StrategyState struct {
	CurrentPosition  *Position
	LastDataPull     time.Time
	LastMinuteReview time.Time
	SignalHistory    []*Signal
	AiHistory        []*AiEvaluation
}
