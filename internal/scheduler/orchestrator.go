package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/dstrade/internal/ai"
	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/internal/exchange"
	"github.com/skalibog/dstrade/internal/execution"
	"github.com/skalibog/dstrade/internal/indicators"
	"github.com/skalibog/dstrade/internal/signals"
	"github.com/skalibog/dstrade/internal/storage"
	"github.com/skalibog/dstrade/pkg/logger"
	"github.com/skalibog/dstrade/pkg/models"
)

// Sink получает обновления для отображения. Реализуется терминальным UI.
type Sink interface {
	UpdateSignals(signals map[string]*models.Signal)
	UpdatePosition(position *models.Position)
	UpdateEvaluation(symbol string, eval *models.AiEvaluation)
}

// Orchestrator управляет двумя циклами: редким циклом сбора данных и
// принятия решений и минутным циклом обзора открытой позиции
type Orchestrator struct {
	cfg        *config.Config
	source     exchange.CandleSource
	calculator *indicators.Calculator
	evaluator  *signals.Evaluator
	fuser      *signals.Fuser
	ctxBuilder *signals.ContextBuilder
	planner    *execution.Planner
	sm         *execution.StateMachine
	executor   *execution.Executor
	oracle     ai.Oracle
	store      storage.Storage
	sink       Sink

	now func() time.Time
}

// NewOrchestrator собирает оркестратор из готовых компонентов
func NewOrchestrator(
	cfg *config.Config,
	source exchange.CandleSource,
	sm *execution.StateMachine,
	executor *execution.Executor,
	oracle ai.Oracle,
	store storage.Storage,
	sink Sink,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		source:     source,
		calculator: indicators.NewCalculator(cfg.Indicator),
		evaluator:  signals.NewEvaluator(cfg.Indicator, cfg.Risk),
		fuser:      signals.NewFuser(cfg.Risk),
		ctxBuilder: signals.NewContextBuilder(cfg.Risk),
		planner:    execution.NewPlanner(cfg.Risk),
		sm:         sm,
		executor:   executor,
		oracle:     oracle,
		store:      store,
		sink:       sink,
		now:        time.Now,
	}
}

// ContextBuilder открывает доступ к построителю контекста для UI
func (o *Orchestrator) ContextBuilder() *signals.ContextBuilder {
	return o.ctxBuilder
}

// AttachSink подключает получателя обновлений. Вызывается до Run.
func (o *Orchestrator) AttachSink(sink Sink) {
	o.sink = sink
}

// Run запускает оба цикла и блокируется до отмены контекста
func (o *Orchestrator) Run(ctx context.Context) error {
	dataTicker := time.NewTicker(time.Duration(o.cfg.Scheduler.DataPullSeconds) * time.Second)
	defer dataTicker.Stop()
	reviewTicker := time.NewTicker(time.Duration(o.cfg.Scheduler.MinuteReviewSeconds) * time.Second)
	defer reviewTicker.Stop()

	// Первый цикл сразу, не дожидаясь тикера
	o.RunDataCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-dataTicker.C:
			o.RunDataCycle(ctx)
		case <-reviewTicker.C:
			if err := o.RunMinuteReview(ctx); err != nil {
				logger.Warn("Минутный обзор не завершен", zap.Error(err))
			}
		}
	}
}

// symbolResult итог оценки одного символа за цикл
type symbolResult struct {
	fused      *models.Signal
	price      float64
	volatility float64
}

// RunDataCycle выполняет полный цикл: сбор свечей, расчет индикаторов,
// оценку сигналов по таймфреймам, слияние и, при плоском состоянии,
// открытие позиции по лучшему сигналу. Ошибки одного символа не
// прерывают обработку остальных.
func (o *Orchestrator) RunDataCycle(ctx context.Context) {
	now := o.now()
	results := make(map[string]*symbolResult, len(o.cfg.Trading.Symbols))
	fusedBySymbol := make(map[string]*models.Signal, len(o.cfg.Trading.Symbols))

	for _, symbol := range o.cfg.Trading.Symbols {
		result, err := o.evaluateSymbol(ctx, symbol)
		if err != nil {
			logger.Error("Ошибка оценки символа",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		results[symbol] = result
		fusedBySymbol[symbol] = result.fused
	}

	o.sm.MarkDataPull(now)

	if o.sink != nil {
		o.sink.UpdateSignals(fusedBySymbol)
	}

	// Вход только из плоского состояния, одна позиция за раз
	if o.sm.CurrentPosition() != nil {
		return
	}

	best := SelectBest(o.cfg.Trading.Symbols, fusedBySymbol)
	if best == nil {
		logger.Debug("Нет торгуемого сигнала в этом цикле")
		return
	}

	result := results[best.Symbol]
	position, err := o.planner.CreatePosition(best,
		o.cfg.Trading.AccountEquity, result.price, result.volatility, now)
	if err != nil {
		logger.Warn("Не удалось спланировать позицию",
			zap.String("symbol", best.Symbol),
			zap.Error(err))
		return
	}

	if err := o.executor.OpenPosition(ctx, position); err != nil {
		logger.Error("Не удалось открыть позицию", zap.Error(err))
		return
	}
	if o.sink != nil {
		o.sink.UpdatePosition(position)
	}
}

// evaluateSymbol собирает свечи по всем таймфреймам символа, считает
// индикаторы, оценивает каждый таймфрейм и сливает в итоговый сигнал
func (o *Orchestrator) evaluateSymbol(ctx context.Context, symbol string) (*symbolResult, error) {
	frames := make([]signals.TimeframeSignal, 0, len(o.cfg.Trading.Intervals))
	var baseSet *models.IndicatorSet

	for _, interval := range o.cfg.Trading.Intervals {
		candles, err := o.source.GetKlines(ctx, symbol, interval, o.cfg.Trading.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("таймфрейм %s: %w", interval, err)
		}
		if err := o.store.SaveCandles(ctx, candles); err != nil {
			logger.Warn("Не удалось сохранить свечи", zap.Error(err))
		}

		sets := o.calculator.Calculate(candles)
		if len(sets) == 0 {
			return nil, fmt.Errorf("таймфрейм %s: пустая история: %w",
				interval, models.ErrDataUnavailable)
		}
		last := sets[len(sets)-1]

		sig := o.evaluator.Evaluate(last)
		frames = append(frames, signals.TimeframeSignal{
			Interval:   interval,
			Indicators: last,
			Signal:     sig,
		})
		if interval == o.cfg.Trading.BaseInterval {
			baseSet = last
		}
	}

	fused, err := o.fuser.Fuse(o.cfg.Trading.BaseInterval, frames)
	if err != nil {
		return nil, err
	}
	if baseSet == nil {
		return nil, fmt.Errorf("базовый таймфрейм %s не загружен: %w",
			o.cfg.Trading.BaseInterval, models.ErrInternalInconsistency)
	}

	o.ctxBuilder.UpdateSnapshot(baseSet, fused)
	o.sm.RecordSignal(fused)
	if err := o.store.SaveSignal(ctx, fused); err != nil {
		logger.Warn("Не удалось сохранить сигнал", zap.Error(err))
	}

	logger.Info("Сигнал по символу",
		zap.String("symbol", symbol),
		zap.String("direction", string(fused.Direction)),
		zap.Float64("confidence", fused.Confidence),
		zap.String("reason", fused.Reason))

	volatility := baseSet.ATR
	if math.IsNaN(volatility) {
		volatility = 0
	}
	return &symbolResult{
		fused:      fused,
		price:      baseSet.Close,
		volatility: volatility,
	}, nil
}

// SelectBest выбирает направленный сигнал с наибольшей уверенностью.
// При равной уверенности остается более ранний символ из списка.
func SelectBest(order []string, fused map[string]*models.Signal) *models.Signal {
	var best *models.Signal
	for _, symbol := range order {
		sig, ok := fused[symbol]
		if !ok || sig == nil || sig.Direction == models.DirectionFlat {
			continue
		}
		if best == nil || sig.Confidence > best.Confidence {
			best = sig
		}
	}
	return best
}

// RunMinuteReview проверяет открытую позицию: сперва принудительное
// закрытие по лимитам времени, затем обзор через AI. Ошибка оракула
// оставляет позицию без изменений.
func (o *Orchestrator) RunMinuteReview(ctx context.Context) error {
	position := o.sm.CurrentPosition()
	if position == nil {
		return nil
	}

	now := o.now()
	if !o.sm.NeedsMinuteReview(now) {
		return nil
	}
	// Такт отмечается независимо от исхода обзора
	defer o.sm.MarkMinuteReview(now)

	exitPrice := o.ctxBuilder.CurrentPrice(position)

	// Принудительное закрытие по лимитам времени идет до любого AI-вызова
	if o.sm.ShouldForceClose(now, o.minutesToSessionEnd(now)) {
		o.executor.ClosePosition(ctx, "принудительное закрытие по лимиту времени", exitPrice, now)
		if o.sink != nil {
			o.sink.UpdatePosition(nil)
		}
		return nil
	}

	payload := o.ctxBuilder.BuildAiPayload(position, now)
	eval, err := o.oracle.Evaluate(ctx, payload)
	if err != nil {
		return fmt.Errorf("обзор позиции %s: %w", position.Symbol, err)
	}

	o.sm.RecordEvaluation(eval)
	if err := o.store.SaveEvaluation(ctx, position.Symbol, eval); err != nil {
		logger.Warn("Не удалось сохранить вердикт AI", zap.Error(err))
	}
	if o.sink != nil {
		o.sink.UpdateEvaluation(position.Symbol, eval)
	}

	logger.Info("Вердикт AI по позиции",
		zap.String("symbol", position.Symbol),
		zap.String("action", string(eval.Action)),
		zap.String("risk_level", eval.RiskLevel),
		zap.String("reason", eval.Reason))

	if eval.Action.IsExit() {
		o.executor.ClosePosition(ctx, fmt.Sprintf("AI: %s (%s)", eval.Action, eval.Reason), exitPrice, now)
		if o.sink != nil {
			o.sink.UpdatePosition(nil)
		}
	}
	return nil
}

// minutesToSessionEnd возвращает число минут до конца торговой сессии.
// Если конец сессии уже прошел, значение отрицательное.
func (o *Orchestrator) minutesToSessionEnd(now time.Time) int {
	parsed, err := time.Parse("15:04", o.cfg.Risk.SessionEnd)
	if err != nil {
		logger.Warn("Некорректное время конца сессии",
			zap.String("session_end", o.cfg.Risk.SessionEnd))
		return 24 * 60
	}
	end := time.Date(now.Year(), now.Month(), now.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	return int(end.Sub(now).Minutes())
}
