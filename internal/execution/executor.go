package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/internal/storage"
	"github.com/skalibog/dstrade/pkg/logger"
	"github.com/skalibog/dstrade/pkg/models"
)

// Executor регистрирует открытие и закрытие позиций через машину состояний
// и пишет аудит в хранилище. Ошибки хранилища не прерывают торговый цикл.
type Executor struct {
	sm    *StateMachine
	store storage.Storage
	risk  config.RiskConfig
}

// NewExecutor создает исполнителя сделок
func NewExecutor(sm *StateMachine, store storage.Storage, riskCfg config.RiskConfig) *Executor {
	return &Executor{sm: sm, store: store, risk: riskCfg}
}

// OpenPosition регистрирует новую позицию.
// Попытка открытия при уже открытой позиции — рассогласование состояния.
func (e *Executor) OpenPosition(ctx context.Context, position *models.Position) error {
	if e.sm.CurrentPosition() != nil {
		return fmt.Errorf("позиция уже открыта: %w", models.ErrInternalInconsistency)
	}
	e.sm.EnterPosition(position)

	logger.Info("Позиция открыта",
		zap.String("symbol", position.Symbol),
		zap.String("direction", string(position.Direction)),
		zap.Float64("size", position.Size),
		zap.Float64("entry_price", position.EntryPrice),
		zap.Float64("take_profit", position.TakeProfit),
		zap.Float64("stop_loss", position.StopLoss),
		zap.Float64("fees", position.FeesPaid))

	if err := e.store.SavePosition(ctx, position); err != nil {
		logger.Warn("Не удалось сохранить позицию", zap.Error(err))
	}
	return nil
}

// ClosePosition закрывает текущую позицию и логирует итоговый PnL за вычетом
// комиссий. Закрытие без открытой позиции логируется и игнорируется.
func (e *Executor) ClosePosition(ctx context.Context, reason string, exitPrice float64, now time.Time) {
	position := e.sm.CurrentPosition()
	if position == nil {
		logger.Warn("Запрошено закрытие, но позиции нет", zap.String("reason", reason))
		return
	}

	if exitPrice <= 0 {
		exitPrice = position.EntryPrice
	}
	exitFee := position.Size * exitPrice * e.risk.FeeRate
	totalFees := position.FeesPaid + exitFee
	pnl := position.UnrealizedPnL(exitPrice) - totalFees
	holdingMinutes := now.Sub(position.OpenTime).Minutes()

	e.sm.ExitPosition()

	log := logger.Info
	if pnl < 0 {
		log = logger.Warn
	}
	log("Позиция закрыта",
		zap.String("symbol", position.Symbol),
		zap.String("reason", reason),
		zap.Float64("exit_price", exitPrice),
		zap.Float64("pnl", pnl),
		zap.Float64("fees", totalFees),
		zap.Float64("holding_min", holdingMinutes))

	if err := e.store.SaveTradeClose(ctx, position, exitPrice, pnl, reason, now); err != nil {
		logger.Warn("Не удалось сохранить закрытие сделки", zap.Error(err))
	}
}
