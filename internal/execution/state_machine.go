package execution

import (
	"sync"
	"time"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// historyLimit максимум хранимых записей аудита сигналов и AI-обзоров
const historyLimit = 100

// StateMachine владеет жизненным циклом единственной позиции.
// Состояния: Flat (позиции нет) и InPosition. Оба цикла оркестратора
// читают и мутируют состояние, поэтому все мутации под мьютексом.
type StateMachine struct {
	mu    sync.Mutex
	risk  config.RiskConfig
	state models.StrategyState
}

// NewStateMachine создает машину состояний стратегии
func NewStateMachine(riskCfg config.RiskConfig) *StateMachine {
	return &StateMachine{risk: riskCfg}
}

// EnterPosition переводит Flat -> InPosition
func (m *StateMachine) EnterPosition(position *models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CurrentPosition = position
}

// ExitPosition переводит InPosition -> Flat
func (m *StateMachine) ExitPosition() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.CurrentPosition = nil
}

// CurrentPosition текущая открытая позиция или nil
func (m *StateMachine) CurrentPosition() *models.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentPosition
}

// ShouldForceClose принудительное закрытие: до конца сессии осталось
// не больше буфера, либо время удержания достигло лимита (граница включительно).
// Имеет смысл только при открытой позиции.
func (m *StateMachine) ShouldForceClose(now time.Time, minutesToClose int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.CurrentPosition == nil {
		return false
	}
	if minutesToClose <= m.risk.ForcedCloseBufferMin {
		return true
	}
	holding := now.Sub(m.state.CurrentPosition.OpenTime).Minutes()
	return holding >= float64(m.risk.MaxPositionMinutes)
}

// NeedsMinuteReview чистый каденс-гейт минутного обзора,
// не зависит от наличия позиции
func (m *StateMachine) NeedsMinuteReview(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := m.state.LastMinuteReview
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= time.Minute
}

// MarkMinuteReview отмечает такт обзора; вызывается раз за такт
// независимо от исхода
func (m *StateMachine) MarkMinuteReview(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastMinuteReview = now
}

// MarkDataPull отмечает завершение цикла данных
func (m *StateMachine) MarkDataPull(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.LastDataPull = now
}

// RecordSignal добавляет сигнал в ограниченную историю аудита
func (m *StateMachine) RecordSignal(sig *models.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SignalHistory = append(m.state.SignalHistory, sig)
	if len(m.state.SignalHistory) > historyLimit {
		m.state.SignalHistory = m.state.SignalHistory[len(m.state.SignalHistory)-historyLimit:]
	}
}

// RecordEvaluation добавляет AI-обзор в ограниченную историю аудита
func (m *StateMachine) RecordEvaluation(eval *models.AiEvaluation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.AiHistory = append(m.state.AiHistory, eval)
	if len(m.state.AiHistory) > historyLimit {
		m.state.AiHistory = m.state.AiHistory[len(m.state.AiHistory)-historyLimit:]
	}
}
