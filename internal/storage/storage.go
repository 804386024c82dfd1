package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// Storage интерфейс для аудита торговых решений
type Storage interface {
	SaveCandles(ctx context.Context, candles []*models.Candle) error
	SaveSignal(ctx context.Context, signal *models.Signal) error
	SavePosition(ctx context.Context, position *models.Position) error
	SaveEvaluation(ctx context.Context, symbol string, eval *models.AiEvaluation) error
	SaveTradeClose(ctx context.Context, position *models.Position, exitPrice, pnl float64, reason string, closedAt time.Time) error
	GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error)
	Close()
}

// New создает хранилище по типу из конфигурации
func New(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "influxdb":
		return NewInfluxDBStorage(cfg)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища: %s", cfg.Type)
	}
}

const memoryHistoryLimit = 1000

// MemoryStorage держит аудит в памяти. Используется для локальных
// запусков без InfluxDB и в тестах.
type MemoryStorage struct {
	mu          sync.RWMutex
	signals     map[string][]*models.Signal
	positions   []*models.Position
	evaluations map[string][]*models.AiEvaluation
	closes      []tradeClose
}

type tradeClose struct {
	position  *models.Position
	exitPrice float64
	pnl       float64
	reason    string
	closedAt  time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		signals:     make(map[string][]*models.Signal),
		evaluations: make(map[string][]*models.AiEvaluation),
	}
}

func (s *MemoryStorage) SaveCandles(_ context.Context, _ []*models.Candle) error {
	// Свечи в памяти не копим, их и так держит источник данных
	return nil
}

func (s *MemoryStorage) SaveSignal(_ context.Context, signal *models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.signals[signal.Symbol], signal)
	if len(history) > memoryHistoryLimit {
		history = history[len(history)-memoryHistoryLimit:]
	}
	s.signals[signal.Symbol] = history
	return nil
}

func (s *MemoryStorage) SavePosition(_ context.Context, position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, position)
	return nil
}

func (s *MemoryStorage) SaveEvaluation(_ context.Context, symbol string, eval *models.AiEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.evaluations[symbol], eval)
	if len(history) > memoryHistoryLimit {
		history = history[len(history)-memoryHistoryLimit:]
	}
	s.evaluations[symbol] = history
	return nil
}

func (s *MemoryStorage) SaveTradeClose(_ context.Context, position *models.Position, exitPrice, pnl float64, reason string, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes = append(s.closes, tradeClose{
		position:  position,
		exitPrice: exitPrice,
		pnl:       pnl,
		reason:    reason,
		closedAt:  closedAt,
	})
	return nil
}

func (s *MemoryStorage) GetSignalHistory(_ context.Context, symbol string, limit int) ([]*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.signals[symbol]
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]*models.Signal, len(history))
	copy(out, history)
	return out, nil
}

// Positions возвращает все сохраненные позиции
func (s *MemoryStorage) Positions() []*models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// ClosedTrades возвращает количество закрытых сделок
func (s *MemoryStorage) ClosedTrades() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.closes)
}

func (s *MemoryStorage) Close() {}
