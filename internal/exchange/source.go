package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// CandleSource поставляет исторические свечи для анализа
type CandleSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
}

// NewCandleSource создает источник данных по типу провайдера
func NewCandleSource(cfg config.TradingConfig, binanceCfg config.BinanceConfig) (CandleSource, error) {
	switch cfg.Provider {
	case "binance":
		return NewBinanceClient(binanceCfg)
	case "synthetic":
		return NewSyntheticSource(time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("неизвестный провайдер данных: %s", cfg.Provider)
	}
}

// SyntheticSource генерирует свечи случайным блужданием. Нужен для
// запусков без сети и детерминированных прогонов с фиксированным зерном.
type SyntheticSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	last  map[string]float64
	drift float64
}

func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{
		rng:  rand.New(rand.NewSource(seed)),
		last: make(map[string]float64),
	}
}

func (s *SyntheticSource) GetKlines(_ context.Context, symbol, interval string, limit int) ([]*models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.last[symbol]
	if !ok {
		price = 100 + s.rng.Float64()*900
	}

	step := intervalDuration(interval)
	start := time.Now().Add(-time.Duration(limit) * step).Truncate(step)

	candles := make([]*models.Candle, limit)
	for i := 0; i < limit; i++ {
		open := price
		// шаг блуждания до 0.5% с небольшим дрейфом
		price *= 1 + (s.rng.Float64()-0.5)*0.01 + s.drift
		high := math.Max(open, price) * (1 + s.rng.Float64()*0.002)
		low := math.Min(open, price) * (1 - s.rng.Float64()*0.002)
		volume := 1000 + s.rng.Float64()*5000

		openTime := start.Add(time.Duration(i) * step)
		candles[i] = &models.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    volume,
			CloseTime: openTime.Add(step),
		}
	}

	s.last[symbol] = price
	return candles, nil
}

// intervalDuration конвертирует строковый интервал в duration
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
