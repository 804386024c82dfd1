package storage

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

// InfluxDBStorage реализует интерфейс Storage с использованием InfluxDB
type InfluxDBStorage struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

// NewInfluxDBStorage создает новое хранилище InfluxDB
func NewInfluxDBStorage(cfg config.StorageConfig) (*InfluxDBStorage, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Проверка соединения
	health, err := client.Health(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка соединения с InfluxDB: %w", err)
	}
	if health == nil || health.Status != "pass" {
		return nil, fmt.Errorf("InfluxDB не в состоянии 'pass': %+v", health)
	}

	return &InfluxDBStorage{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Organization),
		writeAPI: client.WriteAPI(cfg.Organization, cfg.Bucket),
		org:      cfg.Organization,
		bucket:   cfg.Bucket,
	}, nil
}

// Close закрывает соединение с базой данных
func (s *InfluxDBStorage) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// SaveCandles сохраняет пачку свечей
func (s *InfluxDBStorage) SaveCandles(ctx context.Context, candles []*models.Candle) error {
	for _, candle := range candles {
		point := influxdb2.NewPoint(
			"candles",
			map[string]string{
				"symbol":   candle.Symbol,
				"interval": candle.Interval,
			},
			map[string]interface{}{
				"open":   candle.Open,
				"high":   candle.High,
				"low":    candle.Low,
				"close":  candle.Close,
				"volume": candle.Volume,
			},
			candle.OpenTime,
		)
		s.writeAPI.WritePoint(point)
	}

	s.writeAPI.Flush()
	return nil
}

// SaveSignal сохраняет итоговый сигнал по символу
func (s *InfluxDBStorage) SaveSignal(ctx context.Context, signal *models.Signal) error {
	point := influxdb2.NewPoint(
		"signals",
		map[string]string{
			"symbol":   signal.Symbol,
			"interval": signal.Interval,
		},
		map[string]interface{}{
			"direction":  string(signal.Direction),
			"confidence": signal.Confidence,
			"reason":     signal.Reason,
			"score":      signal.Metadata["score"],
		},
		signal.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// SavePosition сохраняет открытую позицию
func (s *InfluxDBStorage) SavePosition(ctx context.Context, position *models.Position) error {
	point := influxdb2.NewPoint(
		"positions",
		map[string]string{
			"symbol":    position.Symbol,
			"direction": string(position.Direction),
		},
		map[string]interface{}{
			"id":          position.ID,
			"size":        position.Size,
			"entry_price": position.EntryPrice,
			"leverage":    position.Leverage,
			"stop_loss":   position.StopLoss,
			"take_profit": position.TakeProfit,
			"fees":        position.FeesPaid,
		},
		position.OpenTime,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// SaveEvaluation сохраняет вердикт AI по позиции
func (s *InfluxDBStorage) SaveEvaluation(ctx context.Context, symbol string, eval *models.AiEvaluation) error {
	point := influxdb2.NewPoint(
		"ai_evaluations",
		map[string]string{
			"symbol": symbol,
			"action": string(eval.Action),
		},
		map[string]interface{}{
			"reason":     eval.Reason,
			"risk_level": eval.RiskLevel,
			"confidence": eval.Confidence,
			"raw":        string(eval.RawResponse),
		},
		eval.Timestamp,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// SaveTradeClose сохраняет запись о закрытии сделки
func (s *InfluxDBStorage) SaveTradeClose(ctx context.Context, position *models.Position, exitPrice, pnl float64, reason string, closedAt time.Time) error {
	point := influxdb2.NewPoint(
		"trade_closes",
		map[string]string{
			"symbol":    position.Symbol,
			"direction": string(position.Direction),
		},
		map[string]interface{}{
			"id":          position.ID,
			"entry_price": position.EntryPrice,
			"exit_price":  exitPrice,
			"size":        position.Size,
			"pnl":         pnl,
			"reason":      reason,
			"holding_min": closedAt.Sub(position.OpenTime).Minutes(),
		},
		closedAt,
	)

	s.writeAPI.WritePoint(point)
	s.writeAPI.Flush()
	return nil
}

// GetSignalHistory получает историю сигналов
func (s *InfluxDBStorage) GetSignalHistory(ctx context.Context, symbol string, limit int) ([]*models.Signal, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r._measurement == "signals")
			|> filter(fn: (r) => r.symbol == "%s")
			|> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
			|> sort(columns: ["_time"], desc: true)
			|> limit(n: %d)
	`, s.bucket, symbol, limit)

	result, err := s.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса истории сигналов: %w", err)
	}

	var signals []*models.Signal
	for result.Next() {
		record := result.Record()

		direction, _ := record.ValueByKey("direction").(string)
		confidence, _ := record.ValueByKey("confidence").(float64)
		reason, _ := record.ValueByKey("reason").(string)
		interval, _ := record.ValueByKey("interval").(string)

		signals = append(signals, &models.Signal{
			Symbol:     symbol,
			Interval:   interval,
			Direction:  models.Direction(direction),
			Confidence: confidence,
			Reason:     reason,
			Timestamp:  record.Time(),
		})
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("ошибка при обработке результатов: %w", result.Err())
	}

	return signals, nil
}
