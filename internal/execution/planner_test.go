package execution

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		Leverage:             5,
		RiskPerTrade:         0.02,
		TakeProfitPct:        0.06,
		StopLossPct:          0.03,
		ATRTakeProfitMult:    3,
		ATRStopLossMult:      1.5,
		FeeRate:              0.0005,
		ConfidenceBuckets:    []float64{0.05, 0.08, 0.10, 0.12, 0.15},
		MaxPositionMinutes:   120,
		ForcedCloseBufferMin: 15,
		SessionEnd:           "23:45",
	}
}

func longSignal(confidence float64) *models.Signal {
	return &models.Signal{
		Symbol:     "BTCUSDT",
		Interval:   "15m",
		Direction:  models.DirectionLong,
		Confidence: confidence,
		Reason:     "тест",
		Timestamp:  time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreatePositionRejectsBadPrice(t *testing.T) {
	p := NewPlanner(testRiskConfig())
	now := time.Now()

	for _, price := range []float64{0, -10, math.NaN()} {
		_, err := p.CreatePosition(longSignal(0.12), 10000, price, 50, now)
		if !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("цена %f: ожидался ErrInvalidInput, получено %v", price, err)
		}
	}
}

func TestCreatePositionRejectsFlat(t *testing.T) {
	p := NewPlanner(testRiskConfig())

	sig := longSignal(0.12)
	sig.Direction = models.DirectionFlat
	_, err := p.CreatePosition(sig, 10000, 100, 50, time.Now())
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("flat должен отклоняться, получено %v", err)
	}
}

func TestCreatePositionFixedTargets(t *testing.T) {
	cfg := testRiskConfig()
	cfg.UseATRTargets = false
	p := NewPlanner(cfg)
	now := time.Now()

	pos, err := p.CreatePosition(longSignal(0.15), 10000, 100, math.NaN(), now)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(pos.TakeProfit-106) > 1e-9 {
		t.Errorf("TP = %f, ожидалось 106", pos.TakeProfit)
	}
	if math.Abs(pos.StopLoss-97) > 1e-9 {
		t.Errorf("SL = %f, ожидалось 97", pos.StopLoss)
	}

	// дистанция до стопа 3, риск-капитал 10000*0.02*1 = 200
	wantSize := 200.0 / 3.0
	if math.Abs(pos.Size-wantSize) > 1e-9 {
		t.Errorf("размер = %f, ожидалось %f", pos.Size, wantSize)
	}
	if math.Abs(pos.FeesPaid-pos.Size*100*0.0005) > 1e-12 {
		t.Errorf("комиссия = %f", pos.FeesPaid)
	}
	if pos.ID == "" {
		t.Error("позиция без идентификатора")
	}
	if !pos.OpenTime.Equal(now) {
		t.Error("время открытия не совпадает")
	}
}

func TestCreatePositionATRTargets(t *testing.T) {
	cfg := testRiskConfig()
	cfg.UseATRTargets = true
	p := NewPlanner(cfg)

	// ATR 2 от цены 100: tp 6%, sl 3%
	pos, err := p.CreatePosition(longSignal(0.15), 10000, 100, 2, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pos.TakeProfit-106) > 1e-9 {
		t.Errorf("TP = %f, ожидалось 106", pos.TakeProfit)
	}
	if math.Abs(pos.StopLoss-97) > 1e-9 {
		t.Errorf("SL = %f, ожидалось 97", pos.StopLoss)
	}
}

// ATR-таргетинг без рассчитанного ATR откатывается к фиксированным процентам
func TestCreatePositionATRFallback(t *testing.T) {
	cfg := testRiskConfig()
	cfg.UseATRTargets = true
	p := NewPlanner(cfg)

	pos, err := p.CreatePosition(longSignal(0.15), 10000, 100, math.NaN(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pos.TakeProfit-106) > 1e-9 || math.Abs(pos.StopLoss-97) > 1e-9 {
		t.Errorf("цели при NaN ATR: TP %f SL %f", pos.TakeProfit, pos.StopLoss)
	}
}

func TestCreatePositionShortTargetsMirrored(t *testing.T) {
	cfg := testRiskConfig()
	cfg.UseATRTargets = false
	p := NewPlanner(cfg)

	sig := longSignal(0.12)
	sig.Direction = models.DirectionShort
	pos, err := p.CreatePosition(sig, 10000, 100, math.NaN(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(pos.TakeProfit-94) > 1e-9 {
		t.Errorf("TP шорта = %f, ожидалось 94", pos.TakeProfit)
	}
	if math.Abs(pos.StopLoss-103) > 1e-9 {
		t.Errorf("SL шорта = %f, ожидалось 103", pos.StopLoss)
	}
}

// Номинальная экспозиция не превышает капитал с плечом
func TestCreatePositionSizeClamped(t *testing.T) {
	cfg := testRiskConfig()
	cfg.UseATRTargets = true
	cfg.StopLossPct = 0.0001
	p := NewPlanner(cfg)

	// крошечный ATR дает близкий стоп и огромный сырой размер
	pos, err := p.CreatePosition(longSignal(0.15), 10000, 100, 0.001, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	maxSize := 10000 * cfg.Leverage / 100
	if pos.Size > maxSize+1e-9 {
		t.Errorf("размер %f превышает потолок %f", pos.Size, maxSize)
	}
	if pos.Size != maxSize {
		t.Errorf("размер должен упереться в потолок: %f != %f", pos.Size, maxSize)
	}
}

// Половинная уверенность дает половинный риск-капитал
func TestCreatePositionConfidenceScaling(t *testing.T) {
	cfg := testRiskConfig()
	cfg.UseATRTargets = false
	p := NewPlanner(cfg)

	full, err := p.CreatePosition(longSignal(0.15), 10000, 100, math.NaN(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	half, err := p.CreatePosition(longSignal(0.075), 10000, 100, math.NaN(), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(half.Size*2-full.Size) > 1e-9 {
		t.Errorf("масштабирование по уверенности: %f против %f", half.Size, full.Size)
	}
}
