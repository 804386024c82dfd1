package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

func testConfig() config.IndicatorConfig {
	return config.IndicatorConfig{
		MAWindows:  []int{5, 20, 60},
		EMAWindows: []int{12, 26},
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		RSIWindows: []int{6, 14},
		ATRWindow:  14,
	}
}

// makeCandles строит серию свечей по ценам закрытия с постоянным объемом
func makeCandles(closes []float64, volume float64) []*models.Candle {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, len(closes))
	prev := closes[0]
	for i, c := range closes {
		candles[i] = &models.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "15m",
			OpenTime:  start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      prev,
			High:      math.Max(prev, c) * 1.001,
			Low:       math.Min(prev, c) * 0.999,
			Close:     c,
			Volume:    volume,
			CloseTime: start.Add(time.Duration(i+1) * 15 * time.Minute),
		}
		prev = c
	}
	return candles
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return closes
}

func TestCalculateEmptyInput(t *testing.T) {
	calc := NewCalculator(testConfig())
	if sets := calc.Calculate(nil); sets != nil {
		t.Errorf("пустой вход должен давать пустой выход, получено %d", len(sets))
	}
}

func TestCalculateAlignment(t *testing.T) {
	calc := NewCalculator(testConfig())
	candles := makeCandles(risingCloses(100), 1000)
	sets := calc.Calculate(candles)

	if len(sets) != len(candles) {
		t.Fatalf("ожидалось %d срезов, получено %d", len(candles), len(sets))
	}
	for i, set := range sets {
		if !set.Timestamp.Equal(candles[i].OpenTime) {
			t.Fatalf("срез %d не выровнен по времени свечи", i)
		}
		if set.Close != candles[i].Close {
			t.Fatalf("срез %d: close %f != %f", i, set.Close, candles[i].Close)
		}
	}
}

func TestMAUnavailableBeforeWindow(t *testing.T) {
	calc := NewCalculator(testConfig())
	sets := calc.Calculate(makeCandles(risingCloses(100), 1000))

	for _, w := range []int{5, 20, 60} {
		for i := 0; i < w-1; i++ {
			if !math.IsNaN(sets[i].MAAt(w)) {
				t.Errorf("MA%d на свече %d должна быть недоступна", w, i)
			}
		}
		if math.IsNaN(sets[w-1].MAAt(w)) {
			t.Errorf("MA%d на свече %d должна быть рассчитана", w, w-1)
		}
	}

	// Среднее последних 5 значений растущей на 1 серии
	want := sets[99].Close - 2
	if got := sets[99].MAAt(5); math.Abs(got-want) > 1e-9 {
		t.Errorf("MA5 = %f, ожидалось %f", got, want)
	}
}

func TestMAWindowLongerThanHistory(t *testing.T) {
	calc := NewCalculator(testConfig())
	sets := calc.Calculate(makeCandles(risingCloses(30), 1000))

	for i := range sets {
		if !math.IsNaN(sets[i].MAAt(60)) {
			t.Fatalf("MA60 при 30 свечах должна быть недоступна везде, свеча %d", i)
		}
	}
}

func TestRSIRange(t *testing.T) {
	calc := NewCalculator(testConfig())
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5)
	}
	sets := calc.Calculate(makeCandles(closes, 1000))

	if !math.IsNaN(sets[0].RSIAt(6)) {
		t.Error("RSI первой свечи должен быть недоступен")
	}
	for i := 1; i < len(sets); i++ {
		v := sets[i].RSIAt(6)
		if v < 0 || v > 100 {
			t.Fatalf("RSI вне диапазона [0,100]: %f на свече %d", v, i)
		}
	}
}

// RSI инвариантен к мультипликативному масштабу цен
func TestRSIScaleInvariance(t *testing.T) {
	calc := NewCalculator(testConfig())
	closes := make([]float64, 80)
	scaled := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + 7*math.Sin(float64(i)/3)
		scaled[i] = closes[i] * 1000
	}
	a := calc.Calculate(makeCandles(closes, 1000))
	b := calc.Calculate(makeCandles(scaled, 1000))

	for i := 1; i < len(a); i++ {
		if math.Abs(a[i].RSIAt(14)-b[i].RSIAt(14)) > 1e-3 {
			t.Fatalf("RSI зависит от масштаба цен на свече %d: %f != %f",
				i, a[i].RSIAt(14), b[i].RSIAt(14))
		}
	}
}

func TestATRFirstUnavailable(t *testing.T) {
	calc := NewCalculator(testConfig())
	sets := calc.Calculate(makeCandles(risingCloses(50), 1000))

	if !math.IsNaN(sets[0].ATR) {
		t.Error("ATR первой свечи должен быть недоступен")
	}
	for i := 1; i < len(sets); i++ {
		if math.IsNaN(sets[i].ATR) || sets[i].ATR <= 0 {
			t.Fatalf("ATR на свече %d должен быть положителен, получено %f", i, sets[i].ATR)
		}
	}
}

func TestVolumeRatioWarmup(t *testing.T) {
	calc := NewCalculator(testConfig())
	sets := calc.Calculate(makeCandles(risingCloses(40), 1000))

	for i := 0; i < volumeWindow-1; i++ {
		if !math.IsNaN(sets[i].VolumeRatio) {
			t.Errorf("volume ratio на свече %d должен быть недоступен", i)
		}
	}
	// Постоянный объем дает отношение ровно 1
	for i := volumeWindow - 1; i < len(sets); i++ {
		if math.Abs(sets[i].VolumeRatio-1) > 1e-9 {
			t.Fatalf("volume ratio при постоянном объеме = %f на свече %d", sets[i].VolumeRatio, i)
		}
	}
}

// Значение в момент t не должно зависеть от последующих свечей
func TestNoLookahead(t *testing.T) {
	calc := NewCalculator(testConfig())
	closes := make([]float64, 90)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/4) + float64(i)*0.1
	}
	full := calc.Calculate(makeCandles(closes, 1000))
	prefix := calc.Calculate(makeCandles(closes[:60], 1000))

	for i := 0; i < 60; i++ {
		checks := map[string][2]float64{
			"MA20":      {full[i].MAAt(20), prefix[i].MAAt(20)},
			"EMA12":     {full[i].EMAAt(12), prefix[i].EMAAt(12)},
			"RSI14":     {full[i].RSIAt(14), prefix[i].RSIAt(14)},
			"ATR":       {full[i].ATR, prefix[i].ATR},
			"MACD hist": {full[i].MACD.Histogram, prefix[i].MACD.Histogram},
		}
		for name, pair := range checks {
			a, b := pair[0], pair[1]
			if math.IsNaN(a) != math.IsNaN(b) {
				t.Fatalf("%s на свече %d: доступность зависит от будущих свечей", name, i)
			}
			if !math.IsNaN(a) && math.Abs(a-b) > 1e-9 {
				t.Fatalf("%s на свече %d зависит от будущих свечей: %f != %f", name, i, a, b)
			}
		}
	}
}

func TestEMASeededWithFirstValue(t *testing.T) {
	calc := NewCalculator(testConfig())
	sets := calc.Calculate(makeCandles([]float64{50, 60}, 1000))

	if got := sets[0].EMAAt(12); got != 50 {
		t.Errorf("EMA первой свечи должна равняться первому close, получено %f", got)
	}
	// alpha = 2/13
	want := 50 + (60-50)*2.0/13.0
	if got := sets[1].EMAAt(12); math.Abs(got-want) > 1e-9 {
		t.Errorf("EMA второй свечи = %f, ожидалось %f", got, want)
	}
}
