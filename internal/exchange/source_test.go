package exchange

import (
	"context"
	"testing"

	"github.com/skalibog/dstrade/internal/config"
)

func TestNewCandleSourceUnknownProvider(t *testing.T) {
	_, err := NewCandleSource(config.TradingConfig{Provider: "csv"}, config.BinanceConfig{})
	if err == nil {
		t.Fatal("неизвестный провайдер должен давать ошибку")
	}
}

func TestSyntheticSourceShape(t *testing.T) {
	source := NewSyntheticSource(42)
	candles, err := source.GetKlines(context.Background(), "BTCUSDT", "15m", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 50 {
		t.Fatalf("ожидалось 50 свечей, получено %d", len(candles))
	}

	for i, c := range candles {
		if c.High < c.Open || c.High < c.Close {
			t.Fatalf("свеча %d: high %f ниже open/close", i, c.High)
		}
		if c.Low > c.Open || c.Low > c.Close {
			t.Fatalf("свеча %d: low %f выше open/close", i, c.Low)
		}
		if c.Volume <= 0 {
			t.Fatalf("свеча %d: объем %f", i, c.Volume)
		}
		if i > 0 {
			if !c.OpenTime.After(candles[i-1].OpenTime) {
				t.Fatalf("свеча %d: время не возрастает", i)
			}
			if c.Open != candles[i-1].Close {
				t.Fatalf("свеча %d: open %f != close предыдущей %f", i, c.Open, candles[i-1].Close)
			}
		}
	}
}

// Последняя цена символа переживает вызовы: следующая серия продолжает предыдущую
func TestSyntheticSourceContinuity(t *testing.T) {
	source := NewSyntheticSource(7)
	ctx := context.Background()

	first, err := source.GetKlines(ctx, "ETHUSDT", "15m", 10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := source.GetKlines(ctx, "ETHUSDT", "15m", 10)
	if err != nil {
		t.Fatal(err)
	}

	if second[0].Open != first[len(first)-1].Close {
		t.Errorf("вторая серия должна продолжать первую: %f != %f",
			second[0].Open, first[len(first)-1].Close)
	}
}
