package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/skalibog/dstrade/internal/config"
	"github.com/skalibog/dstrade/pkg/models"
)

const (
	// volumeWindow окно скользящего среднего объема для volume ratio
	volumeWindow = 20
	// rsiEpsilon защита от деления на ноль в расчете RS
	rsiEpsilon = 1e-9
)

// Calculator рассчитывает серии индикаторов по свечам одного (символ, таймфрейм)
type Calculator struct {
	config config.IndicatorConfig
}

// NewCalculator создает новый калькулятор индикаторов
func NewCalculator(cfg config.IndicatorConfig) *Calculator {
	return &Calculator{config: cfg}
}

// Calculate строит по одному IndicatorSet на каждую свечу, выровненному по времени свечи.
// Каждое значение в момент t использует только свечи <= t. Пустой вход дает пустой выход.
func (c *Calculator) Calculate(candles []*models.Candle) []*models.IndicatorSet {
	if len(candles) == 0 {
		return nil
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, cd := range candles {
		closes[i] = cd.Close
		highs[i] = cd.High
		lows[i] = cd.Low
		volumes[i] = cd.Volume
	}

	ma := make(map[int][]float64, len(c.config.MAWindows))
	for _, w := range c.config.MAWindows {
		ma[w] = rollingMean(closes, w)
	}

	ema := make(map[int][]float64, len(c.config.EMAWindows))
	for _, w := range c.config.EMAWindows {
		ema[w] = emaSeries(closes, w)
	}

	macdLine, macdSignal, macdHist := macdSeries(closes, c.config.MACDFast, c.config.MACDSlow, c.config.MACDSignal)

	rsi := make(map[int][]float64, len(c.config.RSIWindows))
	for _, w := range c.config.RSIWindows {
		rsi[w] = rsiSeries(closes, w)
	}

	atr := atrSeries(highs, lows, closes, c.config.ATRWindow)
	volRatio := volumeRatioSeries(volumes)

	out := make([]*models.IndicatorSet, n)
	for i, cd := range candles {
		set := &models.IndicatorSet{
			Symbol:    cd.Symbol,
			Interval:  cd.Interval,
			Timestamp: cd.OpenTime,
			Close:     cd.Close,
			Volume:    cd.Volume,
			MA:        make(map[int]float64, len(ma)),
			EMA:       make(map[int]float64, len(ema)),
			MACD: models.MACD{
				Line:      macdLine[i],
				Signal:    macdSignal[i],
				Histogram: macdHist[i],
			},
			RSI:         make(map[int]float64, len(rsi)),
			ATR:         atr[i],
			VolumeRatio: volRatio[i],
		}
		for w, series := range ma {
			set.MA[w] = series[i]
		}
		for w, series := range ema {
			set.EMA[w] = series[i]
		}
		for w, series := range rsi {
			set.RSI[w] = series[i]
		}
		out[i] = set
	}
	return out
}

// rollingMean простое скользящее среднее через talib с маскировкой
// неполного начального окна в NaN
func rollingMean(values []float64, window int) []float64 {
	if window > len(values) {
		return nanSeries(len(values))
	}
	out := talib.Sma(values, window)
	for i := 0; i < window-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// emaSeries экспоненциальное среднее: alpha = 2/(window+1), затравка первым значением
func emaSeries(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(window) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// macdSeries линия MACD, сигнальная линия и гистограмма
func macdSeries(closes []float64, fast, slow, signalWindow int) (line, signal, hist []float64) {
	fastEMA := emaSeries(closes, fast)
	slowEMA := emaSeries(closes, slow)

	line = make([]float64, len(closes))
	for i := range closes {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	signal = emaSeries(line, signalWindow)
	hist = make([]float64, len(closes))
	for i := range closes {
		hist[i] = line[i] - signal[i]
	}
	return line, signal, hist
}

// rsiSeries RSI со сглаживанием Уайлдера: alpha = 1/window.
// Первая точка не имеет приращения и остается NaN.
func rsiSeries(closes []float64, window int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) < 2 {
		return out
	}
	alpha := 1.0 / float64(window)
	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		if i == 1 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = alpha*gain + (1-alpha)*avgGain
			avgLoss = alpha*loss + (1-alpha)*avgLoss
		}
		rs := avgGain / (avgLoss + rsiEpsilon)
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// atrSeries ATR: истинный диапазон, сглаженный экспоненциально с alpha = 1/window.
// У первой свечи нет предыдущего закрытия, ATR там не определен.
func atrSeries(highs, lows, closes []float64, window int) []float64 {
	out := nanSeries(len(closes))
	if len(closes) < 2 {
		return out
	}
	alpha := 1.0 / float64(window)
	var atr float64
	for i := 1; i < len(closes); i++ {
		prevClose := closes[i-1]
		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-prevClose), math.Abs(lows[i]-prevClose)))
		if i == 1 {
			atr = tr
		} else {
			atr = alpha*tr + (1-alpha)*atr
		}
		out[i] = atr
	}
	return out
}

// volumeRatioSeries отношение объема к скользящему среднему объема за volumeWindow периодов
func volumeRatioSeries(volumes []float64) []float64 {
	mean := rollingMean(volumes, volumeWindow)
	out := make([]float64, len(volumes))
	for i := range volumes {
		if math.IsNaN(mean[i]) || mean[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = volumes[i] / mean[i]
	}
	return out
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
