package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/skalibog/dstrade/pkg/logger"
	"go.uber.org/zap"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance   BinanceConfig   `yaml:"binance"`
	Trading   TradingConfig   `yaml:"trading"`
	Indicator IndicatorConfig `yaml:"indicators"`
	Risk      RiskConfig      `yaml:"risk"`
	Ai        AiConfig        `yaml:"ai"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Storage   StorageConfig   `yaml:"storage"`
	UI        UIConfig        `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	// Provider источник свечей: binance или synthetic
	Provider      string   `yaml:"provider"`
	Symbols       []string `yaml:"symbols"`
	Intervals     []string `yaml:"intervals"`
	BaseInterval  string   `yaml:"base_interval"`
	HistoryLimit  int      `yaml:"history_limit"`
	AccountEquity float64  `yaml:"account_equity"`
}

// IndicatorConfig настройки расчета индикаторов
type IndicatorConfig struct {
	MAWindows  []int `yaml:"ma_windows"`
	EMAWindows []int `yaml:"ema_windows"`
	MACDFast   int   `yaml:"macd_fast"`
	MACDSlow   int   `yaml:"macd_slow"`
	MACDSignal int   `yaml:"macd_signal"`
	RSIWindows []int `yaml:"rsi_windows"`
	ATRWindow  int   `yaml:"atr_window"`
}

// FastMA быстрое окно MA для оценки сигнала
func (c IndicatorConfig) FastMA() int { return c.MAWindows[0] }

// SlowMA медленное окно MA
func (c IndicatorConfig) SlowMA() int { return c.MAWindows[1] }

// LongMA долгосрочное окно MA
func (c IndicatorConfig) LongMA() int { return c.MAWindows[len(c.MAWindows)-1] }

// FastEMA быстрое окно EMA
func (c IndicatorConfig) FastEMA() int { return c.EMAWindows[0] }

// SlowEMA медленное окно EMA
func (c IndicatorConfig) SlowEMA() int { return c.EMAWindows[len(c.EMAWindows)-1] }

// ShortRSI короткое окно RSI
func (c IndicatorConfig) ShortRSI() int { return c.RSIWindows[0] }

// RiskConfig настройки риска и сайзинга
type RiskConfig struct {
	Leverage          float64 `yaml:"leverage"`
	RiskPerTrade      float64 `yaml:"risk_per_trade"`
	TakeProfitPct     float64 `yaml:"take_profit_pct"`
	StopLossPct       float64 `yaml:"stop_loss_pct"`
	UseATRTargets     bool    `yaml:"use_atr_targets"`
	ATRTakeProfitMult float64 `yaml:"atr_take_profit_mult"`
	ATRStopLossMult   float64 `yaml:"atr_stop_loss_mult"`
	FeeRate           float64 `yaml:"fee_rate"`
	// ConfidenceBuckets дискретные уровни уверенности по возрастанию
	ConfidenceBuckets   []float64 `yaml:"confidence_buckets"`
	MaxPositionMinutes  int       `yaml:"max_position_minutes"`
	ForcedCloseBufferMin int      `yaml:"forced_close_buffer_minutes"`
	// SessionEnd время конца сессии в формате "15:04" (UTC)
	SessionEnd string `yaml:"session_end"`
}

// MinConfidence нижний дискретный уровень уверенности
func (c RiskConfig) MinConfidence() float64 { return c.ConfidenceBuckets[0] }

// MaxConfidence верхний дискретный уровень уверенности
func (c RiskConfig) MaxConfidence() float64 {
	return c.ConfidenceBuckets[len(c.ConfidenceBuckets)-1]
}

// AiConfig настройки AI-оракула
type AiConfig struct {
	// Provider реализация оракула: deepseek или synthetic
	Provider       string `yaml:"provider"`
	APIURL         string `yaml:"api_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RetryAttempts  int    `yaml:"retry_attempts"`
}

// SchedulerConfig периоды циклов оркестратора
type SchedulerConfig struct {
	DataPullSeconds     int `yaml:"data_pull_seconds"`
	MinuteReviewSeconds int `yaml:"minute_review_seconds"`
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	Type         string `yaml:"type"`
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	Enabled     bool `yaml:"enabled"`
	RefreshRate int  `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла и заполняет значения по умолчанию
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}
	config.fillDefaults()

	logger.Debug("Загружена конфигурация", zap.String("path", path))
	logger.Info("Загружена конфигурация", zap.Any("symbols", config.Trading.Symbols))
	return config, nil
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

// fillDefaults заполняет пропущенные секции значениями по умолчанию
func (c *Config) fillDefaults() {
	if c.Trading.Provider == "" {
		c.Trading.Provider = "binance"
	}
	if len(c.Trading.Symbols) == 0 {
		c.Trading.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if len(c.Trading.Intervals) == 0 {
		c.Trading.Intervals = []string{"15m", "1h", "4h"}
	}
	if c.Trading.BaseInterval == "" {
		c.Trading.BaseInterval = c.Trading.Intervals[0]
	}
	if c.Trading.HistoryLimit == 0 {
		c.Trading.HistoryLimit = 200
	}
	if c.Trading.AccountEquity == 0 {
		c.Trading.AccountEquity = 10000
	}

	if len(c.Indicator.MAWindows) == 0 {
		c.Indicator.MAWindows = []int{5, 20, 60}
	}
	if len(c.Indicator.EMAWindows) == 0 {
		c.Indicator.EMAWindows = []int{12, 26}
	}
	if c.Indicator.MACDFast == 0 {
		c.Indicator.MACDFast = 12
	}
	if c.Indicator.MACDSlow == 0 {
		c.Indicator.MACDSlow = 26
	}
	if c.Indicator.MACDSignal == 0 {
		c.Indicator.MACDSignal = 9
	}
	if len(c.Indicator.RSIWindows) == 0 {
		c.Indicator.RSIWindows = []int{6, 14}
	}
	if c.Indicator.ATRWindow == 0 {
		c.Indicator.ATRWindow = 14
	}

	if c.Risk.Leverage == 0 {
		c.Risk.Leverage = 5.0
	}
	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = 0.02
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 0.06
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 0.03
	}
	if c.Risk.ATRTakeProfitMult == 0 {
		c.Risk.ATRTakeProfitMult = 3.0
	}
	if c.Risk.ATRStopLossMult == 0 {
		c.Risk.ATRStopLossMult = 1.5
	}
	if c.Risk.FeeRate == 0 {
		c.Risk.FeeRate = 0.0005
	}
	if len(c.Risk.ConfidenceBuckets) == 0 {
		c.Risk.ConfidenceBuckets = []float64{0.05, 0.08, 0.10, 0.12, 0.15}
	}
	if c.Risk.MaxPositionMinutes == 0 {
		c.Risk.MaxPositionMinutes = 120
	}
	if c.Risk.ForcedCloseBufferMin == 0 {
		c.Risk.ForcedCloseBufferMin = 15
	}
	if c.Risk.SessionEnd == "" {
		c.Risk.SessionEnd = "23:45"
	}

	if c.Ai.Provider == "" {
		c.Ai.Provider = "deepseek"
	}
	if c.Ai.APIURL == "" {
		c.Ai.APIURL = "https://api.deepseek.com/v1/chat/completions"
	}
	if c.Ai.Model == "" {
		c.Ai.Model = "deepseek-chat"
	}
	if c.Ai.TimeoutSeconds == 0 {
		c.Ai.TimeoutSeconds = 15
	}
	if c.Ai.RetryAttempts == 0 {
		c.Ai.RetryAttempts = 3
	}

	if c.Scheduler.DataPullSeconds == 0 {
		c.Scheduler.DataPullSeconds = 900
	}
	if c.Scheduler.MinuteReviewSeconds == 0 {
		c.Scheduler.MinuteReviewSeconds = 60
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.UI.RefreshRate == 0 {
		c.UI.RefreshRate = 1000
	}
}
