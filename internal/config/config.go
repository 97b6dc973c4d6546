package config

import (
	"fmt"
	"os"

	"github.com/skalibog/bptb/pkg/logger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config представляет полную конфигурацию приложения
type Config struct {
	Binance    BinanceConfig    `yaml:"binance"`
	Trading    TradingConfig    `yaml:"trading"`
	Risk       RiskConfig       `yaml:"risk"`
	Pyramid    PyramidConfig    `yaml:"pyramid"`
	Contrarian ContrarianConfig `yaml:"contrarian"`
	Session    SessionConfig    `yaml:"session"`
	Storage    StorageConfig    `yaml:"storage"`
	UI         UIConfig         `yaml:"ui"`
}

// BinanceConfig содержит настройки подключения к Binance
type BinanceConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
	Paper     bool   `yaml:"paper"` // симуляция ордеров без отправки на биржу
}

// TradingConfig содержит настройки торговли
type TradingConfig struct {
	Symbol          string  `yaml:"symbol"`
	Interval        string  `yaml:"interval"`
	TradeAmount     float64 `yaml:"trade_amount"`     // базовый размер лота
	EntryConfidence int     `yaml:"entry_confidence"` // минимальная уверенность для входа, %
	PollSeconds     int     `yaml:"poll_seconds"`
	Lookback        int     `yaml:"lookback"` // сколько свечей запрашивать на тик
}

// RiskConfig параметры стоп-лосса и тейк-профита
type RiskConfig struct {
	StopLossPercent   float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
}

// PyramidConfig параметры докупки по тренду
type PyramidConfig struct {
	MaxLevels   int     `yaml:"max_levels"`
	StepPercent float64 `yaml:"step_percent"`
}

// ContrarianConfig параметры контртрендовых входов
type ContrarianConfig struct {
	PullbackPercent float64 `yaml:"pullback_percent"`
}

// SessionConfig параметры периодической отчетности
type SessionConfig struct {
	ReportIntervalMinutes int `yaml:"report_interval_minutes"`
	LastN                 int `yaml:"last_n"` // сколько последних сигналов/сделок включать в отчет
}

// StorageConfig настройки хранения данных
type StorageConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"organization"`
	Bucket       string `yaml:"bucket"`
}

// UIConfig настройки пользовательского интерфейса
type UIConfig struct {
	RefreshRate int `yaml:"refresh_rate_ms"`
}

// Load загружает конфигурацию из файла и подставляет умолчания
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
	}

	config.applyDefaults()

	logger.Info("Загружена конфигурация",
		zap.String("path", path),
		zap.String("symbol", config.Trading.Symbol),
		zap.String("interval", config.Trading.Interval),
		zap.Bool("paper", config.Binance.Paper))
	return &config, nil
}

// applyDefaults подставляет умолчания для незаполненных полей
func (c *Config) applyDefaults() {
	if c.Trading.Symbol == "" {
		c.Trading.Symbol = "BTCUSDT"
	}
	if c.Trading.Interval == "" {
		c.Trading.Interval = "1h"
	}
	if c.Trading.TradeAmount == 0 {
		c.Trading.TradeAmount = 0.001
	}
	if c.Trading.EntryConfidence == 0 {
		c.Trading.EntryConfidence = 60
	}
	if c.Trading.PollSeconds == 0 {
		c.Trading.PollSeconds = 300
	}
	if c.Trading.Lookback == 0 {
		c.Trading.Lookback = 100
	}
	if c.Risk.StopLossPercent == 0 {
		c.Risk.StopLossPercent = 2.0
	}
	if c.Risk.TakeProfitPercent == 0 {
		c.Risk.TakeProfitPercent = 4.0
	}
	if c.Pyramid.MaxLevels == 0 {
		c.Pyramid.MaxLevels = 3
	}
	if c.Pyramid.StepPercent == 0 {
		c.Pyramid.StepPercent = 1.5
	}
	if c.Contrarian.PullbackPercent == 0 {
		c.Contrarian.PullbackPercent = 1.0
	}
	if c.Session.ReportIntervalMinutes == 0 {
		c.Session.ReportIntervalMinutes = 240
	}
	if c.Session.LastN == 0 {
		c.Session.LastN = 10
	}
	if c.UI.RefreshRate == 0 {
		c.UI.RefreshRate = 1000
	}
}

// Validate проверяет конфигурацию. Ошибка здесь фатальна на старте,
// в рантайме конфигурация не перепроверяется.
func (c *Config) Validate() error {
	if c.Trading.TradeAmount <= 0 {
		return fmt.Errorf("размер сделки должен быть положительным: %v", c.Trading.TradeAmount)
	}
	if c.Trading.EntryConfidence < 0 || c.Trading.EntryConfidence > 100 {
		return fmt.Errorf("порог уверенности должен быть в диапазоне 0-100: %d", c.Trading.EntryConfidence)
	}
	if c.Trading.PollSeconds <= 0 {
		return fmt.Errorf("интервал опроса должен быть положительным: %d", c.Trading.PollSeconds)
	}
	if c.Trading.Lookback < 60 {
		return fmt.Errorf("глубина выборки должна быть не меньше 60 свечей: %d", c.Trading.Lookback)
	}
	if c.Risk.StopLossPercent <= 0 {
		return fmt.Errorf("стоп-лосс должен быть положительным: %v", c.Risk.StopLossPercent)
	}
	if c.Risk.TakeProfitPercent <= 0 {
		return fmt.Errorf("тейк-профит должен быть положительным: %v", c.Risk.TakeProfitPercent)
	}
	if c.Pyramid.MaxLevels < 0 {
		return fmt.Errorf("число уровней пирамиды не может быть отрицательным: %d", c.Pyramid.MaxLevels)
	}
	if c.Pyramid.StepPercent <= 0 {
		return fmt.Errorf("шаг пирамиды должен быть положительным: %v", c.Pyramid.StepPercent)
	}
	if c.Contrarian.PullbackPercent <= 0 {
		return fmt.Errorf("порог отката должен быть положительным: %v", c.Contrarian.PullbackPercent)
	}
	if c.Session.ReportIntervalMinutes <= 0 {
		return fmt.Errorf("интервал отчетов должен быть положительным: %d", c.Session.ReportIntervalMinutes)
	}
	return nil
}
