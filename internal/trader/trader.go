package trader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skalibog/bptb/internal/analysis/indicators"
	"github.com/skalibog/bptb/internal/analysis/signal"
	"github.com/skalibog/bptb/internal/config"
	"github.com/skalibog/bptb/internal/engine"
	"github.com/skalibog/bptb/internal/session"
	"github.com/skalibog/bptb/pkg/logger"
	"github.com/skalibog/bptb/pkg/models"
	"go.uber.org/zap"
)

// MarketClient то, что трейдеру нужно от биржи
type MarketClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*models.Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	PlaceMarketOrder(ctx context.Context, symbol string, side models.OrderSide, quantity, refPrice float64) (float64, error)
}

// SignalStore то, что трейдеру нужно от хранилища. Ошибки записи
// логируются и не прерывают торговлю.
type SignalStore interface {
	SaveSignal(ctx context.Context, signal *models.Signal) error
	SaveTrade(ctx context.Context, trade *models.ClosedTrade) error
	SaveReport(ctx context.Context, report *models.SessionReport) error
}

// Trader связывает анализ, машину состояний и исполнение ордеров.
// Позиция живет только здесь; движок получает ее копию и возвращает
// предложенный переход, который применяется после успешных ордеров.
type Trader struct {
	client   MarketClient
	store    SignalStore
	eng      *engine.Engine
	agg      *session.Aggregator
	symbol   string
	interval string
	lookback int

	mu        sync.Mutex
	pos       models.Position
	lastPrice float64
}

// New создает трейдера с плоской позицией
func New(client MarketClient, store SignalStore, cfg *config.Config) *Trader {
	eng := engine.New(engine.Config{
		TradeAmount:        cfg.Trading.TradeAmount,
		EntryConfidence:    cfg.Trading.EntryConfidence,
		StopLossPercent:    cfg.Risk.StopLossPercent,
		TakeProfitPercent:  cfg.Risk.TakeProfitPercent,
		MaxPyramidLevels:   cfg.Pyramid.MaxLevels,
		PyramidStepPercent: cfg.Pyramid.StepPercent,
		PullbackPercent:    cfg.Contrarian.PullbackPercent,
	})

	return &Trader{
		client:   client,
		store:    store,
		eng:      eng,
		agg:      session.New(cfg.Trading.Symbol, cfg.Session.LastN),
		symbol:   cfg.Trading.Symbol,
		interval: cfg.Trading.Interval,
		lookback: cfg.Trading.Lookback,
		pos:      models.FlatPosition(),
	}
}

// Tick выполняет один торговый цикл: свечи, сигнал, переход машины
// состояний, исполнение ордеров. Возвращает сигнал для отображения.
func (t *Trader) Tick(ctx context.Context) (*models.Signal, error) {
	candles, err := t.client.GetKlines(ctx, t.symbol, t.interval, t.lookback)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения данных: %w", err)
	}

	frame := indicators.Build(candles)
	sig := signal.Generate(t.symbol, time.Now(), frame)

	t.logAnalysis(sig)
	t.agg.RecordSignal(sig)

	if err := t.store.SaveSignal(ctx, &sig); err != nil {
		logger.Warn("Ошибка сохранения сигнала", zap.Error(err))
	}

	// Деградация данных: на неполной выборке машина состояний не
	// запускается, позиция остается прежней до следующего тика
	if frame.Len() < indicators.MinCandles {
		logger.Warn("Недостаточно свечей, переход позиции пропущен",
			zap.Int("candles", frame.Len()),
			zap.Int("required", indicators.MinCandles))
		return &sig, nil
	}

	t.mu.Lock()
	pos := t.pos
	t.mu.Unlock()

	next, actions := t.eng.Step(pos, sig)

	// Все ордера перехода должны пройти; при отказе переход позиции не
	// применяется, экстремумы доотслеживаются на следующем тике
	committed := next
	if err := t.execute(ctx, actions); err != nil {
		logger.Error("Переход позиции отменен из-за отказа ордера", zap.Error(err))
		committed = pos
	}

	t.mu.Lock()
	t.pos = committed
	t.lastPrice = sig.Price
	t.mu.Unlock()

	return &sig, nil
}

// execute отправляет ордера перехода и регистрирует результаты в
// агрегаторе сессии и журнале сделок
func (t *Trader) execute(ctx context.Context, actions []engine.Action) error {
	for _, a := range actions {
		fill, err := t.client.PlaceMarketOrder(ctx, t.symbol, a.Side, a.Quantity, a.Price)
		if err != nil {
			return fmt.Errorf("%s: %w", a.Note, err)
		}

		logger.Info("Торговое действие исполнено",
			zap.String("symbol", t.symbol),
			zap.String("side", string(a.Side)),
			zap.Float64("quantity", a.Quantity),
			zap.Float64("fill_price", fill),
			zap.String("note", a.Note))

		if a.Opened {
			t.agg.RecordOpen()
		}

		if a.Trade != nil {
			t.agg.RecordTrade(*a.Trade)
			if err := t.store.SaveTrade(ctx, a.Trade); err != nil {
				logger.Warn("Ошибка сохранения сделки", zap.Error(err))
			}
			logger.Info("Сделка закрыта",
				zap.String("type", string(a.Trade.Type)),
				zap.Float64("entry", a.Trade.EntryPrice),
				zap.Float64("exit", a.Trade.ExitPrice),
				zap.Float64("pnl_percent", a.Trade.PnLPercent),
				zap.Float64("pnl_quote", a.Trade.PnLQuote))
		}
	}
	return nil
}

// Report строит отчет сессии, сохраняет его и пишет сводку в лог.
// Отчет только наблюдает: на позицию и решения не влияет.
func (t *Trader) Report(ctx context.Context) models.SessionReport {
	t.mu.Lock()
	pos := t.pos
	price := t.lastPrice
	t.mu.Unlock()

	// Для нереализованного PnL берем свежую цену с биржи; при ее
	// недоступности остается цена последнего тика
	if cur, err := t.client.GetPrice(ctx, t.symbol); err == nil && cur > 0 {
		price = cur
	}

	report := t.agg.Report(pos, price)

	if err := t.store.SaveReport(ctx, &report); err != nil {
		logger.Warn("Ошибка сохранения отчета", zap.Error(err))
	}

	logger.Info("Отчет сессии",
		zap.String("symbol", report.Symbol),
		zap.Int("total_signals", report.TotalSignals),
		zap.Int("buy", report.SignalCounts[models.SignalBuy]),
		zap.Int("sell", report.SignalCounts[models.SignalSell]),
		zap.Int("hold", report.SignalCounts[models.SignalHold]),
		zap.Float64("price_low", report.PriceLow),
		zap.Float64("price_high", report.PriceHigh),
		zap.Int("opened", report.Opened),
		zap.Int("closed", report.Closed),
		zap.Float64("realized_quote", report.RealizedQuote),
		zap.Float64("win_rate", report.WinRate),
		zap.String("position", string(report.Position.State)),
		zap.Float64("unrealized_pnl", report.UnrealizedPnL))

	return report
}

// Position возвращает копию текущей позиции
func (t *Trader) Position() models.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pos
}

// logAnalysis пишет разбор сигнала в лог на каждом тике
func (t *Trader) logAnalysis(sig models.Signal) {
	logger.Info("Анализ рынка",
		zap.String("symbol", sig.Symbol),
		zap.String("signal", string(sig.Kind)),
		zap.Int("confidence", sig.Confidence),
		zap.Float64("price", sig.Price),
		zap.String("trend", string(sig.Trend)),
		zap.String("main_trend", string(sig.MainTrend)),
		zap.Float64("ma10", sig.MA10),
		zap.Float64("ma30", sig.MA30),
		zap.Float64("ma60", sig.MA60),
		zap.Float64("volume_ratio", sig.Volume.VolumeRatio),
		zap.String("obv_trend", string(sig.OBV.Trend)),
		zap.Bool("obv_divergence", sig.OBV.Divergence),
		zap.String("reasons", strings.Join(sig.Reasons, "; ")))
}
