package backtest

import (
	"fmt"
	"strings"

	"github.com/skalibog/bptb/internal/analysis/indicators"
	"github.com/skalibog/bptb/internal/analysis/signal"
	"github.com/skalibog/bptb/internal/config"
	"github.com/skalibog/bptb/internal/engine"
	"github.com/skalibog/bptb/internal/session"
	"github.com/skalibog/bptb/pkg/models"
)

// Result итог прогона стратегии по истории
type Result struct {
	Report        models.SessionReport
	FinalPosition models.Position
	Signals       []models.Signal
}

// Run прогоняет стратегию по историческим свечам: на каждом шаге
// скорер видит только свечи до текущей включительно, ордера считаются
// исполненными по цене закрытия. Движок и скорер те же, что в живой
// торговле, отличается только источник данных.
func Run(cfg *config.Config, candles []*models.Candle) Result {
	eng := engine.New(engine.Config{
		TradeAmount:        cfg.Trading.TradeAmount,
		EntryConfidence:    cfg.Trading.EntryConfidence,
		StopLossPercent:    cfg.Risk.StopLossPercent,
		TakeProfitPercent:  cfg.Risk.TakeProfitPercent,
		MaxPyramidLevels:   cfg.Pyramid.MaxLevels,
		PyramidStepPercent: cfg.Pyramid.StepPercent,
		PullbackPercent:    cfg.Contrarian.PullbackPercent,
	})

	agg := session.New(cfg.Trading.Symbol, cfg.Session.LastN)
	pos := models.FlatPosition()

	var signals []models.Signal
	var lastPrice float64

	for i := range candles {
		window := candles[:i+1]
		if len(window) > cfg.Trading.Lookback {
			window = window[len(window)-cfg.Trading.Lookback:]
		}

		frame := indicators.Build(window)
		sig := signal.Generate(cfg.Trading.Symbol, candles[i].CloseTime, frame)
		signals = append(signals, sig)
		agg.RecordSignal(sig)
		lastPrice = sig.Price

		next, actions := eng.Step(pos, sig)
		for _, a := range actions {
			if a.Opened {
				agg.RecordOpen()
			}
			if a.Trade != nil {
				agg.RecordTrade(*a.Trade)
			}
		}
		pos = next
	}

	return Result{
		Report:        agg.Report(pos, lastPrice),
		FinalPosition: pos,
		Signals:       signals,
	}
}

// Summary возвращает текстовую сводку прогона для вывода в консоль
func (r Result) Summary() string {
	rep := r.Report

	var b strings.Builder
	fmt.Fprintf(&b, "Бэктест %s\n", rep.Symbol)
	fmt.Fprintf(&b, "Сигналов: %d (BUY: %d, SELL: %d, HOLD: %d)\n",
		rep.TotalSignals,
		rep.SignalCounts[models.SignalBuy],
		rep.SignalCounts[models.SignalSell],
		rep.SignalCounts[models.SignalHold])
	fmt.Fprintf(&b, "Диапазон цены: %.2f - %.2f\n", rep.PriceLow, rep.PriceHigh)
	fmt.Fprintf(&b, "Открыто позиций: %d, закрыто сделок: %d\n", rep.Opened, rep.Closed)
	fmt.Fprintf(&b, "Реализованный PnL: %.4f (win rate %.1f%%)\n", rep.RealizedQuote, rep.WinRate)

	if r.FinalPosition.State != models.PositionNone {
		fmt.Fprintf(&b, "Открытая позиция: %s, вход %.2f, объем %.6f, PnL %.2f%%\n",
			r.FinalPosition.State,
			r.FinalPosition.EntryPrice,
			r.FinalPosition.Size,
			rep.UnrealizedPnL)
	}

	for _, t := range rep.RecentTrades {
		fmt.Fprintf(&b, "  %s %s: вход %.2f выход %.2f PnL %.2f%%\n",
			t.Timestamp.Format("2006-01-02 15:04"),
			t.Type, t.EntryPrice, t.ExitPrice, t.PnLPercent)
	}

	return b.String()
}
