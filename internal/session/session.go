package session

import (
	"math"
	"sync"
	"time"

	"github.com/skalibog/bptb/pkg/models"
)

// Aggregator накапливает статистику торговой сессии: распределение
// сигналов, экстремумы цены, счетчики позиций и журнал закрытых
// сделок. Только читает то, что произвели движок и скорер; его сбой
// не должен влиять на торговые решения.
type Aggregator struct {
	mu            sync.Mutex
	symbol        string
	lastN         int
	startedAt     time.Time
	signalCounts  map[models.SignalKind]int
	totalSignals  int
	priceLow      float64
	priceHigh     float64
	opened        int
	trades        []models.ClosedTrade
	recentSignals []models.Signal
}

// New создает агрегатор сессии
func New(symbol string, lastN int) *Aggregator {
	return &Aggregator{
		symbol:       symbol,
		lastN:        lastN,
		startedAt:    time.Now(),
		signalCounts: make(map[models.SignalKind]int),
		priceLow:     math.Inf(1),
	}
}

// RecordSignal учитывает очередной сигнал
func (a *Aggregator) RecordSignal(sig models.Signal) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.signalCounts[sig.Kind]++
	a.totalSignals++

	if sig.Price > 0 {
		if sig.Price < a.priceLow {
			a.priceLow = sig.Price
		}
		if sig.Price > a.priceHigh {
			a.priceHigh = sig.Price
		}
	}

	a.recentSignals = append(a.recentSignals, sig)
	if len(a.recentSignals) > a.lastN {
		a.recentSignals = a.recentSignals[len(a.recentSignals)-a.lastN:]
	}
}

// RecordOpen учитывает открытие позиции
func (a *Aggregator) RecordOpen() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opened++
}

// RecordTrade добавляет закрытую сделку в журнал
func (a *Aggregator) RecordTrade(t models.ClosedTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, t)
}

// Report строит отчет по накопленному состоянию. Позиция и текущая
// цена передаются снаружи: агрегатор ими не владеет.
func (a *Aggregator) Report(pos models.Position, price float64) models.SessionReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts := make(map[models.SignalKind]int, len(a.signalCounts))
	for k, v := range a.signalCounts {
		counts[k] = v
	}

	var realized float64
	var winning, losing int
	for _, t := range a.trades {
		realized += t.PnLQuote
		switch {
		case t.PnLQuote > 0:
			winning++
		case t.PnLQuote < 0:
			losing++
		}
	}

	winRate := 0.0
	if len(a.trades) > 0 {
		winRate = float64(winning) / float64(len(a.trades)) * 100
	}

	priceLow := a.priceLow
	if math.IsInf(priceLow, 1) {
		priceLow = 0
	}

	recentTrades := a.trades
	if len(recentTrades) > a.lastN {
		recentTrades = recentTrades[len(recentTrades)-a.lastN:]
	}

	return models.SessionReport{
		GeneratedAt:   time.Now(),
		StartedAt:     a.startedAt,
		Symbol:        a.symbol,
		SignalCounts:  counts,
		TotalSignals:  a.totalSignals,
		PriceLow:      priceLow,
		PriceHigh:     a.priceHigh,
		Opened:        a.opened,
		Closed:        len(a.trades),
		Position:      pos,
		CurrentPrice:  price,
		UnrealizedPnL: pos.UnrealizedPnL(price),
		RealizedQuote: realized,
		WinningTrades: winning,
		LosingTrades:  losing,
		WinRate:       winRate,
		RecentTrades:  append([]models.ClosedTrade(nil), recentTrades...),
		RecentSignals: append([]models.Signal(nil), a.recentSignals...),
	}
}
