package engine

import (
	"math"
	"testing"
	"time"

	"github.com/skalibog/bptb/pkg/models"
)

func testConfig() Config {
	return Config{
		TradeAmount:        0.001,
		EntryConfidence:    60,
		StopLossPercent:    3.0,
		TakeProfitPercent:  4.0,
		MaxPyramidLevels:   3,
		PyramidStepPercent: 1.5,
		PullbackPercent:    1.0,
	}
}

func tick(kind models.SignalKind, confidence int, price float64, main models.MainTrend) models.Signal {
	return models.Signal{
		Symbol:     "BTCUSDT",
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Kind:       kind,
		Confidence: confidence,
		MainTrend:  main,
		Price:      price,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestOpenLongOnConfidentBuy(t *testing.T) {
	e := New(testConfig())

	pos, actions := e.Step(models.FlatPosition(), tick(models.SignalBuy, 75, 100, models.MainTrendNeutral))

	if pos.State != models.PositionLong {
		t.Fatalf("состояние %s, ожидался LONG", pos.State)
	}
	if !almostEqual(pos.EntryPrice, 100) || !almostEqual(pos.Size, 0.001) {
		t.Errorf("вход %v/%v, ожидалось 100/0.001", pos.EntryPrice, pos.Size)
	}
	if len(actions) != 1 || !actions[0].Opened || actions[0].Side != models.OrderSideBuy {
		t.Errorf("неожиданные действия: %+v", actions)
	}
}

func TestHoldBelowConfidenceThreshold(t *testing.T) {
	e := New(testConfig())

	pos, actions := e.Step(models.FlatPosition(), tick(models.SignalBuy, 45, 100, models.MainTrendNeutral))

	if pos.State != models.PositionNone || len(actions) != 0 {
		t.Errorf("слабый сигнал не должен открывать позицию: %s, %d действий", pos.State, len(actions))
	}
}

func TestStopLossBeatsSignal(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.001

	// Убыток 3.5% при стопе 3.0: закрытие обязано случиться даже на
	// сигнале BUY, который в иных условиях докупал бы
	next, actions := e.Step(pos, tick(models.SignalBuy, 90, 96.5, models.MainTrendStrongBullish))

	if next.State != models.PositionNone {
		t.Fatalf("состояние %s, ожидался сброс в NONE", next.State)
	}
	if len(actions) != 1 || actions[0].Trade == nil {
		t.Fatalf("ожидалось одно закрывающее действие: %+v", actions)
	}
	trade := actions[0].Trade
	if trade.Type != models.TradeStopLossLong {
		t.Errorf("тип сделки %s, ожидался STOP_LOSS_LONG", trade.Type)
	}
	if !almostEqual(trade.PnLPercent, -3.5) {
		t.Errorf("PnL %v%%, ожидалось -3.5%%", trade.PnLPercent)
	}
}

func TestTakeProfitClosesLong(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.001

	next, actions := e.Step(pos, tick(models.SignalHold, 0, 104.5, models.MainTrendNeutral))

	if next.State != models.PositionNone {
		t.Fatalf("состояние %s, ожидался сброс в NONE", next.State)
	}
	if len(actions) != 1 || actions[0].Trade == nil || actions[0].Trade.Type != models.TradeTakeProfitLong {
		t.Fatalf("ожидался тейк-профит: %+v", actions)
	}
	if !almostEqual(actions[0].Trade.PnLPercent, 4.5) {
		t.Errorf("PnL %v%%, ожидалось 4.5%%", actions[0].Trade.PnLPercent)
	}
}

func TestStopLossShortOnPriceRise(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionShort
	pos.EntryPrice = 100
	pos.Size = 0.001

	next, actions := e.Step(pos, tick(models.SignalHold, 0, 103.5, models.MainTrendNeutral))

	if next.State != models.PositionNone {
		t.Fatalf("состояние %s, ожидался сброс в NONE", next.State)
	}
	if len(actions) != 1 || actions[0].Trade == nil || actions[0].Trade.Type != models.TradeStopLossShort {
		t.Fatalf("ожидался стоп-лосс шорта: %+v", actions)
	}
	if actions[0].Side != models.OrderSideBuy {
		t.Errorf("закрытие шорта должно выкупать базу, сторона %s", actions[0].Side)
	}
}

func TestNoSameTickFlip(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.001

	// Противоположный сигнал закрывает LONG, но SHORT в том же тике
	// не открывается
	next, actions := e.Step(pos, tick(models.SignalSell, 80, 100.5, models.MainTrendNeutral))

	if next.State != models.PositionNone {
		t.Fatalf("состояние %s, ожидался NONE без переворота", next.State)
	}
	if len(actions) != 1 {
		t.Fatalf("ожидалось ровно одно действие, получено %d", len(actions))
	}
	if actions[0].Opened {
		t.Error("в тике закрытия не должно быть открытия")
	}
	if actions[0].Trade == nil || actions[0].Trade.Type != models.TradeCloseLong {
		t.Errorf("ожидалось CLOSE_LONG: %+v", actions[0].Trade)
	}
}

func TestResetAfterClose(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.002
	pos.PyramidLevels = []models.PyramidLevel{{Price: 101, Size: 0.001}}
	pos.LastPyramidPrice = 101

	next, _ := e.Step(pos, tick(models.SignalSell, 80, 100.5, models.MainTrendNeutral))

	if next.State != models.PositionNone || next.EntryPrice != 0 || next.Size != 0 {
		t.Errorf("позиция не сброшена: %+v", next)
	}
	if len(next.PyramidLevels) != 0 || next.LastPyramidPrice != 0 {
		t.Errorf("уровни пирамиды не сброшены: %+v", next)
	}
	if !math.IsInf(next.LocalLow, 1) {
		t.Errorf("LocalLow после сброса %v, ожидалось +Inf", next.LocalLow)
	}
}

func TestPyramidAddsLevelAndRecomputesEntry(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.001

	// Рост 1.6% от входа при шаге 1.5%, сигнал и основной тренд согласны
	next, actions := e.Step(pos, tick(models.SignalBuy, 75, 101.6, models.MainTrendBullish))

	if len(next.PyramidLevels) != 1 {
		t.Fatalf("уровней пирамиды %d, ожидался 1", len(next.PyramidLevels))
	}
	if !almostEqual(next.Size, 0.002) {
		t.Errorf("объем %v, ожидалось 0.002", next.Size)
	}
	if !almostEqual(next.EntryPrice, 100.8) {
		t.Errorf("средневзвешенный вход %v, ожидалось 100.8", next.EntryPrice)
	}
	if !almostEqual(next.LastPyramidPrice, 101.6) {
		t.Errorf("цена последней докупки %v, ожидалось 101.6", next.LastPyramidPrice)
	}
	if len(actions) != 1 || actions[0].Opened || actions[0].Side != models.OrderSideBuy {
		t.Errorf("докупка должна быть единственным действием без флага открытия: %+v", actions)
	}
}

func TestPyramidStepMeasuredFromLastLevel(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.002
	pos.PyramidLevels = []models.PyramidLevel{{Price: 101.6, Size: 0.001}}
	pos.LastPyramidPrice = 101.6

	// От входа рост достаточный, но от последней докупки только 0.4%
	next, actions := e.Step(pos, tick(models.SignalBuy, 75, 102, models.MainTrendBullish))

	if len(next.PyramidLevels) != 1 || len(actions) != 0 {
		t.Errorf("докупка раньше следующего шага: %d уровней, %d действий",
			len(next.PyramidLevels), len(actions))
	}
}

func TestPyramidRespectsLevelCap(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.004
	pos.PyramidLevels = []models.PyramidLevel{
		{Price: 101.6, Size: 0.001},
		{Price: 103.2, Size: 0.001},
		{Price: 104.9, Size: 0.001},
	}
	pos.LastPyramidPrice = 103.9 // вход уже усреднен выше, тейк не срабатывает

	next, actions := e.Step(pos, tick(models.SignalBuy, 75, 103.5, models.MainTrendStrongBullish))

	if len(next.PyramidLevels) != 3 || len(actions) != 0 {
		t.Errorf("превышен лимит уровней пирамиды: %d уровней, %d действий",
			len(next.PyramidLevels), len(actions))
	}
}

func TestPyramidRequiresTrendConfirmation(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.State = models.PositionLong
	pos.EntryPrice = 100
	pos.Size = 0.001

	next, actions := e.Step(pos, tick(models.SignalBuy, 75, 101.6, models.MainTrendNeutral))

	if len(next.PyramidLevels) != 0 || len(actions) != 0 {
		t.Errorf("докупка без подтверждения основного тренда: %+v", actions)
	}
}

func TestContrarianLongOnPullback(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.LocalHigh = 100

	sig := tick(models.SignalHold, 0, 98.9, models.MainTrendBullish)
	sig.OBV.Trend = models.TrendBullish

	next, actions := e.Step(pos, sig)

	if next.State != models.PositionLong {
		t.Fatalf("состояние %s, ожидался контртрендовый LONG", next.State)
	}
	if len(actions) != 1 || !actions[0].Opened {
		t.Fatalf("ожидалось одно открывающее действие: %+v", actions)
	}
}

func TestContrarianLongNeedsOBVConfirmation(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.LocalHigh = 100

	sig := tick(models.SignalHold, 0, 98.9, models.MainTrendBullish)
	sig.OBV.Trend = models.TrendNeutral

	next, actions := e.Step(pos, sig)

	if next.State != models.PositionNone || len(actions) != 0 {
		t.Errorf("контртрендовый вход без подтверждения OBV: %s", next.State)
	}
}

func TestContrarianShortOnBounce(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.LocalLow = 100

	sig := tick(models.SignalHold, 0, 101.1, models.MainTrendBearish)
	sig.OBV.Trend = models.TrendBearish

	next, actions := e.Step(pos, sig)

	if next.State != models.PositionShort {
		t.Fatalf("состояние %s, ожидался контртрендовый SHORT", next.State)
	}
	if len(actions) != 1 || actions[0].Side != models.OrderSideSell {
		t.Fatalf("ожидалась продажа: %+v", actions)
	}
}

func TestContrarianNoEntryWithoutTrackedLow(t *testing.T) {
	e := New(testConfig())

	// Свежая позиция: LocalLow еще не отслежен (+Inf)
	sig := tick(models.SignalHold, 0, 101.1, models.MainTrendBearish)
	sig.OBV.Trend = models.TrendBearish

	next, actions := e.Step(models.FlatPosition(), sig)

	if next.State != models.PositionNone || len(actions) != 0 {
		t.Errorf("вход без отслеженного минимума: %s", next.State)
	}
}

func TestExtremesFollowPriceOutsideTrend(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.LocalHigh = 100

	// Вне восходящего тренда максимум следует за ценой, в том числе вниз
	next, _ := e.Step(pos, tick(models.SignalHold, 0, 95, models.MainTrendNeutral))

	if !almostEqual(next.LocalHigh, 95) {
		t.Errorf("LocalHigh = %v, ожидалось сопровождение цены до 95", next.LocalHigh)
	}
}

func TestExtremesRatchetInsideTrend(t *testing.T) {
	e := New(testConfig())
	pos := models.FlatPosition()
	pos.LocalHigh = 100

	// В восходящем тренде максимум не опускается
	next, _ := e.Step(pos, tick(models.SignalHold, 0, 99.5, models.MainTrendBullish))

	if !almostEqual(next.LocalHigh, 100) {
		t.Errorf("LocalHigh = %v, ожидалось удержание 100", next.LocalHigh)
	}
}
