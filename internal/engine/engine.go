package engine

import (
	"math"

	"github.com/skalibog/bptb/pkg/models"
)

// Config параметры машины состояний позиции. Заполняется один раз на
// старте из валидированной конфигурации, в рантайме не меняется.
type Config struct {
	TradeAmount        float64
	EntryConfidence    int
	StopLossPercent    float64
	TakeProfitPercent  float64
	MaxPyramidLevels   int
	PyramidStepPercent float64
	PullbackPercent    float64
}

// Action торговое намерение, которое машина состояний передает
// исполнителю ордеров. Для выходов заполнена запись журнала.
type Action struct {
	Side     models.OrderSide
	Quantity float64
	Price    float64
	Note     string
	Opened   bool                // true при открытии новой позиции
	Trade    *models.ClosedTrade // заполнено при закрытии
}

// Engine машина состояний позиции. Переходы чистые: Step получает
// позицию значением и возвращает новую вместе с торговыми намерениями,
// поэтому исполнитель может отбросить переход при отказе ордера.
type Engine struct {
	cfg Config
}

// New создает машину состояний
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Step выполняет один переход машины состояний по свежему сигналу.
// Порядок строгий: локальные экстремумы, затем стоп-лосс/тейк-профит
// (абсолютный приоритет), затем сигнальный выход, затем пирамида,
// затем входы из плоской позиции.
func (e *Engine) Step(pos models.Position, sig models.Signal) (models.Position, []Action) {
	pos = trackExtremes(pos, sig)

	// Стоп-лосс и тейк-профит проверяются на каждом тике независимо
	// от нового сигнала и раньше него
	if pos.State != models.PositionNone {
		pnl := pos.UnrealizedPnL(sig.Price)
		if pnl <= -e.cfg.StopLossPercent {
			return e.close(pos, sig, stopLossType(pos.State), "сработал стоп-лосс")
		}
		if pnl >= e.cfg.TakeProfitPercent {
			return e.close(pos, sig, takeProfitType(pos.State), "сработал тейк-профит")
		}
	}

	confident := sig.Confidence >= e.cfg.EntryConfidence

	switch pos.State {
	case models.PositionLong:
		// Противоположный сигнал закрывает позицию; SHORT в том же
		// тике не открывается, переоценка на следующем
		if sig.Kind == models.SignalSell && confident {
			return e.close(pos, sig, models.TradeCloseLong, "сигнал на продажу")
		}
		return e.tryPyramid(pos, sig)

	case models.PositionShort:
		if sig.Kind == models.SignalBuy && confident {
			return e.close(pos, sig, models.TradeCloseShort, "сигнал на покупку")
		}
		return e.tryPyramid(pos, sig)

	default:
		if sig.Kind == models.SignalBuy && confident {
			return e.open(pos, sig, models.PositionLong, "открытие LONG по сигналу")
		}
		if sig.Kind == models.SignalSell && confident {
			return e.open(pos, sig, models.PositionShort, "открытие SHORT по сигналу")
		}
		return e.tryContrarian(pos, sig)
	}
}

// tryPyramid докупает к прибыльной позиции, пока основной тренд ее
// подтверждает. Точка отсчета - цена последней докупки, для первой
// докупки - цена входа.
func (e *Engine) tryPyramid(pos models.Position, sig models.Signal) (models.Position, []Action) {
	if len(pos.PyramidLevels) >= e.cfg.MaxPyramidLevels {
		return pos, nil
	}

	ref := pos.LastPyramidPrice
	if ref == 0 {
		ref = pos.EntryPrice
	}
	if ref == 0 {
		return pos, nil
	}

	price := sig.Price
	var gain float64
	var agrees, confirmed bool
	var side models.OrderSide

	switch pos.State {
	case models.PositionLong:
		gain = (price - ref) / ref * 100
		agrees = sig.Kind == models.SignalBuy
		confirmed = sig.MainTrend.Bullish()
		side = models.OrderSideBuy
	case models.PositionShort:
		gain = (ref - price) / ref * 100
		agrees = sig.Kind == models.SignalSell
		confirmed = sig.MainTrend.Bearish()
		side = models.OrderSideSell
	default:
		return pos, nil
	}

	if gain < e.cfg.PyramidStepPercent || !agrees || !confirmed {
		return pos, nil
	}

	lot := models.PyramidLevel{Price: price, Size: e.cfg.TradeAmount}
	levels := make([]models.PyramidLevel, 0, len(pos.PyramidLevels)+1)
	levels = append(levels, pos.PyramidLevels...)
	levels = append(levels, lot)

	total := pos.Size + lot.Size
	// EntryPrice уже средневзвешенная по открытым лотам, поэтому
	// инкрементальная формула эквивалентна полной сумме
	pos.EntryPrice = (pos.EntryPrice*pos.Size + lot.Price*lot.Size) / total
	pos.Size = total
	pos.PyramidLevels = levels
	pos.LastPyramidPrice = price

	return pos, []Action{{
		Side:     side,
		Quantity: lot.Size,
		Price:    price,
		Note:     "докупка по тренду",
	}}
}

// tryContrarian открывает позицию на откате против краткосрочного
// движения, пока основной тренд сохраняется. Проверяется только из
// плоской позиции; с пирамидой взаимоисключается по построению,
// пирамида всегда раньше.
func (e *Engine) tryContrarian(pos models.Position, sig models.Signal) (models.Position, []Action) {
	price := sig.Price

	if sig.MainTrend.Bullish() && pos.LocalHigh > 0 {
		pullback := (pos.LocalHigh - price) / pos.LocalHigh * 100
		if pullback >= e.cfg.PullbackPercent && sig.OBV.Trend == models.TrendBullish {
			return e.open(pos, sig, models.PositionLong, "контртрендовый вход на откате")
		}
	}

	if sig.MainTrend.Bearish() && pos.LocalLow > 0 && !math.IsInf(pos.LocalLow, 1) {
		bounce := (price - pos.LocalLow) / pos.LocalLow * 100
		if bounce >= e.cfg.PullbackPercent && sig.OBV.Trend == models.TrendBearish {
			return e.open(pos, sig, models.PositionShort, "контртрендовый вход на отскоке")
		}
	}

	return pos, nil
}

// open открывает позицию базовым размером по текущей цене
func (e *Engine) open(pos models.Position, sig models.Signal, state models.PositionState, note string) (models.Position, []Action) {
	pos.State = state
	pos.EntryPrice = sig.Price
	pos.Size = e.cfg.TradeAmount
	pos.PyramidLevels = nil
	pos.LastPyramidPrice = 0

	side := models.OrderSideBuy
	if state == models.PositionShort {
		side = models.OrderSideSell
	}

	return pos, []Action{{
		Side:     side,
		Quantity: pos.Size,
		Price:    sig.Price,
		Note:     note,
		Opened:   true,
	}}
}

// close закрывает позицию целиком, формирует запись журнала и
// сбрасывает позицию в начальное состояние. Запись и сброс - единый
// логический шаг без точек приостановки между ними.
func (e *Engine) close(pos models.Position, sig models.Signal, typ models.TradeType, note string) (models.Position, []Action) {
	price := sig.Price
	var pnlQuote float64
	var side models.OrderSide

	switch pos.State {
	case models.PositionLong:
		pnlQuote = pos.Size * (price - pos.EntryPrice)
		side = models.OrderSideSell
	default:
		pnlQuote = pos.Size * (pos.EntryPrice - price)
		side = models.OrderSideBuy
	}

	trade := &models.ClosedTrade{
		Timestamp:  sig.Timestamp,
		Symbol:     sig.Symbol,
		Type:       typ,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Size:       pos.Size,
		PnLPercent: pos.UnrealizedPnL(price),
		PnLQuote:   pnlQuote,
	}

	action := Action{
		Side:     side,
		Quantity: pos.Size,
		Price:    price,
		Note:     note,
		Trade:    trade,
	}

	return models.FlatPosition(), []Action{action}
}

// trackExtremes ведет локальные экстремумы на каждом тике независимо
// от состояния позиции. Пока основной тренд не восходящий, максимум
// следует за ценой, так отсчет начинается с момента начала тренда;
// для минимума симметрично.
func trackExtremes(pos models.Position, sig models.Signal) models.Position {
	price := sig.Price

	if sig.MainTrend.Bullish() {
		if price > pos.LocalHigh {
			pos.LocalHigh = price
		}
	} else {
		pos.LocalHigh = price
	}

	if sig.MainTrend.Bearish() {
		if price < pos.LocalLow {
			pos.LocalLow = price
		}
	} else {
		pos.LocalLow = price
	}

	return pos
}

func stopLossType(state models.PositionState) models.TradeType {
	if state == models.PositionLong {
		return models.TradeStopLossLong
	}
	return models.TradeStopLossShort
}

func takeProfitType(state models.PositionState) models.TradeType {
	if state == models.PositionLong {
		return models.TradeTakeProfitLong
	}
	return models.TradeTakeProfitShort
}
