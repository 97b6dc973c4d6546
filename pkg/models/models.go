package models

import (
	"math"
	"time"
)

// Candle представляет свечу
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// SignalKind тип торгового сигнала
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalHold SignalKind = "HOLD"
)

// Trend краткосрочный тренд по выравниванию скользящих средних
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// MainTrend основной тренд по спреду MA30/MA60
type MainTrend string

const (
	MainTrendStrongBullish MainTrend = "strong_bullish"
	MainTrendBullish       MainTrend = "bullish"
	MainTrendNeutral       MainTrend = "neutral"
	MainTrendBearish       MainTrend = "bearish"
	MainTrendStrongBearish MainTrend = "strong_bearish"
)

// Bullish возвращает true для восходящих вариантов основного тренда
func (t MainTrend) Bullish() bool {
	return t == MainTrendBullish || t == MainTrendStrongBullish
}

// Bearish возвращает true для нисходящих вариантов основного тренда
func (t MainTrend) Bearish() bool {
	return t == MainTrendBearish || t == MainTrendStrongBearish
}

// VolumeAnalysis результат анализа объемов
type VolumeAnalysis struct {
	HighVolume       bool
	IncreasingVolume bool
	VolumeRatio      float64
}

// OBVAnalysis результат анализа On-Balance Volume
type OBVAnalysis struct {
	Trend      Trend
	Divergence bool
	Value      float64
}

// Signal результат одной оценки рынка. Создается заново на каждом тике
// и после возврата не изменяется.
type Signal struct {
	Symbol     string
	Timestamp  time.Time
	Kind       SignalKind
	Confidence int // 0..100
	Reasons    []string
	Trend      Trend
	MainTrend  MainTrend
	Volume     VolumeAnalysis
	OBV        OBVAnalysis
	Price      float64
	MA10       float64
	MA30       float64
	MA60       float64
}

// PositionState состояние позиции
type PositionState string

const (
	PositionNone  PositionState = "NONE"
	PositionLong  PositionState = "LONG"
	PositionShort PositionState = "SHORT"
)

// PyramidLevel дополнительный лот поверх начального входа
type PyramidLevel struct {
	Price float64
	Size  float64
}

// Position текущая позиция. Мутируется только машиной состояний.
type Position struct {
	State            PositionState
	EntryPrice       float64 // средневзвешенная цена по всем лотам
	Size             float64 // суммарный объем в базовой валюте
	PyramidLevels    []PyramidLevel
	LastPyramidPrice float64
	LocalHigh        float64 // максимум цены с начала восходящего тренда
	LocalLow         float64 // минимум цены с начала нисходящего тренда
}

// FlatPosition возвращает пустую позицию в начальном состоянии
func FlatPosition() Position {
	return Position{
		State:    PositionNone,
		LocalLow: math.Inf(1),
	}
}

// UnrealizedPnL возвращает нереализованную доходность позиции
// в процентах относительно средней цены входа
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.State == PositionNone || p.EntryPrice == 0 {
		return 0
	}
	if p.State == PositionLong {
		return (price - p.EntryPrice) / p.EntryPrice * 100
	}
	return (p.EntryPrice - price) / p.EntryPrice * 100
}

// TradeType тип закрытия сделки в журнале
type TradeType string

const (
	TradeCloseLong       TradeType = "CLOSE_LONG"
	TradeCloseShort      TradeType = "CLOSE_SHORT"
	TradeStopLossLong    TradeType = "STOP_LOSS_LONG"
	TradeStopLossShort   TradeType = "STOP_LOSS_SHORT"
	TradeTakeProfitLong  TradeType = "TAKE_PROFIT_LONG"
	TradeTakeProfitShort TradeType = "TAKE_PROFIT_SHORT"
)

// ClosedTrade запись журнала о закрытой сделке. После добавления не изменяется.
type ClosedTrade struct {
	Timestamp  time.Time
	Symbol     string
	Type       TradeType
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	PnLPercent float64
	PnLQuote   float64
}

// OrderSide сторона ордера
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// SessionReport периодический отчет по сессии
type SessionReport struct {
	GeneratedAt   time.Time
	StartedAt     time.Time
	Symbol        string
	SignalCounts  map[SignalKind]int
	TotalSignals  int
	PriceLow      float64
	PriceHigh     float64
	Opened        int
	Closed        int
	Position      Position
	CurrentPrice  float64
	UnrealizedPnL float64 // проценты
	RealizedQuote float64
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // проценты
	RecentTrades  []ClosedTrade
	RecentSignals []Signal
}
