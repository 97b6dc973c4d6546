package indicators

import (
	"github.com/markcheno/go-talib"
	"github.com/skalibog/bptb/pkg/models"
)

// Периоды индикаторов
const (
	PeriodShort  = 10
	PeriodMedium = 30
	PeriodLong   = 60
	VolumePeriod = 20
	OBVMAPeriod  = 20

	// MinCandles минимальное число свечей, при котором классификаторы
	// доверяют своим выводам
	MinCandles = 60
)

// Frame производные значения индикаторов, выровненные по индексу со
// входной последовательностью свечей. Значения скользящих средних до
// накопления полного окна считаются неопределенными и помечаются через
// индекс валидности, а не нулевым значением.
type Frame struct {
	Closes  []float64
	Volumes []float64

	MAShort  []float64 // валидны с индекса PeriodShort-1
	MAMedium []float64 // валидны с индекса PeriodMedium-1
	MALong   []float64 // валидны с индекса PeriodLong-1

	OBV   []float64 // валидны с индекса 0
	OBVMA []float64 // валидны с индекса OBVMAPeriod-1

	VolumeSMA   []float64 // валидны с индекса VolumePeriod-1
	VolumeRatio []float64 // нейтральная 1.0 до накопления окна
}

// Build рассчитывает все индикаторы по последовательности свечей.
// Расчет детерминирован: одинаковый вход дает побитово одинаковый выход.
func Build(candles []*models.Candle) *Frame {
	n := len(candles)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	f := &Frame{
		Closes:   closes,
		Volumes:  volumes,
		MAShort:  sma(closes, PeriodShort),
		MAMedium: sma(closes, PeriodMedium),
		MALong:   sma(closes, PeriodLong),
		OBV:      obv(closes, volumes),
	}
	f.OBVMA = sma(f.OBV, OBVMAPeriod)
	f.VolumeSMA = sma(volumes, VolumePeriod)

	// Отношение объема к среднему; при нулевом или неопределенном
	// знаменателе считаем нейтральным
	f.VolumeRatio = make([]float64, n)
	for i := 0; i < n; i++ {
		if i >= VolumePeriod-1 && f.VolumeSMA[i] > 0 {
			f.VolumeRatio[i] = volumes[i] / f.VolumeSMA[i]
		} else {
			f.VolumeRatio[i] = 1.0
		}
	}

	return f
}

// Len возвращает число свечей во фрейме
func (f *Frame) Len() int {
	return len(f.Closes)
}

// LastClose возвращает цену закрытия последней свечи
func (f *Frame) LastClose() float64 {
	return f.Closes[len(f.Closes)-1]
}

// LastMA возвращает последнее значение скользящей средней указанного
// периода и признак ее валидности
func (f *Frame) LastMA(period int) (float64, bool) {
	var series []float64
	switch period {
	case PeriodShort:
		series = f.MAShort
	case PeriodMedium:
		series = f.MAMedium
	case PeriodLong:
		series = f.MALong
	default:
		return 0, false
	}
	i := len(series) - 1
	if i < period-1 {
		return 0, false
	}
	return series[i], true
}

// LastOBV возвращает последнее значение OBV
func (f *Frame) LastOBV() float64 {
	return f.OBV[len(f.OBV)-1]
}

// LastOBVMA возвращает последнее значение скользящей средней OBV
// и признак ее валидности
func (f *Frame) LastOBVMA() (float64, bool) {
	i := len(f.OBVMA) - 1
	if i < OBVMAPeriod-1 {
		return 0, false
	}
	return f.OBVMA[i], true
}

// LastVolumeRatio возвращает отношение последнего объема к среднему
func (f *Frame) LastVolumeRatio() float64 {
	return f.VolumeRatio[len(f.VolumeRatio)-1]
}

// sma простая скользящая средняя через talib; для коротких рядов talib
// неприменим, возвращаем нули (индексы до period-1 все равно невалидны)
func sma(values []float64, period int) []float64 {
	if len(values) < period {
		return make([]float64, len(values))
	}
	return talib.Sma(values, period)
}

// obv кумулятивный знаковый объем: obv[0] = 0,
// obv[i] = obv[i-1] + sign(close[i]-close[i-1]) * volume[i].
// Каждое значение зависит от предыдущего, расчет строго последовательный.
// talib.Obv здесь не подходит: он начинает ряд с volume[0], а не с нуля.
func obv(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
