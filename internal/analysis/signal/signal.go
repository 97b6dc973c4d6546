package signal

import (
	"fmt"
	"time"

	"github.com/skalibog/bptb/internal/analysis/indicators"
	"github.com/skalibog/bptb/internal/analysis/trend"
	"github.com/skalibog/bptb/internal/analysis/volume"
	"github.com/skalibog/bptb/pkg/models"
)

const (
	// minConditions порог голосов для формирования сигнала
	minConditions = 4
	// confidencePerCondition вклад одного условия в уверенность, %
	confidencePerCondition = 15
)

// Generate формирует торговый сигнал по фрейму индикаторов.
// Функция не зависит от состояния позиции: одинаковый фрейм всегда
// дает одинаковый сигнал.
func Generate(symbol string, ts time.Time, f *indicators.Frame) models.Signal {
	if f.Len() < indicators.MinCandles {
		return models.Signal{
			Symbol:    symbol,
			Timestamp: ts,
			Kind:      models.SignalHold,
			Reasons:   []string{"недостаточно данных"},
			Trend:     models.TrendNeutral,
			MainTrend: models.MainTrendNeutral,
			Price:     lastCloseOrZero(f),
		}
	}

	shortTrend := trend.Detect(f)
	mainTrend := trend.DetectMain(f)
	volumeAnalysis := volume.Analyze(f)
	obvAnalysis := volume.AnalyzeOBV(f)

	close := f.LastClose()
	ma10, _ := f.LastMA(indicators.PeriodShort)
	ma30, _ := f.LastMA(indicators.PeriodMedium)
	ma60, _ := f.LastMA(indicators.PeriodLong)

	var reasons []string

	// Условия на покупку, максимум 7 голосов
	buyConditions := 0

	if shortTrend == models.TrendBullish {
		buyConditions += 2
		reasons = append(reasons, "обнаружен бычий тренд")
	}
	if obvAnalysis.Trend == models.TrendBullish {
		buyConditions++
		reasons = append(reasons, "OBV растет")
	}
	if volumeAnalysis.HighVolume {
		buyConditions++
		reasons = append(reasons, "высокий объем")
	}
	if volumeAnalysis.IncreasingVolume {
		buyConditions++
		reasons = append(reasons, "объем увеличивается")
	}
	if close > ma10 && ma10 > ma30 {
		buyConditions++
		reasons = append(reasons, "цена выше ключевых MA")
	}
	if close > ma60 {
		buyConditions++
		reasons = append(reasons, "цена выше долгосрочной MA")
	}

	// Условия на продажу, максимум 7 голосов
	sellConditions := 0

	if mainTrend.Bullish() {
		// Жесткое вето: не открываем SHORT против подтвержденного
		// восходящего тренда
		reasons = append(reasons, "основной тренд восходящий - SHORT заблокирован")
	} else {
		if shortTrend == models.TrendBearish {
			sellConditions += 2
			reasons = append(reasons, "обнаружен медвежий тренд")
		}
		if obvAnalysis.Trend == models.TrendBearish {
			sellConditions++
			reasons = append(reasons, "OBV снижается")
		}
		if close < ma10 && ma10 < ma30 {
			sellConditions++
			reasons = append(reasons, "цена ниже ключевых MA")
		}
		if close < ma60 {
			sellConditions++
			reasons = append(reasons, "цена ниже долгосрочной MA")
		}
		if obvAnalysis.Divergence {
			sellConditions++
			reasons = append(reasons, "обнаружена дивергенция OBV")
		}
		if volumeAnalysis.HighVolume {
			sellConditions++
			reasons = append(reasons, "подтверждение высоким объемом")
		}
	}

	// BUY проверяется первым и выигрывает при гипотетической ничьей
	kind := models.SignalHold
	confidence := 0
	switch {
	case buyConditions >= minConditions:
		kind = models.SignalBuy
		confidence = min(buyConditions*confidencePerCondition, 100)
	case sellConditions >= minConditions:
		kind = models.SignalSell
		confidence = min(sellConditions*confidencePerCondition, 100)
	default:
		reasons = append(reasons, fmt.Sprintf(
			"ждем более сильного подтверждения (BUY:%d/%d, SELL:%d/%d)",
			buyConditions, minConditions, sellConditions, minConditions))
	}

	return models.Signal{
		Symbol:     symbol,
		Timestamp:  ts,
		Kind:       kind,
		Confidence: confidence,
		Reasons:    reasons,
		Trend:      shortTrend,
		MainTrend:  mainTrend,
		Volume:     volumeAnalysis,
		OBV:        obvAnalysis,
		Price:      close,
		MA10:       ma10,
		MA30:       ma30,
		MA60:       ma60,
	}
}

func lastCloseOrZero(f *indicators.Frame) float64 {
	if f.Len() == 0 {
		return 0
	}
	return f.LastClose()
}
