package trend

import (
	"github.com/skalibog/bptb/internal/analysis/indicators"
	"github.com/skalibog/bptb/pkg/models"
)

// Пороги спреда MA30/MA60 для основного тренда, в процентах
const (
	strongThreshold = 2.0
	weakThreshold   = 0.5
)

// Detect определяет краткосрочный тренд по выравниванию скользящих
// средних. Это проверка взаимного расположения уровней на каждом тике,
// а не детектор события пересечения.
func Detect(f *indicators.Frame) models.Trend {
	if f.Len() < indicators.MinCandles {
		return models.TrendNeutral
	}

	close := f.LastClose()
	ma10, ok10 := f.LastMA(indicators.PeriodShort)
	ma30, ok30 := f.LastMA(indicators.PeriodMedium)
	ma60, ok60 := f.LastMA(indicators.PeriodLong)
	if !ok10 || !ok30 || !ok60 {
		return models.TrendNeutral
	}

	// Золотой крест: MA10 > MA30 > MA60 и цена выше всех средних
	if ma10 > ma30 && ma30 > ma60 && close > ma10 {
		return models.TrendBullish
	}

	// Мертвый крест: MA10 < MA30 < MA60 и цена ниже всех средних
	if ma10 < ma30 && ma30 < ma60 && close < ma10 {
		return models.TrendBearish
	}

	return models.TrendNeutral
}

// DetectMain определяет основной тренд по процентному спреду между
// MA30 и MA60. Эта более длинная оценка блокирует SHORT-входы
// против подтвержденного восходящего движения.
func DetectMain(f *indicators.Frame) models.MainTrend {
	if f.Len() < indicators.MinCandles {
		return models.MainTrendNeutral
	}

	ma30, ok30 := f.LastMA(indicators.PeriodMedium)
	ma60, ok60 := f.LastMA(indicators.PeriodLong)
	if !ok30 || !ok60 || ma60 == 0 {
		return models.MainTrendNeutral
	}

	diffPercent := (ma30 - ma60) / ma60 * 100

	switch {
	case diffPercent > strongThreshold:
		return models.MainTrendStrongBullish
	case diffPercent > weakThreshold:
		return models.MainTrendBullish
	case diffPercent < -strongThreshold:
		return models.MainTrendStrongBearish
	case diffPercent < -weakThreshold:
		return models.MainTrendBearish
	default:
		return models.MainTrendNeutral
	}
}
