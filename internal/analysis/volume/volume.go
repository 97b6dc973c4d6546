package volume

import (
	"github.com/skalibog/bptb/internal/analysis/indicators"
	"github.com/skalibog/bptb/pkg/models"
)

const (
	// highVolumeRatio объем выше среднего на 50%
	highVolumeRatio = 1.5
	// divergenceLookback окно сравнения направлений цены и OBV
	divergenceLookback = 5
)

// Analyze анализирует объемы последней свечи относительно средней
// и предыдущей. Требует минимум двух свечей.
func Analyze(f *indicators.Frame) models.VolumeAnalysis {
	if f.Len() < 2 {
		return models.VolumeAnalysis{VolumeRatio: 1.0}
	}

	last := f.Len() - 1
	ratio := f.LastVolumeRatio()

	return models.VolumeAnalysis{
		HighVolume:       ratio > highVolumeRatio,
		IncreasingVolume: f.Volumes[last] > f.Volumes[last-1],
		VolumeRatio:      ratio,
	}
}

// AnalyzeOBV определяет тренд OBV относительно его скользящей средней
// и флаг дивергенции: направления цены и OBV за последние пять свечей
// расходятся. Это упрощенная эвристика, а не строгое сравнение
// локальных экстремумов; порог участвует в подсчете условий SELL.
func AnalyzeOBV(f *indicators.Frame) models.OBVAnalysis {
	if f.Len() < indicators.OBVMAPeriod {
		return models.OBVAnalysis{Trend: models.TrendNeutral}
	}

	obv := f.LastOBV()
	obvMA, ok := f.LastOBVMA()

	obvTrend := models.TrendNeutral
	if ok {
		switch {
		case obv > obvMA:
			obvTrend = models.TrendBullish
		case obv < obvMA:
			obvTrend = models.TrendBearish
		}
	}

	last := f.Len() - 1
	priceUp := f.Closes[last] > f.Closes[last-divergenceLookback]
	obvUp := f.OBV[last]-f.OBV[last-divergenceLookback] > 0

	return models.OBVAnalysis{
		Trend:      obvTrend,
		Divergence: priceUp != obvUp,
		Value:      obv,
	}
}
