package signal

import (
	"strings"
	"testing"
	"time"

	"github.com/skalibog/bptb/internal/analysis/indicators"
	"github.com/skalibog/bptb/pkg/models"
)

func buildFrame(closes, volumes []float64) *indicators.Frame {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]*models.Candle, len(closes))
	for i := range closes {
		candles[i] = &models.Candle{
			Symbol:    "BTCUSDT",
			Interval:  "1h",
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			Close:     closes[i],
			Volume:    volumes[i],
			CloseTime: base.Add(time.Duration(i+1) * time.Hour),
		}
	}
	return indicators.Build(candles)
}

func hasReason(sig models.Signal, substr string) bool {
	for _, r := range sig.Reasons {
		if strings.Contains(r, substr) {
			return true
		}
	}
	return false
}

func TestGenerateHoldOnInsufficientData(t *testing.T) {
	closes := make([]float64, 59)
	volumes := make([]float64, 59)
	for i := range closes {
		closes[i] = float64(i + 1)
		volumes[i] = 10
	}

	sig := Generate("BTCUSDT", time.Now(), buildFrame(closes, volumes))

	if sig.Kind != models.SignalHold {
		t.Errorf("на 59 свечах сигнал %s, ожидался HOLD", sig.Kind)
	}
	if sig.Confidence != 0 {
		t.Errorf("на 59 свечах уверенность %d, ожидалось 0", sig.Confidence)
	}
	if !hasReason(sig, "недостаточно данных") {
		t.Errorf("нет причины о недостатке данных: %v", sig.Reasons)
	}
}

func TestGenerateBuyOnStrongUptrend(t *testing.T) {
	// Линейный рост со всплеском объема на последней свече: все семь
	// условий покупки выполняются
	closes := make([]float64, 80)
	volumes := make([]float64, 80)
	for i := range closes {
		closes[i] = float64(i + 1)
		volumes[i] = 10
	}
	volumes[79] = 30

	sig := Generate("BTCUSDT", time.Now(), buildFrame(closes, volumes))

	if sig.Kind != models.SignalBuy {
		t.Fatalf("сигнал %s, ожидался BUY; причины: %v", sig.Kind, sig.Reasons)
	}
	if sig.Confidence != 100 {
		t.Errorf("уверенность %d, ожидалось 100 (7 условий с отсечкой)", sig.Confidence)
	}
	if !hasReason(sig, "бычий тренд") {
		t.Errorf("нет причины о бычьем тренде: %v", sig.Reasons)
	}
}

func TestGenerateSellOnDowntrend(t *testing.T) {
	closes := make([]float64, 80)
	volumes := make([]float64, 80)
	for i := range closes {
		closes[i] = float64(80 - i)
		volumes[i] = 10
	}

	sig := Generate("BTCUSDT", time.Now(), buildFrame(closes, volumes))

	if sig.Kind != models.SignalSell {
		t.Fatalf("сигнал %s, ожидался SELL; причины: %v", sig.Kind, sig.Reasons)
	}
	if sig.Confidence != 75 {
		t.Errorf("уверенность %d, ожидалось 75 (5 условий)", sig.Confidence)
	}
}

func TestGenerateShortVetoOnBullishMainTrend(t *testing.T) {
	closes := make([]float64, 80)
	volumes := make([]float64, 80)
	for i := range closes {
		closes[i] = float64(i + 1)
		volumes[i] = 10
	}

	sig := Generate("BTCUSDT", time.Now(), buildFrame(closes, volumes))

	if sig.Kind == models.SignalSell {
		t.Error("SELL при восходящем основном тренде должен блокироваться")
	}
	if !hasReason(sig, "SHORT заблокирован") {
		t.Errorf("нет причины о блокировке SHORT: %v", sig.Reasons)
	}
}

func TestGenerateHoldOnFlatMarket(t *testing.T) {
	closes := make([]float64, 80)
	volumes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100
		volumes[i] = 10
	}

	sig := Generate("BTCUSDT", time.Now(), buildFrame(closes, volumes))

	if sig.Kind != models.SignalHold {
		t.Errorf("на плоском рынке сигнал %s, ожидался HOLD", sig.Kind)
	}
	if sig.Confidence != 0 {
		t.Errorf("уверенность %d, ожидалось 0", sig.Confidence)
	}
	if !hasReason(sig, "ждем более сильного подтверждения") {
		t.Errorf("нет сводки голосов: %v", sig.Reasons)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	closes := make([]float64, 80)
	volumes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i%11)
		volumes[i] = 10 + float64(i%5)
	}
	f := buildFrame(closes, volumes)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	a := Generate("BTCUSDT", ts, f)
	b := Generate("BTCUSDT", ts, f)

	if a.Kind != b.Kind || a.Confidence != b.Confidence {
		t.Errorf("один фрейм дал разные сигналы: %s/%d и %s/%d",
			a.Kind, a.Confidence, b.Kind, b.Confidence)
	}
}
