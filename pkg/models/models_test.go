package models

import (
	"math"
	"testing"
)

func TestFlatPositionInitialState(t *testing.T) {
	pos := FlatPosition()

	if pos.State != PositionNone {
		t.Errorf("состояние %s, ожидался NONE", pos.State)
	}
	if pos.EntryPrice != 0 || pos.Size != 0 || len(pos.PyramidLevels) != 0 {
		t.Errorf("пустая позиция с ненулевыми полями: %+v", pos)
	}
	if pos.LocalHigh != 0 {
		t.Errorf("LocalHigh = %v, ожидалось 0", pos.LocalHigh)
	}
	if !math.IsInf(pos.LocalLow, 1) {
		t.Errorf("LocalLow = %v, ожидалось +Inf", pos.LocalLow)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	long := Position{State: PositionLong, EntryPrice: 100, Size: 0.001}
	if got := long.UnrealizedPnL(105); math.Abs(got-5) > 1e-9 {
		t.Errorf("PnL лонга %v%%, ожидалось 5%%", got)
	}
	if got := long.UnrealizedPnL(95); math.Abs(got+5) > 1e-9 {
		t.Errorf("PnL лонга %v%%, ожидалось -5%%", got)
	}

	short := Position{State: PositionShort, EntryPrice: 100, Size: 0.001}
	if got := short.UnrealizedPnL(95); math.Abs(got-5) > 1e-9 {
		t.Errorf("PnL шорта %v%%, ожидалось 5%%", got)
	}

	flat := FlatPosition()
	if got := flat.UnrealizedPnL(100); got != 0 {
		t.Errorf("PnL пустой позиции %v%%, ожидалось 0", got)
	}
}

func TestMainTrendHelpers(t *testing.T) {
	if !MainTrendStrongBullish.Bullish() || !MainTrendBullish.Bullish() {
		t.Error("восходящие варианты должны определяться как Bullish")
	}
	if MainTrendNeutral.Bullish() || MainTrendBearish.Bullish() {
		t.Error("нейтральный и нисходящий не должны определяться как Bullish")
	}
	if !MainTrendStrongBearish.Bearish() || !MainTrendBearish.Bearish() {
		t.Error("нисходящие варианты должны определяться как Bearish")
	}
	if MainTrendNeutral.Bearish() || MainTrendStrongBullish.Bearish() {
		t.Error("нейтральный и восходящий не должны определяться как Bearish")
	}
}
