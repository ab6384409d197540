package indicator

import (
	"errors"
	"math"
	"testing"
)

const eps = 1e-9

func approx(a, b float64) bool { return math.Abs(a-b) < eps }

func TestSMAWarmup(t *testing.T) {
	closes := []float64{10, 20, 30, 40, 50, 60}
	got := SMA{Period: 3}.Line(closes)
	want := []float64{10, 15, 20, 30, 40, 50}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("sma3[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSMAShortSeries(t *testing.T) {
	got := SMA{Period: 30}.Line([]float64{4, 6, 8})
	want := []float64{4, 5, 6}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("sma30[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(SMA{Period: 5}.Line(nil)) != 0 {
		t.Error("SMA of empty input should be empty")
	}
}

func TestSMAPeriodOne(t *testing.T) {
	closes := []float64{3, 1, 4, 1, 5}
	got := SMA{Period: 1}.Compute(closes)["sma1"]
	for i := range closes {
		if got[i] != closes[i] {
			t.Errorf("sma1[%d] = %v, want %v", i, got[i], closes[i])
		}
	}
}

func TestEMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	got := EMA{Period: 3}.Compute(closes)["ema3"]
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("ema3 warm-up = %v, %v, want NaN", got[0], got[1])
	}
	// Seeded with mean(1,2,3)=2, then k=0.5: 3, 4.
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !approx(got[i+2], w) {
			t.Errorf("ema3[%d] = %v, want %v", i+2, got[i+2], w)
		}
	}

	short := EMA{Period: 10}.Compute(closes)["ema10"]
	for i, v := range short {
		if !math.IsNaN(v) {
			t.Errorf("ema10[%d] = %v on a 5-bar series, want NaN", i, v)
		}
	}
}

func TestMACDConstantCloses(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 42
	}
	m := DefaultMACD()
	lines := m.Compute(closes)

	warm := m.Warmup()
	if warm != 33 {
		t.Fatalf("Warmup() = %d, want 33", warm)
	}
	for _, name := range []string{LineMACD, LineSignal, LineHist} {
		line := lines[name]
		if len(line) != len(closes) {
			t.Fatalf("%s has %d values, want %d", name, len(line), len(closes))
		}
		if !math.IsNaN(line[warm-1]) {
			t.Errorf("%s[%d] = %v, want NaN", name, warm-1, line[warm-1])
		}
		for i := warm; i < len(line); i++ {
			if math.Abs(line[i]) > 1e-6 {
				t.Errorf("%s[%d] = %v, want 0 for flat prices", name, i, line[i])
				break
			}
		}
	}
}

func TestMACDTrend(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	lines := DefaultMACD().Compute(closes)
	v, ok := Last(lines[LineMACD])
	if !ok || v <= 0 {
		t.Errorf("macd on a rising series = %v (ok=%v), want positive", v, ok)
	}
	macd, signal, hist := lines[LineMACD], lines[LineSignal], lines[LineHist]
	for i := 40; i < len(closes); i++ {
		if !approx(hist[i], macd[i]-signal[i]) {
			t.Errorf("hist[%d] = %v, want macd-signal %v", i, hist[i], macd[i]-signal[i])
		}
	}
}

func TestMACDShortSeries(t *testing.T) {
	lines := DefaultMACD().Compute([]float64{1, 2, 3})
	if _, ok := Last(lines[LineHist]); ok {
		t.Error("Last on an all-NaN line reported a value")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		ind     Indicator
		wantErr bool
	}{
		{SMA{Period: 5}, false},
		{SMA{Period: 0}, true},
		{EMA{Period: 1}, true},
		{DefaultMACD(), false},
		{MACD{Fast: 26, Slow: 12, Signal: 9}, true},
		{MACD{Fast: 12, Slow: 26, Signal: 0}, true},
	}
	for _, tt := range tests {
		err := tt.ind.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s %+v Validate() = %v, wantErr %v", tt.ind.Name(), tt.ind, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrPeriod) {
			t.Errorf("%s Validate() = %v, want ErrPeriod", tt.ind.Name(), err)
		}
	}
}
