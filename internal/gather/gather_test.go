package gather

import (
	"testing"
	"time"
)

func TestDateRangeDays(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	tests := []struct {
		r    DateRange
		want int
	}{
		{DateRange{Start: d(1), End: d(1)}, 1},
		{DateRange{Start: d(1), End: d(5)}, 5},
		{DateRange{Start: d(5), End: d(1)}, 0},
	}
	for _, tt := range tests {
		if got := tt.r.Days(); got != tt.want {
			t.Errorf("Days(%s..%s) = %d, want %d", tt.r.Start.Format("01-02"), tt.r.End.Format("01-02"), got, tt.want)
		}
	}
}
