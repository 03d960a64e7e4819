package stats

import "testing"

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		value    float64
		places   int32
		expected float64
	}{
		{2.5, 0, 3},
		{3.5, 0, 4}, // half always rounds up, never to even
		{2.4, 0, 2},
		{-1.5, 0, -1},
		{62.75, 0, 63},
		{0.125, 2, 0.13},
		{0.124, 2, 0.12},
		{16.666666, 2, 16.67},
		{100.0, 2, 100.0},
	}

	for _, tt := range tests {
		got := RoundHalfUp(tt.value, tt.places)
		if got != tt.expected {
			t.Errorf("RoundHalfUp(%v, %d) = %v, want %v", tt.value, tt.places, got, tt.expected)
		}
	}
}

func TestRoundToInt(t *testing.T) {
	if got := RoundToInt(62.75); got != 63 {
		t.Errorf("RoundToInt(62.75) = %d, want 63", got)
	}
	if got := RoundToInt(62.5); got != 63 {
		t.Errorf("RoundToInt(62.5) = %d, want 63", got)
	}
	if got := RoundToInt(62.49); got != 62 {
		t.Errorf("RoundToInt(62.49) = %d, want 62", got)
	}
}

func TestMean(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Errorf("Mean(nil) = %v, want 0", got)
	}
	if got := Mean([]float64{100, 200, 300}); got != 200 {
		t.Errorf("Mean = %v, want 200", got)
	}
	if got := Mean([]float64{1, 2}); got != 1.5 {
		t.Errorf("Mean = %v, want 1.5", got)
	}
}

func TestStdDev(t *testing.T) {
	if got := StdDev([]float64{5}); got != 0 {
		t.Errorf("StdDev of single value = %v, want 0", got)
	}
	if got := StdDev([]float64{100, 100, 100}); got != 0 {
		t.Errorf("StdDev of flat series = %v, want 0", got)
	}
	// Population std dev of {2, 4, 4, 4, 5, 5, 7, 9} is exactly 2.
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if got != 2 {
		t.Errorf("StdDev = %v, want 2", got)
	}
}

func TestConsistencyScore(t *testing.T) {
	// Flat series is perfectly consistent.
	if got := ConsistencyScore([]float64{1000, 1000, 1000}); got != 100 {
		t.Errorf("ConsistencyScore(flat) = %v, want 100", got)
	}

	// Highly volatile series clamps at 0 rather than going negative.
	got := ConsistencyScore([]float64{1, 1000, 1, 1000, 1, 1000})
	if got < 0 || got > 100 {
		t.Errorf("ConsistencyScore out of range: %v", got)
	}
}

func TestGrowthRate(t *testing.T) {
	if got := GrowthRate(120, 100); got != 20 {
		t.Errorf("GrowthRate(120, 100) = %v, want 20", got)
	}
	if got := GrowthRate(80, 100); got != -20 {
		t.Errorf("GrowthRate(80, 100) = %v, want -20", got)
	}
	if got := GrowthRate(100, 0); got != 0 {
		t.Errorf("GrowthRate with zero previous = %v, want 0", got)
	}
}

func TestPercentage(t *testing.T) {
	if got := Percentage(1, 3); got != 33.33 {
		t.Errorf("Percentage(1, 3) = %v, want 33.33", got)
	}
	if got := Percentage(5, 0); got != 0 {
		t.Errorf("Percentage with zero total = %v, want 0", got)
	}
	if got := Percentage(2, 25); got != 8 {
		t.Errorf("Percentage(2, 25) = %v, want 8", got)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(150, 0, 100); got != 100 {
		t.Errorf("Clamp(150) = %v, want 100", got)
	}
	if got := Clamp(-5, 0, 100); got != 0 {
		t.Errorf("Clamp(-5) = %v, want 0", got)
	}
	if got := ClampInt(40, 3, 36); got != 36 {
		t.Errorf("ClampInt(40) = %v, want 36", got)
	}
	if got := ClampInt(1, 3, 36); got != 3 {
		t.Errorf("ClampInt(1) = %v, want 3", got)
	}
}
