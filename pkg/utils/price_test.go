package utils

import "testing"

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"12,500.00", 12500},
		{"8.950", 8950},
		{"1.250,50", 1250.50},
		{"999", 999},
		{"4200.", 4200},
		{" 1,5 ", 1.5},
		{"", 0},
		{"abc", 0},
	}
	for _, c := range cases {
		if got := NormalizeNumber(c.in); got != c.want {
			t.Errorf("NormalizeNumber(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMedian(t *testing.T) {
	if got := Median(nil); got != 0 {
		t.Errorf("Median(nil) = %v, want 0", got)
	}
	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd median = %v, want 2", got)
	}
	if got := Median([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even median = %v, want 2.5", got)
	}

	in := []float64{9, 1, 5}
	Median(in)
	if in[0] != 9 || in[1] != 1 || in[2] != 5 {
		t.Errorf("Median modified its input: %v", in)
	}
}

func TestRound(t *testing.T) {
	if got := Round(12.3456, 2); got != 12.35 {
		t.Errorf("Round = %v, want 12.35", got)
	}
	if got := Round(-3.14159, 1); got != -3.1 {
		t.Errorf("Round = %v, want -3.1", got)
	}
}
