package rules

import "testing"

func TestClampThreshold(t *testing.T) {
	testCases := []struct {
		name      string
		threshold float64
		want      float64
	}{
		{"Within range", 0.4, 0.4},
		{"Above max", 7.5, MaxThreshold},
		{"Negative", -0.3, 0},
		{"Zero", 0, 0},
		{"Max", MaxThreshold, MaxThreshold},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampThreshold(tc.threshold, MaxThreshold); got != tc.want {
				t.Errorf("ClampThreshold(%v) = %v, want %v", tc.threshold, got, tc.want)
			}
		})
	}
}

func TestSoftGateStrictlyBelowThreshold(t *testing.T) {
	testCases := []struct {
		name      string
		threshold float64
		draw      float64
		want      bool
	}{
		{"Draw below threshold", 0.5, 0.49, true},
		{"Draw equal to threshold", 0.5, 0.5, false},
		{"Draw above threshold", 0.5, 0.51, false},
		{"Max threshold, highest draw", MaxThreshold, 0.999999, true},
		{"Zero threshold, lowest draw", 0, 0, false},
		{"Above max is capped", 3, 0.999999, true},
		{"Negative is floored", -1, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SoftGate(tc.threshold, MaxThreshold, fixedSource(tc.draw)); got != tc.want {
				t.Errorf("SoftGate(%v) with draw %v = %v, want %v", tc.threshold, tc.draw, got, tc.want)
			}
		})
	}
}

func TestSoftGateScalesDrawToMax(t *testing.T) {
	// a draw of 0.5 over [0, 10) is 5
	if !SoftGate(5.5, 10, fixedSource(0.5)) {
		t.Error("5 < 5.5 should pass")
	}
	if SoftGate(4.5, 10, fixedSource(0.5)) {
		t.Error("5 < 4.5 should not pass")
	}
}

func TestSoftGateWithDefaultSource(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if !SoftGate(MaxThreshold, MaxThreshold, nil) {
			t.Fatal("threshold at max should always pass")
		}
		if SoftGate(0, MaxThreshold, nil) {
			t.Fatal("threshold of 0 should never pass")
		}
	}
}
