package media

import (
	"math"
	"testing"
)

func TestClampSpeedFactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{0.5, 0.9},
		{0.89, 0.9},
		{0.9, 0.9},
		{1.0, 1.0},
		{2.5, 2.5},
		{8.0, 8.0},
		{12.0, 8.0},
	}
	for _, tt := range tests {
		if got := ClampSpeedFactor(tt.in); got != tt.want {
			t.Errorf("ClampSpeedFactor(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAtempoChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		factor  float64
		wantLen int
		wantErr bool
	}{
		{"identity", 1.0, 1, false},
		{"in range", 1.5, 1, false},
		{"speed up beyond single filter", 5.0, 3, false},
		{"slow down beyond single filter", 0.3, 2, false},
		{"ceiling", 8.0, 3, false},
		{"zero", 0, 0, true},
		{"below floor", 0.2, 0, true},
		{"above ceiling", 9.0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chain, err := AtempoChain(tt.factor)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("AtempoChain(%v): %v", tt.factor, err)
			}
			if len(chain) != tt.wantLen {
				t.Fatalf("chain %v has %d links, want %d", chain, len(chain), tt.wantLen)
			}
			product := 1.0
			for _, f := range chain {
				if f < 0.5 || f > 2.0 {
					t.Errorf("link %v outside atempo range [0.5, 2.0]", f)
				}
				product *= f
			}
			if math.Abs(product-tt.factor) > 1e-9 {
				t.Errorf("chain product = %v, want %v", product, tt.factor)
			}
		})
	}
}
