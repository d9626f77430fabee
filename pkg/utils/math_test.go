package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============================================================
// Тесты LossPercentage
// ============================================================

func TestLossPercentage(t *testing.T) {
	tests := []struct {
		name     string
		loss     decimal.Decimal
		initial  decimal.Decimal
		expected decimal.Decimal
	}{
		{"three percent", d("1500"), d("50000"), d("3")},
		{"under limit", d("800"), d("50000"), d("1.6")},
		{"rounded before multiply", d("1"), d("3"), d("33.33")},
		{"half up at fifth digit", d("0.00005"), d("1"), d("0.01")},
		{"below half rounds down", d("0.00004"), d("1"), d("0")},
		{"profit is negative loss", d("-500"), d("10000"), d("-5")},
		{"negative half rounds away from zero", d("-0.00005"), d("1"), d("-0.01")},
		{"zero initial", d("100"), decimal.Zero, decimal.Zero},
		{"negative initial", d("100"), d("-10"), decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LossPercentage(tt.loss, tt.initial)
			if !got.Equal(tt.expected) {
				t.Errorf("LossPercentage(%s, %s) = %s, want %s", tt.loss, tt.initial, got, tt.expected)
			}
		})
	}
}

func TestLossAmount(t *testing.T) {
	if got := LossAmount(d("50000"), d("48500")); !got.Equal(d("1500")) {
		t.Errorf("LossAmount = %s, want 1500", got)
	}
	if got := LossAmount(d("50000"), d("51000")); !got.Equal(d("-1000")) {
		t.Errorf("LossAmount = %s, want -1000", got)
	}
}
