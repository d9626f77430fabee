package utils

import (
	"github.com/shopspring/decimal"
)

// math.go - денежная арифметика риск-движка
//
// Все функции чистые и работают в decimal, без float64:
// сравнение убытка с порогом должно быть точным.

// PercentScale - число знаков доли убытка до умножения на 100
const PercentScale = 4

var hundred = decimal.NewFromInt(100)

// LossAmount возвращает просадку: initial - current
func LossAmount(initial, current decimal.Decimal) decimal.Decimal {
	return initial.Sub(current)
}

// LossPercentage возвращает round_half_up(loss / initial, 4) * 100.
// Для initial <= 0 возвращает ноль.
//
// Примеры:
//   - LossPercentage(1500, 50000) = 3.00
//   - LossPercentage(1, 3) = 33.33 (0.3333 * 100)
func LossPercentage(loss, initial decimal.Decimal) decimal.Decimal {
	if !initial.IsPositive() {
		return decimal.Zero
	}
	return loss.DivRound(initial, PercentScale).Mul(hundred)
}
