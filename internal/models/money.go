package models

import (
	"fmt"
	"strings"
)

// Money is an amount in minor currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney builds a Money with a lower-case currency code.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// String formats the amount as "AUD 50.00". Only for display.
func (m Money) String() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%d.%02d", strings.ToUpper(m.Currency), sign, amount/100, amount%100)
}

// IsZero reports whether no money is due.
func (m Money) IsZero() bool {
	return m.Amount == 0
}
