// Package fees computes the service fee and counter-amount for a swap.
// Rates depend only on the classification of the two legs, never on the
// symbols themselves.
package fees

import (
	"github.com/shopspring/decimal"

	"github.com/taranswap/taran/service/currency"
)

// Rate table by direction. Crypto→Crypto is a zero-fee 1:1 passthrough; there
// is no price discovery in this system.
var rates = map[currency.Direction]decimal.Decimal{
	currency.LocalToLocal:   decimal.NewFromFloat(0.011),
	currency.LocalToCrypto:  decimal.NewFromFloat(0.02),
	currency.CryptoToLocal:  decimal.NewFromFloat(0.03),
	currency.CryptoToCrypto: decimal.Zero,
}

// Quote is an immutable fee breakdown for a proposed swap.
type Quote struct {
	SendAmount       decimal.Decimal    `json:"send_amount"`
	Direction        currency.Direction `json:"direction"`
	ServiceFeeRate   decimal.Decimal    `json:"service_fee_rate"`
	ServiceFee       decimal.Decimal    `json:"service_fee"`
	NetReceiveAmount decimal.Decimal    `json:"net_receive_amount"`
}

// RateFor returns the service fee rate for a direction.
func RateFor(direction currency.Direction) decimal.Decimal {
	return rates[direction]
}

// QuoteFor computes the fee breakdown for sending sendAmount from one
// currency class to another. Pure arithmetic; a non-positive sendAmount
// yields a zero quote, which callers treat as a no-op swap rather than an
// error.
func QuoteFor(sendAmount decimal.Decimal, sendClass, receiveClass currency.Class) Quote {
	direction := currency.DirectionOf(sendClass, receiveClass)

	if sendAmount.Sign() <= 0 {
		return Quote{
			SendAmount:       decimal.Zero,
			Direction:        direction,
			ServiceFeeRate:   decimal.Zero,
			ServiceFee:       decimal.Zero,
			NetReceiveAmount: decimal.Zero,
		}
	}

	rate := rates[direction]
	fee := sendAmount.Mul(rate)

	return Quote{
		SendAmount:       sendAmount,
		Direction:        direction,
		ServiceFeeRate:   rate,
		ServiceFee:       fee,
		NetReceiveAmount: sendAmount.Sub(fee),
	}
}

// QuoteForSymbols is QuoteFor with registry lookups for both legs.
func QuoteForSymbols(sendAmount decimal.Decimal, sendSymbol, receiveSymbol string) (Quote, error) {
	sendClass, err := currency.ClassOf(sendSymbol)
	if err != nil {
		return Quote{}, err
	}
	receiveClass, err := currency.ClassOf(receiveSymbol)
	if err != nil {
		return Quote{}, err
	}
	return QuoteFor(sendAmount, sendClass, receiveClass), nil
}
