package model

import (
	"fmt"
	"math/big"
)

// decimals is the number of fractional digits each ticker's minor unit
// represents: satoshis (BTC/BCH, spec §9 "Amount types") and piconero
// (XMR).
var decimals = map[Ticker]int32{
	TickerBTC: 8,
	TickerBCH: 8,
	TickerXMR: 12,
}

// Amount is a fixed-point quantity of a single ticker's minor unit,
// stored as int64 and never represented as a float64 (spec §9 Open
// Question resolution: "converts through a fixed-point Amount type that
// never uses float64 for money").
type Amount struct {
	Ticker Ticker
	Units  int64
}

// ParseAmount converts a decimal string ("0.00001000") into an Amount of
// the given ticker's minor unit.
func ParseAmount(ticker Ticker, decimal string) (Amount, error) {
	places, ok := decimals[ticker]
	if !ok {
		return Amount{}, fmt.Errorf("model: unknown ticker %q", ticker)
	}
	r, ok := new(big.Rat).SetString(decimal)
	if !ok {
		return Amount{}, fmt.Errorf("model: invalid decimal amount %q", decimal)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(scale))
	if !scaled.IsInt() {
		return Amount{}, fmt.Errorf("model: amount %q has more precision than %s supports", decimal, ticker)
	}
	return Amount{Ticker: ticker, Units: scaled.Num().Int64()}, nil
}

// String renders the amount back to its decimal wire form.
func (a Amount) String() string {
	places, ok := decimals[a.Ticker]
	if !ok {
		places = 8
	}
	r := new(big.Rat).SetFrac(big.NewInt(a.Units), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil))
	return r.FloatString(int(places))
}
