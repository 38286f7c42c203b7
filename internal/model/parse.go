package model

import (
	"github.com/shopspring/decimal"
)

// ParseDecimalField parses a numeric string the way exchange feeds send
// prices and sizes — as decimal strings, not binary floats — parsing
// exactly before converting to the float64 the Tick type carries. The
// conversion happens once at the ingest boundary; everything downstream
// stays in float64.
func ParseDecimalField(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
