// Package indicators provides technical analysis indicators for trading.
//
// Every function is a pure function of its input series: the same closes
// always produce the same values, and nothing is carried between calls.
package indicators

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a series is too short for an
// indicator's warm-up.
var ErrInsufficientData = errors.New("insufficient data")

func need(have, want int, name string) error {
	if have < want {
		return fmt.Errorf("%s: need %d values, got %d: %w", name, want, have, ErrInsufficientData)
	}
	return nil
}

func checkPeriod(period int, name string) error {
	if period <= 0 {
		return fmt.Errorf("%s: period must be positive, got %d", name, period)
	}
	return nil
}

func last(xs []float64) float64 {
	return xs[len(xs)-1]
}
