package market

import (
	"fmt"
	"time"
)

// Candle represents one OHLCV bar. Time is the bar's open time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Closes returns the close of every candle, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Last returns the most recent candle.
func Last(candles []Candle) (Candle, bool) {
	if len(candles) == 0 {
		return Candle{}, false
	}
	return candles[len(candles)-1], true
}

// CheckSeries verifies the series is strictly increasing in time and that
// every bar is internally consistent (low <= open/close <= high, positive prices).
func CheckSeries(candles []Candle) error {
	for i, c := range candles {
		if c.Low <= 0 || c.High <= 0 || c.Open <= 0 || c.Close <= 0 {
			return fmt.Errorf("candle %d: non-positive price", i)
		}
		if c.Low > c.High || c.Open < c.Low || c.Open > c.High || c.Close < c.Low || c.Close > c.High {
			return fmt.Errorf("candle %d: OHLC out of range", i)
		}
		if i > 0 && !c.Time.After(candles[i-1].Time) {
			return fmt.Errorf("candle %d: time %s not after %s", i, c.Time, candles[i-1].Time)
		}
	}
	return nil
}
