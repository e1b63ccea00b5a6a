package indicators

import "fmt"

// MACDValue is the latest reading of the MACD line, its signal line and the
// histogram (line - signal).
type MACDValue struct {
	Line   float64 `json:"line"`
	Signal float64 `json:"signal"`
	Hist   float64 `json:"hist"`
}

// MACD computes fast EMA - slow EMA and its signal EMA over the closes.
// It needs slow+signal-1 values.
func MACD(closes []float64, fast, slow, signal int) (MACDValue, error) {
	for _, p := range []int{fast, slow, signal} {
		if err := checkPeriod(p, "MACD"); err != nil {
			return MACDValue{}, err
		}
	}
	if fast >= slow {
		return MACDValue{}, fmt.Errorf("MACD: fast period %d must be below slow period %d", fast, slow)
	}
	if err := need(len(closes), slow+signal-1, "MACD"); err != nil {
		return MACDValue{}, err
	}

	fastS, err := EMASeries(closes, fast)
	if err != nil {
		return MACDValue{}, err
	}
	slowS, err := EMASeries(closes, slow)
	if err != nil {
		return MACDValue{}, err
	}

	// fastS starts slow-fast entries earlier than slowS.
	offset := slow - fast
	line := make([]float64, len(slowS))
	for i := range slowS {
		line[i] = fastS[i+offset] - slowS[i]
	}

	sig, err := EMASeries(line, signal)
	if err != nil {
		return MACDValue{}, err
	}

	v := MACDValue{Line: last(line), Signal: last(sig)}
	v.Hist = v.Line - v.Signal
	return v, nil
}
