package indicators

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if err := checkPeriod(period, "SMA"); err != nil {
		return 0, err
	}
	if err := need(len(values), period, "SMA"); err != nil {
		return 0, err
	}

	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// EMASeries computes an exponential moving average seeded with the SMA of the
// first period values. The result has len(values)-period+1 entries; entry i
// corresponds to values[i+period-1].
func EMASeries(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, "EMA"); err != nil {
		return nil, err
	}
	if err := need(len(values), period, "EMA"); err != nil {
		return nil, err
	}

	multiplier := 2.0 / float64(period+1)

	sma := 0.0
	for i := 0; i < period; i++ {
		sma += values[i]
	}
	ema := sma / float64(period)

	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out, nil
}

// EMA returns the latest value of EMASeries.
func EMA(values []float64, period int) (float64, error) {
	s, err := EMASeries(values, period)
	if err != nil {
		return 0, err
	}
	return last(s), nil
}
