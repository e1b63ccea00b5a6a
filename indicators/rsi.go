package indicators

import "fmt"

// Smoothing selects how RSI averages gains and losses after the seed window.
type Smoothing string

const (
	Wilder Smoothing = "wilder" // alpha = 1/period
	Exp    Smoothing = "ema"    // alpha = 2/(period+1)
	Simple Smoothing = "sma"    // plain mean of the last period changes
)

// RSI returns the relative strength index of the closes. It needs period+1
// values. A series with no losses reads 100; a flat series reads 50.
func RSI(closes []float64, period int, smoothing Smoothing) (float64, error) {
	if err := checkPeriod(period, "RSI"); err != nil {
		return 0, err
	}
	if err := need(len(closes), period+1, "RSI"); err != nil {
		return 0, err
	}
	if smoothing == "" {
		smoothing = Wilder
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	var avgGain, avgLoss float64
	switch smoothing {
	case Simple:
		avgGain, _ = SMA(gains, period)
		avgLoss, _ = SMA(losses, period)
	case Wilder, Exp:
		alpha := 1.0 / float64(period)
		if smoothing == Exp {
			alpha = 2.0 / float64(period+1)
		}
		for i := 0; i < period; i++ {
			avgGain += gains[i]
			avgLoss += losses[i]
		}
		avgGain /= float64(period)
		avgLoss /= float64(period)
		for i := period; i < len(gains); i++ {
			avgGain = alpha*gains[i] + (1-alpha)*avgGain
			avgLoss = alpha*losses[i] + (1-alpha)*avgLoss
		}
	default:
		return 0, fmt.Errorf("RSI: unknown smoothing %q", smoothing)
	}

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50, nil
	case avgLoss == 0:
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
