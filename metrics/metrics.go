// Package metrics computes risk-adjusted performance from the equity curve
// and summary statistics from the trade ledger.
package metrics

import (
	"math"
	"time"

	"github.com/rustyeddy/papertrader/journal"
)

const Year = 365 * 24 * time.Hour

type Config struct {
	// RiskFreeRate is annual, e.g. 0.04 for 4%.
	RiskFreeRate float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
	// Benchmark names the asset whose price is stored with every equity
	// sample and held for the HODL comparison.
	Benchmark string `json:"benchmark" yaml:"benchmark"`
}

func DefaultConfig() Config {
	return Config{Benchmark: "BTC"}
}

// Returns is the simple return between consecutive equity samples.
func Returns(samples []journal.EquitySample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	out := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		prev := samples[i-1].Equity.InexactFloat64()
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, samples[i].Equity.InexactFloat64()/prev-1)
	}
	return out
}

// periods is how many sampling intervals fit in a year, from the mean
// spacing of the samples. Zero when the spacing is unknown.
func periods(samples []journal.EquitySample) float64 {
	if len(samples) < 2 {
		return 0
	}
	span := samples[len(samples)-1].Time.Sub(samples[0].Time)
	if span <= 0 {
		return 0
	}
	mean := span / time.Duration(len(samples)-1)
	return float64(Year) / float64(mean)
}

// Sharpe is the annualized mean excess return over its standard deviation.
// NA with fewer than two samples or no dispersion.
func Sharpe(samples []journal.EquitySample, riskFree float64) Ratio {
	n := periods(samples)
	if n == 0 {
		return NA
	}
	rets := Returns(samples)
	rf := riskFree / n

	mean := 0.0
	for _, r := range rets {
		mean += r - rf
	}
	mean /= float64(len(rets))

	var ss float64
	for _, r := range rets {
		d := r - rf - mean
		ss += d * d
	}
	sd := math.Sqrt(ss / float64(len(rets)))
	if sd == 0 {
		return NA
	}
	return Ratio(mean / sd * math.Sqrt(n))
}

// Sortino is Sharpe with only below-target returns in the denominator. NA
// when there is no downside.
func Sortino(samples []journal.EquitySample, riskFree float64) Ratio {
	n := periods(samples)
	if n == 0 {
		return NA
	}
	rets := Returns(samples)
	rf := riskFree / n

	var mean, down float64
	for _, r := range rets {
		ex := r - rf
		mean += ex
		if ex < 0 {
			down += ex * ex
		}
	}
	mean /= float64(len(rets))
	dd := math.Sqrt(down / float64(len(rets)))
	if dd == 0 {
		return NA
	}
	return Ratio(mean / dd * math.Sqrt(n))
}

// MaxDrawdown is the largest peak-to-trough fall of equity, in percent.
func MaxDrawdown(samples []journal.EquitySample) Ratio {
	if len(samples) == 0 {
		return NA
	}
	peak := samples[0].Equity.InexactFloat64()
	worst := 0.0
	for _, s := range samples {
		v := s.Equity.InexactFloat64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-v)/peak)
		}
	}
	return Ratio(worst * 100)
}
