package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func bars(closes ...float64) []Candle {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, len(closes))
	for i, c := range closes {
		out[i] = Candle{Time: t0.Add(time.Duration(i) * 3 * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return out
}

func TestClosesAndLast(t *testing.T) {
	t.Parallel()

	cs := bars(10, 11, 12)
	assert.Equal(t, []float64{10, 11, 12}, Closes(cs))

	last, ok := Last(cs)
	assert.True(t, ok)
	assert.Equal(t, 12.0, last.Close)

	_, ok = Last(nil)
	assert.False(t, ok)
}

func TestCheckSeries(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckSeries(bars(10, 11, 12)))

	outOfOrder := bars(10, 11)
	outOfOrder[1].Time = outOfOrder[0].Time
	assert.Error(t, CheckSeries(outOfOrder))

	badRange := bars(10)
	badRange[0].High = 5
	assert.Error(t, CheckSeries(badRange))

	zero := bars(10)
	zero[0].Low = 0
	assert.Error(t, CheckSeries(zero))
}

func TestSide(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, Long.Sign())
	assert.Equal(t, -1, Short.Sign())
	assert.True(t, Long.Valid())
	assert.False(t, Side("flat").Valid())

	s, err := ParseSide("short")
	assert.NoError(t, err)
	assert.Equal(t, Short, s)

	_, err = ParseSide("LONG")
	assert.Error(t, err)
}
