package metrics

import (
	"encoding/json"
	"math"
	"strconv"
)

// Ratio is a float that may not be computable yet. NaN and the infinities
// marshal as JSON null and print as "n/a".
type Ratio float64

var NA = Ratio(math.NaN())

func (r Ratio) Valid() bool {
	f := float64(r)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (r Ratio) String() string {
	if !r.Valid() {
		return "n/a"
	}
	return strconv.FormatFloat(float64(r), 'f', 2, 64)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = NA
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
