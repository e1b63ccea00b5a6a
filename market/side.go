package market

import "fmt"

type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign is +1 for long and -1 for short.
func (s Side) Sign() int {
	if s == Short {
		return -1
	}
	return 1
}

func (s Side) Valid() bool {
	return s == Long || s == Short
}

// ParseSide accepts the two lower-case side names the oracle is asked to use.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Long, Short:
		return Side(s), nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}
