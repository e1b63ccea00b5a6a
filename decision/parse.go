package decision

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/papertrader/errs"
	"github.com/rustyeddy/papertrader/market"
	"github.com/shopspring/decimal"
)

// Leverage must fit an int on every platform before it is converted.
var (
	minLeverage = decimal.NewFromInt(math.MinInt32)
	maxLeverage = decimal.NewFromInt(math.MaxInt32)
)

// Result is the outcome of parsing one asset's part of a reply. When Err is
// set Decision is a hold and Raw holds the offending payload.
type Result struct {
	Decision Decision
	Err      error
	Raw      string
}

// wire mirrors the reply schema with pointers so missing fields can be told
// apart from zero values. decimal accepts both bare and quoted numbers.
type wire struct {
	Signal                *string          `json:"signal"`
	Side                  *string          `json:"side"`
	Quantity              *decimal.Decimal `json:"quantity"`
	ProfitTarget          *decimal.Decimal `json:"profit_target"`
	StopLoss              *decimal.Decimal `json:"stop_loss"`
	Leverage              *decimal.Decimal `json:"leverage"`
	Confidence            *decimal.Decimal `json:"confidence"`
	RiskUSD               *decimal.Decimal `json:"risk_usd"`
	InvalidationCondition *string          `json:"invalidation_condition"`
	Justification         *string          `json:"justification"`
	Reasoning             *string          `json:"reasoning"`
}

// ExtractJSON strips markdown code fences and returns the text between the
// first '{' and the last '}'.
func ExtractJSON(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// Parse decodes an oracle reply into one Result per asset. It never fails as
// a whole: a reply that cannot be read at all turns every asset into a
// ParseError hold, and a bad or missing entry only affects its own asset.
func Parse(raw string, assets []string) map[string]Result {
	out := make(map[string]Result, len(assets))

	fail := func(asset string, payload string, err error) {
		out[asset] = Result{
			Decision: HoldFor(asset, "parse error"),
			Err:      errs.New(errs.ParseError, asset, err),
			Raw:      payload,
		}
	}

	body, ok := ExtractJSON(raw)
	if !ok {
		for _, a := range assets {
			fail(a, raw, fmt.Errorf("no JSON object in reply"))
		}
		return out
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		for _, a := range assets {
			fail(a, raw, fmt.Errorf("decode reply: %w", err))
		}
		return out
	}

	byUpper := make(map[string]json.RawMessage, len(top))
	for k, v := range top {
		byUpper[strings.ToUpper(strings.TrimSpace(k))] = v
	}

	for _, a := range assets {
		msg, ok := byUpper[strings.ToUpper(a)]
		if !ok {
			fail(a, raw, fmt.Errorf("asset missing from reply"))
			continue
		}
		d, err := decodeOne(a, msg)
		if err != nil {
			fail(a, string(msg), err)
			continue
		}
		out[a] = Result{Decision: d, Raw: string(msg)}
	}
	return out
}

func decodeOne(asset string, msg json.RawMessage) (Decision, error) {
	var w wire
	if err := json.Unmarshal(msg, &w); err != nil {
		return Decision{}, fmt.Errorf("decode: %w", err)
	}

	if w.Signal == nil {
		return Decision{}, fmt.Errorf("missing signal")
	}
	sig := Signal(strings.ToLower(strings.TrimSpace(*w.Signal)))
	if !sig.Valid() {
		return Decision{}, fmt.Errorf("unknown signal %q", *w.Signal)
	}
	if w.Confidence == nil {
		return Decision{}, fmt.Errorf("missing confidence")
	}
	conf := w.Confidence.InexactFloat64()
	if conf < 0 || conf > 1 {
		return Decision{}, fmt.Errorf("confidence %s outside [0,1]", w.Confidence)
	}
	if w.Justification == nil {
		return Decision{}, fmt.Errorf("missing justification")
	}

	d := Decision{
		Asset:         asset,
		Signal:        sig,
		Confidence:    conf,
		Justification: *w.Justification,
	}
	if w.Reasoning != nil {
		d.Reasoning = *w.Reasoning
	}
	if sig != Entry {
		return d, nil
	}

	var missing []string
	if w.Side == nil {
		missing = append(missing, "side")
	}
	if w.Quantity == nil {
		missing = append(missing, "quantity")
	}
	if w.ProfitTarget == nil {
		missing = append(missing, "profit_target")
	}
	if w.StopLoss == nil {
		missing = append(missing, "stop_loss")
	}
	if w.Leverage == nil {
		missing = append(missing, "leverage")
	}
	if w.RiskUSD == nil {
		missing = append(missing, "risk_usd")
	}
	if w.InvalidationCondition == nil {
		missing = append(missing, "invalidation_condition")
	}
	if len(missing) > 0 {
		return Decision{}, fmt.Errorf("entry missing %s", strings.Join(missing, ", "))
	}

	side, err := market.ParseSide(strings.ToLower(strings.TrimSpace(*w.Side)))
	if err != nil {
		return Decision{}, err
	}
	if !w.Quantity.IsPositive() {
		return Decision{}, fmt.Errorf("quantity must be positive")
	}
	if !w.StopLoss.IsPositive() || !w.ProfitTarget.IsPositive() {
		return Decision{}, fmt.Errorf("stop_loss and profit_target must be positive")
	}
	if w.RiskUSD.IsNegative() {
		return Decision{}, fmt.Errorf("risk_usd must not be negative")
	}
	if !w.Leverage.Equal(w.Leverage.Truncate(0)) {
		return Decision{}, fmt.Errorf("leverage %s is not an integer", w.Leverage)
	}
	if w.Leverage.LessThan(minLeverage) || w.Leverage.GreaterThan(maxLeverage) {
		return Decision{}, fmt.Errorf("leverage %s is out of range", w.Leverage)
	}

	d.Entry = &EntryOrder{
		Side:                  side,
		Quantity:              *w.Quantity,
		ProfitTarget:          *w.ProfitTarget,
		StopLoss:              *w.StopLoss,
		Leverage:              int(w.Leverage.IntPart()),
		RiskUSD:               *w.RiskUSD,
		InvalidationCondition: *w.InvalidationCondition,
	}
	return d, nil
}
