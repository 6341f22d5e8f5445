package trader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// ErrMalformedSignal is returned when a webhook payload cannot be parsed.
var ErrMalformedSignal = errors.New("malformed signal")

// Signal is a single buy/sell instruction from the alerting source.
type Signal struct {
	Pair   string
	Action string
	Price  float64
}

// ParseSignal parses a raw webhook payload into a Signal.
//
// The expected format is a " - " separated field list, e.g.
//
//	"DOTUSDT - BUY - Price = 9.3802 - Alert Time = 2024-03-25T02:24:00Z"
//
// Fields of the form "key = value" keep only the value; anything else is kept
// verbatim. The first three fields are pair, action and price.
func ParseSignal(raw string) (Signal, error) {
	var fields []string
	for _, part := range strings.Split(raw, " - ") {
		if _, value, found := strings.Cut(part, " = "); found {
			fields = append(fields, strings.TrimSpace(value))
		} else {
			fields = append(fields, strings.TrimSpace(part))
		}
	}

	if len(fields) < 3 {
		return Signal{}, fmt.Errorf("%w: expected at least 3 fields, got %d", ErrMalformedSignal, len(fields))
	}

	pair := fields[0]
	if pair == "" {
		return Signal{}, fmt.Errorf("%w: empty pair", ErrMalformedSignal)
	}

	action := strings.ToUpper(fields[1])
	if action != ActionBuy && action != ActionSell {
		return Signal{}, fmt.Errorf("%w: unknown action %q", ErrMalformedSignal, fields[1])
	}

	price, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Signal{}, fmt.Errorf("%w: invalid price %q", ErrMalformedSignal, fields[2])
	}

	return Signal{Pair: pair, Action: action, Price: price}, nil
}
