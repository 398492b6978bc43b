package types

import (
	"fmt"
	"math/big"
	"strings"
)

// ParsePrice parses a fixed-point USD price string of the form "$0.01" into
// a big.Float. Prices are always denominated in a USD-pegged reference
// currency, never in native gas units.
func ParsePrice(price string) (*big.Float, error) {
	raw, ok := strings.CutPrefix(price, "$")
	if !ok {
		return nil, fmt.Errorf("price %q must start with $", price)
	}
	if raw == "" {
		return nil, fmt.Errorf("price %q has no amount", price)
	}
	if strings.ContainsAny(raw, "+-eE") {
		return nil, fmt.Errorf("price %q must be a plain decimal", price)
	}

	amount, _, err := big.ParseFloat(raw, 10, 256, big.ToNearestEven)
	if err != nil {
		return nil, fmt.Errorf("price %q is not a decimal amount: %w", price, err)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("price %q must be positive", price)
	}

	return amount, nil
}
