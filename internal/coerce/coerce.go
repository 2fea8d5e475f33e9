// Package coerce turns loosely typed exchange and file values into float64
// prices. Every failure wraps domain.ErrCoercion.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Float converts v to a finite float64. Strings are parsed as decimals so
// that "0.52" and 0.52 coerce identically.
func Float(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, fmt.Errorf("%w: null", domain.ErrCoercion)
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case decimal.Decimal:
		return finite(x.InexactFloat64())
	case json.Number:
		return String(string(x))
	case string:
		return String(x)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", domain.ErrCoercion, v)
	}
}

// String parses a decimal string. Surrounding whitespace is ignored.
func String(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", domain.ErrCoercion)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrCoercion, s)
	}
	return finite(d.InexactFloat64())
}

func finite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", domain.ErrCoercion, f)
	}
	return f, nil
}
