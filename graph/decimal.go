package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
)

func MarshalDecimal(d decimal.Decimal) graphql.Marshaler {
	return graphql.WriterFunc(func(w io.Writer) {
		w.Write([]byte(d.String()))
	})
}

// UnmarshalDecimal reads a Decimal argument. Strings may carry thousands separators and a leading
// three-letter currency code, e.g. "USD -1,250.50".
func UnmarshalDecimal(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case string:
		s := strings.TrimSpace(v)
		if len(s) > 3 && isCurrencyCode(s[:3]) {
			s = strings.TrimSpace(s[3:])
		}
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", v)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", v)
		}
		return d, nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, fmt.Errorf("invalid decimal %v", i)
	}
}

func isCurrencyCode(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
