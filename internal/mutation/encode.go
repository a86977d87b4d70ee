package mutation

import (
	"math"
	"strconv"
	"strings"

	"github.com/roach88/gridsync/internal/ir"
)

// Encode converts edited cell text into a typed value for the column's
// data type.
//
// Text that does not parse as the declared type becomes Null rather than an
// error: the remote store decides what a null means for the column. Empty
// input is Null for every type except string.
func Encode(dt ir.DataType, input string) ir.Value {
	if dt == ir.TypeString {
		return ir.String(input)
	}
	text := strings.TrimSpace(input)
	if text == "" {
		return ir.Null{}
	}

	switch dt {
	case ir.TypeInteger:
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return ir.Int(n)
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil && isIntegral(f) {
			return ir.Int(int64(f))
		}
		return ir.Null{}

	case ir.TypeNumber:
		return parseNumber(text)

	case ir.TypeMoney:
		text = strings.TrimPrefix(text, "$")
		return parseNumber(strings.ReplaceAll(text, ",", ""))

	case ir.TypePercentage:
		return parseNumber(strings.TrimSpace(strings.TrimSuffix(text, "%")))

	case ir.TypeBoolean:
		switch strings.ToLower(text) {
		case "true", "1", "yes":
			return ir.Bool(true)
		case "false", "0", "no":
			return ir.Bool(false)
		}
		return ir.Null{}

	case ir.TypeJSON:
		v, err := ir.DecodeValue([]byte(text))
		if err != nil {
			return ir.Null{}
		}
		return v

	default:
		// date, datetime and unknown types pass through as text
		return ir.String(input)
	}
}

// EncodeValue applies Encode to a value that is still raw text. Values that
// already carry a type are returned unchanged.
func EncodeValue(dt ir.DataType, v ir.Value) ir.Value {
	if v == nil {
		return ir.Null{}
	}
	if s, ok := v.(ir.String); ok {
		return Encode(dt, string(s))
	}
	return v
}

func parseNumber(text string) ir.Value {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return ir.Null{}
	}
	if isIntegral(f) {
		return ir.Int(int64(f))
	}
	return ir.Float(f)
}

func isIntegral(f float64) bool {
	return f == math.Trunc(f) && math.Abs(f) < 1<<53
}
