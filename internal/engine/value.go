package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the type tag of an engine value.
type Kind uint8

const (
	KindNothing Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindModule
	KindFunction
)

var kindNames = [...]string{
	KindNothing:  "Nothing",
	KindBool:     "Bool",
	KindInt:      "Int64",
	KindFloat:    "Float64",
	KindString:   "String",
	KindModule:   "Module",
	KindFunction: "Function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// KindOf returns the tag of a plain engine value. Values are nil, bool,
// int64, float64, string, *Module or *Function.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case string:
		return KindString
	case *Module:
		return KindModule
	case *Function:
		return KindFunction
	}
	return KindNothing
}

// Normalize converts a host Go value into the engine's plain representation.
// Integers become int64 and floats become float64.
func Normalize(x any) (any, error) {
	switch v := x.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string, *Module, *Function:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("engine: %d overflows Int64", v)
		}
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("engine: %d overflows Int64", v)
		}
		return int64(v), nil
	case float32:
		return float64(v), nil
	}
	return nil, &WrongTypeError{Expected: "a boxable Go value", Got: fmt.Sprintf("%T", x)}
}

// Show renders a value the way println prints it.
func Show(v any) string {
	switch x := v.(type) {
	case nil:
		return "nothing"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	case *Module:
		return x.path
	case *Function:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
