package task

import (
	"fmt"

	"github.com/funvibe/fxhost/internal/engine"
	"github.com/funvibe/fxhost/pkg/rooting"
)

// Cast reads v as a T after checking its engine type tag. Int64 values can
// be read as int, and Float64 values as float32.
func Cast[T any](v rooting.Value) (T, error) {
	var zero T
	x, err := v.Load()
	if err != nil {
		return zero, err
	}
	return castValue[T](x)
}

func castValue[T any](x any) (T, error) {
	var zero T
	if t, ok := x.(T); ok {
		return t, nil
	}
	var out any
	switch any(zero).(type) {
	case int:
		if i, ok := x.(int64); ok {
			out = int(i)
		}
	case float32:
		if f, ok := x.(float64); ok {
			out = float32(f)
		}
	}
	if out != nil {
		return out.(T), nil
	}
	return zero, &engine.WrongTypeError{
		Expected: fmt.Sprintf("%T", zero),
		Got:      engine.KindOf(x).String(),
	}
}
