package host

import (
	"context"
	"fmt"
	"reflect"

	"github.com/funvibe/fxhost/internal/engine"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// binding is a Go function exposed to scripts.
type binding struct {
	name     string
	fn       reflect.Value
	loopOnly bool
}

// native adapts b to the engine calling convention. An optional leading
// context.Context parameter receives the call context; an optional trailing
// error result becomes the call error.
func (b binding) native() (int, engine.NativeFunc, error) {
	if !b.fn.IsValid() {
		return 0, nil, fmt.Errorf("host: bind %s: nil function", b.name)
	}
	t := b.fn.Type()
	if t.Kind() != reflect.Func {
		return 0, nil, fmt.Errorf("host: bind %s: %s is not a function", b.name, t)
	}
	if b.fn.IsNil() {
		return 0, nil, fmt.Errorf("host: bind %s: nil function", b.name)
	}
	if t.IsVariadic() {
		return 0, nil, fmt.Errorf("host: bind %s: variadic functions are not supported", b.name)
	}
	first := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		first = 1
	}
	switch {
	case t.NumOut() > 2:
		return 0, nil, fmt.Errorf("host: bind %s: too many results", b.name)
	case t.NumOut() == 2 && t.Out(1) != errorType:
		return 0, nil, fmt.Errorf("host: bind %s: second result must be error", b.name)
	}
	arity := t.NumIn() - first

	fn := func(c *engine.CallContext, args []any) (any, error) {
		in := make([]reflect.Value, 0, t.NumIn())
		if first == 1 {
			in = append(in, reflect.ValueOf(c.Context))
		}
		for i, arg := range args {
			v, err := fromEngine(arg, t.In(first+i))
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", b.name, i+1, err)
			}
			in = append(in, v)
		}
		out := b.fn.Call(in)
		return results(out)
	}
	return arity, fn, nil
}

func results(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type() == errorType {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
		if len(out) == 0 {
			return nil, nil
		}
	}
	return engine.Normalize(out[0].Interface())
}

// fromEngine converts a plain engine value to the parameter type target.
func fromEngine(v any, target reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch target.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func:
			return reflect.Zero(target), nil
		}
		return reflect.Value{}, &engine.WrongTypeError{Expected: target.String(), Got: engine.KindNothing.String()}
	}
	rv := reflect.ValueOf(v)
	switch target.Kind() {
	case reflect.Interface:
		if rv.Type().Implements(target) {
			return rv, nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.(int64); ok {
			out := reflect.New(target).Elem()
			if out.OverflowInt(i) {
				return reflect.Value{}, fmt.Errorf("%d overflows %s", i, target)
			}
			out.SetInt(i)
			return out, nil
		}
	case reflect.Float32, reflect.Float64:
		switch x := v.(type) {
		case float64:
			return reflect.ValueOf(x).Convert(target), nil
		case int64:
			return reflect.ValueOf(float64(x)).Convert(target), nil
		}
	case reflect.Bool, reflect.String:
		if rv.Kind() == target.Kind() {
			return rv.Convert(target), nil
		}
	}
	return reflect.Value{}, &engine.WrongTypeError{Expected: target.String(), Got: engine.KindOf(v).String()}
}
