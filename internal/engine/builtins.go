package engine

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

func registerBuiltins(e *Engine) {
	base := map[string]struct {
		arity int
		fn    NativeFunc
	}{
		"sqrt":      {1, builtinSqrt},
		"abs":       {1, builtinAbs},
		"floor":     {1, builtinFloor},
		"float":     {1, builtinFloat},
		"int":       {1, builtinInt},
		"div":       {2, builtinDiv},
		"min":       {2, builtinMin},
		"max":       {2, builtinMax},
		"string":    {-1, builtinString},
		"length":    {1, builtinLength},
		"typeof":    {1, builtinTypeof},
		"isnothing": {1, builtinIsNothing},
		"println":   {-1, builtinPrintln},
		"error":     {1, builtinError},
		"sleep":     {1, builtinSleep},
	}
	for name, b := range base {
		e.defs = e.defs.Put(e.base.key(name), &binding{value: &Function{
			name:   name,
			module: e.base.path,
			native: &native{arity: b.arity, fn: b.fn},
		}})
	}

	core := map[string]native{
		"collect":  {arity: 0, loopOnly: true, fn: builtinCollect},
		"gc_live":  {arity: 0, loopOnly: true, fn: builtinGCLive},
		"nthreads": {arity: 0, fn: builtinNThreads},
	}
	for name, n := range core {
		n := n
		e.defs = e.defs.Put(e.core.key(name), &binding{value: &Function{
			name:   name,
			module: e.core.path,
			native: &n,
		}})
	}
}

func number(name string, v any) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, methodError(name, []any{v})
	}
	return f, nil
}

func builtinSqrt(_ *CallContext, args []any) (any, error) {
	f, err := number("sqrt", args[0])
	if err != nil {
		return nil, err
	}
	if f < 0 {
		return nil, newException("DomainError", "sqrt was called with a negative real argument %s", Show(args[0]))
	}
	return math.Sqrt(f), nil
}

func builtinAbs(_ *CallContext, args []any) (any, error) {
	switch x := args[0].(type) {
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		return math.Abs(x), nil
	}
	return nil, methodError("abs", args)
}

func builtinFloor(_ *CallContext, args []any) (any, error) {
	switch x := args[0].(type) {
	case int64:
		return x, nil
	case float64:
		return math.Floor(x), nil
	}
	return nil, methodError("floor", args)
}

func builtinFloat(_ *CallContext, args []any) (any, error) {
	return number("float", args[0])
}

func builtinInt(_ *CallContext, args []any) (any, error) {
	switch x := args[0].(type) {
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || x > math.MaxInt64 || x < math.MinInt64 {
			return nil, newException("InexactError", "Int64(%s)", formatFloat(x))
		}
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, methodError("int", args)
}

func builtinDiv(_ *CallContext, args []any) (any, error) {
	a, aok := args[0].(int64)
	b, bok := args[1].(int64)
	if !aok || !bok {
		return nil, methodError("div", args)
	}
	if b == 0 {
		return nil, newException("DivideError", "integer division error")
	}
	return a / b, nil
}

func builtinMin(_ *CallContext, args []any) (any, error) {
	less, err := binary("<", args[1], args[0])
	if err != nil {
		return nil, err
	}
	if less.(bool) {
		return args[1], nil
	}
	return args[0], nil
}

func builtinMax(_ *CallContext, args []any) (any, error) {
	greater, err := binary(">", args[1], args[0])
	if err != nil {
		return nil, err
	}
	if greater.(bool) {
		return args[1], nil
	}
	return args[0], nil
}

func builtinString(_ *CallContext, args []any) (any, error) {
	var sb strings.Builder
	for _, a := range args {
		sb.WriteString(Show(a))
	}
	return sb.String(), nil
}

func builtinLength(_ *CallContext, args []any) (any, error) {
	s, ok := args[0].(string)
	if !ok {
		return nil, methodError("length", args)
	}
	return int64(utf8.RuneCountInString(s)), nil
}

func builtinTypeof(_ *CallContext, args []any) (any, error) {
	return KindOf(args[0]).String(), nil
}

func builtinIsNothing(_ *CallContext, args []any) (any, error) {
	return args[0] == nil, nil
}

func builtinPrintln(c *CallContext, args []any) (any, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Show(a)
	}
	if _, err := fmt.Fprintln(c.Out, strings.Join(parts, "")); err != nil {
		return nil, newException("IOError", "%v", err)
	}
	return nil, nil
}

func builtinError(_ *CallContext, args []any) (any, error) {
	return nil, &Exception{Type: "ErrorException", Message: Show(args[0])}
}

// builtinSleep blocks for a number of seconds. Offloaded calls use it to
// model blocking work.
func builtinSleep(c *CallContext, args []any) (any, error) {
	secs, err := number("sleep", args[0])
	if err != nil {
		return nil, err
	}
	if secs < 0 {
		return nil, newException("ArgumentError", "cannot sleep for %s seconds", Show(args[0]))
	}
	t := time.NewTimer(time.Duration(secs * float64(time.Second)))
	defer t.Stop()
	select {
	case <-t.C:
		return nil, nil
	case <-c.Context.Done():
		return nil, c.Context.Err()
	}
}

func builtinCollect(c *CallContext, _ []any) (any, error) {
	c.engine.collect()
	return nil, nil
}

func builtinGCLive(c *CallContext, _ []any) (any, error) {
	return int64(c.engine.heap.live), nil
}

func builtinNThreads(c *CallContext, _ []any) (any, error) {
	return int64(c.Threads), nil
}
