package engine

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/funvibe/fxhost/internal/ast"
)

const (
	maxCallDepth = 2000
	// cancellation is checked every this many loop iterations
	checkEvery = 1024
)

type control int

const (
	ctrlNone control = iota
	ctrlReturn
	ctrlBreak
	ctrlContinue
)

// evaluator walks the syntax tree. With engine set it may define globals and
// call loop-only natives; without it, it reads only the defs snapshot.
type evaluator struct {
	ctx     context.Context
	defs    *PersistentMap
	engine  *Engine
	out     io.Writer
	threads int
	depth   int
	ticks   int
}

// environment is the scope of a function call. vars is nil for module-level
// code, where assignments define globals.
type environment struct {
	module string
	vars   map[string]any
}

func (e *Engine) newEvaluator(ctx context.Context) *evaluator {
	return &evaluator{ctx: ctx, engine: e, out: e.out, threads: e.threads}
}

func (ev *evaluator) lookup(key string) *binding {
	if ev.engine != nil {
		return ev.engine.defs.Get(key)
	}
	return ev.defs.Get(key)
}

func (ev *evaluator) call(fn *Function, args []any) (any, error) {
	ev.depth++
	defer func() { ev.depth-- }()
	if ev.depth > maxCallDepth {
		return nil, newException("StackOverflowError", "call depth exceeded %d in %s", maxCallDepth, fn)
	}

	if fn.native != nil {
		if fn.native.loopOnly && ev.engine == nil {
			return nil, fmt.Errorf("%s: %w", fn, ErrNotOffloadable)
		}
		if fn.native.arity >= 0 && fn.native.arity != len(args) {
			return nil, methodError(fn.String(), args)
		}
		return ev.callNative(fn, args)
	}

	if len(args) != len(fn.params) {
		return nil, methodError(fn.String(), args)
	}
	env := &environment{module: fn.module, vars: make(map[string]any, len(fn.params))}
	for i, p := range fn.params {
		env.vars[p] = args[i]
	}
	ctrl, v, err := ev.execBlock(fn.body, env)
	if err != nil {
		return nil, err
	}
	switch ctrl {
	case ctrlBreak, ctrlContinue:
		return nil, newException("ErrorException", "break or continue outside a loop in %s", fn)
	}
	return v, nil
}

// callNative runs a Go function. A panic in it becomes an exception, the
// same on the runtime thread as on a worker.
func (ev *evaluator) callNative(fn *Function, args []any) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, newException("ErrorException", "%s panicked: %v", fn, r)
		}
	}()
	return fn.native.fn(&CallContext{Context: ev.ctx, Out: ev.out, Threads: ev.threads, engine: ev.engine}, args)
}

func (ev *evaluator) execBlock(block *ast.BlockStatement, env *environment) (control, any, error) {
	var last any
	for _, stmt := range block.Statements {
		ctrl, v, err := ev.exec(stmt, env)
		if err != nil || ctrl != ctrlNone {
			return ctrl, v, err
		}
		last = v
	}
	return ctrlNone, last, nil
}

// exec runs one statement. For expression statements the value is returned
// so that a block evaluates to its last expression.
func (ev *evaluator) exec(stmt ast.Statement, env *environment) (control, any, error) {
	switch s := stmt.(type) {
	case *ast.ExpressionStatement:
		v, err := ev.eval(s.Expression, env)
		return ctrlNone, v, err

	case *ast.AssignStatement:
		v, err := ev.eval(s.Value, env)
		if err != nil {
			return ctrlNone, nil, err
		}
		if s.Operator != "=" {
			old, err := ev.resolve(s.Name.Value, env)
			if err != nil {
				return ctrlNone, nil, err
			}
			v, err = binary(strings.TrimSuffix(s.Operator, "="), old, v)
			if err != nil {
				return ctrlNone, nil, err
			}
		}
		return ctrlNone, nil, ev.assign(s.Name.Value, v, env)

	case *ast.ReturnStatement:
		if s.Value == nil {
			return ctrlReturn, nil, nil
		}
		v, err := ev.eval(s.Value, env)
		return ctrlReturn, v, err

	case *ast.BreakStatement:
		return ctrlBreak, nil, nil

	case *ast.ContinueStatement:
		return ctrlContinue, nil, nil

	case *ast.IfStatement:
		cond, err := ev.condition(s.Condition, env)
		if err != nil {
			return ctrlNone, nil, err
		}
		if cond {
			return ev.execBlock(s.Consequence, env)
		}
		if s.Alternative != nil {
			if blk, ok := s.Alternative.(*ast.BlockStatement); ok {
				return ev.execBlock(blk, env)
			}
			return ev.exec(s.Alternative, env)
		}
		return ctrlNone, nil, nil

	case *ast.ForStatement:
		for {
			if ev.ticks++; ev.ticks%checkEvery == 0 {
				if err := ev.ctx.Err(); err != nil {
					return ctrlNone, nil, err
				}
			}
			if s.Condition != nil {
				cond, err := ev.condition(s.Condition, env)
				if err != nil {
					return ctrlNone, nil, err
				}
				if !cond {
					return ctrlNone, nil, nil
				}
			}
			ctrl, v, err := ev.execBlock(s.Body, env)
			if err != nil {
				return ctrlNone, nil, err
			}
			switch ctrl {
			case ctrlBreak:
				return ctrlNone, nil, nil
			case ctrlReturn:
				return ctrl, v, nil
			}
		}

	case *ast.FunctionStatement:
		params := make([]string, len(s.Parameters))
		for i, p := range s.Parameters {
			params[i] = p.Value
		}
		fn := &Function{name: s.Name.Value, module: env.module, params: params, body: s.Body}
		return ctrlNone, nil, ev.defineGlobal(env, s.Name.Value, fn, false)

	case *ast.ConstStatement:
		v, err := ev.eval(s.Value, env)
		if err != nil {
			return ctrlNone, nil, err
		}
		return ctrlNone, nil, ev.defineGlobal(env, s.Name.Value, v, true)

	case *ast.ModuleStatement:
		if ev.engine == nil || env.vars != nil {
			return ctrlNone, nil, newException("ErrorException", "module definitions must be at module level")
		}
		parent, ok := ev.lookup(env.module).value.(*Module)
		if !ok {
			return ctrlNone, nil, newException("ErrorException", "%s is not a module", env.module)
		}
		m, err := ev.engine.defineModule(parent, s.Name.Value)
		if err != nil {
			return ctrlNone, nil, err
		}
		ctrl, _, err := ev.execBlock(s.Body, &environment{module: m.path})
		if err == nil && ctrl != ctrlNone {
			err = newException("ErrorException", "break or continue outside a loop in module %s", m.path)
		}
		return ctrlNone, nil, err
	}
	return ctrlNone, nil, newException("ErrorException", "unsupported statement %T", stmt)
}

func (ev *evaluator) defineGlobal(env *environment, name string, v any, constant bool) error {
	if ev.engine == nil || env.vars != nil {
		return newException("ErrorException", "cannot define global %s inside a function", name)
	}
	return ev.engine.assignGlobal(env.module, name, v, constant)
}

func (ev *evaluator) assign(name string, v any, env *environment) error {
	if env.vars != nil {
		env.vars[name] = v
		return nil
	}
	return ev.defineGlobal(env, name, v, false)
}

func (ev *evaluator) condition(expr ast.Expression, env *environment) (bool, error) {
	v, err := ev.eval(expr, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, newException("TypeError", "non-boolean (%s) used in boolean context", KindOf(v))
	}
	return b, nil
}

func (ev *evaluator) resolve(name string, env *environment) (any, error) {
	if env.vars != nil {
		if v, ok := env.vars[name]; ok {
			return v, nil
		}
	}
	for _, key := range []string{env.module + "." + name, "Base." + name, "Core." + name, name} {
		if b := ev.lookup(key); b != nil {
			return b.value, nil
		}
	}
	return nil, newException("UndefVarError", "%s not defined", name)
}

func (ev *evaluator) eval(expr ast.Expression, env *environment) (any, error) {
	switch e := expr.(type) {
	case *ast.IntegerLiteral:
		return e.Value, nil
	case *ast.FloatLiteral:
		return e.Value, nil
	case *ast.StringLiteral:
		return e.Value, nil
	case *ast.BooleanLiteral:
		return e.Value, nil
	case *ast.NilLiteral:
		return nil, nil

	case *ast.Identifier:
		return ev.resolve(e.Value, env)

	case *ast.PrefixExpression:
		right, err := ev.eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		return unary(e.Operator, right)

	case *ast.InfixExpression:
		left, err := ev.eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		if e.Operator == "&&" || e.Operator == "||" {
			l, ok := left.(bool)
			if !ok {
				return nil, newException("TypeError", "non-boolean (%s) used in boolean context", KindOf(left))
			}
			if (e.Operator == "&&" && !l) || (e.Operator == "||" && l) {
				return l, nil
			}
			r, err := ev.condition(e.Right, env)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
		right, err := ev.eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		return binary(e.Operator, left, right)

	case *ast.MemberExpression:
		left, err := ev.eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		m, ok := left.(*Module)
		if !ok {
			return nil, newException("TypeError", "cannot access %s of a %s", e.Member.Value, KindOf(left))
		}
		b := ev.lookup(m.key(e.Member.Value))
		if b == nil {
			return nil, newException("UndefVarError", "%s not defined in %s", e.Member.Value, m.path)
		}
		return b.value, nil

	case *ast.CallExpression:
		callee, err := ev.eval(e.Function, env)
		if err != nil {
			return nil, err
		}
		fn, ok := callee.(*Function)
		if !ok {
			return nil, newException("MethodError", "objects of type %s are not callable", KindOf(callee))
		}
		args := make([]any, len(e.Arguments))
		for i, a := range e.Arguments {
			if args[i], err = ev.eval(a, env); err != nil {
				return nil, err
			}
		}
		return ev.call(fn, args)
	}
	return nil, newException("ErrorException", "unsupported expression %T", expr)
}

func methodError(name string, args []any) error {
	types := make([]string, len(args))
	for i, a := range args {
		types[i] = "::" + KindOf(a).String()
	}
	return newException("MethodError", "no method matching %s(%s)", name, strings.Join(types, ", "))
}

func unary(op string, v any) (any, error) {
	switch op {
	case "-":
		switch x := v.(type) {
		case int64:
			return -x, nil
		case float64:
			return -x, nil
		}
	case "!":
		if b, ok := v.(bool); ok {
			return !b, nil
		}
	}
	return nil, methodError(op, []any{v})
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func binary(op string, l, r any) (any, error) {
	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "++":
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok && rok {
			return ls + rs, nil
		}
		return nil, methodError(op, []any{l, r})
	}

	li, lInt := l.(int64)
	ri, rInt := r.(int64)
	if lInt && rInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			return float64(li) / float64(ri), nil
		case "%":
			if ri == 0 {
				return nil, newException("DivideError", "integer division error")
			}
			return li % ri, nil
		case "**":
			if ri < 0 {
				return math.Pow(float64(li), float64(ri)), nil
			}
			return ipow(li, ri), nil
		case "<":
			return li < ri, nil
		case "<=":
			return li <= ri, nil
		case ">":
			return li > ri, nil
		case ">=":
			return li >= ri, nil
		}
	}

	lf, lNum := toFloat(l)
	rf, rNum := toFloat(r)
	if lNum && rNum {
		switch op {
		case "+":
			return lf + rf, nil
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		case "/":
			return lf / rf, nil
		case "%":
			return math.Mod(lf, rf), nil
		case "**":
			return math.Pow(lf, rf), nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}

	ls, lStr := l.(string)
	rs, rStr := r.(string)
	if lStr && rStr {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, methodError(op, []any{l, r})
}

func ipow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func equal(l, r any) bool {
	lf, lNum := toFloat(l)
	rf, rNum := toFloat(r)
	if lNum && rNum {
		return lf == rf
	}
	return l == r
}
