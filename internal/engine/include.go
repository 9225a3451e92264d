package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/funvibe/fxhost/internal/lexer"
	"github.com/funvibe/fxhost/internal/parser"
	"github.com/funvibe/fxhost/internal/pipeline"
)

// Include loads a source file into Main. Definitions made before a failing
// statement stay in place.
func (e *Engine) Include(path string) error {
	if err := e.check(); err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &IncludeNotFoundError{Path: path}
		}
		return &IncludeError{Path: path, Cause: err}
	}
	if err := e.load(path, string(src)); err != nil {
		return &IncludeError{Path: path, Cause: err}
	}
	e.logger.Debug("included", "path", path)
	return nil
}

// EvalString evaluates source as if it were included from a file called
// name. Errors are returned unwrapped.
func (e *Engine) EvalString(name, source string) error {
	if err := e.check(); err != nil {
		return err
	}
	return e.load(name, source)
}

func (e *Engine) load(name, source string) error {
	ctx := pipeline.NewPipelineContext(source)
	ctx.FilePath = name
	ctx = pipeline.New(&lexer.LexerProcessor{}, &parser.ParserProcessor{}).Run(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := e.newEvaluator(context.Background())
	env := &environment{module: e.main.path}
	for _, stmt := range ctx.AstRoot.Statements {
		ctrl, _, err := ev.exec(stmt, env)
		if err != nil {
			return err
		}
		if ctrl != ctrlNone {
			return newException("ErrorException", "%s outside a function or loop", stmt.TokenLiteral())
		}
	}
	return nil
}
