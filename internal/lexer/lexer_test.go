package lexer

import (
	"testing"

	"github.com/funvibe/fxhost/internal/diagnostics"
	"github.com/funvibe/fxhost/internal/pipeline"
	"github.com/funvibe/fxhost/internal/token"
)

func TestNextToken(t *testing.T) {
	input := `module Host {
    const LIMIT = 1_000
    fun complexfunc(a, b) {
        x += a ** 2 // square
        /* block
           comment */
        return x >= 1.5e3 && !done || s ++ "q\"\n"
    }
}
`
	tests := []struct {
		expectedType   token.TokenType
		expectedLexeme string
	}{
		{token.MODULE, "module"},
		{token.IDENT, "Host"},
		{token.LBRACE, "{"},
		{token.NEWLINE, "\n"},
		{token.CONST, "const"},
		{token.IDENT, "LIMIT"},
		{token.ASSIGN, "="},
		{token.INT, "1_000"},
		{token.NEWLINE, "\n"},
		{token.FUN, "fun"},
		{token.IDENT, "complexfunc"},
		{token.LPAREN, "("},
		{token.IDENT, "a"},
		{token.COMMA, ","},
		{token.IDENT, "b"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.NEWLINE, "\n"},
		{token.IDENT, "x"},
		{token.PLUS_ASSIGN, "+="},
		{token.IDENT, "a"},
		{token.POWER, "**"},
		{token.INT, "2"},
		{token.NEWLINE, "\n"},
		{token.NEWLINE, "\n"},
		{token.RETURN, "return"},
		{token.IDENT, "x"},
		{token.GTE, ">="},
		{token.FLOAT, "1.5e3"},
		{token.AND, "&&"},
		{token.BANG, "!"},
		{token.IDENT, "done"},
		{token.OR, "||"},
		{token.IDENT, "s"},
		{token.CONCAT, "++"},
		{token.STRING, `"q\"\n"`},
		{token.NEWLINE, "\n"},
		{token.RBRACE, "}"},
		{token.NEWLINE, "\n"},
		{token.RBRACE, "}"},
		{token.NEWLINE, "\n"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (%s)", i, tt.expectedType, tok.Type, tok)
		}
		if tok.Lexeme != tt.expectedLexeme {
			t.Fatalf("tests[%d] - lexeme wrong. expected=%q, got=%q", i, tt.expectedLexeme, tok.Lexeme)
		}
	}
}

func TestLiterals(t *testing.T) {
	toks := Tokenize(`42 3.25 1e2 "a\tb"`)
	if got := toks[0].Literal; got != int64(42) {
		t.Errorf("int literal = %#v", got)
	}
	if got := toks[1].Literal; got != 3.25 {
		t.Errorf("float literal = %#v", got)
	}
	if got := toks[2].Literal; got != 100.0 {
		t.Errorf("exponent literal = %#v", got)
	}
	if got := toks[3].Literal; got != "a\tb" {
		t.Errorf("string literal = %#v", got)
	}
}

func TestPositions(t *testing.T) {
	toks := Tokenize("a\n  bb")
	if toks[0].Line != 1 || toks[0].Column != 1 {
		t.Errorf("a at %d:%d", toks[0].Line, toks[0].Column)
	}
	if toks[2].Line != 2 || toks[2].Column != 3 {
		t.Errorf("bb at %d:%d", toks[2].Line, toks[2].Column)
	}
}

func TestLexerProcessorErrors(t *testing.T) {
	tests := []struct {
		input string
		code  diagnostics.ErrorCode
	}{
		{"x = @", diagnostics.ErrL001},
		{"a & b", diagnostics.ErrL001},
		{`s = "open`, diagnostics.ErrL002},
		{"n = 99999999999999999999", diagnostics.ErrL003},
	}
	for _, tt := range tests {
		ctx := pipeline.NewPipelineContext(tt.input)
		ctx.FilePath = "bad.fx"
		ctx = (&LexerProcessor{}).Process(ctx)
		if len(ctx.Errors) == 0 {
			t.Errorf("%q: expected an error", tt.input)
			continue
		}
		if ctx.Errors[0].Code != tt.code {
			t.Errorf("%q: code = %s, want %s", tt.input, ctx.Errors[0].Code, tt.code)
		}
		if ctx.Errors[0].File != "bad.fx" {
			t.Errorf("%q: file = %q", tt.input, ctx.Errors[0].File)
		}
	}
}
