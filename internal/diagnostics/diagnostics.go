// Package diagnostics carries positioned errors produced while loading source.
package diagnostics

import (
	"fmt"

	"github.com/funvibe/fxhost/internal/token"
)

type ErrorCode string

const (
	// Lexer
	ErrL001 ErrorCode = "L001" // illegal character
	ErrL002 ErrorCode = "L002" // unterminated string
	ErrL003 ErrorCode = "L003" // malformed number

	// Parser
	ErrP001 ErrorCode = "P001" // unexpected token
	ErrP002 ErrorCode = "P002" // no expression starts with this token
	ErrP003 ErrorCode = "P003" // invalid assignment target
	ErrP004 ErrorCode = "P004" // declaration not allowed here
	ErrP005 ErrorCode = "P005" // nesting too deep
)

// DiagnosticError is an error tied to a source position.
type DiagnosticError struct {
	Code    ErrorCode
	Token   token.Token
	Message string
	File    string
}

func NewError(code ErrorCode, tok token.Token, message string) *DiagnosticError {
	return &DiagnosticError{Code: code, Token: tok, Message: message}
}

func (e *DiagnosticError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: [%s] %s", file, e.Token.Line, e.Token.Column, e.Code, e.Message)
}
