package parser

import (
	"github.com/funvibe/fxhost/internal/ast"
	"github.com/funvibe/fxhost/internal/diagnostics"
	"github.com/funvibe/fxhost/internal/token"
)

// parseStatement parses one statement starting at curToken and leaves
// curToken on its last token. Declarations (module, fun, const) are only
// accepted at module level.
func (p *Parser) parseStatement(moduleLevel bool) ast.Statement {
	switch p.curToken.Type {
	case token.MODULE, token.FUN, token.CONST:
		if !moduleLevel {
			p.addError(diagnostics.ErrP004, p.curToken, "%s declaration is only allowed at module level", p.curToken.Lexeme)
			return nil
		}
		switch p.curToken.Type {
		case token.MODULE:
			return p.parseModuleStatement()
		case token.FUN:
			return p.parseFunctionStatement()
		default:
			return p.parseConstStatement()
		}
	case token.RETURN:
		if moduleLevel {
			p.addError(diagnostics.ErrP004, p.curToken, "return is only allowed inside function bodies")
			return nil
		}
		return p.parseReturnStatement()
	case token.BREAK:
		return &ast.BreakStatement{Token: p.curToken}
	case token.CONTINUE:
		return &ast.ContinueStatement{Token: p.curToken}
	case token.IF:
		return p.parseIfStatement(moduleLevel)
	case token.FOR:
		return p.parseForStatement(moduleLevel)
	case token.IDENT:
		if isAssignOperator(p.peekToken.Type) {
			return p.parseAssignStatement()
		}
	}
	return p.parseExpressionStatement()
}

func isAssignOperator(t token.TokenType) bool {
	switch t {
	case token.ASSIGN, token.PLUS_ASSIGN, token.MINUS_ASSIGN, token.ASTERISK_ASSIGN, token.SLASH_ASSIGN:
		return true
	}
	return false
}

func (p *Parser) parseModuleStatement() *ast.ModuleStatement {
	ms := &ast.ModuleStatement{Token: p.curToken}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	ms.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	ms.Body = p.parseBlockStatement(true)
	if ms.Body == nil {
		return nil
	}
	return ms
}

func (p *Parser) parseFunctionStatement() *ast.FunctionStatement {
	fs := &ast.FunctionStatement{Token: p.curToken}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	fs.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
	if !p.expectPeek(token.LPAREN) {
		return nil
	}

	seen := make(map[string]bool)
	p.skipPeekNewlines()
	for !p.peekTokenIs(token.RPAREN) {
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		param := &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
		if seen[param.Value] {
			p.addError(diagnostics.ErrP001, p.curToken, "duplicate parameter %s", param.Value)
			return nil
		}
		seen[param.Value] = true
		fs.Parameters = append(fs.Parameters, param)
		p.skipPeekNewlines()
		if p.peekTokenIs(token.COMMA) {
			p.nextToken()
			p.skipPeekNewlines()
		} else if !p.peekTokenIs(token.RPAREN) {
			p.peekError(token.RPAREN)
			return nil
		}
	}
	p.nextToken() // )

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	fs.Body = p.parseBlockStatement(false)
	if fs.Body == nil {
		return nil
	}
	return fs
}

func (p *Parser) parseConstStatement() *ast.ConstStatement {
	cs := &ast.ConstStatement{Token: p.curToken}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	cs.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
	if !p.expectPeek(token.ASSIGN) {
		return nil
	}
	p.nextToken()
	p.skipNewlines()
	cs.Value = p.parseExpression(LOWEST)
	if cs.Value == nil {
		return nil
	}
	return cs
}

func (p *Parser) parseAssignStatement() *ast.AssignStatement {
	as := &ast.AssignStatement{Token: p.curToken}
	as.Name = &ast.Identifier{Token: p.curToken, Value: p.curToken.Lexeme}
	p.nextToken()
	as.Operator = p.curToken.Lexeme
	p.nextToken()
	p.skipNewlines()
	as.Value = p.parseExpression(LOWEST)
	if as.Value == nil {
		return nil
	}
	return as
}

func (p *Parser) parseReturnStatement() *ast.ReturnStatement {
	rs := &ast.ReturnStatement{Token: p.curToken}
	switch p.peekToken.Type {
	case token.NEWLINE, token.SEMICOLON, token.RBRACE, token.EOF:
		return rs
	}
	p.nextToken()
	rs.Value = p.parseExpression(LOWEST)
	if rs.Value == nil {
		return nil
	}
	return rs
}

func (p *Parser) parseExpressionStatement() *ast.ExpressionStatement {
	stmt := &ast.ExpressionStatement{Token: p.curToken}
	stmt.Expression = p.parseExpression(LOWEST)
	if stmt.Expression == nil {
		return nil
	}
	if isAssignOperator(p.peekToken.Type) {
		p.addError(diagnostics.ErrP003, p.peekToken, "cannot assign to %s", stmt.Expression.String())
		return nil
	}
	return stmt
}

func (p *Parser) parseIfStatement(moduleLevel bool) *ast.IfStatement {
	is := &ast.IfStatement{Token: p.curToken}
	p.nextToken()
	is.Condition = p.parseExpression(LOWEST)
	if is.Condition == nil {
		return nil
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	is.Consequence = p.parseBlockStatement(moduleLevel)
	if is.Consequence == nil {
		return nil
	}

	if !p.elseAhead() {
		return is
	}
	p.skipPeekNewlines()
	p.nextToken() // else

	if p.peekTokenIs(token.IF) {
		p.nextToken()
		alt := p.parseIfStatement(moduleLevel)
		if alt == nil {
			return nil
		}
		is.Alternative = alt
		return is
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	alt := p.parseBlockStatement(moduleLevel)
	if alt == nil {
		return nil
	}
	is.Alternative = alt
	return is
}

// elseAhead reports whether the next non-newline token is else.
func (p *Parser) elseAhead() bool {
	if p.peekTokenIs(token.ELSE) {
		return true
	}
	if !p.peekTokenIs(token.NEWLINE) {
		return false
	}
	for i := p.pos; i < len(p.tokens); i++ {
		switch p.tokens[i].Type {
		case token.NEWLINE:
			continue
		case token.ELSE:
			return true
		default:
			return false
		}
	}
	return false
}

func (p *Parser) parseForStatement(moduleLevel bool) *ast.ForStatement {
	fs := &ast.ForStatement{Token: p.curToken}
	if !p.peekTokenIs(token.LBRACE) {
		p.nextToken()
		fs.Condition = p.parseExpression(LOWEST)
		if fs.Condition == nil {
			return nil
		}
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	fs.Body = p.parseBlockStatement(moduleLevel)
	if fs.Body == nil {
		return nil
	}
	return fs
}

// parseBlockStatement expects curToken to be '{' and leaves it on '}'.
func (p *Parser) parseBlockStatement(moduleLevel bool) *ast.BlockStatement {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > MaxRecursionDepth {
		p.addError(diagnostics.ErrP005, p.curToken, "blocks nested too deeply")
		return nil
	}

	block := &ast.BlockStatement{Token: p.curToken}
	p.nextToken()

	for {
		p.skipNewlines()
		if p.curTokenIs(token.RBRACE) {
			return block
		}
		if p.curTokenIs(token.EOF) {
			p.addError(diagnostics.ErrP001, p.curToken, "expected }, got end of file")
			return nil
		}
		errs := len(p.ctx.Errors)
		stmt := p.parseStatement(moduleLevel)
		if len(p.ctx.Errors) > errs {
			return nil
		}
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		}
		p.nextToken()
	}
}
