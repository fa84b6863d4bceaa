package parser

import (
	"fmt"

	"moocore/types"
)

// parseTryStatement parses try ... [except ...]... [finally ...] endtry.
// The three shapes (except-only, finally-only, except-then-finally) each
// get their own AST node since the compiler's code generation differs for
// each (exception handlers vs. an unconditional cleanup block).
func (p *Parser) parseTryStatement() (Stmt, error) {
	pos := p.current.Position
	p.nextToken() // consume 'try'

	body, err := p.parseBody(TOKEN_EXCEPT, TOKEN_FINALLY, TOKEN_ENDTRY)
	if err != nil {
		return nil, err
	}

	var excepts []ExceptClause
	for p.current.Type == TOKEN_EXCEPT {
		clause, err := p.parseExceptClause()
		if err != nil {
			return nil, err
		}
		excepts = append(excepts, clause)
	}

	var finallyBody []Stmt
	hasFinally := false
	if p.current.Type == TOKEN_FINALLY {
		hasFinally = true
		p.nextToken() // consume 'finally'
		finallyBody, err = p.parseBody(TOKEN_ENDTRY)
		if err != nil {
			return nil, err
		}
	}

	if p.current.Type != TOKEN_ENDTRY {
		return nil, fmt.Errorf("expected 'endtry'")
	}
	p.nextToken() // consume 'endtry'

	switch {
	case len(excepts) > 0 && hasFinally:
		return &TryExceptFinallyStmt{Pos: pos, Body: body, Excepts: excepts, Finally: finallyBody}, nil
	case hasFinally:
		return &TryFinallyStmt{Pos: pos, Body: body, Finally: finallyBody}, nil
	default:
		return &TryExceptStmt{Pos: pos, Body: body, Excepts: excepts}, nil
	}
}

// parseExceptClause parses one `except [var] (codes|ANY) ... ` clause.
func (p *Parser) parseExceptClause() (ExceptClause, error) {
	pos := p.current.Position
	p.nextToken() // consume 'except'

	var variable string
	if p.current.Type == TOKEN_IDENTIFIER {
		variable = p.current.Value
		p.nextToken()
	}

	if p.current.Type != TOKEN_LPAREN {
		return ExceptClause{}, fmt.Errorf("expected '(' after 'except'")
	}
	p.nextToken() // consume '('

	var isAny bool
	var codes []types.ErrorCode
	if p.current.Type == TOKEN_ANY {
		isAny = true
		p.nextToken()
	} else {
		code, err := p.parseErrorCodeName()
		if err != nil {
			return ExceptClause{}, err
		}
		codes = append(codes, code)
		for p.current.Type == TOKEN_PIPE || p.current.Type == TOKEN_COMMA {
			p.nextToken()
			code, err := p.parseErrorCodeName()
			if err != nil {
				return ExceptClause{}, err
			}
			codes = append(codes, code)
		}
	}

	if p.current.Type != TOKEN_RPAREN {
		return ExceptClause{}, fmt.Errorf("expected ')' after except codes")
	}
	p.nextToken() // consume ')'

	body, err := p.parseBody(TOKEN_EXCEPT, TOKEN_FINALLY, TOKEN_ENDTRY)
	if err != nil {
		return ExceptClause{}, err
	}

	return ExceptClause{Pos: pos, IsAny: isAny, Codes: codes, Variable: variable, Body: body}, nil
}

// parseForkStatement parses fork [name] (delay) ... endfork.
func (p *Parser) parseForkStatement() (Stmt, error) {
	pos := p.current.Position
	p.nextToken() // consume 'fork'

	var varName string
	if p.current.Type == TOKEN_IDENTIFIER {
		varName = p.current.Value
		p.nextToken()
	}

	if p.current.Type != TOKEN_LPAREN {
		return nil, fmt.Errorf("expected '(' after 'fork'")
	}
	p.nextToken() // consume '('

	delay, err := p.ParseExpression(PREC_LOWEST)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TOKEN_RPAREN {
		return nil, fmt.Errorf("expected ')' after fork delay")
	}
	p.nextToken() // consume ')'

	body, err := p.parseBody(TOKEN_ENDFORK)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TOKEN_ENDFORK {
		return nil, fmt.Errorf("expected 'endfork'")
	}
	p.nextToken() // consume 'endfork'

	return &ForkStmt{Pos: pos, VarName: varName, Delay: delay, Body: body}, nil
}

// parseBeginStatement parses begin ... end, a lexical scope block whose
// let/const declarations are arena-scoped rather than flat locals.
func (p *Parser) parseBeginStatement() (Stmt, error) {
	pos := p.current.Position
	p.nextToken() // consume 'begin'

	body, err := p.parseBody(TOKEN_END)
	if err != nil {
		return nil, err
	}

	if p.current.Type != TOKEN_END {
		return nil, fmt.Errorf("expected 'end'")
	}
	p.nextToken() // consume 'end'

	return &BeginStmt{Pos: pos, Body: body}, nil
}

// parseVarDeclStatement parses `let name [= expr];`, `const name = expr;`,
// and `global name [= expr];`.
func (p *Parser) parseVarDeclStatement() (Stmt, error) {
	pos := p.current.Position
	var kind VarDeclKind
	switch p.current.Type {
	case TOKEN_LET:
		kind = DeclLet
	case TOKEN_CONST:
		kind = DeclConst
	case TOKEN_GLOBAL:
		kind = DeclGlobal
	}
	p.nextToken() // consume 'let'/'const'/'global'

	if p.current.Type != TOKEN_IDENTIFIER {
		return nil, fmt.Errorf("expected identifier after variable declaration keyword")
	}
	name := p.current.Value
	p.nextToken()

	var value Expr
	if p.current.Type == TOKEN_ASSIGN {
		p.nextToken() // consume '='
		var err error
		value, err = p.ParseExpression(PREC_LOWEST)
		if err != nil {
			return nil, err
		}
	} else if kind == DeclConst {
		return nil, fmt.Errorf("const declaration requires an initializer")
	}

	if p.current.Type != TOKEN_SEMICOLON {
		return nil, fmt.Errorf("expected ';' after variable declaration")
	}
	p.nextToken() // consume ';'

	return &VarDeclStmt{Pos: pos, Kind: kind, Name: name, Value: value}, nil
}
