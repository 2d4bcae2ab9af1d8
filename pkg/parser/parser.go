// Package parser implements the Lox language parser.
//
// The parser converts a stream of tokens (from the lexer) into an Abstract
// Syntax Tree. It performs syntactic analysis and, for expressions, operator
// precedence climbing; it does not resolve names or check types, both of
// which are the compiler's job.
//
// Parser Architecture:
//
// The parser uses recursive descent for statements and precedence climbing
// (a Pratt parser) for expressions. It maintains two tokens at all times:
//   - curTok: the token being examined
//   - peekTok: the next token (one token lookahead)
//
// Error Handling:
//
// The parser accumulates errors in the `errors` slice rather than stopping
// at the first one, and synchronizes to the next statement boundary after
// each error so that a single mistake doesn't cascade into dozens of
// spurious ones.
//
// Operator Precedence (lowest to highest):
//
//	assignment
//	or
//	and
//	equality    == !=
//	comparison  < <= > >=
//	term        + -
//	factor      * /
//	unary       ! -
//	call        . ()
//	primary
package parser

import (
	"fmt"
	"strconv"

	"github.com/kristofer/loxvm/pkg/ast"
	"github.com/kristofer/loxvm/pkg/lexer"
)

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precCall
	precPrimary
)

var precedenceOf = map[lexer.TokenType]precedence{
	lexer.TokenEqual:        precAssignment,
	lexer.TokenOr:           precOr,
	lexer.TokenAnd:          precAnd,
	lexer.TokenEqualEqual:   precEquality,
	lexer.TokenBangEqual:    precEquality,
	lexer.TokenLess:         precComparison,
	lexer.TokenLessEqual:    precComparison,
	lexer.TokenGreater:      precComparison,
	lexer.TokenGreaterEqual: precComparison,
	lexer.TokenPlus:         precTerm,
	lexer.TokenMinus:        precTerm,
	lexer.TokenStar:         precFactor,
	lexer.TokenSlash:        precFactor,
}

// Parser is a stateful, single-use recursive-descent parser: create a new
// one per source file or REPL line.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New creates a Parser over src, priming the two-token lookahead window.
func New(src string) *Parser {
	p := &Parser{l: lexer.New(src)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
}

// Errors returns every syntax error accumulated during Parse.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) errorf(tok lexer.Token, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Sprintf("[line %d] %s", tok.Line, msg))
}

func (p *Parser) check(t lexer.TokenType) bool { return p.curTok.Type == t }

func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.nextToken()
			return true
		}
	}
	return false
}

func (p *Parser) expect(t lexer.TokenType, context string) lexer.Token {
	if p.check(t) {
		tok := p.curTok
		p.nextToken()
		return tok
	}
	p.errorf(p.curTok, "expected %s %s, got %s", t, context, p.curTok.Type)
	return p.curTok
}

// Parse consumes the whole token stream and returns the resulting Program.
// Syntax errors are recorded in Errors(); the returned Program still
// contains every statement that parsed successfully.
func (p *Parser) Parse() *ast.Program {
	prog := &ast.Program{}
	for !p.check(lexer.TokenEOF) {
		stmt := p.declaration()
		if stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
	}
	return prog
}

// synchronize discards tokens until it reaches a plausible statement
// boundary, so a single syntax error doesn't produce a cascade of them. It
// checks the current token before advancing: a failed expect() leaves
// curTok sitting on the unexpected token, which is often itself a good
// boundary (e.g. the next declaration's leading keyword).
func (p *Parser) synchronize() {
	for !p.check(lexer.TokenEOF) {
		switch p.curTok.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		case lexer.TokenSemicolon:
			p.nextToken()
			return
		}
		p.nextToken()
	}
}

// --- Declarations ---

func (p *Parser) declaration() ast.Stmt {
	errsBefore := len(p.errors)
	var stmt ast.Stmt
	switch {
	case p.match(lexer.TokenClass):
		stmt = p.classDeclaration()
	case p.match(lexer.TokenFun):
		stmt = p.function("function")
	case p.match(lexer.TokenVar):
		stmt = p.varDeclaration()
	default:
		stmt = p.statement()
	}
	if len(p.errors) > errsBefore {
		p.synchronize()
	}
	return stmt
}

func (p *Parser) classDeclaration() ast.Stmt {
	name := p.expect(lexer.TokenIdentifier, "class name")
	var super *ast.Variable
	if p.match(lexer.TokenLess) {
		superName := p.expect(lexer.TokenIdentifier, "superclass name")
		super = &ast.Variable{Name: superName}
	}
	p.expect(lexer.TokenLeftBrace, "before class body")

	var methods []*ast.FunctionStmt
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		methods = append(methods, p.function("method"))
	}
	p.expect(lexer.TokenRightBrace, "after class body")
	return &ast.ClassStmt{Name: name, Superclass: super, Methods: methods}
}

func (p *Parser) function(kind string) *ast.FunctionStmt {
	name := p.expect(lexer.TokenIdentifier, kind+" name")
	p.expect(lexer.TokenLeftParen, "after "+kind+" name")
	var params []lexer.Token
	if !p.check(lexer.TokenRightParen) {
		for {
			if len(params) >= 255 {
				p.errorf(p.curTok, "can't have more than 255 parameters")
			}
			params = append(params, p.expect(lexer.TokenIdentifier, "parameter name"))
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.expect(lexer.TokenRightParen, "after parameters")
	p.expect(lexer.TokenLeftBrace, "before "+kind+" body")
	body := p.block()
	return &ast.FunctionStmt{Name: name, Params: params, Body: body}
}

func (p *Parser) varDeclaration() ast.Stmt {
	name := p.expect(lexer.TokenIdentifier, "variable name")
	var init ast.Expr
	if p.match(lexer.TokenEqual) {
		init = p.expression()
	}
	p.expect(lexer.TokenSemicolon, "after variable declaration")
	return &ast.VarStmt{Name: name, Initializer: init}
}

// --- Statements ---

func (p *Parser) statement() ast.Stmt {
	keyword := p.curTok
	switch {
	case p.check(lexer.TokenPrint):
		p.nextToken()
		return p.printStatement(keyword)
	case p.check(lexer.TokenIf):
		p.nextToken()
		return p.ifStatement(keyword)
	case p.check(lexer.TokenWhile):
		p.nextToken()
		return p.whileStatement(keyword)
	case p.check(lexer.TokenFor):
		p.nextToken()
		return p.forStatement()
	case p.check(lexer.TokenReturn):
		p.nextToken()
		return p.returnStatement(keyword)
	case p.check(lexer.TokenLeftBrace):
		p.nextToken()
		return &ast.BlockStmt{LeftBrace: keyword, Statements: p.block()}
	default:
		return p.expressionStatement()
	}
}

func (p *Parser) printStatement(keyword lexer.Token) ast.Stmt {
	value := p.expression()
	p.expect(lexer.TokenSemicolon, "after value")
	return &ast.PrintStmt{Keyword: keyword, Expression: value}
}

func (p *Parser) block() []ast.Stmt {
	var stmts []ast.Stmt
	for !p.check(lexer.TokenRightBrace) && !p.check(lexer.TokenEOF) {
		stmt := p.declaration()
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	p.expect(lexer.TokenRightBrace, "after block")
	return stmts
}

func (p *Parser) ifStatement(keyword lexer.Token) ast.Stmt {
	p.expect(lexer.TokenLeftParen, "after 'if'")
	cond := p.expression()
	p.expect(lexer.TokenRightParen, "after if condition")
	then := p.statement()
	var elseBranch ast.Stmt
	if p.match(lexer.TokenElse) {
		elseBranch = p.statement()
	}
	return &ast.IfStmt{Keyword: keyword, Condition: cond, Then: then, Else: elseBranch}
}

func (p *Parser) whileStatement(keyword lexer.Token) ast.Stmt {
	p.expect(lexer.TokenLeftParen, "after 'while'")
	cond := p.expression()
	p.expect(lexer.TokenRightParen, "after while condition")
	body := p.statement()
	return &ast.WhileStmt{Keyword: keyword, Condition: cond, Body: body}
}

// forStatement desugars `for (init; cond; post) body` into the equivalent
// block/while form, so the compiler has only one looping construct to emit.
func (p *Parser) forStatement() ast.Stmt {
	p.expect(lexer.TokenLeftParen, "after 'for'")

	var init ast.Stmt
	switch {
	case p.match(lexer.TokenSemicolon):
		init = nil
	case p.match(lexer.TokenVar):
		init = p.varDeclaration()
	default:
		init = p.expressionStatement()
	}

	var cond ast.Expr
	if !p.check(lexer.TokenSemicolon) {
		cond = p.expression()
	}
	p.expect(lexer.TokenSemicolon, "after loop condition")

	var post ast.Expr
	if !p.check(lexer.TokenRightParen) {
		post = p.expression()
	}
	p.expect(lexer.TokenRightParen, "after for clauses")

	body := p.statement()

	if post != nil {
		body = &ast.BlockStmt{Statements: []ast.Stmt{body, &ast.ExpressionStmt{Expression: post}}}
	}
	if cond == nil {
		cond = &ast.Literal{Value: true}
	}
	body = &ast.WhileStmt{Condition: cond, Body: body}

	if init != nil {
		body = &ast.BlockStmt{Statements: []ast.Stmt{init, body}}
	}
	return body
}

func (p *Parser) returnStatement(keyword lexer.Token) ast.Stmt {
	var value ast.Expr
	if !p.check(lexer.TokenSemicolon) {
		value = p.expression()
	}
	p.expect(lexer.TokenSemicolon, "after return value")
	return &ast.ReturnStmt{Keyword: keyword, Value: value}
}

func (p *Parser) expressionStatement() ast.Stmt {
	expr := p.expression()
	p.expect(lexer.TokenSemicolon, "after expression")
	return &ast.ExpressionStmt{Expression: expr}
}

// --- Expressions (precedence climbing) ---

func (p *Parser) expression() ast.Expr {
	return p.parsePrecedence(precAssignment)
}

func (p *Parser) parsePrecedence(min precedence) ast.Expr {
	left := p.unaryOrPrimary()

	for {
		prec, ok := precedenceOf[p.curTok.Type]
		if !ok || prec < min {
			break
		}

		if p.curTok.Type == lexer.TokenEqual {
			eq := p.curTok
			p.nextToken()
			value := p.parsePrecedence(precAssignment)
			left = p.finishAssign(left, eq, value)
			continue
		}

		op := p.curTok
		p.nextToken()
		right := p.parsePrecedence(prec + 1)

		switch op.Type {
		case lexer.TokenAnd, lexer.TokenOr:
			left = &ast.Logical{Left: left, Op: op, Right: right}
		default:
			left = &ast.Binary{Left: left, Op: op, Right: right}
		}
	}
	return left
}

func (p *Parser) finishAssign(target ast.Expr, eq lexer.Token, value ast.Expr) ast.Expr {
	switch t := target.(type) {
	case *ast.Variable:
		return &ast.Assign{Name: t.Name, Value: value}
	case *ast.Get:
		return &ast.Set{Object: t.Object, Name: t.Name, Value: value}
	default:
		p.errorf(eq, "invalid assignment target")
		return value
	}
}

func (p *Parser) unaryOrPrimary() ast.Expr {
	if p.check(lexer.TokenBang) || p.check(lexer.TokenMinus) {
		op := p.curTok
		p.nextToken()
		operand := p.parsePrecedence(precUnary)
		return &ast.Unary{Op: op, Operand: operand}
	}
	return p.call()
}

// call parses a primary expression followed by any number of call and
// property-access suffixes: `f(a)(b).field(c)`.
func (p *Parser) call() ast.Expr {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenLeftParen):
			expr = p.finishCall(expr)
		case p.match(lexer.TokenDot):
			name := p.expect(lexer.TokenIdentifier, "property name after '.'")
			expr = &ast.Get{Object: expr, Name: name}
		default:
			return expr
		}
	}
}

func (p *Parser) finishCall(callee ast.Expr) ast.Expr {
	var args []ast.Expr
	if !p.check(lexer.TokenRightParen) {
		for {
			if len(args) >= 255 {
				p.errorf(p.curTok, "can't have more than 255 arguments")
			}
			args = append(args, p.expression())
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	paren := p.expect(lexer.TokenRightParen, "after arguments")
	return &ast.Call{Callee: callee, Paren: paren, Arguments: args}
}

func (p *Parser) primary() ast.Expr {
	tok := p.curTok
	switch tok.Type {
	case lexer.TokenFalse:
		p.nextToken()
		return &ast.Literal{Token: tok, Value: false}
	case lexer.TokenTrue:
		p.nextToken()
		return &ast.Literal{Token: tok, Value: true}
	case lexer.TokenNil:
		p.nextToken()
		return &ast.Literal{Token: tok, Value: nil}
	case lexer.TokenNumber:
		p.nextToken()
		n, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			p.errorf(tok, "invalid number literal %q", tok.Lexeme)
		}
		return &ast.Literal{Token: tok, Value: n}
	case lexer.TokenString:
		p.nextToken()
		return &ast.Literal{Token: tok, Value: tok.Literal}
	case lexer.TokenThis:
		p.nextToken()
		return &ast.This{Keyword: tok}
	case lexer.TokenSuper:
		p.nextToken()
		p.expect(lexer.TokenDot, "after 'super'")
		method := p.expect(lexer.TokenIdentifier, "superclass method name")
		return &ast.Super{Keyword: tok, Method: method}
	case lexer.TokenIdentifier:
		p.nextToken()
		return &ast.Variable{Name: tok}
	case lexer.TokenLeftParen:
		p.nextToken()
		inner := p.expression()
		p.expect(lexer.TokenRightParen, "after expression")
		return &ast.Grouping{Paren: tok, Expression: inner}
	default:
		p.errorf(tok, "expected expression, got %s", tok.Type)
		p.nextToken()
		return &ast.Literal{Token: tok, Value: nil}
	}
}
