// Package ast defines the Abstract Syntax Tree produced by the parser and
// consumed by the compiler.
package ast

import "github.com/kristofer/loxvm/pkg/lexer"

// Node is the interface every AST node implements.
type Node interface {
	TokenLiteral() string
	Line() int
}

// Expr is an expression node: it produces a value.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node: it produces an effect.
type Stmt interface {
	Node
	stmtNode()
}

// Program is the root node: a script's top-level statement sequence.
type Program struct {
	Statements []Stmt
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}
func (p *Program) Line() int { return 0 }

// --- Expressions ---

// Literal is a number, string, boolean, or nil constant.
type Literal struct {
	Token lexer.Token
	Value any // float64, string, bool, or nil
}

func (l *Literal) TokenLiteral() string { return l.Token.Lexeme }
func (l *Literal) Line() int            { return l.Token.Line }
func (l *Literal) exprNode()            {}

// Variable is a bare identifier reference.
type Variable struct {
	Name lexer.Token
}

func (v *Variable) TokenLiteral() string { return v.Name.Lexeme }
func (v *Variable) Line() int            { return v.Name.Line }
func (v *Variable) exprNode()            {}

// Assign is `target = value`.
type Assign struct {
	Name  lexer.Token
	Value Expr
}

func (a *Assign) TokenLiteral() string { return a.Name.Lexeme }
func (a *Assign) Line() int            { return a.Name.Line }
func (a *Assign) exprNode()            {}

// Unary is a prefix operator application: `-x` or `!x`.
type Unary struct {
	Op      lexer.Token
	Operand Expr
}

func (u *Unary) TokenLiteral() string { return u.Op.Lexeme }
func (u *Unary) Line() int            { return u.Op.Line }
func (u *Unary) exprNode()            {}

// Binary is an infix arithmetic or comparison operator application.
type Binary struct {
	Left  Expr
	Op    lexer.Token
	Right Expr
}

func (b *Binary) TokenLiteral() string { return b.Op.Lexeme }
func (b *Binary) Line() int            { return b.Op.Line }
func (b *Binary) exprNode()            {}

// Logical is `and`/`or`, kept distinct from Binary because both
// short-circuit and so compile to jumps rather than opcodes.
type Logical struct {
	Left  Expr
	Op    lexer.Token
	Right Expr
}

func (l *Logical) TokenLiteral() string { return l.Op.Lexeme }
func (l *Logical) Line() int            { return l.Op.Line }
func (l *Logical) exprNode()            {}

// Grouping is a parenthesized expression, kept only to preserve source
// fidelity; it compiles to nothing beyond its inner expression.
type Grouping struct {
	Paren      lexer.Token
	Expression Expr
}

func (g *Grouping) TokenLiteral() string { return g.Paren.Lexeme }
func (g *Grouping) Line() int            { return g.Paren.Line }
func (g *Grouping) exprNode()            {}

// Call is a function or method invocation: `callee(args...)`.
type Call struct {
	Callee    Expr
	Paren     lexer.Token // closing ')' token, for error line reporting
	Arguments []Expr
}

func (c *Call) TokenLiteral() string { return c.Paren.Lexeme }
func (c *Call) Line() int            { return c.Paren.Line }
func (c *Call) exprNode()            {}

// Get is a property read: `object.name`.
type Get struct {
	Object Expr
	Name   lexer.Token
}

func (g *Get) TokenLiteral() string { return g.Name.Lexeme }
func (g *Get) Line() int            { return g.Name.Line }
func (g *Get) exprNode()            {}

// Set is a property write: `object.name = value`.
type Set struct {
	Object Expr
	Name   lexer.Token
	Value  Expr
}

func (s *Set) TokenLiteral() string { return s.Name.Lexeme }
func (s *Set) Line() int            { return s.Name.Line }
func (s *Set) exprNode()            {}

// This is the `this` keyword used inside a method body.
type This struct {
	Keyword lexer.Token
}

func (t *This) TokenLiteral() string { return t.Keyword.Lexeme }
func (t *This) Line() int            { return t.Keyword.Line }
func (t *This) exprNode()            {}

// Super is `super.method`, resolved against the enclosing class's
// superclass rather than the receiver's dynamic class.
type Super struct {
	Keyword lexer.Token
	Method  lexer.Token
}

func (s *Super) TokenLiteral() string { return s.Keyword.Lexeme }
func (s *Super) Line() int            { return s.Keyword.Line }
func (s *Super) exprNode()            {}

// --- Statements ---

// ExpressionStmt evaluates an expression and discards the result.
type ExpressionStmt struct {
	Expression Expr
}

func (e *ExpressionStmt) TokenLiteral() string { return e.Expression.TokenLiteral() }
func (e *ExpressionStmt) Line() int            { return e.Expression.Line() }
func (e *ExpressionStmt) stmtNode()            {}

// PrintStmt evaluates an expression and writes its textual form to stdout.
type PrintStmt struct {
	Keyword    lexer.Token
	Expression Expr
}

func (p *PrintStmt) TokenLiteral() string { return p.Keyword.Lexeme }
func (p *PrintStmt) Line() int            { return p.Keyword.Line }
func (p *PrintStmt) stmtNode()            {}

// VarStmt declares a local or global variable, optionally with an
// initializer; an absent initializer binds the name to nil.
type VarStmt struct {
	Name        lexer.Token
	Initializer Expr // nil if undeclared
}

func (v *VarStmt) TokenLiteral() string { return v.Name.Lexeme }
func (v *VarStmt) Line() int            { return v.Name.Line }
func (v *VarStmt) stmtNode()            {}

// BlockStmt is a `{ ... }` lexical scope.
type BlockStmt struct {
	LeftBrace  lexer.Token
	Statements []Stmt
}

func (b *BlockStmt) TokenLiteral() string { return b.LeftBrace.Lexeme }
func (b *BlockStmt) Line() int            { return b.LeftBrace.Line }
func (b *BlockStmt) stmtNode()            {}

// IfStmt is `if (cond) then [else else]`.
type IfStmt struct {
	Keyword    lexer.Token
	Condition  Expr
	Then       Stmt
	Else       Stmt // nil if absent
}

func (i *IfStmt) TokenLiteral() string { return i.Keyword.Lexeme }
func (i *IfStmt) Line() int            { return i.Keyword.Line }
func (i *IfStmt) stmtNode()            {}

// WhileStmt is `while (cond) body`. ForStmt desugars into this during
// parsing, so the compiler only ever has to compile one looping construct.
type WhileStmt struct {
	Keyword   lexer.Token
	Condition Expr
	Body      Stmt
}

func (w *WhileStmt) TokenLiteral() string { return w.Keyword.Lexeme }
func (w *WhileStmt) Line() int            { return w.Keyword.Line }
func (w *WhileStmt) stmtNode()            {}

// FunctionStmt declares a named function (or, nested inside a ClassStmt, a
// method — the compiler tells the two apart by context, not by node type).
type FunctionStmt struct {
	Name   lexer.Token
	Params []lexer.Token
	Body   []Stmt
}

func (f *FunctionStmt) TokenLiteral() string { return f.Name.Lexeme }
func (f *FunctionStmt) Line() int            { return f.Name.Line }
func (f *FunctionStmt) stmtNode()            {}

// ReturnStmt is `return [expr];`. A bare `return;` inside an initializer
// still yields `this`, a rule the compiler enforces, not the parser.
type ReturnStmt struct {
	Keyword lexer.Token
	Value   Expr // nil if bare
}

func (r *ReturnStmt) TokenLiteral() string { return r.Keyword.Lexeme }
func (r *ReturnStmt) Line() int            { return r.Keyword.Line }
func (r *ReturnStmt) stmtNode()            {}

// ClassStmt declares a class, its optional superclass, and its methods.
type ClassStmt struct {
	Name       lexer.Token
	Superclass *Variable // nil if none
	Methods    []*FunctionStmt
}

func (c *ClassStmt) TokenLiteral() string { return c.Name.Lexeme }
func (c *ClassStmt) Line() int            { return c.Name.Line }
func (c *ClassStmt) stmtNode()            {}
