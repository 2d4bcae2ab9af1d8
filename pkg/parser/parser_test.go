package parser_test

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/ast"
	"github.com/kristofer/loxvm/pkg/parser"
)

func parseOne(t *testing.T, src string) ast.Stmt {
	t.Helper()
	p := parser.New(src)
	prog := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("Parse(%q) errors: %v", src, errs)
	}
	if len(prog.Statements) != 1 {
		t.Fatalf("Parse(%q) = %d statements, want 1", src, len(prog.Statements))
	}
	return prog.Statements[0]
}

func TestParseVarDeclaration(t *testing.T) {
	stmt := parseOne(t, "var x = 1;")
	v, ok := stmt.(*ast.VarStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.VarStmt", stmt)
	}
	if v.Name.Lexeme != "x" {
		t.Errorf("name = %q, want x", v.Name.Lexeme)
	}
	lit, ok := v.Initializer.(*ast.Literal)
	if !ok || lit.Value != 1.0 {
		t.Fatalf("initializer = %#v", v.Initializer)
	}
}

func TestBinaryPrecedence(t *testing.T) {
	stmt := parseOne(t, "1 + 2 * 3;")
	es := stmt.(*ast.ExpressionStmt)
	bin, ok := es.Expression.(*ast.Binary)
	if !ok || bin.Op.Lexeme != "+" {
		t.Fatalf("top-level op = %#v, want +", es.Expression)
	}
	right, ok := bin.Right.(*ast.Binary)
	if !ok || right.Op.Lexeme != "*" {
		t.Fatalf("right operand = %#v, want a '*' binary", bin.Right)
	}
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	stmt := parseOne(t, "a = b = 3;")
	es := stmt.(*ast.ExpressionStmt)
	outer, ok := es.Expression.(*ast.Assign)
	if !ok || outer.Name.Lexeme != "a" {
		t.Fatalf("outer = %#v, want assign to a", es.Expression)
	}
	inner, ok := outer.Value.(*ast.Assign)
	if !ok || inner.Name.Lexeme != "b" {
		t.Fatalf("inner = %#v, want assign to b", outer.Value)
	}
}

func TestCallAndPropertyChain(t *testing.T) {
	stmt := parseOne(t, "a.b(1, 2).c;")
	es := stmt.(*ast.ExpressionStmt)
	get, ok := es.Expression.(*ast.Get)
	if !ok || get.Name.Lexeme != "c" {
		t.Fatalf("outermost = %#v, want a .c Get", es.Expression)
	}
	call, ok := get.Object.(*ast.Call)
	if !ok || len(call.Arguments) != 2 {
		t.Fatalf("call = %#v", get.Object)
	}
}

func TestForDesugarsToWhile(t *testing.T) {
	stmt := parseOne(t, "for (var i = 0; i < 3; i = i + 1) print i;")
	block, ok := stmt.(*ast.BlockStmt)
	if !ok || len(block.Statements) != 2 {
		t.Fatalf("for desugar = %#v, want a 2-statement block", stmt)
	}
	if _, ok := block.Statements[0].(*ast.VarStmt); !ok {
		t.Errorf("first statement = %T, want *ast.VarStmt", block.Statements[0])
	}
	whileStmt, ok := block.Statements[1].(*ast.WhileStmt)
	if !ok {
		t.Fatalf("second statement = %T, want *ast.WhileStmt", block.Statements[1])
	}
	body, ok := whileStmt.Body.(*ast.BlockStmt)
	if !ok || len(body.Statements) != 2 {
		t.Fatalf("while body = %#v, want [print, increment]", whileStmt.Body)
	}
}

func TestForWithOmittedConditionDefaultsTrue(t *testing.T) {
	stmt := parseOne(t, "for (;;) print 1;")
	whileStmt, ok := stmt.(*ast.WhileStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.WhileStmt", stmt)
	}
	lit, ok := whileStmt.Condition.(*ast.Literal)
	if !ok || lit.Value != true {
		t.Fatalf("condition = %#v, want literal true", whileStmt.Condition)
	}
}

func TestClassDeclarationWithSuperclassAndMethods(t *testing.T) {
	stmt := parseOne(t, "class B < A { greet() { print \"hi\"; } }")
	class, ok := stmt.(*ast.ClassStmt)
	if !ok {
		t.Fatalf("got %T, want *ast.ClassStmt", stmt)
	}
	if class.Superclass == nil || class.Superclass.Name.Lexeme != "A" {
		t.Fatalf("superclass = %#v, want A", class.Superclass)
	}
	if len(class.Methods) != 1 || class.Methods[0].Name.Lexeme != "greet" {
		t.Fatalf("methods = %#v", class.Methods)
	}
}

func TestSuperCallParses(t *testing.T) {
	stmt := parseOne(t, "class B < A { greet() { super.greet(); } }")
	class := stmt.(*ast.ClassStmt)
	body := class.Methods[0].Body
	es := body[0].(*ast.ExpressionStmt)
	call, ok := es.Expression.(*ast.Call)
	if !ok {
		t.Fatalf("body = %#v, want a Call", es.Expression)
	}
	if _, ok := call.Callee.(*ast.Super); !ok {
		t.Fatalf("callee = %#v, want *ast.Super", call.Callee)
	}
}

func TestMissingSemicolonIsRecordedAsError(t *testing.T) {
	p := parser.New("var x = 1")
	p.Parse()
	if len(p.Errors()) == 0 {
		t.Fatal("expected a syntax error for the missing semicolon")
	}
}

func TestSynchronizationRecoversAfterError(t *testing.T) {
	// A missing semicolon on the first statement shouldn't prevent the
	// second, well-formed statement from being parsed.
	p := parser.New("var x = 1\nvar y = 2;")
	prog := p.Parse()
	if len(p.Errors()) == 0 {
		t.Fatal("expected at least one syntax error")
	}
	found := false
	for _, s := range prog.Statements {
		if v, ok := s.(*ast.VarStmt); ok && v.Name.Lexeme == "y" {
			found = true
		}
	}
	if !found {
		t.Fatal("parser did not recover to parse the second declaration")
	}
}
