// Package compiler walks an AST and emits bytecode into a chunk.
//
// Compiler Architecture:
//
// One *Compiler exists per function body being compiled (including the
// implicit top-level script), chained to its enclosing compiler through
// `enclosing`. The chain is what lets a nested function resolve a name to
// an upvalue: resolveUpvalue walks outward, asking each enclosing compiler
// in turn whether it owns the name as a local, and captures it at every
// level along the way.
//
// Locals are resolved to stack slots at compile time; no runtime name
// lookup happens for them. Globals are resolved by name at runtime through
// the globals table. Control flow (if/while/and/or) is compiled with jump
// opcodes emitted with a placeholder 16-bit operand that is backpatched
// once the jump target is known, the standard technique for a single-pass
// bytecode compiler.
package compiler

import (
	"fmt"

	"github.com/kristofer/loxvm/pkg/ast"
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/lexer"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

type funcType int

const (
	typeScript funcType = iota
	typeFunction
	typeMethod
	typeInitializer
)

type local struct {
	name       string
	depth      int // -1 while being declared, before its initializer runs
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

type classScope struct {
	enclosing     *classScope
	hasSuperclass bool
}

// Compiler emits bytecode for one function body.
type Compiler struct {
	heap       *object.Heap
	enclosing  *Compiler
	fnType     funcType
	function   *object.ObjFunction
	class      *classScope
	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
	errors     []string
}

// New creates a compiler for the implicit top-level script.
func New(heap *object.Heap) *Compiler {
	c := &Compiler{heap: heap, fnType: typeScript}
	c.function = heap.NewFunction(chunk.New())
	// Slot 0 is reserved for the callee/receiver, per the call protocol.
	c.locals = append(c.locals, local{name: "", depth: 0})
	return c
}

func newFunctionCompiler(enclosing *Compiler, fnType funcType, name string) *Compiler {
	c := &Compiler{
		heap:      enclosing.heap,
		enclosing: enclosing,
		fnType:    fnType,
		class:     enclosing.class,
	}
	c.function = enclosing.heap.NewFunction(chunk.New())
	c.function.Name = enclosing.heap.InternString(name)
	// Slot 0: `this` for methods, the callee itself for plain functions.
	slotName := ""
	if fnType == typeMethod || fnType == typeInitializer {
		slotName = "this"
	}
	c.locals = append(c.locals, local{name: slotName, depth: 0})
	return c
}

// Errors returns every error accumulated while compiling.
func (c *Compiler) Errors() []string { return c.errors }

func (c *Compiler) errorf(line int, format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf("[line %d] %s", line, fmt.Sprintf(format, args...)))
}

// Compile compiles a whole program and returns the top-level script
// function, ready to be wrapped in a closure and run.
func Compile(heap *object.Heap, program *ast.Program) (*object.ObjFunction, []string) {
	c := New(heap)
	for _, stmt := range program.Statements {
		c.statement(stmt)
	}
	return c.endCompiler(), c.errors
}

func (c *Compiler) endCompiler() *object.ObjFunction {
	c.emitReturn()
	c.function.UpvalueCount = len(c.upvalues)
	return c.function
}

func (c *Compiler) chunk() *chunk.Chunk { return c.function.Chunk }

func (c *Compiler) emitByte(b byte, line int) { c.chunk().Write(b, line) }

func (c *Compiler) emitOp(op chunk.OpCode, line int) { c.chunk().WriteOp(op, line) }

func (c *Compiler) emitOpByte(op chunk.OpCode, operand byte, line int) {
	c.emitOp(op, line)
	c.emitByte(operand, line)
}

func (c *Compiler) emitReturn() {
	if c.fnType == typeInitializer {
		c.emitOpByte(chunk.OpGetLocal, 0, 0)
	} else {
		c.emitOp(chunk.OpNil, 0)
	}
	c.emitOp(chunk.OpReturn, 0)
}

func (c *Compiler) emitConstant(v value.Value, line int) {
	idx := c.makeConstant(v, line)
	c.emitOpByte(chunk.OpConstant, idx, line)
}

func (c *Compiler) makeConstant(v value.Value, line int) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.errorf(line, "too many constants in one chunk")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) identifierConstant(name string, line int) byte {
	return c.makeConstant(value.FromObj(c.heap.InternString(name)), line)
}

// emitJump writes a jump opcode with a two-byte placeholder operand and
// returns the offset of the first placeholder byte, for patchJump.
func (c *Compiler) emitJump(op chunk.OpCode, line int) int {
	c.emitOp(op, line)
	c.emitByte(0xff, line)
	c.emitByte(0xff, line)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int, line int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.errorf(line, "too much code to jump over")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int, line int) {
	c.emitOp(chunk.OpLoop, line)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.errorf(line, "loop body too large")
	}
	c.emitByte(byte(offset>>8), line)
	c.emitByte(byte(offset), line)
}

// --- Scopes and locals ---

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope(line int) {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		last := c.locals[len(c.locals)-1]
		if last.isCaptured {
			c.emitOp(chunk.OpCloseUpvalue, line)
		} else {
			c.emitOp(chunk.OpPop, line)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *Compiler) declareLocal(name string, line int) {
	if c.scopeDepth == 0 {
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.errorf(line, "already a variable named %q in this scope", name)
		}
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *Compiler) resolveLocal(name string, line int) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.errorf(line, "can't read local variable %q in its own initializer", name)
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) resolveUpvalue(name string, line int) int {
	if c.enclosing == nil {
		return -1
	}
	if slot := c.enclosing.resolveLocal(name, line); slot != -1 {
		c.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(byte(slot), true, line)
	}
	if up := c.enclosing.resolveUpvalue(name, line); up != -1 {
		return c.addUpvalue(byte(up), false, line)
	}
	return -1
}

func (c *Compiler) addUpvalue(index byte, isLocal bool, line int) int {
	for i, u := range c.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	if len(c.upvalues) >= 255 {
		c.errorf(line, "too many closure variables in function")
		return 0
	}
	c.upvalues = append(c.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(c.upvalues) - 1
}

// --- Statements ---

func (c *Compiler) statement(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.ExpressionStmt:
		c.expression(s.Expression)
		c.emitOp(chunk.OpPop, s.Line())
	case *ast.PrintStmt:
		c.expression(s.Expression)
		c.emitOp(chunk.OpPrint, s.Line())
	case *ast.VarStmt:
		c.varStatement(s)
	case *ast.BlockStmt:
		c.beginScope()
		for _, inner := range s.Statements {
			c.statement(inner)
		}
		c.endScope(s.Line())
	case *ast.IfStmt:
		c.ifStatement(s)
	case *ast.WhileStmt:
		c.whileStatement(s)
	case *ast.FunctionStmt:
		c.functionStatement(s)
	case *ast.ReturnStmt:
		c.returnStatement(s)
	case *ast.ClassStmt:
		c.classStatement(s)
	default:
		c.errorf(stmt.Line(), "unhandled statement type %T", stmt)
	}
}

func (c *Compiler) varStatement(s *ast.VarStmt) {
	c.declareLocal(s.Name.Lexeme, s.Line())
	var globalSlot byte
	isGlobal := c.scopeDepth == 0
	if isGlobal {
		globalSlot = c.identifierConstant(s.Name.Lexeme, s.Line())
	}

	if s.Initializer != nil {
		c.expression(s.Initializer)
	} else {
		c.emitOp(chunk.OpNil, s.Line())
	}

	if isGlobal {
		c.emitOpByte(chunk.OpDefineGlobal, globalSlot, s.Line())
	} else {
		c.markInitialized()
	}
}

func (c *Compiler) ifStatement(s *ast.IfStmt) {
	c.expression(s.Condition)
	thenJump := c.emitJump(chunk.OpJumpIfFalse, s.Line())
	c.emitOp(chunk.OpPop, s.Line())
	c.statement(s.Then)

	elseJump := c.emitJump(chunk.OpJump, s.Line())
	c.patchJump(thenJump, s.Line())
	c.emitOp(chunk.OpPop, s.Line())

	if s.Else != nil {
		c.statement(s.Else)
	}
	c.patchJump(elseJump, s.Line())
}

func (c *Compiler) whileStatement(s *ast.WhileStmt) {
	loopStart := len(c.chunk().Code)
	c.expression(s.Condition)
	exitJump := c.emitJump(chunk.OpJumpIfFalse, s.Line())
	c.emitOp(chunk.OpPop, s.Line())
	c.statement(s.Body)
	c.emitLoop(loopStart, s.Line())
	c.patchJump(exitJump, s.Line())
	c.emitOp(chunk.OpPop, s.Line())
}

func (c *Compiler) functionStatement(s *ast.FunctionStmt) {
	c.declareLocal(s.Name.Lexeme, s.Line())
	c.markInitialized()
	c.compileFunction(s, typeFunction)
	if c.scopeDepth == 0 {
		slot := c.identifierConstant(s.Name.Lexeme, s.Line())
		c.emitOpByte(chunk.OpDefineGlobal, slot, s.Line())
	}
}

// compileFunction compiles s's body in a fresh nested Compiler, then emits
// OP_CLOSURE in the enclosing chunk along with the upvalue descriptors the
// nested compiler recorded.
func (c *Compiler) compileFunction(s *ast.FunctionStmt, fnType funcType) {
	nested := newFunctionCompiler(c, fnType, s.Name.Lexeme)
	nested.beginScope()
	for _, param := range s.Params {
		nested.function.Arity++
		nested.declareLocal(param.Lexeme, param.Line)
		nested.markInitialized()
	}
	for _, stmt := range s.Body {
		nested.statement(stmt)
	}
	fn := nested.endCompiler()
	c.errors = append(c.errors, nested.errors...)

	idx := c.makeConstant(value.FromObj(fn), s.Line())
	c.emitOpByte(chunk.OpClosure, idx, s.Line())
	for _, up := range nested.upvalues {
		isLocalByte := byte(0)
		if up.isLocal {
			isLocalByte = 1
		}
		c.emitByte(isLocalByte, s.Line())
		c.emitByte(up.index, s.Line())
	}
}

func (c *Compiler) returnStatement(s *ast.ReturnStmt) {
	if c.fnType == typeScript {
		c.errorf(s.Line(), "can't return from top-level code")
	}
	if s.Value == nil {
		c.emitReturn()
		return
	}
	if c.fnType == typeInitializer {
		c.errorf(s.Line(), "can't return a value from an initializer")
	}
	c.expression(s.Value)
	c.emitOp(chunk.OpReturn, s.Line())
}

func (c *Compiler) classStatement(s *ast.ClassStmt) {
	nameConst := c.identifierConstant(s.Name.Lexeme, s.Line())
	c.declareLocal(s.Name.Lexeme, s.Line())
	c.emitOpByte(chunk.OpClass, nameConst, s.Line())
	if c.scopeDepth == 0 {
		c.emitOpByte(chunk.OpDefineGlobal, nameConst, s.Line())
	} else {
		c.markInitialized()
	}

	c.class = &classScope{enclosing: c.class}
	defer func() { c.class = c.class.enclosing }()

	if s.Superclass != nil {
		if s.Superclass.Name.Lexeme == s.Name.Lexeme {
			c.errorf(s.Line(), "a class can't inherit from itself")
		}
		c.namedVariable(s.Superclass.Name, false, s.Line())
		c.class.hasSuperclass = true

		c.beginScope()
		c.locals = append(c.locals, local{name: "super", depth: c.scopeDepth})
		c.namedVariable(s.Name, false, s.Line())
		c.emitOp(chunk.OpInherit, s.Line())
	}

	c.namedVariable(s.Name, false, s.Line())
	for _, method := range s.Methods {
		fnType := typeMethod
		if method.Name.Lexeme == "init" {
			fnType = typeInitializer
		}
		c.compileFunction(method, fnType)
		slot := c.identifierConstant(method.Name.Lexeme, method.Line())
		c.emitOpByte(chunk.OpMethod, slot, method.Line())
	}
	c.emitOp(chunk.OpPop, s.Line())

	if s.Superclass != nil {
		c.endScope(s.Line())
	}
}

// --- Expressions ---

func (c *Compiler) expression(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.Literal:
		c.literal(e)
	case *ast.Grouping:
		c.expression(e.Expression)
	case *ast.Unary:
		c.unary(e)
	case *ast.Binary:
		c.binary(e)
	case *ast.Logical:
		c.logical(e)
	case *ast.Variable:
		c.namedVariable(e.Name, false, e.Line())
	case *ast.Assign:
		c.assign(e)
	case *ast.Call:
		c.call(e)
	case *ast.Get:
		c.expression(e.Object)
		slot := c.identifierConstant(e.Name.Lexeme, e.Line())
		c.emitOpByte(chunk.OpGetProperty, slot, e.Line())
	case *ast.Set:
		c.expression(e.Object)
		c.expression(e.Value)
		slot := c.identifierConstant(e.Name.Lexeme, e.Line())
		c.emitOpByte(chunk.OpSetProperty, slot, e.Line())
	case *ast.This:
		if c.class == nil {
			c.errorf(e.Line(), "can't use 'this' outside of a class")
		}
		c.namedVariable(e.Keyword, false, e.Line())
	case *ast.Super:
		c.superExpr(e)
	default:
		c.errorf(expr.Line(), "unhandled expression type %T", expr)
	}
}

func (c *Compiler) literal(e *ast.Literal) {
	switch v := e.Value.(type) {
	case nil:
		c.emitOp(chunk.OpNil, e.Line())
	case bool:
		if v {
			c.emitOp(chunk.OpTrue, e.Line())
		} else {
			c.emitOp(chunk.OpFalse, e.Line())
		}
	case float64:
		c.emitConstant(value.Number(v), e.Line())
	case string:
		c.emitConstant(value.FromObj(c.heap.InternString(v)), e.Line())
	default:
		c.errorf(e.Line(), "unhandled literal type %T", e.Value)
	}
}

func (c *Compiler) unary(e *ast.Unary) {
	c.expression(e.Operand)
	switch e.Op.Lexeme {
	case "-":
		c.emitOp(chunk.OpNegate, e.Line())
	case "!":
		c.emitOp(chunk.OpNot, e.Line())
	}
}

func (c *Compiler) binary(e *ast.Binary) {
	c.expression(e.Left)
	c.expression(e.Right)
	line := e.Line()
	switch e.Op.Lexeme {
	case "+":
		c.emitOp(chunk.OpAdd, line)
	case "-":
		c.emitOp(chunk.OpSubtract, line)
	case "*":
		c.emitOp(chunk.OpMultiply, line)
	case "/":
		c.emitOp(chunk.OpDivide, line)
	case "==":
		c.emitOp(chunk.OpEqual, line)
	case "!=":
		c.emitOp(chunk.OpEqual, line)
		c.emitOp(chunk.OpNot, line)
	case "<":
		c.emitOp(chunk.OpLess, line)
	case "<=":
		c.emitOp(chunk.OpGreater, line)
		c.emitOp(chunk.OpNot, line)
	case ">":
		c.emitOp(chunk.OpGreater, line)
	case ">=":
		c.emitOp(chunk.OpLess, line)
		c.emitOp(chunk.OpNot, line)
	default:
		c.errorf(line, "unhandled binary operator %q", e.Op.Lexeme)
	}
}

func (c *Compiler) logical(e *ast.Logical) {
	line := e.Line()
	c.expression(e.Left)
	if e.Op.Lexeme == "and" {
		endJump := c.emitJump(chunk.OpJumpIfFalse, line)
		c.emitOp(chunk.OpPop, line)
		c.expression(e.Right)
		c.patchJump(endJump, line)
		return
	}
	// or: if the left side is truthy, short-circuit past the right side.
	elseJump := c.emitJump(chunk.OpJumpIfFalse, line)
	endJump := c.emitJump(chunk.OpJump, line)
	c.patchJump(elseJump, line)
	c.emitOp(chunk.OpPop, line)
	c.expression(e.Right)
	c.patchJump(endJump, line)
}

func (c *Compiler) namedVariable(name lexer.Token, assign bool, line int) {
	if slot := c.resolveLocal(name.Lexeme, line); slot != -1 {
		if assign {
			c.emitOpByte(chunk.OpSetLocal, byte(slot), line)
		} else {
			c.emitOpByte(chunk.OpGetLocal, byte(slot), line)
		}
		return
	}
	if slot := c.resolveUpvalue(name.Lexeme, line); slot != -1 {
		if assign {
			c.emitOpByte(chunk.OpSetUpvalue, byte(slot), line)
		} else {
			c.emitOpByte(chunk.OpGetUpvalue, byte(slot), line)
		}
		return
	}
	slot := c.identifierConstant(name.Lexeme, line)
	if assign {
		c.emitOpByte(chunk.OpSetGlobal, slot, line)
	} else {
		c.emitOpByte(chunk.OpGetGlobal, slot, line)
	}
}

func (c *Compiler) assign(e *ast.Assign) {
	c.expression(e.Value)
	c.namedVariable(e.Name, true, e.Line())
}

// call compiles `callee(args...)`. When the callee is a property access or
// a super lookup, it fuses the property/method lookup with the invocation
// into a single OP_INVOKE/OP_SUPER_INVOKE rather than emitting the
// separate GET_PROPERTY/GET_SUPER followed by OP_CALL.
func (c *Compiler) call(e *ast.Call) {
	if len(e.Arguments) > 255 {
		c.errorf(e.Line(), "can't have more than 255 arguments")
	}
	argc := byte(len(e.Arguments))

	switch callee := e.Callee.(type) {
	case *ast.Get:
		c.expression(callee.Object)
		for _, arg := range e.Arguments {
			c.expression(arg)
		}
		slot := c.identifierConstant(callee.Name.Lexeme, e.Line())
		c.emitOp(chunk.OpInvoke, e.Line())
		c.emitByte(slot, e.Line())
		c.emitByte(argc, e.Line())
		return
	case *ast.Super:
		if c.class == nil {
			c.errorf(e.Line(), "can't use 'super' outside of a class")
		} else if !c.class.hasSuperclass {
			c.errorf(e.Line(), "can't use 'super' in a class with no superclass")
		}
		c.namedVariable(lexer.Token{Type: lexer.TokenThis, Lexeme: "this", Line: e.Line()}, false, e.Line())
		for _, arg := range e.Arguments {
			c.expression(arg)
		}
		slot := c.identifierConstant(callee.Method.Lexeme, e.Line())
		c.namedVariable(lexer.Token{Type: lexer.TokenSuper, Lexeme: "super", Line: e.Line()}, false, e.Line())
		c.emitOp(chunk.OpSuperInvoke, e.Line())
		c.emitByte(slot, e.Line())
		c.emitByte(argc, e.Line())
		return
	}

	c.expression(e.Callee)
	for _, arg := range e.Arguments {
		c.expression(arg)
	}
	c.emitOpByte(chunk.OpCall, argc, e.Line())
}

func (c *Compiler) superExpr(e *ast.Super) {
	if c.class == nil {
		c.errorf(e.Line(), "can't use 'super' outside of a class")
	} else if !c.class.hasSuperclass {
		c.errorf(e.Line(), "can't use 'super' in a class with no superclass")
	}
	c.namedVariable(lexer.Token{Type: lexer.TokenThis, Lexeme: "this", Line: e.Line()}, false, e.Line())
	slot := c.identifierConstant(e.Method.Lexeme, e.Line())
	c.namedVariable(lexer.Token{Type: lexer.TokenSuper, Lexeme: "super", Line: e.Line()}, false, e.Line())
	c.emitOpByte(chunk.OpGetSuper, slot, e.Line())
}
