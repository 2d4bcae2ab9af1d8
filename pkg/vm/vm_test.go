package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/vm"
)

func run(t *testing.T, src string) (stdout, stderr string, err error) {
	t.Helper()
	machine := vm.New()
	var out, errOut bytes.Buffer
	machine.SetOutput(&out, &errOut)
	err = machine.Interpret(src)
	return out.String(), errOut.String(), err
}

func TestArithmeticAndPrint(t *testing.T) {
	out, _, err := run(t, "print 1 + 2;")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestStringConcatInterningAndEquality(t *testing.T) {
	out, _, err := run(t, `var a = "he"; var b = "llo"; print a + b == "hello";`)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)
}

func TestClosureClosesOverLocal(t *testing.T) {
	out, _, err := run(t, `fun make(x){ fun get(){ return x; } return get; } var g = make(42); print g();`)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)
}

func TestInitializerAndFieldRoundTrip(t *testing.T) {
	out, _, err := run(t, `class C { init(n){ this.n = n; } get(){ return this.n; } } print C(7).get();`)
	require.NoError(t, err)
	assert.Equal(t, "7\n", out)
}

func TestSuperDispatch(t *testing.T) {
	out, _, err := run(t, `class A { hi(){ print "A"; } } class B < A { hi(){ super.hi(); print "B"; } } B().hi();`)
	require.NoError(t, err)
	assert.Equal(t, "A\nB\n", out)
}

func TestJumpsAndLoops(t *testing.T) {
	out, _, err := run(t, `var n=0; for (var i=0;i<3;i=i+1) n=n+i; print n;`)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestUndefinedVariableErrorFormat(t *testing.T) {
	_, errOut, err := run(t, "print x;")
	require.Error(t, err)
	lines := strings.SplitN(strings.TrimRight(errOut, "\n"), "\n", 2)
	require.Len(t, lines, 2)
	assert.Equal(t, "Undefined variable 'x'.", lines[0])
	assert.Equal(t, "[line 1] in script", lines[1])
}

func TestStringPlusNumberIsATypeError(t *testing.T) {
	_, errOut, err := run(t, `"a" + 1;`)
	require.Error(t, err)
	assert.Contains(t, errOut, "Operands must be two numbers or two strings.")
}

func TestUnboundedRecursionOverflowsTheFrameStack(t *testing.T) {
	_, errOut, err := run(t, `fun f(){f();} f();`)
	require.Error(t, err)
	assert.Contains(t, errOut, "Stack overflow.")
}

func TestNativeClockReturnsANumber(t *testing.T) {
	out, _, err := run(t, `print type(clock());`)
	require.NoError(t, err)
	assert.Equal(t, "number\n", out)
}

func TestNativeStrAndLen(t *testing.T) {
	out, _, err := run(t, `print len(str(123));`)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestUnaryNotDoubleNegationPreservesTruthiness(t *testing.T) {
	out, _, err := run(t, `print !!true; print !!nil; print !!0;`)
	require.NoError(t, err)
	assert.Equal(t, "true\nfalse\ntrue\n", out)
}

func TestAssignmentIsAnExpressionAndReturnsTheValue(t *testing.T) {
	out, _, err := run(t, `var a = 1; print a = 2;`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestTwoClosuresShareOneUpvalueUntilClosed(t *testing.T) {
	// Both inner functions capture the same local; a write through one must
	// be visible to the other while the upvalue is still open.
	out, _, err := run(t, `
fun outer() {
  var x = 0;
  fun set(v) { x = v; }
  fun get() { return x; }
  set(5);
  return get();
}
print outer();
`)
	require.NoError(t, err)
	assert.Equal(t, "5\n", out)
}

func TestGlobalRedeclareOverwritesSilently(t *testing.T) {
	out, _, err := run(t, `var a = 1; var a = 2; print a;`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestSetOnUndeclaredGlobalIsAnError(t *testing.T) {
	_, errOut, err := run(t, `x = 1;`)
	require.Error(t, err)
	assert.Contains(t, errOut, "Undefined variable 'x'.")
}

func TestCallingANonCallableIsAnError(t *testing.T) {
	_, errOut, err := run(t, `var x = 1; x();`)
	require.Error(t, err)
	assert.Contains(t, errOut, "Can only call functions and classes.")
}

func TestAccessingFieldOnNonInstanceIsAnError(t *testing.T) {
	_, errOut, err := run(t, `var x = 1; print x.y;`)
	require.Error(t, err)
	assert.Contains(t, errOut, "Only instances have properties.")
}

func TestInheritingFromNonClassIsAnError(t *testing.T) {
	_, errOut, err := run(t, `var NotAClass = 1; class B < NotAClass {}`)
	require.Error(t, err)
	assert.Contains(t, errOut, "Superclass must be a class.")
}

func TestFieldShadowsMethodOfSameName(t *testing.T) {
	out, _, err := run(t, `
class C {
  greet() { return "method"; }
}
var c = C();
c.greet = "field";
print c.greet;
`)
	require.NoError(t, err)
	assert.Equal(t, "field\n", out)
}
