// Package vm - debugger support
package vm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/value"
)

// Debugger provides interactive debugging capabilities for the VM: line
// breakpoints, single-step mode, and an interactive prompt for inspecting
// the stack, globals, and call stack when execution pauses. It is entirely
// separate from VM.trace (see vm.go's traceStep), which unconditionally
// logs every instruction rather than pausing for input.
type Debugger struct {
	vm          *VM
	breakpoints map[int]bool // source line -> pause here
	stepMode    bool
	enabled     bool
}

// AttachDebugger creates a Debugger for vm, wires it in, and returns it so
// the caller (typically the CLI) can set breakpoints before running.
func (vm *VM) AttachDebugger() *Debugger {
	d := &Debugger{vm: vm, breakpoints: make(map[int]bool)}
	vm.debugger = d
	return d
}

// Enable activates the debugger.
func (d *Debugger) Enable() { d.enabled = true }

// Disable deactivates the debugger; run() stops checking breakpoints.
func (d *Debugger) Disable() { d.enabled = false }

// SetStepMode enables or disables step mode, in which execution pauses
// before every instruction regardless of breakpoints.
func (d *Debugger) SetStepMode(enabled bool) { d.stepMode = enabled }

// AddBreakpoint pauses execution the next time the given source line is
// about to execute.
func (d *Debugger) AddBreakpoint(line int) { d.breakpoints[line] = true }

// RemoveBreakpoint removes a previously set breakpoint.
func (d *Debugger) RemoveBreakpoint(line int) { delete(d.breakpoints, line) }

// ClearBreakpoints removes every breakpoint.
func (d *Debugger) ClearBreakpoints() { d.breakpoints = make(map[int]bool) }

// shouldPause reports whether execution should pause before the
// instruction about to run at the given source line.
func (d *Debugger) shouldPause(line int) bool {
	if !d.enabled {
		return false
	}
	if d.stepMode {
		return true
	}
	return d.breakpoints[line]
}

// showCurrentInstruction disassembles the instruction at ip in frame's
// chunk and prints it the way the disassembler would.
func (d *Debugger) showCurrentInstruction(frame *CallFrame, ip int) {
	_, text := chunk.DisassembleInstruction(frame.closure.Function.Chunk, ip)
	fmt.Printf("%04d %s\n", ip, text)
}

// showStack prints every live operand stack slot, top first.
func (d *Debugger) showStack() {
	fmt.Println("Stack (top to bottom):")
	if d.vm.stackTop == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := d.vm.stackTop - 1; i >= 0; i-- {
		fmt.Printf("  [%d] %s\n", i, value.Print(d.vm.stack[i]))
	}
}

// showGlobals prints every defined global variable.
func (d *Debugger) showGlobals() {
	fmt.Println("Global variables:")
	n := 0
	d.vm.globals.Each(func(name *object.ObjString, v value.Value) {
		fmt.Printf("  %s = %s\n", name.Chars, value.Print(v))
		n++
	})
	if n == 0 {
		fmt.Println("  (none)")
	}
}

// showCallStack prints every active frame, innermost first.
func (d *Debugger) showCallStack() {
	fmt.Println("Call stack (innermost first):")
	if d.vm.frameCount == 0 {
		fmt.Println("  (empty)")
		return
	}
	for i := d.vm.frameCount - 1; i >= 0; i-- {
		f := &d.vm.frames[i]
		name := "script"
		if f.closure.Function.Name != nil {
			name = f.closure.Function.Name.Chars
		}
		fmt.Printf("  %s [ip %d]\n", name, f.ip)
	}
}

// interactivePrompt is entered from run() whenever shouldPause reports
// true. It blocks on stdin until the user asks execution to proceed
// (continue or step) or to quit, in which case the caller aborts the run.
func (d *Debugger) interactivePrompt(frame *CallFrame, ip int) (resume bool) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("\n=== paused ===")
	d.showCurrentInstruction(frame, ip)

	for {
		fmt.Print("debug> ")
		if !scanner.Scan() {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		switch parts[0] {
		case "help", "h", "?":
			d.printHelp()
		case "continue", "c":
			d.SetStepMode(false)
			return true
		case "step", "s", "next", "n":
			d.SetStepMode(true)
			return true
		case "stack", "st":
			d.showStack()
		case "globals", "g":
			d.showGlobals()
		case "callstack", "cs":
			d.showCallStack()
		case "instruction", "i":
			d.showCurrentInstruction(frame, ip)
		case "break", "b":
			if len(parts) < 2 {
				fmt.Println("usage: break <line>")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid line number")
				continue
			}
			d.AddBreakpoint(n)
			fmt.Printf("breakpoint set at line %d\n", n)
		case "delete", "d":
			if len(parts) < 2 {
				fmt.Println("usage: delete <line>")
				continue
			}
			n, err := strconv.Atoi(parts[1])
			if err != nil {
				fmt.Println("invalid line number")
				continue
			}
			d.RemoveBreakpoint(n)
		case "quit", "q":
			return false
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", parts[0])
		}
	}
}

func (d *Debugger) printHelp() {
	fmt.Println("Debugger commands:")
	fmt.Println("  help, h, ?        show this help")
	fmt.Println("  continue, c       resume execution")
	fmt.Println("  step, s, next, n  execute one instruction and pause again")
	fmt.Println("  stack, st         show the operand stack")
	fmt.Println("  globals, g        show global variables")
	fmt.Println("  callstack, cs     show the call stack")
	fmt.Println("  instruction, i    show the current instruction")
	fmt.Println("  break <line>, b   pause before the given source line")
	fmt.Println("  delete <line>, d  remove a breakpoint")
	fmt.Println("  quit, q           abort execution")
}
