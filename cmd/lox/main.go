package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/object"
	"github.com/kristofer/loxvm/pkg/parser"
	"github.com/kristofer/loxvm/pkg/vm"
)

const version = "0.1.0"

func main() {
	args := os.Args[1:]

	trace := false
	for len(args) > 0 && args[0] == "-trace" {
		trace = true
		args = args[1:]
	}

	if len(args) == 0 {
		runREPL(trace)
		return
	}

	switch args[0] {
	case "version", "-v", "--version":
		fmt.Printf("lox version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL(trace)
	case "run":
		if len(args) < 2 {
			fmt.Println("Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(args[1], trace)
	case "compile":
		if len(args) < 2 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: lox compile <input.lox> [output.loxc]")
			os.Exit(1)
		}
		outputFile := ""
		if len(args) >= 3 {
			outputFile = args[2]
		}
		compileFile(args[1], outputFile)
	case "disassemble", "disasm":
		if len(args) < 2 {
			fmt.Println("Error: no file specified")
			fmt.Println("\nUsage: lox disassemble <file.lox|file.loxc>")
			os.Exit(1)
		}
		disassembleFile(args[1])
	default:
		// Assume it's a file to run.
		runFile(args[0], trace)
	}
}

func printUsage() {
	fmt.Println("lox - a bytecode-compiled Lox interpreter")
	fmt.Println("\nUsage:")
	fmt.Println("  lox                         Start interactive REPL")
	fmt.Println("  lox [file]                  Run a .lox or .loxc file")
	fmt.Println("  lox run [file]               Run a .lox or .loxc file")
	fmt.Println("  lox compile <in> [out]      Compile .lox to .loxc bytecode")
	fmt.Println("  lox disassemble <file>      Disassemble a .lox or .loxc file")
	fmt.Println("  lox repl                     Start interactive REPL")
	fmt.Println("  lox version                  Show version")
	fmt.Println("  lox help                     Show this help")
	fmt.Println("\nFlags:")
	fmt.Println("  -trace   (before subcommand) trace every instruction to stderr")
	fmt.Println("\nFile Extensions:")
	fmt.Println("  .lox     Source code files (text)")
	fmt.Println("  .loxc    Compiled bytecode files (binary, not portable across hosts)")
}

// runFile runs a .lox source file or a .loxc compiled file, dispatching on
// extension the way a precompiled-bytecode host always does: the fast path
// (.loxc) skips the lexer/parser/compiler entirely.
func runFile(filename string, trace bool) {
	machine := vm.New()
	machine.SetTrace(trace)

	var err error
	if filepath.Ext(filename) == ".loxc" {
		err = runCompiledFile(machine, filename)
	} else {
		err = runSourceFile(machine, filename)
	}
	if err != nil {
		os.Exit(1)
	}
}

func runSourceFile(machine *vm.VM, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return err
	}
	if err := machine.Interpret(string(data)); err != nil {
		// RuntimeError text is already on stderr by the time Interpret
		// returns; CompileError is not, so print it here.
		if _, ok := err.(*vm.CompileError); ok {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

func runCompiledFile(machine *vm.VM, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return err
	}
	defer file.Close()

	fn, err := object.DecodeFunction(file, machine.Heap())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		return err
	}

	if err := machine.InterpretFunction(fn); err != nil {
		if _, ok := err.(*vm.CompileError); ok {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// compileFile compiles a .lox source file to a .loxc bytecode file, so a
// later `lox run` on the same machine can skip recompiling it.
func compileFile(inputFile, outputFile string) {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".lox" {
			outputFile = strings.TrimSuffix(inputFile, ".lox") + ".loxc"
		} else {
			outputFile = inputFile + ".loxc"
		}
	}

	fn, err := compileSource(inputFile)
	if err != nil {
		os.Exit(1)
	}

	outFile, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	if err := object.EncodeFunction(outFile, fn); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
}

func compileSource(inputFile string) (*object.ObjFunction, error) {
	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return nil, err
	}

	p := parser.New(string(data))
	program := p.Parse()
	if errs := p.Errors(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Parse error: %s\n", e)
		}
		return nil, fmt.Errorf("parse failed")
	}

	fn, errs := compiler.Compile(object.NewHeap(), program)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Compile error: %s\n", e)
		}
		return nil, fmt.Errorf("compile failed")
	}
	return fn, nil
}

// disassembleFile prints the chunk disassembly of a .lox source file or a
// .loxc compiled file, one "== name ==" block per nested function.
func disassembleFile(filename string) {
	var fn *object.ObjFunction
	if filepath.Ext(filename) == ".loxc" {
		file, err := os.Open(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		defer file.Close()
		fn, err = object.DecodeFunction(file, object.NewHeap())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
			os.Exit(1)
		}
	} else {
		var err error
		fn, err = compileSource(filename)
		if err != nil {
			os.Exit(1)
		}
	}

	fmt.Printf("=== Disassembly: %s ===\n\n", filename)
	disassembleFunction(fn)
}

func disassembleFunction(fn *object.ObjFunction) {
	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	fmt.Print(chunk.Disassemble(fn.Chunk, name))
	for _, c := range fn.Chunk.Constants {
		if c.IsObj() {
			if nested, ok := c.AsObj().(*object.ObjFunction); ok {
				fmt.Println()
				disassembleFunction(nested)
			}
		}
	}
}

// runREPL starts an interactive Read-Eval-Print Loop with a persistent VM:
// globals (and therefore top-level `var` declarations) survive from one
// line to the next, the way spec.md's global/local split intends.
func runREPL(trace bool) {
	fmt.Printf("lox REPL v%s\n", version)
	fmt.Println("Type ':help' for help, ':quit' or ':exit' to exit")
	fmt.Println()

	machine := vm.New()
	machine.SetTrace(trace)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("lox> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case ":quit", ":exit":
			fmt.Println("Goodbye!")
			return
		case ":help":
			printREPLHelp()
			continue
		case "":
			continue
		}

		if err := machine.Interpret(line); err != nil {
			if _, ok := err.(*vm.CompileError); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
	}
}

func printREPLHelp() {
	fmt.Println("lox REPL Help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  :help     Show this help message")
	fmt.Println("  :quit     Exit the REPL")
	fmt.Println("  :exit     Exit the REPL")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  - Enter a statement and press Enter; it runs immediately")
	fmt.Println("  - Statements end with a semicolon (;)")
	fmt.Println("  - var declarations at the top level persist across lines")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  lox> var x = 42;")
	fmt.Println("  lox> print x + 8;")
	fmt.Println()
}
