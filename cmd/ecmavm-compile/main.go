package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"ecmavm/pkg/driver"
	"ecmavm/pkg/errors"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

func main() {
	outFlag := flag.String("o", "", "Write the compiled script to this file (default: input with .ecb extension)")
	strictFlag := flag.Bool("strict", false, "Compile as strict mode code")
	disasmFlag := flag.Bool("disasm", false, "Print the bytecode instead of writing it")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-o out.ecb] [-strict] [-disasm] <script.js>\n", os.Args[0])
		os.Exit(64)
	}
	filename := flag.Arg(0)
	input, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file '%s': %v\n", filename, err)
		os.Exit(1)
	}

	engine, err := driver.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(70)
	}
	tmpl, errs := engine.Compile(source.FromFile(filename, string(input)), driver.Options{Strict: *strictFlag})
	if len(errs) > 0 {
		errors.DisplayErrors(errs)
		os.Exit(1)
	}

	if *disasmFlag {
		fmt.Printf("--- Bytecode (%s) ---\n", filename)
		fmt.Print(tmpl.Disassemble())
		fmt.Println("------------------------")
		return
	}

	data, err := vm.MarshalTemplate(tmpl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding bytecode: %v\n", err)
		os.Exit(70)
	}
	out := *outFlag
	if out == "" {
		out = strings.TrimSuffix(filename, ".js") + ".ecb"
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing '%s': %v\n", out, err)
		os.Exit(1)
	}
}
