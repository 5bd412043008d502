package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"ecmavm/pkg/config"
	"ecmavm/pkg/driver"
	"ecmavm/pkg/errors"
	"ecmavm/pkg/lexer"
	"ecmavm/pkg/parser"
	"ecmavm/pkg/source"
	"ecmavm/pkg/vm"
)

const (
	exitUsage    = 64 // command line usage error
	exitSoftware = 70 // script failure or internal error
)

func main() {
	configFlag := flag.String("config", "", "Load engine configuration from this TOML file (default: search for ecmavm.toml)")
	exprFlag := flag.String("e", "", "Run the given script text and exit")
	strictFlag := flag.Bool("strict", false, "Run scripts as strict mode code")
	timeoutFlag := flag.Duration("timeout", 0, "Abort a script after this long (0 uses the configuration)")
	cacheFlag := flag.String("cache", "", "Directory for the compiled script cache")
	verboseFlag := flag.Int("v", -1, "Log verbosity (overrides the configuration)")
	disasmFlag := flag.Bool("disasm", false, "Print compiled bytecode before running")
	astFlag := flag.Bool("ast", false, "Print the parsed program before compiling")
	flag.Parse()

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ecmavm: %s\n", err)
		os.Exit(exitUsage)
	}
	if *cacheFlag != "" {
		cfg.Cache.Dir = *cacheFlag
	}
	if *verboseFlag >= 0 {
		cfg.Log.Verbosity = *verboseFlag
	}
	if *strictFlag {
		cfg.Script.Strict = true
	}
	configureLogging(cfg)
	parser.DumpASTEnabled = *astFlag

	engine, err := driver.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ecmavm: %s\n", err)
		os.Exit(exitSoftware)
	}
	r := &runner{
		engine: engine,
		opts:   driver.Options{Strict: cfg.Script.Strict, Timeout: *timeoutFlag},
		disasm: *disasmFlag,
	}

	switch {
	case *exprFlag != "":
		if !r.run(source.NewEvalSource(*exprFlag)) {
			os.Exit(exitSoftware)
		}
	case flag.NArg() > 1:
		fmt.Fprintf(os.Stderr, "Usage: ecmavm [flags] [script.js] or ecmavm -e \"code\"\n")
		os.Exit(exitUsage)
	case flag.NArg() == 1:
		path := flag.Arg(0)
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read file '%s': %s\n", path, err)
			os.Exit(exitSoftware)
		}
		src := source.FromFile(path, string(content))
		if strings.HasSuffix(path, ".ecb") {
			// Precompiled by ecmavm-compile.
			tmpl, err := vm.UnmarshalTemplate(content)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to load '%s': %s\n", path, err)
				os.Exit(exitSoftware)
			}
			src = source.FromFile(path, tmpl.Source)
			if !r.runTemplate(src, tmpl, r.engine.VM().Output(), os.Stderr) {
				os.Exit(exitSoftware)
			}
			return
		}
		if !r.run(src) {
			os.Exit(exitSoftware)
		}
	default:
		r.repl()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(".")
}

func configureLogging(cfg *config.Config) {
	var path *string
	if cfg.Log.File != "" {
		path = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity, path)
}

type runner struct {
	engine *driver.Engine
	opts   driver.Options
	disasm bool
}

// run compiles and executes src, printing the completion value or the
// errors. It reports success.
func (r *runner) run(src *source.SourceFile) bool {
	return r.runTo(src, r.engine.VM().Output(), os.Stderr)
}

func (r *runner) runTo(src *source.SourceFile, out, errOut io.Writer) bool {
	tmpl, errs := r.engine.Compile(src, r.opts)
	if len(errs) > 0 {
		errors.FprintErrors(errOut, errs)
		return false
	}
	return r.runTemplate(src, tmpl, out, errOut)
}

func (r *runner) runTemplate(src *source.SourceFile, tmpl *vm.FunctionTemplate, out, errOut io.Writer) bool {
	if r.disasm {
		fmt.Fprintln(out, tmpl.Disassemble())
	}
	comp, errs := r.engine.Execute(context.Background(), src, tmpl, r.opts)
	return r.engine.FprintResult(out, errOut, comp, errs)
}

// repl reads scripts from stdin. On a terminal x/term provides line
// editing and history; otherwise input is read line by line.
func (r *runner) repl() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		r.replLines(bufio.NewScanner(os.Stdin))
		return
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set raw mode: %v\n", err)
		return
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "> ")
	if w, h, err := term.GetSize(fd); err == nil {
		t.SetSize(w, h)
	}
	r.engine.VM().SetOutput(t)
	fmt.Fprintln(t, "ecmavm (Ctrl+D to exit)")

	var pending strings.Builder
	for {
		line, err := t.ReadLine()
		if err != nil {
			if err != io.EOF {
				fmt.Fprintf(t, "Error reading input: %s\n", err)
			}
			return
		}
		if pending.Len() == 0 && strings.TrimSpace(line) == "" {
			continue
		}
		pending.WriteString(line)
		pending.WriteByte('\n')
		text := pending.String()
		if incomplete(text) {
			t.SetPrompt("... ")
			continue
		}
		pending.Reset()
		t.SetPrompt("> ")
		r.runTo(source.NewReplSource(text), t, t)
	}
}

func (r *runner) replLines(sc *bufio.Scanner) {
	var pending strings.Builder
	for sc.Scan() {
		pending.WriteString(sc.Text())
		pending.WriteByte('\n')
		if incomplete(pending.String()) {
			continue
		}
		text := pending.String()
		pending.Reset()
		if strings.TrimSpace(text) != "" {
			r.run(source.NewReplSource(text))
		}
	}
	if pending.Len() > 0 {
		r.run(source.NewReplSource(pending.String()))
	}
}

// incomplete reports whether text fails to parse only because it ends
// too early, so the REPL should read another line.
func incomplete(text string) bool {
	_, errs := parser.NewParser(lexer.NewLexer(source.NewReplSource(text))).ParseProgram()
	for _, err := range errs {
		msg := err.Message()
		if strings.Contains(msg, "end of input") || strings.Contains(msg, "nterminated template") || strings.Contains(msg, "nterminated comment") {
			return true
		}
	}
	return false
}
