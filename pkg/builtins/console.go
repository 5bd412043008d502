package builtins

import (
	"fmt"
	"strings"
	"time"

	"ecmavm/pkg/vm"
)

// consoleState holds the counters, timers and group depth of one realm's
// console object.
type consoleState struct {
	counters map[string]int
	timers   map[string]time.Time
	depth    int
}

func newConsoleState() *consoleState {
	return &consoleState{
		counters: make(map[string]int),
		timers:   make(map[string]time.Time),
	}
}

// format renders console arguments: strings as-is, everything else
// inspected. A leading string may carry %s, %d, %i, %f, %o, %O and %c
// substitutions.
func (c *consoleState) format(machine *vm.VM, args []vm.Value) (string, error) {
	var b strings.Builder
	rest := args
	if len(args) > 0 && args[0].IsString() {
		f := args[0].AsString()
		rest = args[1:]
		for i := 0; i < len(f); i++ {
			if f[i] != '%' || i+1 >= len(f) {
				b.WriteByte(f[i])
				continue
			}
			verb := f[i+1]
			if verb == '%' {
				b.WriteByte('%')
				i++
				continue
			}
			if !strings.ContainsRune("sdifoOc", rune(verb)) || len(rest) == 0 {
				b.WriteByte(f[i])
				continue
			}
			v := rest[0]
			rest = rest[1:]
			i++
			switch verb {
			case 's':
				if v.IsString() {
					b.WriteString(v.AsString())
				} else {
					b.WriteString(vm.Inspect(v))
				}
			case 'd', 'i':
				n, err := machine.ToNumber(v)
				if err != nil {
					return "", err
				}
				b.WriteString(vm.NumberToString(vm.IntegerOrInfinity(n)))
			case 'f':
				n, err := machine.ToNumber(v)
				if err != nil {
					return "", err
				}
				b.WriteString(vm.NumberToString(n))
			case 'o', 'O':
				b.WriteString(vm.Inspect(v))
			case 'c':
				// CSS styling has no terminal meaning.
			}
		}
	}
	for i, v := range rest {
		if i > 0 || b.Len() > 0 {
			b.WriteByte(' ')
		}
		if v.IsString() {
			b.WriteString(v.AsString())
		} else {
			b.WriteString(vm.Inspect(v))
		}
	}
	return b.String(), nil
}

func (c *consoleState) print(machine *vm.VM, prefix, msg string) {
	indent := strings.Repeat("  ", c.depth)
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(machine.Output(), "%s%s%s\n", indent, prefix, line)
	}
}

func (c *consoleState) label(machine *vm.VM, args []vm.Value) (string, error) {
	if v := arg(args, 0); !v.IsUndefined() {
		return machine.ToString(v)
	}
	return "default", nil
}
