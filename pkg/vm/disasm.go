package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// --- Disassembly ---

// Disassemble renders a template and every nested function it contains.
func (t *FunctionTemplate) Disassemble() string {
	var b strings.Builder
	t.disassemble(&b)
	return b.String()
}

func (t *FunctionTemplate) disassemble(b *strings.Builder) {
	name := t.Name
	if name == "" {
		name = "<anonymous>"
	}
	b.WriteString(t.Chunk.DisassembleChunk(name))
	for _, fn := range t.Chunk.Functions {
		b.WriteByte('\n')
		fn.disassemble(b)
	}
}

// DisassembleChunk returns a human-readable listing of the chunk.
func (c *Chunk) DisassembleChunk(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	lastLine := -1
	for pc := 0; pc < len(c.Code); {
		in, err := c.Decode(pc)
		if err != nil {
			fmt.Fprintf(&b, "%04d      <%v>\n", pc, err)
			break
		}
		line := c.GetLine(pc)
		if line == lastLine {
			fmt.Fprintf(&b, "%04d    | ", pc)
		} else {
			fmt.Fprintf(&b, "%04d %4d ", pc, line)
			lastLine = line
		}
		c.writeInstruction(&b, in)
		b.WriteByte('\n')
		pc += in.Size()
	}

	if len(c.ExceptionTable) > 0 {
		b.WriteString("\n=== Exception Table ===\n")
		for i, h := range c.ExceptionTable {
			fmt.Fprintf(&b, "Handler %d: TryStart=%d, TryEnd=%d, HandlerPC=%d, StackDepth=%d, EnvDepth=%d, IsFinally=%t\n",
				i, h.TryStart, h.TryEnd, h.HandlerPC, h.StackDepth, h.EnvDepth, h.IsFinally)
		}
		b.WriteString("=======================\n")
	}
	return b.String()
}

func (c *Chunk) writeInstruction(b *strings.Builder, in Instruction) {
	fmt.Fprintf(b, "%-22s", in.Op.String())
	for i, k := range opTable[in.Op].operands {
		v := in.Operands[i]
		b.WriteByte(' ')
		switch k {
		case opdConst, opdName:
			if v < len(c.Constants) {
				fmt.Fprintf(b, "%d '%s'", v, constDisplay(c.Constants[v]))
			} else {
				fmt.Fprintf(b, "%d <bad>", v)
			}
		case opdFunc:
			if v < len(c.Functions) {
				fmt.Fprintf(b, "<fn %s>", c.Functions[v].Name)
			} else {
				fmt.Fprintf(b, "<fn %d?>", v)
			}
		case opdScope:
			fmt.Fprintf(b, "scope#%d", v)
			if v < len(c.Scopes) && c.Scopes[v] != nil {
				fmt.Fprintf(b, " [%s]", strings.Join(c.Scopes[v].Names, " "))
			}
		case opdSite:
			fmt.Fprintf(b, "site#%d", v)
		case opdJump, opdLoop:
			t, _ := in.Target()
			fmt.Fprintf(b, "-> %04d", t)
		case opdDepth:
			fmt.Fprintf(b, "d%d", v)
		case opdSlot:
			fmt.Fprintf(b, "s%d", v)
		case opdErrKind:
			b.WriteString(errorKindName(byte(v)))
		case opdDefKind:
			b.WriteString(defineKindName(byte(v)))
		default:
			b.WriteString(strconv.Itoa(v))
		}
	}
}

func constDisplay(v Value) string {
	switch v.typ {
	case TypeString:
		return strconv.Quote(v.AsString())
	case TypeBigInt:
		return v.AsBigInt().String() + "n"
	}
	return v.String()
}

func errorKindName(k byte) string {
	switch k {
	case ErrorKindType:
		return "TypeError"
	case ErrorKindReference:
		return "ReferenceError"
	case ErrorKindSyntax:
		return "SyntaxError"
	case ErrorKindRange:
		return "RangeError"
	}
	return "Error(" + strconv.Itoa(int(k)) + ")"
}

func defineKindName(k byte) string {
	var s string
	switch k & DefineKindMask {
	case DefineData:
		s = "data"
	case DefineMethod:
		s = "method"
	case DefineGetter:
		s = "get"
	case DefineSetter:
		s = "set"
	default:
		s = strconv.Itoa(int(k & DefineKindMask))
	}
	if k&DefineEnumerable != 0 {
		s += "+enum"
	}
	if k&DefineSetName != 0 {
		s += "+name"
	}
	return s
}
