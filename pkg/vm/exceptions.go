package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInterrupted is returned when the context passed to the VM is
// cancelled. It cannot be caught by script code.
var ErrInterrupted = errors.New("execution interrupted")

// Exception is a thrown script value travelling through Go code as an
// error. Natives return it to throw; the interpreter unwinds on it.
type Exception struct {
	Value Value
	// Trace holds "name (line:col)" entries from the throw point outward.
	Trace []string
	Line  int
	Col   int
}

func (e *Exception) Error() string {
	name, msg := ErrorNameAndMessage(e.Value)
	if name == "" {
		return "Uncaught " + msg
	}
	if msg == "" {
		return name
	}
	return name + ": " + msg
}

// ErrorNameAndMessage extracts name and message from an error object
// without running script code. For other values name is empty and the
// message is the value's display form.
func ErrorNameAndMessage(v Value) (name, msg string) {
	o := v.AsObject()
	if o == nil {
		return "", v.String()
	}
	if o.class != ClassError {
		return "", v.String()
	}
	msg = dataString(o, "message")
	for p := o; p != nil; p = p.proto {
		if prop := p.lookup(StringKey("name")); prop != nil && !prop.IsAccessor() && prop.Value.IsString() {
			name = prop.Value.AsString()
			break
		}
	}
	if name == "" {
		name = "Error"
	}
	return name, msg
}

func dataString(o *Object, name string) string {
	for p := o; p != nil; p = p.proto {
		if prop := p.lookup(StringKey(name)); prop != nil {
			if !prop.IsAccessor() && prop.Value.IsString() {
				return prop.Value.AsString()
			}
			return ""
		}
	}
	return ""
}

// returnCompletion is a generator return() resumption travelling through
// the unwinder. Only finally regions intercept it.
type returnCompletion struct {
	value Value
}

func (r *returnCompletion) Error() string { return "generator return" }

// Throw wraps a script value as an error.
func (vm *VM) Throw(v Value) error {
	return &Exception{Value: v}
}

// NewError creates an error object with the given prototype and message.
func (vm *VM) NewError(proto *Object, msg string) *Object {
	if proto == nil {
		proto = vm.realm.Intrinsics.ErrorPrototype
	}
	if proto == nil {
		proto = vm.realm.Intrinsics.ObjectPrototype
	}
	o := vm.allocObject(ClassError, proto)
	if msg != "" {
		o.SetOwn("message", StringValue(msg), FlagsHidden)
	}
	return o
}

func (vm *VM) newErrorf(proto *Object, format string, args []any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Exception{Value: ObjectValue(vm.NewError(proto, msg))}
}

// NewTypeError returns a TypeError exception of the current realm.
func (vm *VM) NewTypeError(format string, args ...any) error {
	return vm.newErrorf(vm.realm.Intrinsics.TypeErrorPrototype, format, args)
}

// NewRangeError returns a RangeError exception.
func (vm *VM) NewRangeError(format string, args ...any) error {
	return vm.newErrorf(vm.realm.Intrinsics.RangeErrorPrototype, format, args)
}

// NewReferenceError returns a ReferenceError exception.
func (vm *VM) NewReferenceError(format string, args ...any) error {
	return vm.newErrorf(vm.realm.Intrinsics.ReferenceErrorPrototype, format, args)
}

// NewSyntaxError returns a SyntaxError exception.
func (vm *VM) NewSyntaxError(format string, args ...any) error {
	return vm.newErrorf(vm.realm.Intrinsics.SyntaxErrorPrototype, format, args)
}

// NewURIError returns a URIError exception.
func (vm *VM) NewURIError(format string, args ...any) error {
	return vm.newErrorf(vm.realm.Intrinsics.URIErrorPrototype, format, args)
}

func (vm *VM) errorOfKind(kind byte, msg string) error {
	switch kind {
	case ErrorKindReference:
		return vm.NewReferenceError("%s", msg)
	case ErrorKindSyntax:
		return vm.NewSyntaxError("%s", msg)
	case ErrorKindRange:
		return vm.NewRangeError("%s", msg)
	}
	return vm.NewTypeError("%s", msg)
}

// AsException reports whether err carries a script exception.
func AsException(err error) (*Exception, bool) {
	var ex *Exception
	if errors.As(err, &ex) {
		return ex, true
	}
	return nil, false
}

// unwindAction tells run how to proceed after unwind.
type unwindAction uint8

const (
	unwindContinue unwindAction = iota // a handler or a caller frame resumes
	unwindReturn                       // the boundary frame produced a value
	unwindError                        // the error leaves this run invocation
)

// unwind looks for a handler for err starting at the innermost frame.
// Frames without a handler are popped, down to and including the boundary
// frame at index stop. Coroutine frames absorb the error into their
// generator or promise state.
func (vm *VM) unwind(err error, stop int) (unwindAction, Value, error) {
	ex, isEx := err.(*Exception)
	ret, isRet := err.(*returnCompletion)
	if !isEx && !isRet {
		vm.dropFrames(stop)
		return unwindError, Undefined, err
	}
	if isEx && ex.Trace == nil {
		vm.recordTrace(ex)
	}
	for vm.fp > stop {
		f := &vm.frames[vm.fp-1]
		if h := f.findHandler(isRet); h != nil {
			vm.sp = f.base + h.StackDepth
			for f.envDepth > h.EnvDepth {
				f.env = f.env.outer
				f.envDepth--
			}
			if isRet {
				vm.push(internalValue(ret))
			} else {
				vm.push(ex.Value)
			}
			f.ip = h.HandlerPC
			return unwindContinue, Undefined, nil
		}
		if f.coro != nil {
			var v Value
			var cerr error
			if isRet {
				v, cerr = vm.finishCoroutine(f, ret.value, nil)
			} else {
				v, cerr = vm.finishCoroutine(f, Undefined, ex)
			}
			if cerr == nil {
				if vm.popFrameWithResult(v) {
					return unwindReturn, v, nil
				}
				return unwindContinue, Undefined, nil
			}
			ce, ok := cerr.(*Exception)
			if !ok {
				vm.dropFrames(stop)
				return unwindError, Undefined, cerr
			}
			ex, isEx, isRet = ce, true, false
			f.coro = nil
			continue
		}
		boundary := f.boundary
		vm.popFrame()
		if boundary {
			break
		}
	}
	if isRet {
		return unwindReturn, ret.value, nil
	}
	return unwindError, Undefined, ex
}

func (f *Frame) findHandler(returning bool) *ExceptionHandler {
	pc := f.opStart
	for i := range f.chunk.ExceptionTable {
		h := &f.chunk.ExceptionTable[i]
		if pc >= h.TryStart && pc < h.TryEnd && (h.IsFinally || !returning) {
			return h
		}
	}
	return nil
}

func (vm *VM) recordTrace(ex *Exception) {
	ex.Trace = []string{}
	for i := vm.fp - 1; i >= 0 && len(ex.Trace) < 32; i-- {
		f := &vm.frames[i]
		line, col := f.chunk.GetPosition(f.opStart)
		if i == vm.fp-1 {
			ex.Line, ex.Col = line, col
		}
		name := "<script>"
		if f.tmpl != nil && f.tmpl.Kind != FuncScript {
			name = f.tmpl.Name
			if name == "" {
				name = "<anonymous>"
			}
		}
		ex.Trace = append(ex.Trace, fmt.Sprintf("%s (%d:%d)", name, line, col))
	}
}

// FormatTrace renders the recorded call stack of an exception.
func (e *Exception) FormatTrace() string {
	var sb strings.Builder
	for _, t := range e.Trace {
		sb.WriteString("    at ")
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	return sb.String()
}
