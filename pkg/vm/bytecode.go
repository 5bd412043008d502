package vm

import (
	"fmt"
	"math"
	"sort"
)

// OpCode defines the type for bytecode instructions.
type OpCode uint8

// Stack machine opcodes. Stack diagrams list operands bottom to top.
// Jump offsets are big-endian uint16, relative to the end of the
// instruction: forward for jumps, backward for OpLoop.
const (
	// Stack manipulation
	OpConstant  OpCode = iota // ConstIdx(16): [] -> [Constants[idx]]
	OpUndefined               // [] -> [undefined]
	OpNull                    // [] -> [null]
	OpTrue                    // [] -> [true]
	OpFalse                   // [] -> [false]
	OpPop                     // [a] -> []
	OpDup                     // [a] -> [a a]
	OpDup2                    // [a b] -> [a b a b]
	OpOver                    // [a b] -> [a b a]
	OpSwap                    // [a b] -> [b a]
	OpRot3                    // [a b c] -> [c a b]
	OpRot4                    // [a b c d] -> [d a b c]
	OpPick                    // N(8): copies the value N slots below the top

	// Arithmetic and bitwise, [a b] -> [a op b]
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpExp
	OpShl
	OpShr
	OpUShr
	OpBitAnd
	OpBitOr
	OpBitXor

	// Comparison, [a b] -> [bool]
	OpEq
	OpNotEq
	OpStrictEq
	OpStrictNotEq
	OpLess
	OpGreater
	OpLessEq
	OpGreaterEq
	OpInstanceOf
	OpIn

	// Unary, [a] -> [op a]
	OpNeg
	OpPlus
	OpNot
	OpBitNot
	OpTypeof
	OpToNumeric
	OpInc
	OpDec
	OpToPropertyKey
	OpToString

	// Bindings
	OpGetLocal      // Depth(8) Slot(16): [] -> [v]; TDZ checked
	OpSetLocal      // Depth(8) Slot(16): [v] -> [v]; TDZ checked
	OpInitLocal     // Depth(8) Slot(16): [v] -> []
	OpGetGlobal     // NameIdx(16): [] -> [v]
	OpSetGlobal     // NameIdx(16): [v] -> [v]
	OpInitGlobal    // NameIdx(16): [v] -> []; top-level let/const/class
	OpTypeofGlobal  // NameIdx(16): [] -> [string]
	OpDeleteGlobal  // NameIdx(16): [] -> [bool]
	OpGetName       // NameIdx(16): [] -> [v]; dynamic lookup through with scopes
	OpSetName       // NameIdx(16): [v] -> [v]
	OpTypeofName    // NameIdx(16): [] -> [string]
	OpDeleteName    // NameIdx(16): [] -> [bool]
	OpGetNameCallee // NameIdx(16): [] -> [fn this]
	OpPushEnv       // ScopeIdx(16): enter a block environment
	OpPopEnv        // leave the innermost environment
	OpCopyEnv       // replace the innermost environment by a copy (for-let iteration)
	OpPushWith      // [obj] -> []; enter an object environment

	// Properties
	OpGetProp       // NameIdx(16): [obj] -> [v]
	OpSetProp       // NameIdx(16): [obj v] -> [v]
	OpGetElem       // [obj key] -> [v]
	OpSetElem       // [obj key v] -> [v]
	OpDeleteProp    // NameIdx(16): [obj] -> [bool]
	OpDeleteElem    // [obj key] -> [bool]
	OpGetSuper      // [home this key] -> [v]
	OpSetSuper      // [home this key v] -> [v]
	OpGetPrivate    // [obj name] -> [v]
	OpSetPrivate    // [obj name v] -> [v]
	OpHasPrivate    // [obj name] -> [bool]
	OpDefinePrivate // [obj name v] -> [obj]; private field

	// Object, array and function construction
	OpNewObject           // [] -> [obj]
	OpNewArray            // [] -> [arr]
	OpArrayPush           // [arr v] -> [arr]
	OpArrayHole           // [arr] -> [arr]
	OpArraySpread         // [arr iterable] -> [arr]
	OpDefineProperty      // Kind(8): [obj key v] -> [obj]
	OpCopyData            // [target source] -> [target]
	OpCopyDataExcept      // N(8): [target source k1..kN] -> [target]
	OpSetProtoLit         // [obj proto] -> [obj]; __proto__: in object literals
	OpRegExp              // PatternIdx(16) FlagsIdx(16): [] -> [regexp]
	OpClosure             // FuncIdx(16): [] -> [fn]
	OpTemplateObject      // SiteIdx(16): [] -> [strings]
	OpClass               // FuncIdx(16) HasHeritage(8): [heritage?] -> [ctor proto]
	OpDefinePrivateMethod // Kind(8): [obj name fn] -> [obj]
	OpSetFieldInit        // [ctor fn] -> [ctor]
	OpSetHome             // [home fn] -> [home fn]
	OpInitFields          // [this fn] -> [this]; run fn's instance field initializer
	OpNameFunction        // [key fn] -> [key fn]; SetFunctionName from a computed key
	OpPrivateName         // NameIdx(16): [] -> [name]; a fresh private name per class evaluation

	// Control flow
	OpJump                 // Offset(16)
	OpLoop                 // Offset(16), backward
	OpJumpIfFalse          // Offset(16): [c] -> []
	OpJumpIfTrue           // Offset(16): [c] -> []
	OpJumpIfFalseKeep      // Offset(16): jump keeps [c], fallthrough pops it
	OpJumpIfTrueKeep       // Offset(16): jump keeps [c], fallthrough pops it
	OpJumpIfNotNullishKeep // Offset(16): jump keeps [v], fallthrough pops it
	OpJumpIfNotUndefined   // Offset(16): jump keeps [v], fallthrough pops it
	OpJumpIfNullishPop     // N(8) Offset(16): if top is nullish pop N values, push undefined, jump

	// Calls
	OpCall               // Argc(8): [fn this a1..aN] -> [result]
	OpCallSpread         // [fn this args] -> [result]
	OpNew                // Argc(8): [ctor a1..aN] -> [obj]
	OpNewSpread          // [ctor args] -> [obj]
	OpSuperCall          // Argc(8): [callee newTarget a1..aN] -> [this]
	OpSuperCallSpread    // [callee newTarget args] -> [this]
	OpSuperCallForward   // [callee newTarget] -> [this]; forwards the frame arguments
	OpBindThis           // Depth(8) Slot(16): [this] -> [this]; throws if already bound
	OpCheckDerivedReturn // Depth(8) Slot(16): [v] -> [result]
	OpReturn             // [v] -> (frame exits)

	// Exceptions
	OpThrow      // [v] -> (unwinds)
	OpThrowError // Kind(8) MsgIdx(16): throws a new error object

	// Iteration
	OpGetIterator          // Async(8): [obj] -> [iter]
	OpIteratorStep         // Offset(16): [iter] -> [iter v], or jump with [iter] when done
	OpIteratorNext         // [iter] -> [iter result]; no result checks
	OpIteratorComplete     // Offset(16): [iter result] -> [iter v], or jump with [iter] when done
	OpIteratorStepValue    // [iter] -> [iter v]; v is undefined once done
	OpIteratorRest         // [iter] -> [iter arr]
	OpIteratorClose        // [iter] -> []
	OpIteratorCloseAbrupt  // [iter] -> []; errors from return() are suppressed unless the value below is a pending return
	OpIteratorCallReturn   // Offset(16): [iter] -> [result], or jump with [] when nothing to call
	OpCheckObject          // [v] -> [v]; TypeError unless v is an object
	OpForInKeys            // [obj] -> [iter]
	OpForInNext            // Offset(16): [iter] -> [iter key], or jump with [iter] when done

	// Generators and async functions
	OpGeneratorStart // suspend after parameter binding
	OpYield          // [v] -> [received]
	OpYieldStar      // [iter received mode] -> [v]
	OpAwait          // [v] -> [resolved]

	// Frame data
	OpGlobalThis      // [] -> [global object]
	OpThisArg         // [] -> [this as passed to the frame]
	OpNewTarget       // [] -> [new.target]
	OpCallee          // [] -> [running function]
	OpHomeObject      // [] -> [home object of the running function]
	OpGetArg          // Index(16): [] -> [argument or undefined]
	OpRestArgs        // From(16): [] -> [array of arguments from index]
	OpCreateArguments // Mapped(8): [] -> [arguments object]

	// Script support
	OpSetCompletion    // [v] -> []
	OpGetCompletion    // [] -> [completion value]
	OpDeclareGlobals   // GlobalDeclarationInstantiation for the running script
	OpDefineGlobalFunc // NameIdx(16): [fn] -> []
	OpDebugger
	OpNop

	opCount
)

// Property definition kinds for OpDefineProperty and OpDefinePrivateMethod.
const (
	DefineData     byte = 0
	DefineMethod   byte = 1 // also sets the function's home object
	DefineGetter   byte = 2
	DefineSetter   byte = 3
	DefineKindMask byte = 0x0f

	DefineEnumerable byte = 0x10 // object literal members
	DefineSetName    byte = 0x20 // name an anonymous function after the key
)

// Error kinds for OpThrowError.
const (
	ErrorKindType byte = iota
	ErrorKindReference
	ErrorKindSyntax
	ErrorKindRange
)

// Resumption modes stored by OpYieldStar.
const (
	ResumeNext   = 0
	ResumeThrow  = 1
	ResumeReturn = 2
	// awaiting the result of the inner iterator (async generators)
	resumeAwaitResult = 3
	resumeAwaitReturn = 4
)

type operandKind uint8

const (
	opdU8 operandKind = iota
	opdU16
	opdConst    // constant pool index
	opdName     // constant pool index of a string
	opdFunc     // function template index
	opdScope    // scope index
	opdSite     // template site index
	opdJump     // forward offset
	opdLoop     // backward offset
	opdDepth    // environment depth
	opdSlot     // environment slot
	opdArgc     // argument count
	opdErrKind  // error kind
	opdDefKind  // property definition kind
	opdBool     // 0 or 1
	opdPopCount // values popped by OpJumpIfNullishPop
)

func (k operandKind) width() int {
	switch k {
	case opdU8, opdDepth, opdArgc, opdErrKind, opdDefKind, opdBool, opdPopCount:
		return 1
	}
	return 2
}

type opInfo struct {
	name     string
	operands []operandKind
	pop      int
	push     int
	// terminator ops never fall through
	terminator bool
}

var opTable = [opCount]opInfo{
	OpConstant:  {"OpConstant", []operandKind{opdConst}, 0, 1, false},
	OpUndefined: {name: "OpUndefined", push: 1},
	OpNull:      {name: "OpNull", push: 1},
	OpTrue:      {name: "OpTrue", push: 1},
	OpFalse:     {name: "OpFalse", push: 1},
	OpPop:       {name: "OpPop", pop: 1},
	OpDup:       {name: "OpDup", pop: 1, push: 2},
	OpDup2:      {name: "OpDup2", pop: 2, push: 4},
	OpOver:      {name: "OpOver", pop: 2, push: 3},
	OpSwap:      {name: "OpSwap", pop: 2, push: 2},
	OpRot3:      {name: "OpRot3", pop: 3, push: 3},
	OpRot4:      {name: "OpRot4", pop: 4, push: 4},
	OpPick:      {name: "OpPick", operands: []operandKind{opdU8}, push: 1},

	OpAdd:    {name: "OpAdd", pop: 2, push: 1},
	OpSub:    {name: "OpSub", pop: 2, push: 1},
	OpMul:    {name: "OpMul", pop: 2, push: 1},
	OpDiv:    {name: "OpDiv", pop: 2, push: 1},
	OpMod:    {name: "OpMod", pop: 2, push: 1},
	OpExp:    {name: "OpExp", pop: 2, push: 1},
	OpShl:    {name: "OpShl", pop: 2, push: 1},
	OpShr:    {name: "OpShr", pop: 2, push: 1},
	OpUShr:   {name: "OpUShr", pop: 2, push: 1},
	OpBitAnd: {name: "OpBitAnd", pop: 2, push: 1},
	OpBitOr:  {name: "OpBitOr", pop: 2, push: 1},
	OpBitXor: {name: "OpBitXor", pop: 2, push: 1},

	OpEq:          {name: "OpEq", pop: 2, push: 1},
	OpNotEq:       {name: "OpNotEq", pop: 2, push: 1},
	OpStrictEq:    {name: "OpStrictEq", pop: 2, push: 1},
	OpStrictNotEq: {name: "OpStrictNotEq", pop: 2, push: 1},
	OpLess:        {name: "OpLess", pop: 2, push: 1},
	OpGreater:     {name: "OpGreater", pop: 2, push: 1},
	OpLessEq:      {name: "OpLessEq", pop: 2, push: 1},
	OpGreaterEq:   {name: "OpGreaterEq", pop: 2, push: 1},
	OpInstanceOf:  {name: "OpInstanceOf", pop: 2, push: 1},
	OpIn:          {name: "OpIn", pop: 2, push: 1},

	OpNeg:           {name: "OpNeg", pop: 1, push: 1},
	OpPlus:          {name: "OpPlus", pop: 1, push: 1},
	OpNot:           {name: "OpNot", pop: 1, push: 1},
	OpBitNot:        {name: "OpBitNot", pop: 1, push: 1},
	OpTypeof:        {name: "OpTypeof", pop: 1, push: 1},
	OpToNumeric:     {name: "OpToNumeric", pop: 1, push: 1},
	OpInc:           {name: "OpInc", pop: 1, push: 1},
	OpDec:           {name: "OpDec", pop: 1, push: 1},
	OpToPropertyKey: {name: "OpToPropertyKey", pop: 1, push: 1},
	OpToString:      {name: "OpToString", pop: 1, push: 1},

	OpGetLocal:      {"OpGetLocal", []operandKind{opdDepth, opdSlot}, 0, 1, false},
	OpSetLocal:      {"OpSetLocal", []operandKind{opdDepth, opdSlot}, 1, 1, false},
	OpInitLocal:     {"OpInitLocal", []operandKind{opdDepth, opdSlot}, 1, 0, false},
	OpGetGlobal:     {"OpGetGlobal", []operandKind{opdName}, 0, 1, false},
	OpSetGlobal:     {"OpSetGlobal", []operandKind{opdName}, 1, 1, false},
	OpInitGlobal:    {"OpInitGlobal", []operandKind{opdName}, 1, 0, false},
	OpTypeofGlobal:  {"OpTypeofGlobal", []operandKind{opdName}, 0, 1, false},
	OpDeleteGlobal:  {"OpDeleteGlobal", []operandKind{opdName}, 0, 1, false},
	OpGetName:       {"OpGetName", []operandKind{opdName}, 0, 1, false},
	OpSetName:       {"OpSetName", []operandKind{opdName}, 1, 1, false},
	OpTypeofName:    {"OpTypeofName", []operandKind{opdName}, 0, 1, false},
	OpDeleteName:    {"OpDeleteName", []operandKind{opdName}, 0, 1, false},
	OpGetNameCallee: {"OpGetNameCallee", []operandKind{opdName}, 0, 2, false},
	OpPushEnv:       {"OpPushEnv", []operandKind{opdScope}, 0, 0, false},
	OpPopEnv:        {name: "OpPopEnv"},
	OpCopyEnv:       {name: "OpCopyEnv"},
	OpPushWith:      {name: "OpPushWith", pop: 1},

	OpGetProp:       {"OpGetProp", []operandKind{opdName}, 1, 1, false},
	OpSetProp:       {"OpSetProp", []operandKind{opdName}, 2, 1, false},
	OpGetElem:       {name: "OpGetElem", pop: 2, push: 1},
	OpSetElem:       {name: "OpSetElem", pop: 3, push: 1},
	OpDeleteProp:    {"OpDeleteProp", []operandKind{opdName}, 1, 1, false},
	OpDeleteElem:    {name: "OpDeleteElem", pop: 2, push: 1},
	OpGetSuper:      {name: "OpGetSuper", pop: 3, push: 1},
	OpSetSuper:      {name: "OpSetSuper", pop: 4, push: 1},
	OpGetPrivate:    {name: "OpGetPrivate", pop: 2, push: 1},
	OpSetPrivate:    {name: "OpSetPrivate", pop: 3, push: 1},
	OpHasPrivate:    {name: "OpHasPrivate", pop: 2, push: 1},
	OpDefinePrivate: {name: "OpDefinePrivate", pop: 3, push: 1},

	OpNewObject:           {name: "OpNewObject", push: 1},
	OpNewArray:            {name: "OpNewArray", push: 1},
	OpArrayPush:           {name: "OpArrayPush", pop: 2, push: 1},
	OpArrayHole:           {name: "OpArrayHole", pop: 1, push: 1},
	OpArraySpread:         {name: "OpArraySpread", pop: 2, push: 1},
	OpDefineProperty:      {"OpDefineProperty", []operandKind{opdDefKind}, 3, 1, false},
	OpCopyData:            {name: "OpCopyData", pop: 2, push: 1},
	OpCopyDataExcept:      {"OpCopyDataExcept", []operandKind{opdU8}, 2, 1, false},
	OpSetProtoLit:         {name: "OpSetProtoLit", pop: 2, push: 1},
	OpRegExp:              {"OpRegExp", []operandKind{opdName, opdName}, 0, 1, false},
	OpClosure:             {"OpClosure", []operandKind{opdFunc}, 0, 1, false},
	OpTemplateObject:      {"OpTemplateObject", []operandKind{opdSite}, 0, 1, false},
	OpClass:               {"OpClass", []operandKind{opdFunc, opdBool}, 0, 2, false},
	OpDefinePrivateMethod: {"OpDefinePrivateMethod", []operandKind{opdDefKind}, 3, 1, false},
	OpSetFieldInit:        {name: "OpSetFieldInit", pop: 2, push: 1},
	OpSetHome:             {name: "OpSetHome", pop: 2, push: 2},
	OpInitFields:          {name: "OpInitFields", pop: 2, push: 1},
	OpNameFunction:        {name: "OpNameFunction", pop: 2, push: 2},
	OpPrivateName:         {"OpPrivateName", []operandKind{opdName}, 0, 1, false},

	OpJump:                 {"OpJump", []operandKind{opdJump}, 0, 0, true},
	OpLoop:                 {"OpLoop", []operandKind{opdLoop}, 0, 0, true},
	OpJumpIfFalse:          {"OpJumpIfFalse", []operandKind{opdJump}, 1, 0, false},
	OpJumpIfTrue:           {"OpJumpIfTrue", []operandKind{opdJump}, 1, 0, false},
	OpJumpIfFalseKeep:      {"OpJumpIfFalseKeep", []operandKind{opdJump}, 1, 0, false},
	OpJumpIfTrueKeep:       {"OpJumpIfTrueKeep", []operandKind{opdJump}, 1, 0, false},
	OpJumpIfNotNullishKeep: {"OpJumpIfNotNullishKeep", []operandKind{opdJump}, 1, 0, false},
	OpJumpIfNotUndefined:   {"OpJumpIfNotUndefined", []operandKind{opdJump}, 1, 0, false},
	OpJumpIfNullishPop:     {"OpJumpIfNullishPop", []operandKind{opdPopCount, opdJump}, 0, 0, false},

	OpCall:               {"OpCall", []operandKind{opdArgc}, 2, 1, false},
	OpCallSpread:         {name: "OpCallSpread", pop: 3, push: 1},
	OpNew:                {"OpNew", []operandKind{opdArgc}, 1, 1, false},
	OpNewSpread:          {name: "OpNewSpread", pop: 2, push: 1},
	OpSuperCall:          {"OpSuperCall", []operandKind{opdArgc}, 2, 1, false},
	OpSuperCallSpread:    {name: "OpSuperCallSpread", pop: 3, push: 1},
	OpSuperCallForward:   {name: "OpSuperCallForward", pop: 2, push: 1},
	OpBindThis:           {"OpBindThis", []operandKind{opdDepth, opdSlot}, 1, 1, false},
	OpCheckDerivedReturn: {"OpCheckDerivedReturn", []operandKind{opdDepth, opdSlot}, 1, 1, false},
	OpReturn:             {name: "OpReturn", pop: 1, terminator: true},

	OpThrow:      {name: "OpThrow", pop: 1, terminator: true},
	OpThrowError: {"OpThrowError", []operandKind{opdErrKind, opdName}, 0, 0, true},

	OpGetIterator:         {"OpGetIterator", []operandKind{opdBool}, 1, 1, false},
	OpIteratorStep:        {"OpIteratorStep", []operandKind{opdJump}, 1, 2, false},
	OpIteratorNext:        {name: "OpIteratorNext", pop: 1, push: 2},
	OpIteratorComplete:    {"OpIteratorComplete", []operandKind{opdJump}, 2, 2, false},
	OpIteratorStepValue:   {name: "OpIteratorStepValue", pop: 1, push: 2},
	OpIteratorRest:        {name: "OpIteratorRest", pop: 1, push: 2},
	OpIteratorClose:       {name: "OpIteratorClose", pop: 1},
	OpIteratorCloseAbrupt: {name: "OpIteratorCloseAbrupt", pop: 1},
	OpIteratorCallReturn:  {"OpIteratorCallReturn", []operandKind{opdJump}, 1, 1, false},
	OpCheckObject:         {name: "OpCheckObject", pop: 1, push: 1},
	OpForInKeys:           {name: "OpForInKeys", pop: 1, push: 1},
	OpForInNext:           {"OpForInNext", []operandKind{opdJump}, 1, 2, false},

	OpGeneratorStart: {name: "OpGeneratorStart", push: 1}, // [] -> [received]
	OpYield:          {name: "OpYield", pop: 1, push: 1},
	OpYieldStar:      {name: "OpYieldStar", pop: 3, push: 1},
	OpAwait:          {name: "OpAwait", pop: 1, push: 1},

	OpGlobalThis:      {name: "OpGlobalThis", push: 1},
	OpThisArg:         {name: "OpThisArg", push: 1},
	OpNewTarget:       {name: "OpNewTarget", push: 1},
	OpCallee:          {name: "OpCallee", push: 1},
	OpHomeObject:      {name: "OpHomeObject", push: 1},
	OpGetArg:          {"OpGetArg", []operandKind{opdU16}, 0, 1, false},
	OpRestArgs:        {"OpRestArgs", []operandKind{opdU16}, 0, 1, false},
	OpCreateArguments: {"OpCreateArguments", []operandKind{opdBool}, 0, 1, false},

	OpSetCompletion:    {name: "OpSetCompletion", pop: 1},
	OpGetCompletion:    {name: "OpGetCompletion", push: 1},
	OpDeclareGlobals:   {name: "OpDeclareGlobals"},
	OpDefineGlobalFunc: {"OpDefineGlobalFunc", []operandKind{opdName}, 1, 0, false},
	OpDebugger:         {name: "OpDebugger"},
	OpNop:              {name: "OpNop"},
}

// String returns the opcode mnemonic.
func (op OpCode) String() string {
	if op < opCount && opTable[op].name != "" {
		return opTable[op].name
	}
	return fmt.Sprintf("UnknownOp(%d)", byte(op))
}

// Size returns the encoded length of the instruction, opcode included.
func (op OpCode) Size() int {
	n := 1
	for _, k := range opTable[op].operands {
		n += k.width()
	}
	return n
}

// StackEffect returns the values popped and pushed by an instruction on
// its fall-through path. operands are the decoded operand values.
func (op OpCode) StackEffect(operands []int) (pop, push int) {
	info := &opTable[op]
	pop, push = info.pop, info.push
	switch op {
	case OpPick:
		// reads below the top without popping
		pop, push = operands[0]+1, operands[0]+2
	case OpCall, OpSuperCall:
		pop += operands[0]
	case OpNew:
		pop += operands[0]
	case OpCopyDataExcept:
		pop += operands[0]
	case OpClass:
		if operands[1] != 0 {
			pop = 1
		}
	}
	return pop, push
}

// OperandWidths returns the encoded byte width of each operand.
func (op OpCode) OperandWidths() []int {
	kinds := opTable[op].operands
	w := make([]int, len(kinds))
	for i, k := range kinds {
		w[i] = k.width()
	}
	return w
}

// BranchEffect returns the values popped and pushed when a conditional
// jump is taken.
func (op OpCode) BranchEffect(operands []int) (pop, push int) {
	return op.branchEffect(operands)
}

// branchEffect is the stack effect on the taken path of a conditional
// jump, for instructions whose taken and fall-through paths differ.
func (op OpCode) branchEffect(operands []int) (pop, push int) {
	switch op {
	case OpJumpIfFalseKeep, OpJumpIfTrueKeep, OpJumpIfNotNullishKeep, OpJumpIfNotUndefined:
		return 1, 1
	case OpJumpIfNullishPop:
		return operands[0], 1
	case OpIteratorStep, OpForInNext:
		return 1, 1
	case OpIteratorComplete:
		return 2, 1
	case OpIteratorCallReturn:
		return 1, 0
	}
	return op.StackEffect(operands)
}

// ExceptionHandler describes a protected region [TryStart, TryEnd) of a
// chunk. On a throw inside it the operand stack is cut back to StackDepth,
// the environment chain to EnvDepth, the thrown value is pushed and
// execution continues at HandlerPC. IsFinally handlers also intercept
// generator return completions. Entries are ordered innermost first.
type ExceptionHandler struct {
	TryStart   int
	TryEnd     int
	HandlerPC  int
	StackDepth int
	EnvDepth   int
	IsFinally  bool
}

// TemplateSite is the static part of a tagged template call site.
type TemplateSite struct {
	Cooked []Value // undefined for invalid escapes
	Raw    []string
}

// PosEntry maps the instruction starting at PC (and those following it up
// to the next entry) to a source position.
type PosEntry struct {
	PC     int
	Line   int32
	Column int32
}

// Chunk is a unit of compiled bytecode with its constant pools.
type Chunk struct {
	Code           []byte
	Constants      []Value // primitives only
	Functions      []*FunctionTemplate
	Scopes         []*ScopeInfo
	Sites          []*TemplateSite
	ExceptionTable []ExceptionHandler
	Positions      []PosEntry
	MaxStack       int

	constIndex map[constKey]uint16
}

// NewChunk creates a new, empty Chunk.
func NewChunk() *Chunk {
	return &Chunk{}
}

// WriteOpCode adds an opcode to the chunk and records its source position.
func (c *Chunk) WriteOpCode(op OpCode, line, col int) {
	pc := len(c.Code)
	c.Code = append(c.Code, byte(op))
	if n := len(c.Positions); n == 0 || c.Positions[n-1].Line != int32(line) || c.Positions[n-1].Column != int32(col) {
		c.Positions = append(c.Positions, PosEntry{PC: pc, Line: int32(line), Column: int32(col)})
	}
}

// WriteUint8 adds a one-byte operand.
func (c *Chunk) WriteUint8(b byte) {
	c.Code = append(c.Code, b)
}

// WriteUint16 adds a big-endian 16-bit operand.
func (c *Chunk) WriteUint16(val uint16) {
	c.Code = append(c.Code, byte(val>>8), byte(val))
}

// PatchUint16 overwrites the 16-bit operand at offset.
func (c *Chunk) PatchUint16(offset int, val uint16) {
	c.Code[offset] = byte(val >> 8)
	c.Code[offset+1] = byte(val)
}

func (c *Chunk) readUint16(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

type constKey struct {
	typ     ValueType
	payload uint64
	s       string
}

// AddConstant adds a primitive to the constant pool, reusing an existing
// identical entry, and returns its index.
func (c *Chunk) AddConstant(v Value) uint16 {
	k := constKeyOf(v)
	if c.constIndex == nil {
		c.constIndex = make(map[constKey]uint16, len(c.Constants))
		for i, existing := range c.Constants {
			c.constIndex[constKeyOf(existing)] = uint16(i)
		}
	}
	if i, ok := c.constIndex[k]; ok {
		return i
	}
	c.Constants = append(c.Constants, v)
	i := uint16(len(c.Constants) - 1)
	c.constIndex[k] = i
	return i
}

func constKeyOf(v Value) constKey {
	k := constKey{typ: v.typ, payload: v.payload}
	switch v.typ {
	case TypeString:
		k.s = v.AsString()
	case TypeBigInt:
		k.s = v.AsBigInt().String()
	}
	return k
}

// AddFunction adds a nested function template.
func (c *Chunk) AddFunction(t *FunctionTemplate) uint16 {
	c.Functions = append(c.Functions, t)
	return uint16(len(c.Functions) - 1)
}

// AddScope adds a block scope shape.
func (c *Chunk) AddScope(s *ScopeInfo) uint16 {
	c.Scopes = append(c.Scopes, s)
	return uint16(len(c.Scopes) - 1)
}

// AddSite adds a tagged template site.
func (c *Chunk) AddSite(s *TemplateSite) uint16 {
	c.Sites = append(c.Sites, s)
	return uint16(len(c.Sites) - 1)
}

// GetPosition returns the source line and column of the instruction at pc.
func (c *Chunk) GetPosition(pc int) (line, col int) {
	i := sort.Search(len(c.Positions), func(i int) bool { return c.Positions[i].PC > pc }) - 1
	if i < 0 {
		return 0, 0
	}
	return int(c.Positions[i].Line), int(c.Positions[i].Column)
}

// GetLine returns the source line of the instruction at pc.
func (c *Chunk) GetLine(pc int) int {
	line, _ := c.GetPosition(pc)
	return line
}

// Instruction is a decoded instruction.
type Instruction struct {
	PC       int
	Op       OpCode
	Operands []int
}

// Size returns the encoded length of the instruction.
func (in Instruction) Size() int { return in.Op.Size() }

// Target returns the absolute jump target of a jump instruction.
func (in Instruction) Target() (int, bool) {
	kinds := opTable[in.Op].operands
	for i, k := range kinds {
		switch k {
		case opdJump:
			return in.PC + in.Size() + in.Operands[i], true
		case opdLoop:
			return in.PC + in.Size() - in.Operands[i], true
		}
	}
	return 0, false
}

// Decode reads the instruction at pc.
func (c *Chunk) Decode(pc int) (Instruction, error) {
	if pc < 0 || pc >= len(c.Code) {
		return Instruction{}, fmt.Errorf("offset %d outside code", pc)
	}
	op := OpCode(c.Code[pc])
	if op >= opCount {
		return Instruction{}, fmt.Errorf("offset %d: unknown opcode %d", pc, byte(op))
	}
	if pc+op.Size() > len(c.Code) {
		return Instruction{}, fmt.Errorf("offset %d: truncated %s", pc, op)
	}
	in := Instruction{PC: pc, Op: op}
	p := pc + 1
	for _, k := range opTable[op].operands {
		if k.width() == 1 {
			in.Operands = append(in.Operands, int(c.Code[p]))
		} else {
			in.Operands = append(in.Operands, c.readUint16(p))
		}
		p += k.width()
	}
	return in, nil
}

// Instructions decodes the whole chunk.
func (c *Chunk) Instructions() ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(c.Code); {
		in, err := c.Decode(pc)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		pc += in.Size()
	}
	return out, nil
}

// ValidationError reports a malformed chunk.
type ValidationError struct {
	PC  int
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bytecode at %04d: %s", e.PC, e.Msg)
}

// Validate checks a chunk without executing it: every instruction decodes,
// operands index existing pool entries, jump targets land on instruction
// boundaries and the operand stack height agrees at every join point.
// On success MaxStack is set to the largest height reached.
func (c *Chunk) Validate() error {
	instrs, err := c.Instructions()
	if err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	if len(instrs) == 0 {
		return &ValidationError{Msg: "empty chunk"}
	}
	at := make(map[int]int, len(instrs)) // pc -> instruction index
	for i, in := range instrs {
		at[in.PC] = i
	}
	for i, in := range instrs {
		if err := c.checkOperands(in); err != nil {
			return err
		}
		if t, ok := in.Target(); ok {
			if _, ok := at[t]; !ok {
				return &ValidationError{PC: in.PC, Msg: fmt.Sprintf("jump target %d is not an instruction", t)}
			}
		}
		if i == len(instrs)-1 && !opTable[in.Op].terminator {
			return &ValidationError{PC: in.PC, Msg: "code falls off the end of the chunk"}
		}
	}

	heights := make([]int, len(instrs))
	for i := range heights {
		heights[i] = -1
	}
	var work []int
	maxStack := 0
	visit := func(from, idx, h int) error {
		if h < 0 {
			return &ValidationError{PC: from, Msg: "stack underflow"}
		}
		if h > maxStack {
			maxStack = h
		}
		switch heights[idx] {
		case -1:
			heights[idx] = h
			work = append(work, idx)
		case h:
		default:
			return &ValidationError{PC: instrs[idx].PC, Msg: fmt.Sprintf("inconsistent stack height %d (previously %d)", h, heights[idx])}
		}
		return nil
	}
	if err := visit(0, 0, 0); err != nil {
		return err
	}
	for _, h := range c.ExceptionTable {
		if h.TryStart > h.TryEnd || h.TryEnd > len(c.Code) {
			return &ValidationError{PC: h.TryStart, Msg: "malformed protected region"}
		}
		idx, ok := at[h.HandlerPC]
		if !ok {
			return &ValidationError{PC: h.HandlerPC, Msg: "handler is not an instruction"}
		}
		if err := visit(h.HandlerPC, idx, h.StackDepth+1); err != nil {
			return err
		}
	}
	for len(work) > 0 {
		idx := work[len(work)-1]
		work = work[:len(work)-1]
		in := instrs[idx]
		h := heights[idx]
		pop, push := in.Op.StackEffect(in.Operands)
		if h < pop {
			return &ValidationError{PC: in.PC, Msg: fmt.Sprintf("%s needs %d values, stack has %d", in.Op, pop, h)}
		}
		if t, ok := in.Target(); ok {
			bp, bpush := in.Op.branchEffect(in.Operands)
			if h < bp {
				return &ValidationError{PC: in.PC, Msg: fmt.Sprintf("%s needs %d values, stack has %d", in.Op, bp, h)}
			}
			if err := visit(in.PC, at[t], h-bp+bpush); err != nil {
				return err
			}
		}
		if !opTable[in.Op].terminator {
			if idx+1 >= len(instrs) {
				return &ValidationError{PC: in.PC, Msg: "code falls off the end of the chunk"}
			}
			if err := visit(in.PC, idx+1, h-pop+push); err != nil {
				return err
			}
		}
	}
	c.MaxStack = maxStack
	return nil
}

func (c *Chunk) checkOperands(in Instruction) error {
	for i, k := range opTable[in.Op].operands {
		v := in.Operands[i]
		bad := ""
		switch k {
		case opdConst:
			if v >= len(c.Constants) {
				bad = "constant index"
			}
		case opdName:
			if v >= len(c.Constants) || !c.Constants[v].IsString() {
				bad = "name index"
			}
		case opdFunc:
			if v >= len(c.Functions) {
				bad = "function index"
			}
		case opdScope:
			if v >= len(c.Scopes) {
				bad = "scope index"
			}
		case opdSite:
			if v >= len(c.Sites) {
				bad = "template site index"
			}
		case opdErrKind:
			if v > int(ErrorKindRange) {
				bad = "error kind"
			}
		case opdDefKind:
			if byte(v)&DefineKindMask > DefineSetter {
				bad = "definition kind"
			}
		case opdBool:
			if v > 1 {
				bad = "flag"
			}
		case opdPopCount:
			if v == 0 {
				bad = "pop count"
			}
		case opdLoop:
			if v > in.PC+in.Size() {
				bad = "loop offset"
			}
		case opdJump:
			if in.PC+in.Size()+v > math.MaxInt32 {
				bad = "jump offset"
			}
		}
		if bad != "" {
			return &ValidationError{PC: in.PC, Msg: fmt.Sprintf("%s: bad %s %d", in.Op, bad, v)}
		}
	}
	return nil
}
