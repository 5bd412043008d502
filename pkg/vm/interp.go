package vm

var opSizes [opCount]int

func init() {
	for op := OpCode(0); op < opCount; op++ {
		opSizes[op] = op.Size()
	}
}

// run executes frames until the boundary frame at index stop returns or
// an error escapes it.
func (vm *VM) run(stop int) (Value, error) {
	vm.runDepth++
	defer func() { vm.runDepth-- }()
	interval := vm.cfg.VM.InterruptCheckInterval

	for {
		var err error
		if vm.steps++; vm.steps >= interval {
			err = vm.safePoint()
		}
		if err == nil {
			var ret Value
			var done bool
			ret, done, err = vm.step()
			if done {
				return ret, nil
			}
		}
		if err != nil {
			action, v, uerr := vm.unwind(err, stop)
			switch action {
			case unwindReturn:
				return v, nil
			case unwindError:
				return Undefined, uerr
			}
		}
	}
}

// step executes one instruction of the top frame. done reports that the
// boundary frame returned ret.
func (vm *VM) step() (ret Value, done bool, err error) {
	f := &vm.frames[vm.fp-1]
	code := f.chunk.Code
	ip := f.ip
	op := OpCode(code[ip])
	f.opStart = ip
	f.ip = ip + opSizes[op]

	switch op {
	case OpConstant:
		vm.push(f.chunk.Constants[u16(code, ip+1)])
	case OpUndefined:
		vm.push(Undefined)
	case OpNull:
		vm.push(Null)
	case OpTrue:
		vm.push(True)
	case OpFalse:
		vm.push(False)
	case OpPop:
		vm.pop()
	case OpDup:
		vm.push(vm.peek(0))
	case OpDup2:
		a, b := vm.peek(1), vm.peek(0)
		vm.push(a)
		vm.push(b)
	case OpOver:
		vm.push(vm.peek(1))
	case OpSwap:
		s := vm.stack
		s[vm.sp-1], s[vm.sp-2] = s[vm.sp-2], s[vm.sp-1]
	case OpRot3:
		s, n := vm.stack, vm.sp
		s[n-3], s[n-2], s[n-1] = s[n-1], s[n-3], s[n-2]
	case OpRot4:
		s, n := vm.stack, vm.sp
		s[n-4], s[n-3], s[n-2], s[n-1] = s[n-1], s[n-4], s[n-3], s[n-2]
	case OpPick:
		vm.push(vm.peek(int(code[ip+1])))

	case OpAdd:
		b, a := vm.pop(), vm.pop()
		var r Value
		if a.typ == TypeNumber && b.typ == TypeNumber {
			r = NumberValue(a.AsNumber() + b.AsNumber())
		} else if r, err = vm.Add(a, b); err != nil {
			break
		}
		vm.push(r)
	case OpSub, OpMul, OpDiv, OpMod, OpExp, OpShl, OpShr, OpUShr, OpBitAnd, OpBitOr, OpBitXor:
		b, a := vm.pop(), vm.pop()
		var r Value
		if r, err = vm.Arithmetic(Operator(op-OpSub)+OperatorSub, a, b); err == nil {
			vm.push(r)
		}

	case OpEq, OpNotEq:
		b, a := vm.pop(), vm.pop()
		var eq bool
		if eq, err = vm.LooseEquals(a, b); err == nil {
			vm.push(BoolValue(eq == (op == OpEq)))
		}
	case OpStrictEq:
		b, a := vm.pop(), vm.pop()
		vm.push(BoolValue(StrictEquals(a, b)))
	case OpStrictNotEq:
		b, a := vm.pop(), vm.pop()
		vm.push(BoolValue(!StrictEquals(a, b)))
	case OpLess, OpGreater, OpLessEq, OpGreaterEq:
		b, a := vm.pop(), vm.pop()
		if a.typ == TypeNumber && b.typ == TypeNumber {
			vm.push(BoolValue(compareNumbers(op, a.AsNumber(), b.AsNumber())))
			break
		}
		var r bool
		if r, err = vm.Compare(Operator(op-OpLess)+RelLess, a, b); err == nil {
			vm.push(BoolValue(r))
		}
	case OpInstanceOf:
		target, v := vm.pop(), vm.pop()
		var r bool
		if r, err = vm.InstanceOf(v, target); err == nil {
			vm.push(BoolValue(r))
		}
	case OpIn:
		target, key := vm.pop(), vm.pop()
		var r bool
		if r, err = vm.HasPropertyOp(key, target); err == nil {
			vm.push(BoolValue(r))
		}

	case OpNeg:
		var r Value
		if r, err = vm.Negate(vm.pop()); err == nil {
			vm.push(r)
		}
	case OpPlus:
		var n float64
		if n, err = vm.ToNumber(vm.pop()); err == nil {
			vm.push(NumberValue(n))
		}
	case OpNot:
		vm.push(BoolValue(!ToBoolean(vm.pop())))
	case OpBitNot:
		var r Value
		if r, err = vm.BitNot(vm.pop()); err == nil {
			vm.push(r)
		}
	case OpTypeof:
		vm.push(StringValue(TypeOf(vm.pop())))
	case OpToNumeric:
		var r Value
		if r, err = vm.ToNumeric(vm.pop()); err == nil {
			vm.push(r)
		}
	case OpInc, OpDec:
		delta := 1
		if op == OpDec {
			delta = -1
		}
		v := vm.pop()
		if v.typ == TypeNumber {
			vm.push(NumberValue(v.AsNumber() + float64(delta)))
			break
		}
		var r Value
		if r, err = vm.Increment(v, delta); err == nil {
			vm.push(r)
		}
	case OpToPropertyKey:
		var k PropertyKey
		if k, err = vm.ToPropertyKey(vm.pop()); err == nil {
			vm.push(k.Value())
		}
	case OpToString:
		v := vm.pop()
		if v.typ == TypeString {
			vm.push(v)
			break
		}
		var s string
		if s, err = vm.ToString(v); err == nil {
			vm.push(StringValue(s))
		}

	// --- bindings ---
	case OpGetLocal:
		e := f.env.at(int(code[ip+1]))
		slot := u16(code, ip+2)
		v := e.slots[slot]
		if v.typ == TypeUninitialized {
			err = vm.tdzError(e, slot)
			break
		}
		vm.push(v)
	case OpSetLocal:
		e := f.env.at(int(code[ip+1]))
		slot := u16(code, ip+2)
		if e.slots[slot].typ == TypeUninitialized {
			err = vm.tdzError(e, slot)
			break
		}
		e.slots[slot] = vm.peek(0)
	case OpInitLocal:
		e := f.env.at(int(code[ip+1]))
		e.slots[u16(code, ip+2)] = vm.pop()
	case OpGetGlobal:
		var v Value
		if v, err = vm.getGlobal(f.realm, constName(f, code, ip)); err == nil {
			vm.push(v)
		}
	case OpSetGlobal:
		err = vm.setGlobal(f.realm, constName(f, code, ip), vm.peek(0), f.tmpl.Strict)
	case OpInitGlobal:
		vm.initGlobalLexical(f.realm, constName(f, code, ip), vm.pop())
	case OpTypeofGlobal:
		var v Value
		if v, err = vm.typeofGlobal(f.realm, constName(f, code, ip)); err == nil {
			vm.push(v)
		}
	case OpDeleteGlobal:
		vm.push(BoolValue(vm.deleteGlobal(f.realm, constName(f, code, ip))))
	case OpGetName:
		var v Value
		if v, _, err = vm.getName(f.realm, f.env, constName(f, code, ip), f.tmpl.Strict); err == nil {
			vm.push(v)
		}
	case OpSetName:
		err = vm.setName(f.realm, f.env, constName(f, code, ip), vm.peek(0), f.tmpl.Strict)
	case OpTypeofName:
		var v Value
		if v, err = vm.typeofName(f.realm, f.env, constName(f, code, ip)); err == nil {
			vm.push(v)
		}
	case OpDeleteName:
		var ok bool
		if ok, err = vm.deleteName(f.realm, f.env, constName(f, code, ip)); err == nil {
			vm.push(BoolValue(ok))
		}
	case OpGetNameCallee:
		var v, this Value
		if v, this, err = vm.getName(f.realm, f.env, constName(f, code, ip), f.tmpl.Strict); err == nil {
			vm.push(v)
			vm.push(this)
		}
	case OpPushEnv:
		f.env = vm.NewEnv(f.chunk.Scopes[u16(code, ip+1)], f.env)
		f.envDepth++
	case OpPopEnv:
		f.env = f.env.outer
		f.envDepth--
	case OpCopyEnv:
		f.env = vm.copyEnv(f.env)
	case OpPushWith:
		var o *Object
		if o, err = vm.ToObject(vm.pop()); err == nil {
			f.env = vm.newWithEnv(o, f.env)
			f.envDepth++
		}

	// --- properties ---
	case OpGetProp:
		obj := vm.pop()
		var v Value
		if v, err = vm.getProperty(obj, StringKey(constName(f, code, ip))); err == nil {
			vm.push(v)
		}
	case OpSetProp:
		v, obj := vm.pop(), vm.pop()
		if err = vm.PutValue(obj, StringKey(constName(f, code, ip)), v, f.tmpl.Strict); err == nil {
			vm.push(v)
		}
	case OpGetElem:
		key, obj := vm.pop(), vm.pop()
		var v Value
		if v, err = vm.getElement(obj, key); err == nil {
			vm.push(v)
		}
	case OpSetElem:
		v, key, obj := vm.pop(), vm.pop(), vm.pop()
		if err = vm.setElement(obj, key, v, f.tmpl.Strict); err == nil {
			vm.push(v)
		}
	case OpDeleteProp:
		obj := vm.pop()
		var ok bool
		if ok, err = vm.deleteProperty(obj, StringValue(constName(f, code, ip)), f.tmpl.Strict); err == nil {
			vm.push(BoolValue(ok))
		}
	case OpDeleteElem:
		key, obj := vm.pop(), vm.pop()
		var ok bool
		if ok, err = vm.deleteProperty(obj, key, f.tmpl.Strict); err == nil {
			vm.push(BoolValue(ok))
		}
	case OpGetSuper:
		key, this, home := vm.pop(), vm.pop(), vm.pop()
		var v Value
		if v, err = vm.getSuper(home, this, key); err == nil {
			vm.push(v)
		}
	case OpSetSuper:
		v, key, this, home := vm.pop(), vm.pop(), vm.pop(), vm.pop()
		if err = vm.setSuper(home, this, key, v, f.tmpl.Strict); err == nil {
			vm.push(v)
		}
	case OpGetPrivate:
		name, obj := vm.pop(), vm.pop()
		var v Value
		if v, err = vm.getPrivate(obj, name.AsSymbol()); err == nil {
			vm.push(v)
		}
	case OpSetPrivate:
		v, name, obj := vm.pop(), vm.pop(), vm.pop()
		if err = vm.setPrivate(obj, name.AsSymbol(), v); err == nil {
			vm.push(v)
		}
	case OpHasPrivate:
		name, obj := vm.pop(), vm.pop()
		o := obj.AsObject()
		if o == nil {
			err = vm.NewTypeError("Cannot use 'in' operator to search for '%s' in %s", name.AsSymbol().Description, vm.ToDisplayString(obj))
			break
		}
		vm.push(BoolValue(o.lookup(SymbolKey(name.AsSymbol())) != nil))
	case OpDefinePrivate:
		v, name := vm.pop(), vm.pop()
		err = vm.definePrivateField(vm.peek(0), name.AsSymbol(), v)

	// --- literals and classes ---
	case OpNewObject:
		vm.push(ObjectValue(vm.NewObject()))
	case OpNewArray:
		vm.push(ObjectValue(vm.NewArray(nil)))
	case OpArrayPush:
		v := vm.pop()
		vm.peek(0).AsObject().Push(v)
	case OpArrayHole:
		vm.peek(0).AsObject().pushHole()
	case OpArraySpread:
		it := vm.pop()
		arr := vm.peek(0).AsObject()
		err = vm.Iterate(it, func(v Value) (bool, error) {
			arr.Push(v)
			return true, nil
		})
	case OpDefineProperty:
		v, key := vm.pop(), vm.pop()
		err = vm.defineLiteralProperty(vm.peek(0).AsObject(), key, v, code[ip+1])
	case OpCopyData:
		src := vm.pop()
		err = vm.CopyDataProperties(vm.peek(0).AsObject(), src, nil)
	case OpCopyDataExcept:
		n := int(code[ip+1])
		excluded := make([]PropertyKey, n)
		for i := n - 1; i >= 0; i-- {
			if excluded[i], err = vm.ToPropertyKey(vm.pop()); err != nil {
				break
			}
		}
		if err != nil {
			break
		}
		src := vm.pop()
		err = vm.CopyDataProperties(vm.peek(0).AsObject(), src, excluded)
	case OpSetProtoLit:
		proto := vm.pop()
		if proto.IsObject() || proto.IsNull() {
			vm.peek(0).AsObject().SetPrototypeOf(proto.AsObject())
		}
	case OpRegExp:
		pattern := constName(f, code, ip)
		flags := f.chunk.Constants[u16(code, ip+3)].AsString()
		var re *Object
		if re, err = vm.NewRegExp(pattern, flags); err == nil {
			vm.push(ObjectValue(re))
		}
	case OpClosure:
		t := f.chunk.Functions[u16(code, ip+1)]
		vm.push(ObjectValue(vm.newClosure(t, f.env, nil)))
	case OpTemplateObject:
		vm.push(ObjectValue(vm.templateObject(f.realm, f.chunk.Sites[u16(code, ip+1)])))
	case OpClass:
		heritage := Undefined
		hasHeritage := code[ip+3] != 0
		if hasHeritage {
			heritage = vm.pop()
		}
		var ctor, proto *Object
		if ctor, proto, err = vm.createClass(f, f.chunk.Functions[u16(code, ip+1)], heritage, hasHeritage); err == nil {
			vm.push(ObjectValue(ctor))
			vm.push(ObjectValue(proto))
		}
	case OpDefinePrivateMethod:
		fn, name := vm.pop(), vm.pop()
		err = vm.definePrivateMethod(vm.peek(0), name.AsSymbol(), fn.AsObject(), code[ip+1])
	case OpSetFieldInit:
		fn := vm.pop()
		vm.peek(0).AsObject().fn.FieldInit = fn.AsObject()
	case OpSetHome:
		vm.peek(0).AsObject().fn.Home = vm.peek(1).AsObject()
	case OpInitFields:
		fn := vm.pop()
		if init := fn.AsObject().fn.FieldInit; init != nil {
			_, err = vm.callObject(init, vm.peek(0), nil)
		}
	case OpPrivateName:
		vm.push(SymbolValue(NewPrivateName(constName(f, code, ip))))
	case OpNameFunction:
		var k PropertyKey
		if k, err = vm.ToPropertyKey(vm.peek(1)); err == nil {
			vm.SetFunctionName(vm.peek(0).AsObject(), k, "")
		}

	// --- control flow ---
	case OpJump:
		f.ip += u16(code, ip+1)
	case OpLoop:
		f.ip -= u16(code, ip+1)
	case OpJumpIfFalse:
		if !ToBoolean(vm.pop()) {
			f.ip += u16(code, ip+1)
		}
	case OpJumpIfTrue:
		if ToBoolean(vm.pop()) {
			f.ip += u16(code, ip+1)
		}
	case OpJumpIfFalseKeep:
		if !ToBoolean(vm.peek(0)) {
			f.ip += u16(code, ip+1)
		} else {
			vm.pop()
		}
	case OpJumpIfTrueKeep:
		if ToBoolean(vm.peek(0)) {
			f.ip += u16(code, ip+1)
		} else {
			vm.pop()
		}
	case OpJumpIfNotNullishKeep:
		if !vm.peek(0).IsNullish() {
			f.ip += u16(code, ip+1)
		} else {
			vm.pop()
		}
	case OpJumpIfNotUndefined:
		if !vm.peek(0).IsUndefined() {
			f.ip += u16(code, ip+1)
		} else {
			vm.pop()
		}
	case OpJumpIfNullishPop:
		if vm.peek(0).IsNullish() {
			for n := int(code[ip+1]); n > 0; n-- {
				vm.pop()
			}
			vm.push(Undefined)
			f.ip += u16(code, ip+2)
		}

	// --- calls ---
	case OpCall:
		argc := int(code[ip+1])
		base := vm.sp - argc - 2
		err = vm.callAt(base, vm.stack[base], vm.stack[base+1], vm.stack[base+2:vm.sp])
	case OpCallSpread:
		args, this, fn := vm.pop(), vm.pop(), vm.pop()
		list, _ := args.AsObject().ArrayElements()
		err = vm.callAt(vm.sp, fn, this, append([]Value(nil), list...))
	case OpNew:
		argc := int(code[ip+1])
		base := vm.sp - argc - 1
		ctor := vm.stack[base]
		var r Value
		if r, err = vm.Construct(ctor, vm.stack[base+1:vm.sp], Undefined); err == nil {
			vm.truncate(base)
			vm.push(r)
		}
	case OpNewSpread:
		args, ctor := vm.pop(), vm.pop()
		list, _ := args.AsObject().ArrayElements()
		var r Value
		if r, err = vm.Construct(ctor, append([]Value(nil), list...), Undefined); err == nil {
			vm.push(r)
		}
	case OpSuperCall:
		argc := int(code[ip+1])
		base := vm.sp - argc - 2
		var r Value
		if r, err = vm.superCall(vm.stack[base], vm.stack[base+1], vm.stack[base+2:vm.sp]); err == nil {
			vm.truncate(base)
			vm.push(r)
		}
	case OpSuperCallSpread:
		args, nt, callee := vm.pop(), vm.pop(), vm.pop()
		list, _ := args.AsObject().ArrayElements()
		var r Value
		if r, err = vm.superCall(callee, nt, append([]Value(nil), list...)); err == nil {
			vm.push(r)
		}
	case OpSuperCallForward:
		nt, callee := vm.pop(), vm.pop()
		var r Value
		if r, err = vm.superCall(callee, nt, f.args); err == nil {
			vm.push(r)
		}
	case OpBindThis:
		e := f.env.at(int(code[ip+1]))
		slot := u16(code, ip+2)
		if !e.slots[slot].IsUninitialized() {
			err = vm.NewReferenceError("Super constructor may only be called once")
			break
		}
		e.slots[slot] = vm.peek(0)
	case OpCheckDerivedReturn:
		v := vm.pop()
		if v.IsObject() {
			vm.push(v)
			break
		}
		if !v.IsUndefined() {
			err = vm.NewTypeError("Derived constructors may only return object or undefined")
			break
		}
		e := f.env.at(int(code[ip+1]))
		slot := u16(code, ip+2)
		if e.slots[slot].IsUninitialized() {
			err = vm.tdzError(e, slot)
			break
		}
		vm.push(e.slots[slot])
	case OpReturn:
		v := vm.pop()
		if f.coro != nil {
			if v, err = vm.finishCoroutine(f, v, nil); err != nil {
				f.coro = nil
				break
			}
		}
		if f.construct && !v.IsObject() {
			v = f.this
		}
		if vm.popFrameWithResult(v) {
			return v, true, nil
		}

	case OpThrow:
		v := vm.pop()
		if rc, ok := v.internalRef().(*returnCompletion); ok {
			err = rc
		} else {
			err = &Exception{Value: v}
		}
	case OpThrowError:
		err = vm.errorOfKind(code[ip+1], f.chunk.Constants[u16(code, ip+2)].AsString())

	// --- iteration ---
	case OpGetIterator:
		v := vm.pop()
		var rec *IteratorRecord
		if code[ip+1] != 0 {
			rec, err = vm.GetAsyncIterator(v)
		} else {
			rec, err = vm.GetIterator(v)
		}
		if err == nil {
			vm.push(internalValue(rec))
		}
	case OpIteratorStep:
		rec := iteratorRecordOf(vm.peek(0))
		var v Value
		var finished bool
		if v, finished, err = vm.Step(rec); err == nil {
			if finished {
				f.ip += u16(code, ip+1)
			} else {
				vm.push(v)
			}
		}
	case OpIteratorNext:
		rec := iteratorRecordOf(vm.peek(0))
		var r Value
		if r, err = vm.Call(rec.Next, rec.Iterator, nil); err != nil {
			rec.Done = true
		} else {
			vm.push(r)
		}
	case OpIteratorComplete:
		res := vm.pop()
		rec := iteratorRecordOf(vm.peek(0))
		if !res.IsObject() {
			rec.Done = true
			err = vm.NewTypeError("Iterator result %s is not an object", vm.ToDisplayString(res))
			break
		}
		var finished bool
		if finished, err = vm.IteratorComplete(res); err != nil {
			rec.Done = true
			break
		}
		if finished {
			rec.Done = true
			f.ip += u16(code, ip+1)
			break
		}
		var v Value
		if v, err = vm.IteratorValue(res); err != nil {
			rec.Done = true
			break
		}
		vm.push(v)
	case OpIteratorStepValue:
		rec := iteratorRecordOf(vm.peek(0))
		v := Undefined
		if !rec.Done {
			v, _, err = vm.Step(rec)
		}
		if err == nil {
			vm.push(v)
		}
	case OpIteratorRest:
		rec := iteratorRecordOf(vm.peek(0))
		arr := vm.NewArray(nil)
		for !rec.Done {
			var v Value
			var finished bool
			if v, finished, err = vm.Step(rec); err != nil || finished {
				break
			}
			arr.Push(v)
		}
		if err == nil {
			vm.push(ObjectValue(arr))
		}
	case OpIteratorClose:
		rec := iteratorRecordOf(vm.pop())
		if !rec.Done {
			rec.Done = true
			err = vm.IteratorClose(rec, nil)
		}
	case OpIteratorCloseAbrupt:
		rec := iteratorRecordOf(vm.pop())
		if !rec.Done {
			rec.Done = true
			// a pending return completion closes normally
			if _, returning := vm.peek(0).internalRef().(*returnCompletion); returning {
				err = vm.IteratorClose(rec, nil)
			} else {
				err = vm.closeAbrupt(rec)
			}
		}
	case OpIteratorCallReturn:
		rec := iteratorRecordOf(vm.pop())
		if rec.Done {
			f.ip += u16(code, ip+1)
			break
		}
		rec.Done = true
		var m Value
		if m, err = vm.GetMethod(rec.Iterator, StringKey("return")); err != nil {
			break
		}
		if m.IsUndefined() {
			f.ip += u16(code, ip+1)
			break
		}
		var r Value
		if r, err = vm.Call(m, rec.Iterator, nil); err == nil {
			vm.push(r)
		}
	case OpCheckObject:
		if v := vm.peek(0); !v.IsObject() {
			err = vm.NewTypeError("Iterator result %s is not an object", vm.ToDisplayString(v))
		}
	case OpForInKeys:
		var it *forInIterator
		if it, err = vm.newForInIterator(vm.pop()); err == nil {
			vm.push(internalValue(it))
		}
	case OpForInNext:
		it := vm.peek(0).internalRef().(*forInIterator)
		if k, ok := it.next(); ok {
			vm.push(StringValue(k))
		} else {
			f.ip += u16(code, ip+1)
		}

	// --- generators and async functions ---
	case OpGeneratorStart:
		var boundary bool
		if ret, boundary, err = vm.generatorStart(f); err == nil && boundary {
			return ret, true, nil
		}
	case OpYield:
		var boundary, cont bool
		ret, boundary, cont, err = vm.opYield(f, vm.pop())
		if err == nil && !cont && boundary {
			return ret, true, nil
		}
	case OpYieldStar:
		ret, done, err = vm.opYieldStar(f)
	case OpAwait:
		var boundary bool
		if ret, boundary, err = vm.opAwait(f, vm.pop(), awaitPlain, 0); err == nil && boundary {
			return ret, true, nil
		}

	// --- frame data ---
	case OpGlobalThis:
		vm.push(ObjectValue(f.realm.Global))
	case OpThisArg:
		vm.push(f.this)
	case OpNewTarget:
		vm.push(f.newTarget)
	case OpCallee:
		vm.push(ObjectValue(f.callee))
	case OpHomeObject:
		if f.fn != nil && f.fn.Home != nil {
			vm.push(ObjectValue(f.fn.Home))
		} else {
			vm.push(Undefined)
		}
	case OpGetArg:
		if i := u16(code, ip+1); i < len(f.args) {
			vm.push(f.args[i])
		} else {
			vm.push(Undefined)
		}
	case OpRestArgs:
		var rest []Value
		if from := u16(code, ip+1); from < len(f.args) {
			rest = f.args[from:]
		}
		vm.push(ObjectValue(vm.NewArray(rest)))
	case OpCreateArguments:
		vm.push(ObjectValue(vm.createArguments(f, code[ip+1] != 0)))

	case OpSetCompletion:
		f.completion = vm.pop()
	case OpGetCompletion:
		vm.push(f.completion)
	case OpDeclareGlobals:
		err = vm.declareGlobals(f.realm, f.tmpl.GlobalDecls)
	case OpDefineGlobalFunc:
		err = vm.initGlobalFunction(f.realm, constName(f, code, ip), vm.pop(), f.tmpl.GlobalDecls != nil && f.tmpl.GlobalDecls.Deletable)
	case OpDebugger, OpNop:

	default:
		err = vm.NewTypeError("invalid opcode %s at %d", op, ip)
	}
	return ret, done, err
}

func u16(code []byte, at int) int {
	return int(code[at])<<8 | int(code[at+1])
}

// constName reads the string constant named by the u16 operand that
// follows the opcode.
func constName(f *Frame, code []byte, ip int) string {
	return f.chunk.Constants[u16(code, ip+1)].AsString()
}

func compareNumbers(op OpCode, a, b float64) bool {
	switch op {
	case OpLess:
		return a < b
	case OpGreater:
		return a > b
	case OpLessEq:
		return a <= b
	}
	return a >= b
}

// truncate drops operands down to height n.
func (vm *VM) truncate(n int) {
	for vm.sp > n {
		vm.sp--
		vm.stack[vm.sp] = Undefined
	}
}

func (vm *VM) tdzError(e *Env, slot int) error {
	name := e.name(slot)
	if name == "%this" {
		return vm.NewReferenceError("Must call super constructor in derived class before accessing 'this' or returning from derived constructor")
	}
	return vm.NewReferenceError("Cannot access '%s' before initialization", name)
}

// superCall implements super(...args): callee is the running class
// constructor, whose prototype is the parent constructor.
func (vm *VM) superCall(callee, newTarget Value, args []Value) (Value, error) {
	parent := callee.AsObject().proto
	if parent == nil || !parent.IsConstructor() {
		return Undefined, vm.NewTypeError("Super constructor %s of anonymous class is not a constructor", describeForError(ObjectValue(parent)))
	}
	return vm.constructObject(parent, args, newTarget.AsObject())
}

// opYieldStar implements one step of yield* delegation. The operand stack
// holds [iter received mode]; suspension leaves [iter] and the
// instruction re-executes with the resumption value and mode. For async
// generators the low nibble of mode may be an await step, with the
// original mode in the high bits.
func (vm *VM) opYieldStar(f *Frame) (Value, bool, error) {
	mode := int(vm.pop().AsNumber())
	received := vm.pop()
	rec := iteratorRecordOf(vm.peek(0))
	co := f.coro
	async := co.kind == coAsyncGenerator

	var res Value
	switch mode & 0x0f {
	case resumeAwaitReturn:
		return Undefined, false, &returnCompletion{value: received}
	case resumeAwaitResult:
		res, mode = received, mode>>4
	default:
		var m Value
		var err error
		switch mode {
		case ResumeNext:
			m = rec.Next
		case ResumeThrow:
			if m, err = vm.GetMethod(rec.Iterator, StringKey("throw")); err != nil {
				return Undefined, false, err
			}
			if m.IsUndefined() {
				rec.Done = true
				if err := vm.IteratorClose(rec, nil); err != nil {
					return Undefined, false, err
				}
				return Undefined, false, vm.NewTypeError("The iterator does not provide a 'throw' method")
			}
		default:
			if m, err = vm.GetMethod(rec.Iterator, StringKey("return")); err != nil {
				return Undefined, false, err
			}
			if m.IsUndefined() {
				if async {
					return vm.delegateAwait(f, received, resumeAwaitReturn)
				}
				return Undefined, false, &returnCompletion{value: received}
			}
		}
		if res, err = vm.Call(m, rec.Iterator, []Value{received}); err != nil {
			return Undefined, false, err
		}
		if async {
			return vm.delegateAwait(f, res, resumeAwaitResult|mode<<4)
		}
	}

	if !res.IsObject() {
		return Undefined, false, vm.NewTypeError("Iterator result %s is not an object", vm.ToDisplayString(res))
	}
	finished, err := vm.IteratorComplete(res)
	if err != nil {
		return Undefined, false, err
	}
	if finished {
		v, err := vm.IteratorValue(res)
		if err != nil {
			return Undefined, false, err
		}
		if mode == ResumeReturn {
			if async {
				return vm.delegateAwait(f, v, resumeAwaitReturn)
			}
			return Undefined, false, &returnCompletion{value: v}
		}
		vm.pop()
		vm.push(v)
		return Undefined, false, nil
	}

	f.ip = f.opStart
	if !async {
		co.state = coSuspendedYield
		co.delegating = true
		co.yieldRaw = true
		vm.suspend(f)
		return res, vm.popFrameWithResult(res), nil
	}
	v, err := vm.IteratorValue(res)
	if err != nil {
		return Undefined, false, err
	}
	vm.asyncGenCompleteStep(co, false, v, false)
	if len(co.queue) > 0 {
		req := co.queue[0]
		if req.mode == ResumeReturn {
			co.delegating = true
			return vm.opAwait(f, req.value, awaitYieldReturn, 0)
		}
		vm.push(req.value)
		vm.push(IntValue(req.mode))
		return Undefined, false, nil
	}
	co.state = coSuspendedYield
	co.delegating = true
	vm.suspend(f)
	return Undefined, vm.popFrameWithResult(Undefined), nil
}

// delegateAwait suspends a yield* step on v; resumption re-executes the
// instruction with the settled value and mode.
func (vm *VM) delegateAwait(f *Frame, v Value, mode int) (Value, bool, error) {
	f.ip = f.opStart
	f.coro.delegating = true
	return vm.opAwait(f, v, awaitDelegate, mode)
}
