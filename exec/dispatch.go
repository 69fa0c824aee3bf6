// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/go-interpreter/lazyvm/bytecode"
	"github.com/go-interpreter/lazyvm/closure"
	"github.com/go-interpreter/lazyvm/heap"
)

// opFunc is one entry of Thread's dispatch table: it receives the
// already-fetched instruction and executes it, possibly consuming
// further trailing words of its own (the comparison ops fetch their
// paired JMP word this way). Returning stop=true ends Run.
type opFunc func(t *Thread, alloc heap.Allocator, ins bytecode.Instruction) (stop bool, err error)

// funcTable dispatches every opcode whose trailing payload (if any) is
// a fixed, opcode-determined size. CALL, CALLT, EVAL, ALLOC, ALLOC1,
// CASE, and CASE_S read payload whose length depends on the decoded
// operands themselves, so Run's switch handles those inline instead —
// the same split wagon draws between its funcTable and the handful of
// control-flow ops (OpJmp, OpJmpZ, OpJmpNz, BrTable) execCode's switch
// handles directly because they too must consume variable trailing
// words before any generic dispatch makes sense.
var funcTable [256]opFunc

func init() {
	cmp := func(pred func(a, b closure.Word) bool) opFunc {
		return func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
			lhs := t.reg(ins.A())
			rhs := t.reg(uint8(ins.D()))
			jmp := t.fetch()
			if pred(lhs, rhs) {
				t.PC += int(jmp.J())
			}
			return false, nil
		}
	}
	funcTable[bytecode.ISLT] = cmp(func(a, b closure.Word) bool { return a.Int() < b.Int() })
	funcTable[bytecode.ISGE] = cmp(func(a, b closure.Word) bool { return a.Int() >= b.Int() })
	funcTable[bytecode.ISLE] = cmp(func(a, b closure.Word) bool { return a.Int() <= b.Int() })
	funcTable[bytecode.ISGT] = cmp(func(a, b closure.Word) bool { return a.Int() > b.Int() })
	funcTable[bytecode.ISEQ] = cmp(closure.Word.Equal)
	funcTable[bytecode.ISNE] = cmp(func(a, b closure.Word) bool { return !a.Equal(b) })

	funcTable[bytecode.NOT] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), closure.IntWord(^t.reg(uint8(ins.D())).Int()))
		return false, nil
	}
	funcTable[bytecode.NEG] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), closure.IntWord(-t.reg(uint8(ins.D())).Int()))
		return false, nil
	}
	funcTable[bytecode.MOV] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), t.reg(uint8(ins.D())))
		return false, nil
	}
	funcTable[bytecode.MOVRES] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), t.LastResult)
		return false, nil
	}
	funcTable[bytecode.UPDATE] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		oldnode := t.reg(ins.A()).Ref()
		newnode := t.reg(uint8(ins.D()))
		oldnode.Info = heap.INDInfo
		oldnode.Payload = []closure.Word{newnode}
		t.LastResult = newnode
		t.doReturn()
		return false, nil
	}
	funcTable[bytecode.LOADF] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		cl := t.reg(ins.B()).Ref()
		t.setReg(ins.A(), cl.Payload[ins.C()])
		return false, nil
	}
	funcTable[bytecode.LOADFV] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		node := t.self().Ref()
		t.setReg(ins.A(), node.Payload[ins.D()])
		return false, nil
	}
	funcTable[bytecode.LOADBH] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), closure.RefWord(heap.BlackholeClosure))
		return false, nil
	}
	funcTable[bytecode.LOADSLF] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), t.self())
		return false, nil
	}
	funcTable[bytecode.INITF] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		return false, UnimplementedOpError{Op: bytecode.INITF}
	}
	funcTable[bytecode.ADDRR] = arith(func(a, b int64) int64 { return a + b })
	funcTable[bytecode.SUBRR] = arith(func(a, b int64) int64 { return a - b })
	funcTable[bytecode.MULRR] = arith(func(a, b int64) int64 { return a * b })
	funcTable[bytecode.DIVRR] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		b := t.reg(ins.C()).Int()
		if b == 0 {
			return false, DivideByZeroError{}
		}
		t.setReg(ins.A(), closure.IntWord(t.reg(ins.B()).Int()/b))
		return false, nil
	}
	funcTable[bytecode.REMRR] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		b := t.reg(ins.C()).Int()
		if b == 0 {
			return false, DivideByZeroError{}
		}
		t.setReg(ins.A(), closure.IntWord(t.reg(ins.B()).Int()%b))
		return false, nil
	}
	funcTable[bytecode.LOADK] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), t.Code.Lits[ins.D()])
		return false, nil
	}
	funcTable[bytecode.KINT] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), closure.IntWord(int64(ins.SD())))
		return false, nil
	}
	funcTable[bytecode.NEWINT] = func(t *Thread, alloc heap.Allocator, ins bytecode.Instruction) (bool, error) {
		v := t.reg(uint8(ins.D())).Int()
		if v >= -128 && v <= 127 {
			t.setReg(ins.A(), closure.RefWord(heap.SmallInt(int32(v))))
			return false, nil
		}
		cl, err := alloc.Allocate(1)
		if err != nil {
			return false, err
		}
		cl.Info = heap.IzhConInfo
		cl.Payload[0] = closure.IntWord(v)
		t.setReg(ins.A(), closure.RefWord(cl))
		return false, nil
	}
	funcTable[bytecode.RET1] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.LastResult = t.reg(ins.A())
		t.doReturn()
		return false, nil
	}
	funcTable[bytecode.JMP] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.PC += int(ins.J())
		return false, nil
	}
	noop := func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) { return false, nil }
	funcTable[bytecode.FUNC] = noop
	funcTable[bytecode.IFUNC] = noop
	funcTable[bytecode.JFUNC] = noop
	funcTable[bytecode.JRET] = noop
	funcTable[bytecode.IRET] = noop
	funcTable[bytecode.SYNC] = noop
	funcTable[bytecode.ALLOCAP] = func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		return false, UnimplementedOpError{Op: bytecode.ALLOCAP}
	}
}

func arith(f func(a, b int64) int64) opFunc {
	return func(t *Thread, _ heap.Allocator, ins bytecode.Instruction) (bool, error) {
		t.setReg(ins.A(), closure.IntWord(f(t.reg(ins.B()).Int(), t.reg(ins.C()).Int())))
		return false, nil
	}
}

// doReturn pops the current frame, restoring the caller's base/pc/code
// exactly as InterpThreaded.c's do_return label does: RET1 and UPDATE
// both jump into this same logic after recording their result in
// LastResult.
func (t *Thread) doReturn() {
	oldBase := t.Base
	t.Top = oldBase - StackFrameSizeW
	t.PC = int(t.Stack[oldBase-2].Int())
	t.Base = int(t.Stack[oldBase-3].Int())
	t.Code = t.self().Ref().Info.Code
}

// Run executes instructions starting from t.PC/t.Base/t.Code until the
// synthetic STOP instruction is reached or an error occurs.
func (t *Thread) Run(alloc heap.Allocator) error {
	for {
		ins := t.fetch()
		op := ins.Op()
		if Trace {
			tracer.Printf("pc=%d base=%d top=%d %s", t.PC-1, t.Base, t.Top, ins)
		}
		switch op {
		case bytecode.STOP:
			t.Stack[1] = t.LastResult
			return nil
		case bytecode.CALL:
			if err := t.execCall(ins); err != nil {
				return err
			}
		case bytecode.CALLT:
			if err := t.execCallt(ins); err != nil {
				return err
			}
		case bytecode.EVAL:
			if err := t.execEval(ins); err != nil {
				return err
			}
		case bytecode.ALLOC1:
			if err := t.execAlloc1(ins, alloc); err != nil {
				return err
			}
		case bytecode.ALLOC:
			if err := t.execAlloc(ins, alloc); err != nil {
				return err
			}
		case bytecode.CASE:
			t.execCase(ins)
		case bytecode.CASES:
			t.execCaseS(ins)
		default:
			fn := funcTable[op]
			if fn == nil {
				return UnimplementedOpError{Op: op}
			}
			stop, err := fn(t, alloc, ins)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
}
