// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exec

import (
	"github.com/go-interpreter/lazyvm/bytecode"
	"github.com/go-interpreter/lazyvm/closure"
	"github.com/go-interpreter/lazyvm/heap"
)

// readArgBytes consumes BCRound(n) trailing instruction words and
// returns the n packed argument-register bytes they carry, the layout
// CALL/CALLT/ALLOC all share.
func (t *Thread) readArgBytes(n int) []uint8 {
	words := bytecode.BCRound(n)
	out := make([]uint8, n)
	for i := 0; i < n; i++ {
		ins := t.Code.Instrs[t.PC+i/4]
		out[i] = ins.Byte(i % 4)
	}
	t.PC += words
	return out
}

// execCall implements non-tail CALL: push a new call frame and enter
// the callee. spec.md §4.6 / InterpThreaded.c's op_CALL.
func (t *Thread) execCall(ins bytecode.Instruction) error {
	a, b, c := ins.A(), ins.B(), ins.C()
	fnode := t.reg(a).Ref()
	nargs := int(c)

	t.fetch() // live-out mask, unused
	argCount := 0
	if nargs > 0 {
		argCount = nargs - 1
	}
	argRegs := t.readArgBytes(argCount)
	returnPC := t.PC

	if fnode.Info.Type != closure.FUN {
		return CalleeNotFunError{Type: fnode.Info.Type}
	}
	info := fnode.Info
	if nargs != int(info.Code.Arity) {
		return UnimplementedArityError{Want: int(info.Code.Arity), Got: nargs}
	}
	framesize := int(info.Code.FrameSize)
	if !StackHeadroom(t, t.Top, StackFrameSizeW+framesize) {
		return StackOverflowError{Needed: StackFrameSizeW + framesize, Available: len(t.Stack) - t.Top}
	}

	top := t.Top
	t.Stack[top+0] = closure.IntWord(int64(t.Base))
	t.Stack[top+1] = closure.IntWord(int64(returnPC))
	t.Stack[top+2] = closure.RefWord(fnode)
	t.Stack[top+3] = t.reg(b)
	for i, argReg := range argRegs {
		t.Stack[top+3+1+i] = t.reg(argReg)
	}

	t.Base = top + StackFrameSizeW
	t.Top = t.Base + framesize
	t.Code = info.Code
	t.PC = 0
	return nil
}

// execCallt implements the tail-call opcode CALLT: the current frame
// is reused, its registers alias-freely overwritten via a fixed
// scratch array (InterpThreaded.c's callt_temp), matching spec.md §4.6's
// correctness requirement that this copy happen before any write into
// base[0..] so that an argument register doesn't get clobbered before
// it's read.
func (t *Thread) execCallt(ins bytecode.Instruction) error {
	a, b, c := ins.A(), ins.B(), ins.C()
	nargs := int(b)
	fnode := t.reg(a).Ref()
	arg0 := t.reg(c)

	if nargs > bytecode.MaxCalltArgs+1 {
		return TooManyCalltArgsError{N: nargs}
	}
	argCount := 0
	if nargs > 0 {
		argCount = nargs - 1
	}
	argRegs := t.readArgBytes(argCount)

	if fnode.Info.Type != closure.FUN {
		return CalleeNotFunError{Type: fnode.Info.Type}
	}
	info := fnode.Info
	if nargs != int(info.Code.Arity) {
		return UnimplementedArityError{Want: int(info.Code.Arity), Got: nargs}
	}

	curframesize := t.Top - t.Base
	newframesize := int(info.Code.FrameSize)
	if newframesize > curframesize {
		if !StackHeadroom(t, t.Base, newframesize) {
			return StackOverflowError{Needed: newframesize, Available: len(t.Stack) - t.Base}
		}
		t.Top = t.Base + newframesize
	}

	var scratch [bytecode.MaxCalltArgs]closure.Word
	for i, argReg := range argRegs {
		scratch[i] = t.reg(argReg)
	}
	t.setReg(0, arg0)
	for i := range argRegs {
		t.setReg(uint8(i+1), scratch[i])
	}

	t.Stack[t.Base-1] = closure.RefWord(fnode)
	t.Code = info.Code
	t.PC = 0
	return nil
}

// execEval implements EVAL: a no-op fast path for values already in
// head normal form, or a call+update frame pair pushed ahead of
// entering the thunk otherwise. See heap.UpdateClosure/UpdateReturnPC
// for the frame layout this builds.
func (t *Thread) execEval(ins bytecode.Instruction) error {
	a := ins.A()
	tnodeWord := t.reg(a)
	tnode := tnodeWord.Ref()
	t.fetch() // live-out mask, unused

	for tnode.Info.Type == closure.IND {
		tnodeWord = tnode.Payload[0]
		tnode = tnodeWord.Ref()
	}

	if closure.HNF(tnode) {
		t.LastResult = tnodeWord
		return nil
	}

	info := tnode.Info
	framesize := int(info.Code.FrameSize)
	need := StackFrameSizeW + UpdateFrameSizeW + framesize
	if !StackHeadroom(t, t.Top, need) {
		return StackOverflowError{Needed: need, Available: len(t.Stack) - t.Top}
	}

	top := t.Top
	returnPC := t.PC
	t.Stack[top+0] = closure.IntWord(int64(t.Base))
	t.Stack[top+1] = closure.IntWord(int64(returnPC))
	t.Stack[top+2] = closure.RefWord(heap.UpdateClosure)
	t.Stack[top+3] = tnodeWord              // update closure's reg0: the thunk being forced
	t.Stack[top+4] = closure.IntWord(0)     // update closure's reg1: filled by MOV_RES on return
	t.Stack[top+5] = closure.IntWord(int64(top + 3))
	t.Stack[top+6] = closure.IntWord(heap.UpdateReturnPC)
	t.Stack[top+7] = tnodeWord // tnode's own frame Node ("self")

	t.Base = top + StackFrameSizeW + UpdateFrameSizeW
	t.Top = t.Base + framesize
	t.Code = info.Code
	t.PC = 0
	return nil
}

// execAlloc1 implements ALLOC1: allocate a one-payload-word closure.
func (t *Thread) execAlloc1(ins bytecode.Instruction, alloc heap.Allocator) error {
	a, b, c := ins.A(), ins.B(), ins.C()
	cl, err := alloc.Allocate(1)
	if err != nil {
		return err
	}
	cl.Info = t.reg(b).InfoTable()
	cl.Payload[0] = t.reg(c)
	t.setReg(a, closure.RefWord(cl))
	t.fetch() // live-out mask, unused
	return nil
}

// execAlloc implements ALLOC: allocate a closure with a payload size
// read from a register, copied from the registers named by the
// trailing argument-byte list.
func (t *Thread) execAlloc(ins bytecode.Instruction, alloc heap.Allocator) error {
	a, b, c := ins.A(), ins.B(), ins.C()
	sz := int(t.reg(c).Int())
	argRegs := t.readArgBytes(sz)

	cl, err := alloc.Allocate(sz)
	if err != nil {
		return err
	}
	cl.Info = t.reg(b).InfoTable()
	for i, argReg := range argRegs {
		cl.Payload[i] = t.reg(argReg)
	}
	t.setReg(a, closure.RefWord(cl))
	t.fetch() // live-out mask, unused
	return nil
}

// execCase implements the dense CASE table: two packed targets per
// trailing instruction word, offsets relative to the end of the table.
func (t *Thread) execCase(ins bytecode.Instruction) {
	a := ins.A()
	numCases := int(ins.D())
	tableStart := t.PC
	t.PC += (numCases + 1) / 2

	tag := int(closure.Tag(t.reg(a).Ref()))
	if tag < numCases {
		word := t.Code.Instrs[tableStart+tag/2]
		var offset uint16
		if tag%2 == 1 {
			offset = word.CaseDenseHi()
		} else {
			offset = word.CaseDenseLo()
		}
		t.PC += int(offset)
	}
}

// execCaseS implements the sparse CASE_S table: a sorted (tag, target)
// list searched by binary search, falling back to a linear scan once
// the remaining interval is 4 entries or fewer, exactly
// InterpThreaded.c's op_CASE_S.
func (t *Thread) execCaseS(ins bytecode.Instruction) {
	a := ins.A()
	numCases := int(ins.D())
	rangeWord := t.fetch()
	minTag, maxTag := rangeWord.CaseSparseMin(), rangeWord.CaseSparseMax()
	table := t.Code.Instrs[t.PC : t.PC+numCases]
	t.PC += numCases

	tag := closure.Tag(t.reg(a).Ref())
	if tag < minTag || tag > maxTag {
		return
	}

	istart, ilen := 0, numCases
	for ilen > 4 {
		imid := (istart + istart + ilen) / 2
		switch {
		case table[imid].CaseSparseTag() == tag:
			t.PC += int(table[imid].CaseSparseTarget())
			return
		case table[imid].CaseSparseTag() < tag:
			ilen = istart + ilen - imid - 1
			istart = imid + 1
		default:
			ilen = imid - istart
		}
	}
	for imid := istart; imid < istart+ilen; imid++ {
		if table[imid].CaseSparseTag() == tag {
			t.PC += int(table[imid].CaseSparseTarget())
			return
		}
	}
}
