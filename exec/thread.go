// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package exec implements the threaded bytecode interpreter: the
// Thread register/stack machine, its dispatch loop, and the frame
// layout rules call frames, update frames, and the entry frame share.
package exec

import (
	"github.com/go-interpreter/lazyvm/bytecode"
	"github.com/go-interpreter/lazyvm/closure"
	"github.com/go-interpreter/lazyvm/heap"
)

// StackFrameSizeW and UpdateFrameSizeW are the word counts of a call
// frame's header (prevbase, retpc, node) and an update frame's header
// plus its own two registers, matching InterpThreaded.c's
// STACK_FRAME_SIZEW/UPDATE_FRAME_SIZEW macros exactly.
const (
	StackFrameSizeW  = 3
	UpdateFrameSizeW = StackFrameSizeW + 2
)

// haltCode/haltClosure stand in for the original runtime's implicit
// "stop" jump target: InterpThreaded.c's threaded-dispatch table
// appends a synthetic &&stop entry past the real opcodes, reachable
// only because BC__MAX (a made-up opcode one past STOP) is never
// actually decoded — the entry frame's saved return pc always points
// there directly once control pops out of the outermost frame. We
// give that target a real one-instruction body instead, so do_return's
// generic "recompute code from base[-1]" logic needs no special case
// at all for the bottom of the stack.
var haltCode = &closure.Code{
	Instrs: []bytecode.Instruction{bytecode.AD(bytecode.STOP, 0, 0)},
}

var haltClosure = &closure.Closure{
	Info: &closure.InfoTable{Type: closure.FUN, Code: haltCode, Name: "HALT"},
}

// driverCode evaluates whatever closure Start is asked to run and
// returns its forced value, exactly the way lambdachine's startThread
// hands the entry closure to the generic engine rather than forcing it
// inline in C. EVAL's trailing live-out payload word is unused here
// (the driver frame has no other live registers to report) but is
// still present, since EVAL's decoder always consumes one.
var driverCode = &closure.Code{
	Instrs: []bytecode.Instruction{
		bytecode.AD(bytecode.EVAL, 0, 0),
		0, // EVAL live-out payload, unused
		bytecode.AD(bytecode.MOVRES, 0, 0),
		bytecode.AD(bytecode.RET1, 0, 0),
	},
	FrameSize: 1,
}

var driverClosure = &closure.Closure{
	Info: &closure.InfoTable{Type: closure.FUN, Code: driverCode, Name: "DRIVER"},
}

// Thread is one graph-reduction machine: a register-windowed stack
// plus the (pc, code) pair naming the instruction currently executing.
// It mirrors wagon's context (stack/code/pc) with the base/top
// register-window fields the single-frame WASM VM doesn't need but
// interleaved call/update frames do.
type Thread struct {
	Stack      []closure.Word
	PC         int
	Base       int
	Top        int
	Code       *closure.Code
	LastResult closure.Word
}

// NewThread allocates a thread with the given stack capacity, in
// words. stackSize must be large enough for the entry frame plus
// whatever the program being run needs; StackHeadroom reports when it
// isn't.
func NewThread(stackSize uint32) *Thread {
	return &Thread{Stack: make([]closure.Word, stackSize)}
}

// reg reads register i of the current frame.
func (t *Thread) reg(i uint8) closure.Word { return t.Stack[t.Base+int(i)] }

// setReg writes register i of the current frame.
func (t *Thread) setReg(i uint8, w closure.Word) { t.Stack[t.Base+int(i)] = w }

// self returns the Node field of the current frame: the closure whose
// code is currently executing.
func (t *Thread) self() closure.Word { return t.Stack[t.Base-1] }

// fetch decodes the instruction at PC and advances PC past it.
func (t *Thread) fetch() bytecode.Instruction {
	ins := t.Code.Instrs[t.PC]
	t.PC++
	return ins
}

// StackHeadroom reports whether growing the stack by incr words past
// the thread's current top would still fit, matching the
// stackOverflow(T, top, increment) collaborator spec.md §6 names.
// Thread.Stack never grows automatically: a false result is fatal to
// the current Run call.
func StackHeadroom(t *Thread, top, incr int) bool {
	return top+incr <= len(t.Stack)
}

// Start plants entry at the foot of a fresh entry frame and runs the
// dispatch loop to completion, returning the forced value of entry —
// startThread's contract (T->base[0] = cl; engine(T); return
// T->stack[1];) rendered over a Go slice: the result is written to
// Stack[1] when the synthetic STOP instruction is reached, exactly the
// "well-known slot" spec.md §3's lifecycle note names, and Start reads
// it back from there rather than threading it through a return value
// the dispatch loop computes some other way.
func (t *Thread) Start(entry *closure.Closure, alloc heap.Allocator) (*closure.Closure, error) {
	if len(t.Stack) < 7 {
		return nil, StackOverflowError{Needed: 7, Available: len(t.Stack)}
	}
	// Frame A: the halt frame. It owns no registers of its own; its
	// three header words sit at indices 0-2, so its register base is 3.
	t.Stack[2] = closure.RefWord(haltClosure)
	// Frame B: the driver frame, header at indices 3-5, one register
	// (index 6) holding the closure to evaluate.
	t.Stack[3] = closure.IntWord(3) // prevbase -> frame A's base
	t.Stack[4] = closure.IntWord(0) // retpc -> haltCode[0] (STOP)
	t.Stack[5] = closure.RefWord(driverClosure)
	t.Stack[6] = closure.RefWord(entry)

	t.Base = 6
	t.Top = t.Base + int(driverCode.FrameSize)
	t.Code = driverCode
	t.PC = 0

	if err := t.Run(alloc); err != nil {
		return nil, err
	}
	return t.Stack[1].Ref(), nil
}
