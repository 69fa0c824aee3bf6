// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exec_test

import (
	"testing"

	"github.com/go-interpreter/lazyvm/bytecode"
	"github.com/go-interpreter/lazyvm/closure"
	"github.com/go-interpreter/lazyvm/exec"
	"github.com/go-interpreter/lazyvm/heap"
	"github.com/go-interpreter/lazyvm/validate"
)

func newArena(t *testing.T) *heap.Arena {
	t.Helper()
	a, err := heap.NewArena(1 << 20)
	if err != nil {
		t.Fatalf("heap.NewArena: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// TestIdentityThunk is spec scenario 1: a zero-arity thunk that boxes a
// small integer. After forcing it, the thunk's own info table must have
// been rewritten to an indirection pointing at the boxed result.
func TestIdentityThunk(t *testing.T) {
	code := &closure.Code{
		Instrs: []bytecode.Instruction{
			bytecode.ASD(bytecode.KINT, 0, 42),
			bytecode.AD(bytecode.NEWINT, 0, 0),
			bytecode.AD(bytecode.RET1, 0, 0),
		},
		FrameSize: 1,
	}
	silly1 := &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: code, Name: "silly1"}}

	th := exec.NewThread(64)
	result, err := th.Start(silly1, newArena(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := result.Payload[0].Int(); got != 42 {
		t.Fatalf("result value = %d, want 42", got)
	}
	if silly1.Info.Type != closure.IND {
		t.Fatalf("silly1.Info.Type = %v, want IND", silly1.Info.Type)
	}
	if silly1.Payload[0].Ref() != result {
		t.Fatalf("silly1 does not indirect to the forced result")
	}
}

// boxedThunk builds a zero-arg THUNK with the given body, used by
// several scenarios below to drive a self-contained evaluation through
// Start without needing a function argument.
func boxedThunk(instrs []bytecode.Instruction, lits []closure.Word, frameSize uint32) *closure.Closure {
	code := &closure.Code{Instrs: instrs, Lits: lits, FrameSize: frameSize}
	return &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: code}}
}

// TestBranchTakenAndNotTaken is spec scenario 2: ISLT followed by its
// paired JMP must take the branch when the comparison holds and fall
// through when it doesn't.
func TestBranchTakenAndNotTaken(t *testing.T) {
	build := func(lhs, rhs int16) *closure.Closure {
		return boxedThunk([]bytecode.Instruction{
			bytecode.ASD(bytecode.KINT, 0, lhs),
			bytecode.ASD(bytecode.KINT, 1, rhs),
			bytecode.AD(bytecode.ISLT, 0, 1),
			bytecode.AJ(bytecode.JMP, 0, 2),
			bytecode.ASD(bytecode.KINT, 2, 111), // not-taken path
			bytecode.AJ(bytecode.JMP, 0, 1),
			bytecode.ASD(bytecode.KINT, 2, 222), // taken path
			bytecode.AD(bytecode.NEWINT, 2, 2),
			bytecode.AD(bytecode.RET1, 2, 0),
		}, nil, 3)
	}

	cases := []struct {
		name     string
		lhs, rhs int16
		want     int64
	}{
		{"taken", 5, 10, 222},
		{"not-taken", 20, 10, 111},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			th := exec.NewThread(64)
			result, err := th.Start(build(c.lhs, c.rhs), newArena(t))
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			if got := result.Payload[0].Int(); got != c.want {
				t.Fatalf("result = %d, want %d", got, c.want)
			}
		})
	}
}

// TestDenseCase is spec scenario 3: CASE's packed two-tags-per-word
// target table must route to the instruction the matching tag's offset
// names.
func TestDenseCase(t *testing.T) {
	build := func(tag uint16) *closure.Closure {
		subject := &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: tag}}
		return boxedThunk([]bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 0, 0),
			bytecode.AD(bytecode.CASE, 0, 2),
			bytecode.CaseDenseWord(0, 2),
			bytecode.ASD(bytecode.KINT, 1, 100), // tag 0, offset 0
			bytecode.AJ(bytecode.JMP, 0, 1),
			bytecode.ASD(bytecode.KINT, 1, 200), // tag 1, offset 2
			bytecode.AD(bytecode.NEWINT, 1, 1),
			bytecode.AD(bytecode.RET1, 1, 0),
		}, []closure.Word{closure.RefWord(subject)}, 2)
	}

	for tag, want := range map[uint16]int64{0: 100, 1: 200} {
		th := exec.NewThread(64)
		result, err := th.Start(build(tag), newArena(t))
		if err != nil {
			t.Fatalf("Start(tag=%d): %v", tag, err)
		}
		if got := result.Payload[0].Int(); got != want {
			t.Fatalf("tag %d: result = %d, want %d", tag, got, want)
		}
	}
}

// TestSparseCase is spec scenario 4: CASE_S's sorted sparse table must
// find an in-range present tag and fall through on an in-range but
// absent tag.
func TestSparseCase(t *testing.T) {
	build := func(tag uint16) *closure.Closure {
		subject := &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: tag}}
		return boxedThunk([]bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 0, 0),
			bytecode.AD(bytecode.CASES, 0, 3),
			bytecode.CaseSparseRange(10, 90),
			bytecode.CaseSparseEntry(10, 2),
			bytecode.CaseSparseEntry(50, 4),
			bytecode.CaseSparseEntry(90, 6),
			bytecode.ASD(bytecode.KINT, 1, 999), // miss / default
			bytecode.AJ(bytecode.JMP, 0, 5),
			bytecode.ASD(bytecode.KINT, 1, 10), // tag 10
			bytecode.AJ(bytecode.JMP, 0, 3),
			bytecode.ASD(bytecode.KINT, 1, 50), // tag 50
			bytecode.AJ(bytecode.JMP, 0, 1),
			bytecode.ASD(bytecode.KINT, 1, 90), // tag 90
			bytecode.AD(bytecode.NEWINT, 1, 1),
			bytecode.AD(bytecode.RET1, 1, 0),
		}, []closure.Word{closure.RefWord(subject)}, 2)
	}

	cases := map[uint16]int64{10: 10, 50: 50, 90: 90, 20: 999, 5: 999}
	for tag, want := range cases {
		th := exec.NewThread(64)
		result, err := th.Start(build(tag), newArena(t))
		if err != nil {
			t.Fatalf("Start(tag=%d): %v", tag, err)
		}
		if got := result.Payload[0].Int(); got != want {
			t.Fatalf("tag %d: result = %d, want %d", tag, got, want)
		}
	}
}

// mutualRecursionFuncs builds the classic even/odd pair as FUN closures
// whose recursive step is a CALLT tail call into the other function,
// so the recursion never grows the call stack past one frame per
// function, only per live (non-tail) call.
func mutualRecursionFuncs() (even, odd, trueC, falseC *closure.Closure) {
	trueC = &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: 1, Name: "True"}}
	falseC = &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: 0, Name: "False"}}

	evenCode := &closure.Code{FrameSize: 3, Arity: 1}
	oddCode := &closure.Code{FrameSize: 3, Arity: 1}
	even = &closure.Closure{Info: &closure.InfoTable{Type: closure.FUN, Code: evenCode, Name: "even"}}
	odd = &closure.Closure{Info: &closure.InfoTable{Type: closure.FUN, Code: oddCode, Name: "odd"}}

	body := func() []bytecode.Instruction {
		return []bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 2, 0), // r2 = other function
			bytecode.ASD(bytecode.KINT, 1, 0),
			bytecode.AD(bytecode.ISEQ, 0, 1),
			bytecode.AJ(bytecode.JMP, 0, 3),
			bytecode.ASD(bytecode.KINT, 1, 1),
			bytecode.ABC(bytecode.SUBRR, 1, 0, 1), // r1 = n - 1
			bytecode.ABC(bytecode.CALLT, 2, 1, 1), // tail-call other(r1)
			bytecode.AD(bytecode.LOADK, 0, 1),     // r0 = base-case result
			bytecode.AD(bytecode.RET1, 0, 0),
		}
	}
	evenCode.Instrs = body()
	evenCode.Lits = []closure.Word{closure.RefWord(odd), closure.RefWord(trueC)}
	oddCode.Instrs = body()
	oddCode.Lits = []closure.Word{closure.RefWord(even), closure.RefWord(falseC)}
	return
}

// TestTailCallStackBounded is spec scenario 5: CALLT must reuse the
// current frame across a chain of mutually-tail-recursive calls rather
// than growing the stack once per call.
func TestTailCallStackBounded(t *testing.T) {
	even, _, trueC, falseC := mutualRecursionFuncs()

	const n = 8 // even, per the standard parity of 8
	mainCode := &closure.Code{
		Instrs: []bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 1, 0), // r1 = even
			bytecode.ASD(bytecode.KINT, 0, n),
			bytecode.ABC(bytecode.CALL, 1, 0, 1),
			0, // CALL live-out mask
			bytecode.AD(bytecode.MOVRES, 0, 0),
			bytecode.AD(bytecode.RET1, 0, 0),
		},
		Lits:      []closure.Word{closure.RefWord(even)},
		FrameSize: 2,
	}
	main := &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: mainCode}}

	// Entry frame + EVAL's call/update frames + main's own CALL frame
	// need roughly 7 + 10 + 6 = 23 words; a naive non-tail
	// implementation of n=8 mutual calls would additionally need 8 * 6
	// = 48 more. 40 words is enough only if CALLT truly reuses frames.
	th := exec.NewThread(40)
	result, err := th.Start(main, newArena(t))
	if err != nil {
		t.Fatalf("Start: %v (CALLT likely failed to reuse its frame)", err)
	}
	switch result {
	case trueC:
	case falseC:
		t.Fatalf("even(%d) = False, want True", n)
	default:
		t.Fatalf("unexpected result closure %v", result.Info.Name)
	}
}

// TestArityMismatchIsFatal is spec scenario 6: calling a function with
// the wrong argument count is a compiler bug the engine surfaces as an
// error rather than silently misbehaving.
func TestArityMismatchIsFatal(t *testing.T) {
	calleeCode := &closure.Code{
		Instrs:    []bytecode.Instruction{bytecode.AD(bytecode.RET1, 0, 0)},
		FrameSize: 2,
		Arity:     2,
	}
	callee := &closure.Closure{Info: &closure.InfoTable{Type: closure.FUN, Code: calleeCode}}

	mainCode := &closure.Code{
		Instrs: []bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 1, 0),
			bytecode.ASD(bytecode.KINT, 0, 1),
			bytecode.ABC(bytecode.CALL, 1, 0, 1), // nargs=1, but callee wants 2
			0,                                     // CALL live-out mask
			bytecode.AD(bytecode.MOVRES, 0, 0),
			bytecode.AD(bytecode.RET1, 0, 0),
		},
		Lits:      []closure.Word{closure.RefWord(callee)},
		FrameSize: 2,
	}
	main := &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: mainCode}}

	th := exec.NewThread(64)
	_, err := th.Start(main, newArena(t))
	if err == nil {
		t.Fatal("Start succeeded, want UnimplementedArityError")
	}
	if _, ok := err.(exec.UnimplementedArityError); !ok {
		t.Fatalf("err = %v (%T), want exec.UnimplementedArityError", err, err)
	}
}

// TestCalleeNotFunCall and TestCalleeNotFunCallt check that CALL/CALLT
// through a register holding a non-FUN closure surface a typed error
// instead of nil-dereferencing a CONSTR's absent Code.
func TestCalleeNotFunCall(t *testing.T) {
	notFun := &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: 0}}
	mainCode := &closure.Code{
		Instrs: []bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 1, 0),
			bytecode.ASD(bytecode.KINT, 0, 1),
			bytecode.ABC(bytecode.CALL, 1, 0, 1),
			0, // CALL live-out mask
			bytecode.AD(bytecode.MOVRES, 0, 0),
			bytecode.AD(bytecode.RET1, 0, 0),
		},
		Lits:      []closure.Word{closure.RefWord(notFun)},
		FrameSize: 2,
	}
	main := &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: mainCode}}

	th := exec.NewThread(64)
	_, err := th.Start(main, newArena(t))
	if _, ok := err.(exec.CalleeNotFunError); !ok {
		t.Fatalf("err = %v (%T), want exec.CalleeNotFunError", err, err)
	}
}

func TestCalleeNotFunCallt(t *testing.T) {
	notFun := &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: 0}}
	mainCode := &closure.Code{
		Instrs: []bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 1, 0),
			bytecode.ASD(bytecode.KINT, 0, 1),
			bytecode.ABC(bytecode.CALLT, 1, 1, 0),
		},
		Lits:      []closure.Word{closure.RefWord(notFun)},
		FrameSize: 2,
	}
	main := &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: mainCode}}

	th := exec.NewThread(64)
	_, err := th.Start(main, newArena(t))
	if _, ok := err.(exec.CalleeNotFunError); !ok {
		t.Fatalf("err = %v (%T), want exec.CalleeNotFunError", err, err)
	}
}

// TestAllocSingleWord and TestAllocMultiWord cover ALLOC1/ALLOC, including
// the mandatory trailing live-out word each must skip before the next
// instruction decodes correctly.
func TestAllocSingleWord(t *testing.T) {
	boxInfo := &closure.InfoTable{Type: closure.CONSTR, Tag: 5, Name: "Box"}
	main := boxedThunk([]bytecode.Instruction{
		bytecode.AD(bytecode.LOADK, 0, 0), // r0 = InfoTable(Box)
		bytecode.ASD(bytecode.KINT, 1, 99),
		bytecode.ABC(bytecode.ALLOC1, 2, 0, 1), // r2 = Box{99}
		0,                                      // ALLOC1 live-out mask
		bytecode.ABC(bytecode.LOADF, 3, 2, 0),  // r3 = r2.Payload[0]
		bytecode.AD(bytecode.NEWINT, 3, 3),
		bytecode.AD(bytecode.RET1, 3, 0),
	}, []closure.Word{closure.InfoTableWord(boxInfo)}, 4)

	th := exec.NewThread(64)
	result, err := th.Start(main, newArena(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := result.Payload[0].Int(); got != 99 {
		t.Fatalf("result = %d, want 99", got)
	}
}

func TestAllocMultiWord(t *testing.T) {
	pairInfo := &closure.InfoTable{Type: closure.CONSTR, Tag: 9, Name: "Pair"}
	argBytes := bytecode.PackBytes([]uint8{1, 2}) // copy r1, r2 into the new closure

	instrs := []bytecode.Instruction{
		bytecode.AD(bytecode.LOADK, 0, 0), // r0 = InfoTable(Pair)
		bytecode.ASD(bytecode.KINT, 1, 11),
		bytecode.ASD(bytecode.KINT, 2, 22),
		bytecode.ASD(bytecode.KINT, 3, 2), // r3 = payload size
		bytecode.ABC(bytecode.ALLOC, 4, 0, 3),
	}
	instrs = append(instrs, argBytes...)
	instrs = append(instrs,
		0, // ALLOC live-out mask
		bytecode.ABC(bytecode.LOADF, 5, 4, 0),
		bytecode.ABC(bytecode.LOADF, 6, 4, 1),
		bytecode.ABC(bytecode.ADDRR, 5, 5, 6),
		bytecode.AD(bytecode.NEWINT, 5, 5),
		bytecode.AD(bytecode.RET1, 5, 0),
	)
	main := boxedThunk(instrs, []closure.Word{closure.InfoTableWord(pairInfo)}, 7)

	th := exec.NewThread(64)
	result, err := th.Start(main, newArena(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := result.Payload[0].Int(); got != 33 {
		t.Fatalf("result = %d, want 33", got)
	}
}

// TestForceSharedThunkTwice is spec scenario §8's testable property 4:
// forcing an already-updated thunk a second time must chase its IND
// rather than try to run a thunk body that no longer exists.
func TestForceSharedThunkTwice(t *testing.T) {
	onceCode := &closure.Code{
		Instrs: []bytecode.Instruction{
			bytecode.ASD(bytecode.KINT, 0, 7),
			bytecode.AD(bytecode.NEWINT, 0, 0),
			bytecode.AD(bytecode.RET1, 0, 0),
		},
		FrameSize: 1,
	}
	once := &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: onceCode, Name: "once"}}

	main := boxedThunk([]bytecode.Instruction{
		bytecode.AD(bytecode.LOADK, 0, 0), // r0 = once
		bytecode.AD(bytecode.EVAL, 0, 0),
		0, // EVAL live-out mask
		bytecode.AD(bytecode.MOVRES, 1, 0),
		bytecode.AD(bytecode.EVAL, 0, 0), // force the same thunk again
		0,
		bytecode.AD(bytecode.MOVRES, 2, 0),
		bytecode.AD(bytecode.RET1, 2, 0),
	}, []closure.Word{closure.RefWord(once)}, 3)

	th := exec.NewThread(64)
	result, err := th.Start(main, newArena(t))
	if err != nil {
		t.Fatalf("Start: %v (re-forcing an updated thunk should chase its IND)", err)
	}
	if got := result.Payload[0].Int(); got != 7 {
		t.Fatalf("result = %d, want 7", got)
	}
	if once.Info.Type != closure.IND {
		t.Fatalf("once.Info.Type = %v, want IND", once.Info.Type)
	}
}

// TestDivideByZero exercises the Open Question spec.md resolves: the
// engine surfaces division by zero as an error instead of silently
// skipping the write.
func TestDivideByZero(t *testing.T) {
	main := boxedThunk([]bytecode.Instruction{
		bytecode.ASD(bytecode.KINT, 0, 10),
		bytecode.ASD(bytecode.KINT, 1, 0),
		bytecode.ABC(bytecode.DIVRR, 2, 0, 1),
		bytecode.AD(bytecode.RET1, 2, 0),
	}, nil, 3)

	th := exec.NewThread(64)
	_, err := th.Start(main, newArena(t))
	if _, ok := err.(exec.DivideByZeroError); !ok {
		t.Fatalf("err = %v (%T), want exec.DivideByZeroError", err, err)
	}
}

// TestValidateFrame checks validate.Frame against a hand-built, well-formed
// single-frame Thread state; validate/frame_test.go covers its failure modes.
func TestValidateFrame(t *testing.T) {
	sub := &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: 0}}
	code := &closure.Code{
		Instrs:    []bytecode.Instruction{bytecode.AD(bytecode.RET1, 0, 0)},
		FrameSize: 1,
	}
	self := &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: code}}

	th := exec.NewThread(16)
	th.Stack[2] = closure.RefWord(self)
	th.Base = 3
	th.Top = 4
	th.Code = code
	th.PC = 0
	th.Stack[3] = closure.RefWord(sub)

	if err := validate.Frame(th); err != nil {
		t.Fatalf("validate.Frame: %v", err)
	}
}
