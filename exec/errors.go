// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exec

import (
	"fmt"

	"github.com/go-interpreter/lazyvm/closure"
)

// StackOverflowError is returned when growing the current frame (or
// pushing a call/update frame) would exceed the thread's stack,
// matching InterpThreaded.c's stackOverflow check. The reference
// engine never grows the stack automatically; callers that want that
// must catch this and re-run with a larger NewThread.
type StackOverflowError struct {
	Needed, Available int
}

func (e StackOverflowError) Error() string {
	return fmt.Sprintf("exec: stack overflow: need %d more words, have %d", e.Needed, e.Available)
}

// CalleeNotFunError is returned by CALL/CALLT when the register named as
// the callee does not hold a FUN closure — spec.md §4.6 requires this as
// a check separate from (and ahead of) the arity check, since a non-FUN
// closure's info table carries no Code/Arity to check arity against.
type CalleeNotFunError struct {
	Type closure.ClosureType
}

func (e CalleeNotFunError) Error() string {
	return fmt.Sprintf("exec: CALL/CALLT target is not a FUN closure (got %s)", e.Type)
}

// UnimplementedArityError is returned by CALL/CALLT when the callee's
// declared arity doesn't match the argument count supplied at the call
// site — partial application and over-application are explicitly out
// of scope (spec.md's Open Question on the PAP/over-application
// handoff interface is left open; this error is the placeholder until
// a PAP path exists).
type UnimplementedArityError struct {
	Want, Got int
}

func (e UnimplementedArityError) Error() string {
	return fmt.Sprintf("exec: unimplemented partial/over-application: callee wants %d args, got %d", e.Want, e.Got)
}

// UnimplementedOpError is returned for ALLOCAP and INITF, which
// InterpThreaded.c itself leaves unimplemented ("printf(\"Unimplemented
// bytecode\\n.\"); return -1;").
type UnimplementedOpError struct {
	Op fmt.Stringer
}

func (e UnimplementedOpError) Error() string {
	return fmt.Sprintf("exec: unimplemented opcode %s", e.Op)
}

// TooManyCalltArgsError is returned when a CALLT instruction names more
// than bytecode.MaxCalltArgs+1 arguments, which InterpThreaded.c treats
// as a code generator bug, not a runtime condition a program can
// trigger through normal evaluation.
type TooManyCalltArgsError struct {
	N int
}

func (e TooManyCalltArgsError) Error() string {
	return fmt.Sprintf("exec: CALLT with %d arguments exceeds the compiler's own limit", e.N)
}

// DivideByZeroError is returned by DIVRR/REMRR. The reference C engine
// silently skips the write on division by zero (a marked TODO in
// InterpThreaded.c); per spec.md §9's recommendation we promote it to a
// real, host-visible error instead.
type DivideByZeroError struct{}

func (DivideByZeroError) Error() string { return "exec: division by zero" }
