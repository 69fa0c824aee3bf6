// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package validate checks the runtime invariants a Thread's current
// frame must hold. It is not on the dispatch hot path — Thread.Run
// never calls Frame; exec's tests call it on a hand-built Thread, the
// same way wagon's validator runs once ahead of execution rather than
// re-checking every control transfer inside the VM loop.
package validate

import (
	"errors"
	"fmt"

	"github.com/go-interpreter/lazyvm/closure"
	"github.com/go-interpreter/lazyvm/exec"
)

// Error wraps a validation failure with the frame state it was found
// in, in the style of wagon's validate.Error (offset/function wrapping
// an underlying cause).
type Error struct {
	Base int
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("validate: frame at base %d: %v", e.Base, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

var (
	// ErrMissingNode is returned when base[-1] is nil or not a closure
	// reference, violating the invariant that every frame's Node field
	// names the closure currently executing in it.
	ErrMissingNode = errors.New("base[-1] is not a closure reference")
	// ErrNodeNotCallable is returned when base[-1]'s info table carries
	// no Code, so the frame could not have been entered by CALL/CALLT/
	// EVAL in the first place.
	ErrNodeNotCallable = errors.New("base[-1] closure has no Code (not FUN/THUNK)")
)

// BadNodeError reports that a frame's Node field points at a closure
// whose Code disagrees with the Code the Thread is actually executing
// — the two must match, since a frame is always entered by jumping to
// exactly its own Node's code.
type BadNodeError struct {
	Want, Got *closure.Code
}

func (e BadNodeError) Error() string {
	return fmt.Sprintf("frame's Node.Info.Code (%p) does not match the thread's current Code (%p)", e.Want, e.Got)
}

// FrameOverlapError reports that the current register window runs past
// Top, meaning a previous push computed the wrong frame size.
type FrameOverlapError struct {
	Base, Top, FrameSize int
}

func (e FrameOverlapError) Error() string {
	return fmt.Sprintf("register window [%d, %d) exceeds top %d", e.Base, e.Base+e.FrameSize, e.Top)
}

// Frame checks invariants 1-6 of the current-frame data model
// (base[-1] names the executing closure, base[-2]/base[-3] are
// addressable, and the register window fits under Top) against a live
// Thread. It does not walk the caller chain below base[-3]; only the
// current frame is checked.
func Frame(t *exec.Thread) error {
	base := t.Base
	stack := t.Stack

	if base < 3 {
		return Error{Base: base, Err: fmt.Errorf("base %d leaves no room for a 3-word frame header", base)}
	}
	if base-3 < 0 || base-2 < 0 || base-1 < 0 {
		return Error{Base: base, Err: fmt.Errorf("frame header underflows the stack")}
	}

	node := stack[base-1].Ref()
	if node == nil {
		return Error{Base: base, Err: ErrMissingNode}
	}
	if node.Info == nil || node.Info.Code == nil {
		return Error{Base: base, Err: ErrNodeNotCallable}
	}
	if t.Code != nil && node.Info.Code != t.Code {
		return Error{Base: base, Err: BadNodeError{Want: node.Info.Code, Got: t.Code}}
	}

	frameSize := int(node.Info.Code.FrameSize)
	if base+frameSize > t.Top {
		return Error{Base: base, Err: FrameOverlapError{Base: base, Top: t.Top, FrameSize: frameSize}}
	}
	if t.Top > len(stack) {
		return Error{Base: base, Err: fmt.Errorf("top %d exceeds stack capacity %d", t.Top, len(stack))}
	}
	return nil
}
