// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"github.com/go-interpreter/lazyvm/bytecode"
	"github.com/go-interpreter/lazyvm/closure"
)

// INDInfo is the shared info table every indirection closure points at.
// UPDATE installs it in place of a thunk's own info table; EVAL's HNF
// fast path never sees it directly (closure.HNF treats IND as not-HNF,
// and the dispatch loop chases IND.Payload[0] before re-checking HNF).
var INDInfo = &closure.InfoTable{Type: closure.IND, Name: "IND"}

// BlackholeClosure is the singleton every thunk's slot is overwritten
// with by LOADBH while the thunk's own body is under evaluation,
// matching stg_BLACKHOLE_closure. Entering it is a compiler/runtime
// bug (a thunk re-entering itself), not a user-visible error, so the
// dispatch loop never needs to special-case it beyond never scheduling
// it for EVAL itself.
var BlackholeClosure = &closure.Closure{
	Info: &closure.InfoTable{Type: closure.BLACKHOLE, Name: "BLACKHOLE"},
}

// updateCode is the synthetic FUN body entered when a forced thunk
// returns into its update frame. InterpThreaded.c declares the
// stg_UPD_closure/stg_UPD_return_pc singletons but ships no
// MiscClosures.c defining what instruction stg_UPD_return_pc actually
// points at (spec.md §9's Open Question). RET1/do_return hands off the
// forced value through the thread-wide last_result shadow register,
// not through a numbered register, so the update closure's body must
// first MOV_RES it into reg 1 before UPDATE can read reg 1 as its "new
// value" operand: MOV_RES 1; UPDATE 0, 1.
var updateCode = &closure.Code{
	FrameSize: 2,
	Arity:     0,
}

// UpdateClosure is the stg_UPD_closure singleton EVAL pushes as the
// Node field of the update frame it builds ahead of entering a thunk.
var UpdateClosure = &closure.Closure{
	Info: &closure.InfoTable{Type: closure.FUN, Code: updateCode, Name: "UPD"},
}

// UpdateReturnPC is the stg_UPD_return_pc singleton: the first
// instruction of updateCode, i.e. index 0 into UpdateClosure's code.
const UpdateReturnPC = 0

func init() {
	updateCode.Instrs = []bytecode.Instruction{
		bytecode.AD(bytecode.MOVRES, 1, 0),
		bytecode.ASD(bytecode.UPDATE, 0, 1),
	}
}

// smallIntCache holds the original runtime's cached small integer
// closures (smallInt(-128..127)), so NEW_INT doesn't allocate for the
// common case. Entries are built lazily on first SmallInt call for a
// given value to avoid giving every Arena user 256 live closures it
// may never touch.
var smallIntCache [256]*closure.Closure

// IzhConInfo is the CONSTR info table NEW_INT uses for boxed integers
// that fall outside the small-integer cache (tag 0, payload = the
// integer value), matching stg_Izh_con_info.
var IzhConInfo = &closure.InfoTable{Type: closure.CONSTR, Tag: 0, Name: "I#"}

// SmallInt returns the cached boxed-integer closure for v, allocating
// it on first use, for v in [-128, 127]. Callers outside that range
// must allocate through an Allocator instead; SmallInt panics if asked
// to cache a value it wasn't designed to hold, since that indicates a
// caller bug rather than a runtime condition.
func SmallInt(v int32) *closure.Closure {
	if v < -128 || v > 127 {
		panic("heap: SmallInt called outside the cached range [-128, 127]")
	}
	idx := v + 128
	if smallIntCache[idx] == nil {
		smallIntCache[idx] = &closure.Closure{
			Info:    IzhConInfo,
			Payload: []closure.Word{closure.IntWord(int64(v))},
		}
	}
	return smallIntCache[idx]
}
