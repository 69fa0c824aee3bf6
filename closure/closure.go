// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package closure defines the heap-resident data model the exec package's
// dispatch loop operates on: closures, their info tables, and the Code
// record (literal pool + instruction vector + frame shape) a FUN or THUNK
// info table carries.
package closure

import "github.com/go-interpreter/lazyvm/bytecode"

// Word is the value stored in every register slot and every closure
// payload slot. spec.md's "raw-pointer register file" design note
// assumes a single tag-free bit pattern reinterpreted as either an
// integer or a closure reference, which is how the C source gets away
// with a flat Word array; naively storing a Go pointer's bits inside a
// plain uint64 register array would hide that pointer from the garbage
// collector mid-collection, silently corrupting the heap. Design Notes
// §9 explicitly allows a tagged sum "if they can prove no performance
// loss" — we take that option: Word is a three-field struct, at most one
// of which is meaningful at a time, so the stack and payload slices stay
// ordinary GC-visible Go values. IntWord/RefWord construct each case;
// Int and Ref read them back.
type Word struct {
	i    int64
	ref  *Closure
	itab *InfoTable
}

// IntWord builds a Word holding a signed integer (KINT, ADDRR, ...).
func IntWord(v int64) Word { return Word{i: v} }

// RefWord builds a Word holding a closure reference (LOADSLF, CALL's
// fnode, EVAL's thunk, ...).
func RefWord(c *Closure) Word { return Word{ref: c} }

// InfoTableWord builds a Word holding a reference to an info table,
// the value ALLOC1/ALLOC's B register carries: the original runtime
// treats an info table's address as just another Word, loaded the same
// way any other literal is (LOADK); a tagged Go Word needs its own
// case to carry that reference without an unsafe cast.
func InfoTableWord(it *InfoTable) Word { return Word{itab: it} }

// InfoTable reinterprets w as an info table reference, for ALLOC1/
// ALLOC's B operand.
func (w Word) InfoTable() *InfoTable { return w.itab }

// Int reinterprets w as a signed integer, for arithmetic and ordered
// comparisons (ISLT/ISGE/ISLE/ISGT). Only meaningful when w was built
// with IntWord; the dispatch loop only applies ordered comparisons to
// registers a FUN/THUNK's code generator is known to hold integers.
func (w Word) Int() int64 { return w.i }

// Ref reinterprets w as a closure reference. Calling Ref on a Word
// built from IntWord returns nil; the dispatch loop only ever calls Ref
// on registers a FUN/THUNK's code generator is known to have populated
// with a closure (Node, CALL's fnode, EVAL's target, ...).
func (w Word) Ref() *Closure { return w.ref }

// Equal implements ISEQ/ISNE's bit-equality semantics, which spec.md §4.3
// applies uniformly to registers holding either an integer or a closure
// reference: two RefWords compare equal iff they wrap the same *Closure,
// two IntWords iff their integers match, and a RefWord never equals an
// IntWord.
func (w Word) Equal(o Word) bool {
	if w.ref != nil || o.ref != nil {
		return w.ref == o.ref
	}
	if w.itab != nil || o.itab != nil {
		return w.itab == o.itab
	}
	return w.i == o.i
}

// ClosureType discriminates the variants a closure's info table names.
type ClosureType uint8

const (
	CONSTR ClosureType = iota
	THUNK
	FUN
	IND
	PAP
	BLACKHOLE
)

func (t ClosureType) String() string {
	switch t {
	case CONSTR:
		return "CONSTR"
	case THUNK:
		return "THUNK"
	case FUN:
		return "FUN"
	case IND:
		return "IND"
	case PAP:
		return "PAP"
	case BLACKHOLE:
		return "BLACKHOLE"
	default:
		return "unknown"
	}
}

// Code is the immutable compiled body of a FUN or THUNK closure: its
// literal pool (indexed by KLIT/LOADK), its flat instruction vector, the
// maximum register count it touches (FrameSize), and — for FUN only —
// its arity.
type Code struct {
	Instrs    []bytecode.Instruction
	Lits      []Word
	FrameSize uint32
	Arity     uint32
}

// InfoTable is the immutable, process-wide, shared-by-reference metadata
// for one closure variant. CONSTR info tables carry a Tag; FUN and THUNK
// info tables carry a Code record. ALLOC1/ALLOC write directly into a
// new closure's Payload and never modify an InfoTable.
type InfoTable struct {
	Type ClosureType
	Tag  uint16 // CONSTR only
	Code *Code  // FUN, THUNK only
	Name string // debug label, not read by the dispatch loop
}

// Closure is a heap record: a reference to its (shared) info table plus
// zero or more payload words. UPDATE rewrites both Info and Payload[0] in
// place to turn a THUNK into an IND — this is the only mutation the core
// ever performs on a closure after allocation.
type Closure struct {
	Info    *InfoTable
	Payload []Word
}

// HNF reports whether c is already in head-normal form — a constructor,
// function, or partial application — per closure_HNF (spec.md §6). EVAL
// treats an HNF closure as a no-op fast path.
func HNF(c *Closure) bool {
	switch c.Info.Type {
	case CONSTR, FUN, PAP:
		return true
	default:
		return false
	}
}

// Tag returns the constructor tag of c, which must be a CONSTR closure.
func Tag(c *Closure) uint16 {
	return c.Info.Tag
}
