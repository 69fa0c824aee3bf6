// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heap provides a reference implementation of the allocator
// collaborator interface spec.md §6 describes, plus the process-wide
// static singletons (the IND info table, the blackhole closure, the
// update-frame closure, the small-integer cache) the dispatch loop
// consumes. The real heap allocator and garbage collector are explicitly
// out of scope of the core (spec.md §1); Arena exists so the core is
// runnable end to end in tests and in cmd/lazyvm-run.
package heap

import (
	"errors"
	"fmt"

	"github.com/edsrzf/mmap-go"

	"github.com/go-interpreter/lazyvm/closure"
)

// wordBytes is the accounting unit mirrored into the mmap'd budget
// region below; it does not need to match host pointer width, it is
// only used to size the reservation.
const wordBytes = 8

// arenaPageWords is the granularity Arena grows its budget region by,
// mirroring the page-at-a-time growth of wagon's linear memory in
// exec/memory.go's growMemory.
const arenaPageWords = 1 << 16 // 64k words per growth step

// Allocator is the allocation collaborator the dispatch loop's ALLOC1,
// ALLOC, and NEW_INT opcodes call through. Arena below is the reference
// implementation; a real generational GC would implement the same
// interface.
type Allocator interface {
	Allocate(payloadWords int) (*closure.Closure, error)
}

// ErrArenaExhausted is returned by Allocate when the arena's configured
// maximum word budget would be exceeded. The real GC collaborator would
// instead reclaim space and retry; the core treats this reference
// allocator's exhaustion as terminal.
var ErrArenaExhausted = errors.New("heap: arena exhausted")

// Arena is a bump-allocating reference implementation of
// Allocator. It never frees or compacts; that is the GC
// collaborator's job.
//
// Arena tracks how many words have been handed out using an
// mmap-backed budget region (growable the same way a real heap's
// nursery grows in pages) so that callers can configure and observe a
// hard allocation ceiling without needing a real garbage collector.
// The closures themselves remain ordinary Go values owned by an
// internal slice: storing live closure references inside the raw
// mmap'd bytes would hide them from the Go garbage collector (a
// closure's Payload can reference other closures, and the GC must see
// those references to keep them alive), so the mmap region is used
// purely as word-budget bookkeeping, never as object storage.
type Arena struct {
	budget    mmap.MMap // budget region, wordBytes bytes account for one allocated word
	maxWords  int
	usedWords int
	closures  []*closure.Closure
}

// NewArena creates an Arena that will refuse further allocation once
// maxWords words (including closure headers) have been handed out.
func NewArena(maxWords int) (*Arena, error) {
	m, err := mmap.MapRegion(nil, arenaPageWords, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("heap: mapping initial arena budget region: %w", err)
	}
	return &Arena{budget: m, maxWords: maxWords}, nil
}

// Close unmaps the arena's budget region. Arena is otherwise unused
// after Close.
func (a *Arena) Close() error {
	return a.budget.Unmap()
}

// Allocate reserves a closure with the given number of payload words
// (the header is accounted for separately, one word, matching
// sizeof(ClosureHeader) in the original runtime) and returns it
// zero-valued and ready for the caller to fill in Info and Payload.
func (a *Arena) Allocate(payloadWords int) (*closure.Closure, error) {
	words := payloadWords + 1 // + header
	if a.usedWords+words > a.maxWords {
		return nil, ErrArenaExhausted
	}
	if err := a.growBudget(a.usedWords + words); err != nil {
		return nil, err
	}
	a.usedWords += words

	cl := &closure.Closure{Payload: make([]closure.Word, payloadWords)}
	a.closures = append(a.closures, cl)
	return cl, nil
}

// Live reports the number of closures currently tracked by the arena;
// it exists for tests that want to assert allocation counts.
func (a *Arena) Live() int { return len(a.closures) }

// UsedWords reports the running word total handed out so far.
func (a *Arena) UsedWords() int { return a.usedWords }

func (a *Arena) growBudget(neededWords int) error {
	if neededWords*wordBytes <= len(a.budget) {
		return nil
	}
	newLen := len(a.budget)
	for neededWords*wordBytes > newLen {
		newLen += arenaPageWords * wordBytes
	}
	grown, err := mmap.MapRegion(nil, newLen, mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return fmt.Errorf("heap: growing arena budget region to %d bytes: %w", newLen, err)
	}
	if err := a.budget.Unmap(); err != nil {
		return fmt.Errorf("heap: unmapping old arena budget region: %w", err)
	}
	a.budget = grown
	return nil
}
