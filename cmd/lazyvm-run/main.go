// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command lazyvm-run assembles one of a handful of built-in demo
// programs by hand and runs it on the threaded interpreter, printing
// the forced result. There is no textual assembler or bytecode file
// format in scope here (spec.md's Non-goals exclude a front end); this
// is a driver for exercising the engine end to end, the way wasm-run
// drives wagon's VM against a .wasm file.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/go-interpreter/lazyvm/bytecode"
	"github.com/go-interpreter/lazyvm/closure"
	"github.com/go-interpreter/lazyvm/exec"
	"github.com/go-interpreter/lazyvm/heap"
)

func main() {
	log.SetPrefix("lazyvm-run: ")
	log.SetFlags(0)

	program := flag.String("program", "identity-thunk", "demo program to run: identity-thunk, even-odd")
	stackWords := flag.Uint("stack-words", 4096, "thread stack size, in words")
	arenaWords := flag.Uint("arena-words", 1<<20, "heap arena word budget")
	trace := flag.Bool("v", false, "trace executed instructions to stderr")
	flag.Parse()

	if *trace {
		exec.Trace = true
		exec.SetTraceOutput(os.Stderr)
	}

	entry, err := buildProgram(*program)
	if err != nil {
		log.Fatal(err)
	}

	arena, err := heap.NewArena(int(*arenaWords))
	if err != nil {
		log.Fatalf("could not create arena: %v", err)
	}
	defer arena.Close()

	th := exec.NewThread(uint32(*stackWords))
	result, err := th.Start(entry, arena)
	if err != nil {
		log.Fatalf("could not run %s: %v", *program, err)
	}

	describe(result)
}

func buildProgram(name string) (*closure.Closure, error) {
	switch name {
	case "identity-thunk":
		return identityThunk(), nil
	case "even-odd":
		return evenOddThunk(8), nil
	default:
		log.Printf("unknown program %q", name)
		flag.Usage()
		os.Exit(1)
		return nil, nil
	}
}

// identityThunk boxes the literal 42, the way spec.md §8's silly1
// scenario does.
func identityThunk() *closure.Closure {
	code := &closure.Code{
		Instrs: []bytecode.Instruction{
			bytecode.ASD(bytecode.KINT, 0, 42),
			bytecode.AD(bytecode.NEWINT, 0, 0),
			bytecode.AD(bytecode.RET1, 0, 0),
		},
		FrameSize: 1,
	}
	return &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: code, Name: "silly1"}}
}

// evenOddThunk calls the mutually tail-recursive even/odd pair on n and
// returns the resulting True/False constructor, demonstrating CALLT's
// frame reuse across the recursion.
func evenOddThunk(n int16) *closure.Closure {
	trueC := &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: 1, Name: "True"}}
	falseC := &closure.Closure{Info: &closure.InfoTable{Type: closure.CONSTR, Tag: 0, Name: "False"}}

	evenCode := &closure.Code{FrameSize: 3, Arity: 1}
	oddCode := &closure.Code{FrameSize: 3, Arity: 1}
	even := &closure.Closure{Info: &closure.InfoTable{Type: closure.FUN, Code: evenCode, Name: "even"}}
	odd := &closure.Closure{Info: &closure.InfoTable{Type: closure.FUN, Code: oddCode, Name: "odd"}}

	body := func() []bytecode.Instruction {
		return []bytecode.Instruction{
			bytecode.AD(bytecode.LOADK, 2, 0), // r2 = other function
			bytecode.ASD(bytecode.KINT, 1, 0),
			bytecode.AD(bytecode.ISEQ, 0, 1),
			bytecode.AJ(bytecode.JMP, 0, 3),
			bytecode.ASD(bytecode.KINT, 1, 1),
			bytecode.ABC(bytecode.SUBRR, 1, 0, 1),
			bytecode.ABC(bytecode.CALLT, 2, 1, 1),
			bytecode.AD(bytecode.LOADK, 0, 1), // r0 = base-case result
			bytecode.AD(bytecode.RET1, 0, 0),
		}
	}
	evenCode.Instrs = body()
	evenCode.Lits = []closure.Word{closure.RefWord(odd), closure.RefWord(trueC)}
	oddCode.Instrs = body()
	oddCode.Lits = []closure.Word{closure.RefWord(even), closure.RefWord(falseC)}

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
	return &closure.Closure{Info: &closure.InfoTable{Type: closure.THUNK, Code: mainCode, Name: "even-odd-main"}}
}

func describe(c *closure.Closure) {
	switch c.Info.Type {
	case closure.CONSTR:
		log.Printf("result: constructor %q, tag=%d", c.Info.Name, c.Info.Tag)
	default:
		if len(c.Payload) == 1 {
			log.Printf("result: %s = %d", c.Info.Name, c.Payload[0].Int())
			return
		}
		log.Printf("result: %s (%v)", c.Info.Name, c.Info.Type)
	}
}
