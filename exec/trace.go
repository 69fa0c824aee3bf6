// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package exec

import (
	"io"
	"log"
)

// Trace gates per-instruction debug logging, the same opt-in switch
// validate.PrintDebugInfo uses in the teacher's validator: off by
// default, and cheap to check (a package-level bool, not a level
// check through a structured logging library the rest of this stack
// doesn't use).
var Trace = false

var tracer = log.New(io.Discard, "exec: ", 0)

// SetTraceOutput redirects the trace log without touching package
// state other than the writer; cmd/lazyvm-run's -v flag uses it to
// send the trace to stderr.
func SetTraceOutput(w io.Writer) {
	tracer = log.New(w, "exec: ", 0)
}
