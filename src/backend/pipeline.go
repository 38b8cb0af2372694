// Package backend wires together the core back-end passes into the single ordered pipeline described by
// the system overview: per function, register allocation, prologue/epilogue and caller-save synthesis,
// the three-pass postprocessor, and finally assembly emission. It owns no algorithm of its own; every
// step is delegated to backend/regalloc, backend/x86 or backend/postprocess, and backend/emit.
package backend

import (
	"fmt"

	"ollie/src/backend/emit"
	"ollie/src/backend/postprocess"
	"ollie/src/backend/regalloc"
	"ollie/src/backend/x86"
	"ollie/src/ir/cfg"
	"ollie/src/ir/scheduler"
	"ollie/src/util"
)

// ----------------------------
// ----- functions -----
// ----------------------------

// Run executes the core back-end pipeline over every function of c in declaration order and writes the
// resulting GAS listing for the whole translation unit to w. sched schedules each block ahead of
// allocation; pass scheduler.Identity{} when no real list scheduler is wired in. sourceFile names the
// compilation unit for the emitted .file directive.
//
// Any error returned is an internal compiler error per the back end's error-handling design: register
// allocation only fails after its bounded spill-and-restart loop is exhausted, which indicates a
// programmer-invariant violation rather than ordinary register pressure, so the driver should treat a
// non-nil return the same as the spec's exit code 1.
func Run(c *cfg.CFG, w *util.Writer, sched scheduler.Scheduler, sourceFile string) error {
	scheduler.Run(c, sched)

	for _, fn := range c.Functions {
		if err := regalloc.Allocate(fn); err != nil {
			return fmt.Errorf("backend: %w", err)
		}
		x86.SynthesizePrologueEpilogue(fn)
		x86.InjectCallerSave(fn)
		postprocess.Run(fn)
	}

	emit.Program(c, w, sourceFile)
	w.Flush()
	return nil
}
