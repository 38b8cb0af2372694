// Package regalloc implements the Chaitin-style graph-colouring register allocator: live-range
// construction, liveness dataflow, interference-graph construction with ABI precolouring, coalescing,
// and priority-ordered colouring with spill-and-restart inside a bounded retry loop.
package regalloc

import (
	"ollie/src/backend/x86"
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

// ---------------------
// ----- Constants -----
// ---------------------

// baseLoadStoreCost is the per-reference spill cost unit.
const baseLoadStoreCost = 1.0

// tempDoublingFactor rewards temporaries with a steeper cost curve than named locals: a doubling
// heuristic so that very hot temporaries gather large costs and get spilled last.
const tempDoublingFactor = 2.0

// ---------------------
// ----- functions -----
// ---------------------

// ConstructAllLiveRanges partitions every virtual variable reaching register allocation in fn into
// equivalence classes. It must run before liveness, interference and coalescing; each
// restart of the allocator after a spill discards the previous live-range set and calls this again.
func ConstructAllLiveRanges(fn *cfg.Function) {
	fn2lr := make(map[*cfg.Variable]*cfg.LiveRange)

	lookup := func(v *cfg.Variable) *cfg.LiveRange {
		for existing, lr := range fn2lr {
			if existing.EqualUpToSSA(v) {
				return lr
			}
		}
		return nil
	}

	sp := fn.CFG().StackPointer
	spLR := cfg.NewLiveRange(fn, opcode.SzQword)
	spLR.AddMember(sp)
	spLR.PinInfinite()
	spLR.Precolor(x86.RSP)
	fn2lr[sp] = spLR

	for _, b := range fn.Blocks() {
		freq := b.Frequency()
		if freq == 0 {
			freq = 1
		}
		for i := b.Head(); i != nil; i = i.Next() {
			if i.Op() == opcode.Phi {
				assignee := i.Assignee()
				lr := lookup(assignee)
				if lr == nil {
					lr = cfg.NewLiveRange(fn, assignee.Size())
					fn2lr[assignee] = lr
				}
				lr.AddMember(assignee)
				lr.AddSpillCost(costFor(assignee, freq))
				continue
			}

			if def := i.DefinedVariable(); def != nil {
				lr := lookup(def)
				if lr == nil {
					lr = cfg.NewLiveRange(fn, def.Size())
					fn2lr[def] = lr
				}
				lr.AddMember(def)
				lr.AddSpillCost(costFor(def, freq))
			}

			for _, use := range i.Uses() {
				lr := lookup(use)
				if lr == nil {
					if use.ParameterNumber() > 0 || use.IsStackPointer() {
						lr = cfg.NewLiveRange(fn, use.Size())
						fn2lr[use] = lr
					} else {
						panic("regalloc: use of " + use.Name() + " has no matching definition or parameter binding")
					}
				}
				lr.AddMember(use)
				lr.AddSpillCost(costFor(use, freq))
			}
		}
	}
}

// costFor computes the weighted load-and-store cost contribution of one reference to v, doubled for
// compiler temporaries.
func costFor(v *cfg.Variable, freq float64) float64 {
	c := baseLoadStoreCost * freq
	if v.IsTemporary() {
		c *= tempDoublingFactor
	}
	return c
}
