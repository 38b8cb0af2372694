package regalloc

import (
	"fmt"
	"sort"

	"ollie/src/backend/x86"
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

// ---------------------
// ----- Constants -----
// ---------------------

// maxRestarts bounds the spill-and-restart loop (termination argument: in the worst case
// every range is spilled down to a pair of single-use ranges colourable with two registers, so this is a
// generous ceiling rather than an expected depth).
const maxRestarts = 4096

// ----------------------------
// ----- functions -----
// ----------------------------

// Allocate runs the full allocation pipeline to completion for fn: construct live ranges, pre-spill
// must-be-spilled ranges, then repeatedly (re)build liveness, the interference graph and coalesced ranges,
// and attempt to colour; on failure, spill the offending range and restart. Returns an error only when
// restarts are exhausted, which indicates a programmer-invariant violation rather than ordinary register
// pressure.
func Allocate(fn *cfg.Function) error {
	for restart := 0; restart < maxRestarts; restart++ {
		fn.ClearLiveRanges()
		ConstructAllLiveRanges(fn)
		if restart == 0 {
			// Only the first pass: preSpillMustBeSpilled rewrites each flagged range's uses/defs to
			// load-before-use/store-after-def, which bakes its stack offset directly into the inserted
			// instructions. Every later restart's ConstructAllLiveRanges sees those instructions already
			// in place and would re-spill the same range again if this ran unconditionally.
			preSpillMustBeSpilled(fn)
		}
		ComputeLiveness(fn)
		BuildInterferenceGraph(fn)
		Coalesce(fn)

		spilled := colorOnce(fn)
		if spilled == nil {
			return nil
		}
		spillRange(fn, spilled)
	}
	return fmt.Errorf("regalloc: %s: exceeded %d spill-and-restart iterations", fn.Name(), maxRestarts)
}

// colorOnce attempts one greedy colouring pass over fn's current interference graph, visiting ranges in
// descending spill-cost order and giving each the first register its neighbours leave free. It returns
// nil on full success, or the live range it could not colour (spill candidate) otherwise.
func colorOnce(fn *cfg.Function) *cfg.LiveRange {
	ranges := make([]*cfg.LiveRange, 0, len(fn.LiveRanges()))
	for _, lr := range fn.LiveRanges() {
		if !lr.Spilled() {
			ranges = append(ranges, lr)
		}
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].SpillCost() > ranges[j].SpillCost()
	})

	for _, lr := range ranges {
		if lr.IsPrecolored() {
			continue
		}

		pool := x86.GP
		if lr.Size() == opcode.SzSSESingle || lr.Size() == opcode.SzSSEDouble {
			pool = x86.XMM
		}

		taken := make(map[*x86.Register]bool)
		for _, n := range lr.Neighbours() {
			if r, ok := n.Register().(*x86.Register); ok && r != nil {
				taken[r] = true
			}
		}

		var assigned *x86.Register
		for _, r := range pool {
			if !taken[r] {
				assigned = r
				break
			}
		}
		if assigned == nil {
			return lr
		}
		lr.SetRegister(assigned)
	}
	return nil
}

// preSpillMustBeSpilled materialises every range flagged must_be_spilled to a stack slot before the
// colouring loop even starts.
func preSpillMustBeSpilled(fn *cfg.Function) {
	for _, lr := range fn.LiveRanges() {
		mustSpill := false
		for _, m := range lr.Members() {
			if m.MustBeSpilled() {
				mustSpill = true
				break
			}
		}
		if mustSpill && !lr.Materialized() {
			spillRange(fn, lr)
		}
	}
}
