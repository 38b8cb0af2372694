package cfg

import (
	"fmt"
	"math"

	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// LiveRange is the unit of register allocation: a union-find equivalence class of virtual
// variables that must share one location. Its neighbours/degree/spillCost fields are populated by
// backend/regalloc; ir/cfg only owns the storage shape, since Variable.associatedLiveRange and
// Block.LiveIn/LiveOut must reference it without creating an import cycle back into backend/regalloc.
type LiveRange struct {
	id      int
	members []*Variable

	neighbours []*LiveRange // Mutable adjacency in the interference graph.
	degree     int

	spillCost float64

	reg          Register // Assigned physical register, or nil before allocation / if spilled.
	isPrecolored bool

	fn   *Function
	size opcode.Size

	spilled      bool // Set as soon as a member requires memory residency, or once materialised to a slot.
	materialized bool // Set only once spillRange has actually assigned an offset and rewritten uses/defs.
	spillOffset  int
}

// ---------------------
// ----- functions -----
// ---------------------

// NewLiveRange creates a live range owned by function fn, with the given size class. Called by
// backend/regalloc's construct_all_live_ranges.
func NewLiveRange(fn *Function, size opcode.Size) *LiveRange {
	lr := &LiveRange{
		id:   fn.cfg.liveRangeIDs.Next(),
		fn:   fn,
		size: size,
	}
	fn.liveRanges = append(fn.liveRanges, lr)
	return lr
}

// Id returns the monotonically assigned identifier of LiveRange lr.
func (lr *LiveRange) Id() int { return lr.id }

// Members returns every virtual variable merged into LiveRange lr.
func (lr *LiveRange) Members() []*Variable { return lr.members }

// AddMember merges Variable v into LiveRange lr and binds v's associatedLiveRange back-pointer. If v was
// flagged MustBeSpilled, lr inherits the flag.
func (lr *LiveRange) AddMember(v *Variable) {
	for _, e := range lr.members {
		if e == v {
			return
		}
	}
	lr.members = append(lr.members, v)
	v.SetLiveRange(lr)
	if v.MustBeSpilled() {
		lr.spilled = true
	}
}

// Neighbours returns LiveRange lr's neighbours in the interference graph.
func (lr *LiveRange) Neighbours() []*LiveRange { return lr.neighbours }

// AddNeighbour records an interference edge between lr and other, if not already present. Symmetric: the
// caller is expected to call this on both ends during interference-graph construction.
func (lr *LiveRange) AddNeighbour(other *LiveRange) {
	if other == lr {
		return
	}
	for _, e := range lr.neighbours {
		if e == other {
			return
		}
	}
	lr.neighbours = append(lr.neighbours, other)
	lr.degree = len(lr.neighbours)
}

// Interferes reports whether lr and other share an interference edge.
func (lr *LiveRange) Interferes(other *LiveRange) bool {
	for _, e := range lr.neighbours {
		if e == other {
			return true
		}
	}
	return false
}

// Degree returns the number of neighbours LiveRange lr currently has in the interference graph.
func (lr *LiveRange) Degree() int { return lr.degree }

// SpillCost returns the accumulated load-and-store cost of LiveRange lr, weighted by block execution
// frequency.
func (lr *LiveRange) SpillCost() float64 { return lr.spillCost }

// AddSpillCost adds to LiveRange lr's accumulated spill cost.
func (lr *LiveRange) AddSpillCost(c float64) { lr.spillCost += c }

// PinInfinite marks lr as having infinite spill cost, reserved for the stack pointer's live range, which
// can never be spilled.
func (lr *LiveRange) PinInfinite() { lr.spillCost = math.MaxFloat64 }

// Register returns the physical register assigned to LiveRange lr, or nil if unassigned or spilled.
func (lr *LiveRange) Register() Register { return lr.reg }

// SetRegister assigns physical register r to LiveRange lr.
func (lr *LiveRange) SetRegister(r Register) { lr.reg = r }

// Precolor marks lr as pinned to register r by an ABI or ISA constraint; its register can never change
// and it is excluded from the free-register scan during graph colouring.
func (lr *LiveRange) Precolor(r Register) {
	lr.reg = r
	lr.isPrecolored = true
}

// IsPrecolored reports whether lr was pinned to a register before graph colouring began.
func (lr *LiveRange) IsPrecolored() bool { return lr.isPrecolored }

// Function returns the function that owns LiveRange lr.
func (lr *LiveRange) Function() *Function { return lr.fn }

// Size returns the size class of LiveRange lr.
func (lr *LiveRange) Size() opcode.Size { return lr.size }

// Spilled reports whether lr must resolve to a memory operand at emission: either a must_be_spilled member
// flagged it early (see AddMember) or backend/regalloc's spillRange has actually materialised it.
func (lr *LiveRange) Spilled() bool { return lr.spilled }

// Materialized reports whether backend/regalloc's spillRange has already assigned lr a stack slot and
// rewritten its uses/defs to load-before-use/store-after-def. Distinct from Spilled(): a must_be_spilled
// range is Spilled() as soon as it is constructed (so colouring skips it) but is not Materialized() until
// spillRange actually runs, which backend/regalloc's pre-spill step uses to avoid re-spilling it every
// restart.
func (lr *LiveRange) Materialized() bool { return lr.materialized }

// MarkSpilled marks lr as spilled and materialised, and records its stack slot offset.
func (lr *LiveRange) MarkSpilled(offset int) {
	lr.spilled = true
	lr.materialized = true
	lr.spillOffset = offset
}

// SpillOffset returns the frame-relative stack slot offset assigned to a spilled LiveRange.
func (lr *LiveRange) SpillOffset() int { return lr.spillOffset }

// String renders "LR<id>" for debugging and for the live-ranges print mode.
func (lr *LiveRange) String() string {
	return fmt.Sprintf("LR%d", lr.id)
}

// Merge absorbs other into lr: every member of other becomes a member of lr, every neighbour of other
// becomes a neighbour of lr, and other is left with no members (the caller must remove it from its
// function's live-range list). On a coalesced copy, the *source* range survives and the *destination*
// range is the one deleted; callers merge destination-into-source accordingly, by calling
// source.Merge(destination).
func (lr *LiveRange) Merge(other *LiveRange) {
	for _, m := range other.members {
		lr.AddMember(m)
	}
	for _, n := range other.neighbours {
		if n == lr {
			continue
		}
		lr.AddNeighbour(n)
		n.AddNeighbour(lr)
		n.removeNeighbour(other)
	}
	other.members = nil
	other.neighbours = nil
}

// removeNeighbour deletes other from lr's adjacency list, used when a coalesced range is retired.
func (lr *LiveRange) removeNeighbour(other *LiveRange) {
	for i, e := range lr.neighbours {
		if e == other {
			lr.neighbours[i] = lr.neighbours[len(lr.neighbours)-1]
			lr.neighbours = lr.neighbours[:len(lr.neighbours)-1]
			lr.degree = len(lr.neighbours)
			return
		}
	}
}
