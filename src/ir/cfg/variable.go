package cfg

import (
	"fmt"

	"ollie/src/frontend"
	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Variable is a virtual variable before register allocation. It carries
// its originating symbol-table record (nil for a temporary), a generation counter encoding its SSA
// subscript, a size class, and the flags upstream passes set on it.
type Variable struct {
	id         int
	symbol     *frontend.Symbol // Originating symbol-table record, or nil if this is a temporary.
	generation int              // SSA subscript.
	name       string
	size       opcode.Size

	associatedLiveRange *LiveRange // Set once live-range construction runs. nil before that point.

	stackOffset    int  // Frame-relative offset for a declared local, once assigned one.
	hasStackOffset bool

	isStackPointer  bool
	isTemporary     bool
	mustBeSpilled   bool // Set upstream when this variable's address is taken.
	parameterNumber int  // 1-based; 0 if this variable isn't bound to a parameter.
}

// ---------------------
// ----- functions -----
// ---------------------

// Id returns the unique identifier of Variable v. Temporaries are identified by this id; symbol-bound
// variables are additionally identified by their Symbol.
func (v *Variable) Id() int { return v.id }

// Name returns the textual name of Variable v, suitable for variable-inline printing.
func (v *Variable) Name() string {
	if len(v.name) > 0 {
		return v.name
	}
	return fmt.Sprintf("t%d", v.id)
}

// Symbol returns the originating symbol-table record, or nil if v is a temporary.
func (v *Variable) Symbol() *frontend.Symbol { return v.symbol }

// Generation returns the SSA generation counter of Variable v.
func (v *Variable) Generation() int { return v.generation }

// Size returns the size class of Variable v.
func (v *Variable) Size() opcode.Size { return v.size }

// IsStackPointer reports whether v is the CFG's shared stack-pointer variable.
func (v *Variable) IsStackPointer() bool { return v.isStackPointer }

// IsTemporary reports whether v was minted without a backing symbol-table record.
func (v *Variable) IsTemporary() bool { return v.isTemporary }

// MustBeSpilled reports whether v was flagged upstream (its address was taken) as requiring a stack slot
// regardless of register pressure.
func (v *Variable) MustBeSpilled() bool { return v.mustBeSpilled }

// SetMustBeSpilled marks v (and, transitively through live-range construction, its whole live range) as
// required to live in memory.
func (v *Variable) SetMustBeSpilled() { v.mustBeSpilled = true }

// ParameterNumber returns the 1-based parameter index of v, or 0 if v isn't a parameter.
func (v *Variable) ParameterNumber() int { return v.parameterNumber }

// LiveRange returns the live range v belongs to, or nil before live-range construction has run.
func (v *Variable) LiveRange() *LiveRange { return v.associatedLiveRange }

// SetLiveRange binds v to live range lr. Called only by backend/regalloc's live-range construction pass.
func (v *Variable) SetLiveRange(lr *LiveRange) { v.associatedLiveRange = lr }

// StackOffset returns the frame-relative byte offset assigned to a declared local variable, and whether
// one has been assigned yet.
func (v *Variable) StackOffset() (int, bool) { return v.stackOffset, v.hasStackOffset }

// SetStackOffset assigns a frame-relative byte offset to a declared local variable.
func (v *Variable) SetStackOffset(off int) {
	v.stackOffset = off
	v.hasStackOffset = true
}

// EqualUpToSSA reports whether v and other must belong to the same live range: they originate from the
// same symbol-table record, or are the very same temporary, regardless of SSA generation.
func (v *Variable) EqualUpToSSA(other *Variable) bool {
	if v == other {
		return true
	}
	if v.symbol != nil && other.symbol != nil {
		return v.symbol == other.symbol
	}
	if v.symbol == nil && other.symbol == nil {
		return v.isTemporary && other.isTemporary && v.id == other.id
	}
	return false
}
