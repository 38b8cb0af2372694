package cfg

import (
	"ollie/src/frontend"
	"ollie/src/ir/opcode"
	"ollie/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Function is one translation unit's compiled function: its own id allocators for variables and
// instructions (block ids come from the owning CFG), its parameter/local bindings, and the list of blocks and live ranges that
// belong to it.
type Function struct {
	cfg  *CFG
	id   int
	name string

	retSize opcode.Size
	isVoid  bool

	params []*Variable // In declaration order; ParameterNumber() is 1-based into this slice.
	locals []*Variable

	blocks []*Block
	entry  *Block
	exit   *Block

	usedCalleeSaved []Register // Populated by backend/x86's prologue/epilogue synthesis.
	frameSize       int        // Total local stack frame size in bytes, once assigned.

	liveRanges []*LiveRange

	varIDs   util.IDAllocator
	instrIDs util.IDAllocator
}

// ---------------------
// ----- functions -----
// ---------------------

// CFG returns the CFG that owns Function fn.
func (fn *Function) CFG() *CFG { return fn.cfg }

// Id returns the unique identifier of Function fn.
func (fn *Function) Id() int { return fn.id }

// Name returns the externally visible name of Function fn.
func (fn *Function) Name() string { return fn.name }

// RetSize returns the size class of Function fn's return value.
func (fn *Function) RetSize() opcode.Size { return fn.retSize }

// SetRetSize sets the size class of Function fn's return value.
func (fn *Function) SetRetSize(s opcode.Size) { fn.retSize = s }

// IsVoid reports whether Function fn returns no value.
func (fn *Function) IsVoid() bool { return fn.isVoid }

// SetVoid marks Function fn as returning no value.
func (fn *Function) SetVoid() { fn.isVoid = true }

// Params returns Function fn's parameters, in declaration order.
func (fn *Function) Params() []*Variable { return fn.params }

// Locals returns every declared local variable of Function fn (excludes compiler temporaries, which are
// minted directly by the IR builder and never registered here).
func (fn *Function) Locals() []*Variable { return fn.locals }

// Blocks returns every block currently owned by Function fn, in creation order. Blocks removed by the
// postprocessor are absent, here and from the CFG's own Blocks().
func (fn *Function) Blocks() []*Block { return fn.blocks }

// Entry returns Function fn's function_entry block.
func (fn *Function) Entry() *Block { return fn.entry }

// Exit returns Function fn's function_exit block.
func (fn *Function) Exit() *Block { return fn.exit }

// LiveRanges returns every live range constructed for Function fn.
func (fn *Function) LiveRanges() []*LiveRange { return fn.liveRanges }

// ClearLiveRanges discards fn's entire live-range list. The allocator calls this at the top of every
// spill-and-restart iteration: stale ranges from the previous attempt carry stale registers and stale
// adjacency, and everything still referenced by an instruction operand is rebuilt from scratch by the
// next construct_all_live_ranges pass. A materialised spill's stack offset survives independently, baked
// into the Load/Store instructions the spill inserted.
func (fn *Function) ClearLiveRanges() {
	fn.liveRanges = nil
}

// RemoveLiveRange deletes lr from fn's live-range list, used once a coalesced range has been merged away.
func (fn *Function) RemoveLiveRange(lr *LiveRange) {
	for i, e := range fn.liveRanges {
		if e == lr {
			fn.liveRanges[i] = fn.liveRanges[len(fn.liveRanges)-1]
			fn.liveRanges = fn.liveRanges[:len(fn.liveRanges)-1]
			return
		}
	}
}

// UsedCalleeSaved returns the callee-saved registers Function fn's body actually assigns, populated by the
// prologue/epilogue synthesis pass.
func (fn *Function) UsedCalleeSaved() []Register { return fn.usedCalleeSaved }

// SetUsedCalleeSaved records the callee-saved registers Function fn's body actually assigns.
func (fn *Function) SetUsedCalleeSaved(regs []Register) { fn.usedCalleeSaved = regs }

// FrameSize returns the total local stack frame size assigned to Function fn, in bytes.
func (fn *Function) FrameSize() int { return fn.frameSize }

// SetFrameSize sets the total local stack frame size of Function fn, in bytes.
func (fn *Function) SetFrameSize(n int) { fn.frameSize = n }

// CreateBlock mints a new block of the given kind, owned by Function fn, and appends it to fn's block
// list. The first function_entry block created becomes fn.entry; the first function_exit block created
// becomes fn.exit.
func (fn *Function) CreateBlock(kind BlockKind) *Block {
	b := fn.cfg.createBlock(fn, kind)
	fn.blocks = append(fn.blocks, b)
	switch kind {
	case FunctionEntry:
		if fn.entry == nil {
			fn.entry = b
		}
	case FunctionExit:
		if fn.exit == nil {
			fn.exit = b
		}
	}
	return b
}

// removeBlock deletes b from fn's own block list (but not the CFG's arena; callers that genuinely want to
// retire b call CFG.removeFromArena separately). Used by Merge and by the postprocessor.
func (fn *Function) removeBlock(b *Block) {
	for i, e := range fn.blocks {
		if e == b {
			fn.blocks[i] = fn.blocks[len(fn.blocks)-1]
			fn.blocks = fn.blocks[:len(fn.blocks)-1]
			return
		}
	}
}

// CreateParam declares parameter number n (1-based) of Function fn, of the given size, bound to sym. sym
// may be nil for a synthetic/unnamed parameter slot.
func (fn *Function) CreateParam(sym *frontend.Symbol, size opcode.Size, n int) *Variable {
	v := &Variable{
		id:              fn.varIDs.Next(),
		symbol:          sym,
		size:            size,
		parameterNumber: n,
	}
	if sym != nil {
		v.name = sym.Name
	}
	fn.params = append(fn.params, v)
	return v
}

// GetParam returns parameter number n (1-based) of Function fn, or nil if out of range.
func (fn *Function) GetParam(n int) *Variable {
	if n < 1 || n > len(fn.params) {
		return nil
	}
	return fn.params[n-1]
}

// CreateLocal declares a named local variable of Function fn, bound to sym.
func (fn *Function) CreateLocal(sym *frontend.Symbol, size opcode.Size) *Variable {
	v := &Variable{
		id:     fn.varIDs.Next(),
		symbol: sym,
		size:   size,
		name:   sym.Name,
	}
	fn.locals = append(fn.locals, v)
	return v
}

// CreateTemp mints an unnamed compiler temporary of the given size, not registered in fn.locals.
func (fn *Function) CreateTemp(size opcode.Size) *Variable {
	return &Variable{
		id:          fn.varIDs.Next(),
		size:        size,
		isTemporary: true,
	}
}

// NewInstruction mints an Instruction with opcode op, not yet attached to any block. Call
// Block.AppendInstruction, InsertAfter or InsertBefore to attach it.
func (fn *Function) NewInstruction(op opcode.Op) *Instruction {
	return newInstruction(op)
}
