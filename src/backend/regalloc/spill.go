package regalloc

import (
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- functions -----
// ----------------------------

// spillRange materialises lr to a stack slot and rewrites every reference to it in fn: each use loads
// the slot into a fresh single-use range just before the reading instruction, and each definition is
// redirected into a fresh range that is stored back to the slot immediately after the defining
// instruction. The original range keeps its slot but disappears from the instruction stream entirely,
// which is what lets the restarted allocator colour the fresh fragments independently.
//
// The "currently spilled" marker is scoped per block rather than per function: the loaded copy is never
// reused across a block boundary, even when no intervening definition exists, since the dataflow state
// needed to prove that safe across blocks isn't tracked. Within a block the marker is cleared at every
// definition, so later uses reload.
func spillRange(fn *cfg.Function, lr *cfg.LiveRange) {
	align := lr.Size().Bytes()
	offset := (fn.FrameSize() + align - 1) &^ (align - 1)
	lr.MarkSpilled(offset)
	fn.SetFrameSize(offset + align)

	sp := fn.CFG().StackPointer

	for _, b := range fn.Blocks() {
		var currentlySpilled *cfg.Variable // Reset at every block boundary.

		for i := b.Head(); i != nil; {
			next := i.Next()

			for _, slot := range operandSlots(i) {
				v := slot.get()
				if v == nil || v.LiveRange() != lr {
					continue
				}
				if currentlySpilled == nil {
					currentlySpilled = insertLoad(fn, i, sp, lr)
				}
				slot.set(currentlySpilled)
			}

			if d := i.DefinedVariable(); d != nil && d.LiveRange() == lr {
				fresh := fn.CreateTemp(lr.Size())
				freshLR := cfg.NewLiveRange(fn, lr.Size())
				freshLR.AddMember(fresh)
				if i.Op() == opcode.Phi || i.Op() == opcode.SetCC {
					i.SetAssignee(fresh)
				} else {
					i.SetDestination(fresh)
				}
				insertStore(fn, i, sp, lr, fresh)
				currentlySpilled = nil
			}

			i = next
		}
	}
}

// operandSlot is a getter/setter pair over one of an instruction's operand fields, used so spillRange can
// rewrite whichever slots happen to reference the spilled range without a type switch per opcode.
type operandSlot struct {
	get func() *cfg.Variable
	set func(*cfg.Variable)
}

// operandSlots returns every slot of i that reads (rather than defines) a value, mirroring
// Instruction.Uses(): a call's parameter table contributes one slot per argument, and the destination
// slot is only a use on opcodes where it doesn't also double as i.DefinedVariable()
// (Cmp/Test/Store/Ret/Push). Including a defining destination here would have spillRange load the stale
// spilled value into the slot an instruction is about to overwrite, and then never see its own
// definition as needing a store.
func operandSlots(i *cfg.Instruction) []operandSlot {
	slots := []operandSlot{
		{func() *cfg.Variable { return i.Source() }, i.SetSource},
		{func() *cfg.Variable { return i.Source2() }, i.SetSource2},
		{func() *cfg.Variable { return i.AddrCalc1() }, i.SetAddrCalc1},
		{func() *cfg.Variable { return i.AddrCalc2() }, i.SetAddrCalc2},
	}
	switch i.Op() {
	case opcode.Cmp, opcode.Test, opcode.Store, opcode.Ret, opcode.Push:
		slots = append(slots, operandSlot{func() *cfg.Variable { return i.Destination() }, i.SetDestination})
	case opcode.Call, opcode.CallIndirect:
		for idx := range i.Params() {
			idx := idx
			slots = append(slots, operandSlot{
				func() *cfg.Variable { return i.Params()[idx] },
				func(v *cfg.Variable) { i.SetParam(idx, v) },
			})
		}
	}
	return slots
}

// insertLoad emits a load of lr's stack slot into a fresh temporary before instr, returning the
// temporary.
func insertLoad(fn *cfg.Function, instr *cfg.Instruction, sp *cfg.Variable, lr *cfg.LiveRange) *cfg.Variable {
	t := fn.CreateTemp(lr.Size())
	fresh := cfg.NewLiveRange(fn, lr.Size())
	fresh.AddMember(t)

	load := fn.NewInstruction(opcode.Load)
	load.SetDestination(t)
	load.SetAddrCalc1(sp)
	load.SetOffset(int64(lr.SpillOffset()))
	cfg.InsertBefore(instr, load)
	return t
}

// insertStore emits a store of d's value to lr's stack slot immediately after instr.
func insertStore(fn *cfg.Function, instr *cfg.Instruction, sp *cfg.Variable, lr *cfg.LiveRange, d *cfg.Variable) {
	store := fn.NewInstruction(opcode.Store)
	store.SetDestination(d)
	store.SetAddrCalc1(sp)
	store.SetOffset(int64(lr.SpillOffset()))
	cfg.InsertAfter(instr, store)
}
