package x86

import (
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- functions -----
// ----------------------------

// SynthesizePrologueEpilogue runs after allocation succeeds for fn. It computes the
// callee-saved registers fn's body actually assigns, pushes them at entry in a deterministic order,
// allocates the aligned local stack area, and emits the mirrored pops/deallocation before every RET.
func SynthesizePrologueEpilogue(fn *cfg.Function) {
	used := usedCalleeSaved(fn)
	fn.SetUsedCalleeSaved(regSlice(used))

	frame := alignedFrameSize(fn)
	fn.SetFrameSize(frame)

	entry := fn.Entry()
	first := entry.Head()
	for _, r := range used {
		push := fn.NewInstruction(opcode.Push)
		push.SetDestination(pushPopTemp(fn, r))
		insertLeading(entry, first, push)
	}
	if frame > 0 {
		alloc := fn.NewInstruction(opcode.StackAlloc)
		alloc.SetOffset(int64(frame))
		insertLeading(entry, first, alloc)
	}

	for _, b := range fn.Blocks() {
		tail := b.Tail()
		if tail == nil || tail.Op() != opcode.Ret {
			continue
		}
		if frame > 0 {
			dealloc := fn.NewInstruction(opcode.StackDealloc)
			dealloc.SetOffset(int64(frame))
			cfg.InsertBefore(tail, dealloc)
		}
		for i := len(used) - 1; i >= 0; i-- {
			pop := fn.NewInstruction(opcode.Pop)
			pop.SetDestination(pushPopTemp(fn, used[i]))
			cfg.InsertBefore(tail, pop)
		}
	}
}

// InjectCallerSave wraps every CALL instruction in fn with push/pop pairs for caller-saved registers that
// are both live across the call and clobbered by it.
func InjectCallerSave(fn *cfg.Function) {
	for _, b := range fn.Blocks() {
		for i := b.Head(); i != nil; i = i.Next() {
			if i.Op() != opcode.Call && i.Op() != opcode.CallIndirect {
				continue
			}
			live := liveAcrossCall(i)
			var toSave []*Register
			for _, lr := range live {
				r, ok := lr.Register().(*Register)
				if !ok || r == nil || r.calleeSaved {
					continue
				}
				toSave = append(toSave, r)
			}
			for _, r := range toSave {
				push := fn.NewInstruction(opcode.Push)
				push.SetDestination(pushPopTemp(fn, r))
				cfg.InsertBefore(i, push)
			}
			// Each pop is inserted immediately after the call, so walking toSave forwards leaves the
			// pops in reverse push order.
			for _, r := range toSave {
				pop := fn.NewInstruction(opcode.Pop)
				pop.SetDestination(pushPopTemp(fn, r))
				cfg.InsertAfter(i, pop)
			}
		}
	}
}

// liveAcrossCall returns the live ranges interfering with the call instruction's own result range: under
// interference construction, everything still in livenow when a CALL writes RAX interferes
// with it, which is exactly the set live across the call.
func liveAcrossCall(call *cfg.Instruction) []*cfg.LiveRange {
	d := call.Destination()
	if d == nil || d.LiveRange() == nil {
		return nil
	}
	return d.LiveRange().Neighbours()
}

func usedCalleeSaved(fn *cfg.Function) []*Register {
	seen := make(map[*Register]bool)
	var out []*Register
	for _, lr := range fn.LiveRanges() {
		r, ok := lr.Register().(*Register)
		if !ok || r == nil || !r.calleeSaved || r == RSP {
			continue
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func regSlice(regs []*Register) []cfg.Register {
	out := make([]cfg.Register, len(regs))
	for i, r := range regs {
		out[i] = r
	}
	return out
}

// alignedFrameSize rounds fn's accumulated spill-slot area up to 16 bytes per System V. The running
// total is kept on the function by the spill pass, which already packs each slot at its natural
// alignment.
func alignedFrameSize(fn *cfg.Function) int {
	return (fn.FrameSize() + 15) &^ 15
}

// pushPopTemp mints a throwaway precoloured variable for a push/pop's single operand slot, so the
// emitter can resolve it through the usual register-mode printing path without a special case.
func pushPopTemp(fn *cfg.Function, r *Register) *cfg.Variable {
	t := fn.CreateTemp(opcode.SzQword)
	lr := cfg.NewLiveRange(fn, opcode.SzQword)
	lr.Precolor(r)
	lr.AddMember(t)
	return t
}

func insertLeading(b *cfg.Block, before *cfg.Instruction, instr *cfg.Instruction) {
	if before == nil {
		b.AppendInstruction(instr)
		return
	}
	cfg.InsertBefore(before, instr)
}
