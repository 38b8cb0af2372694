package x86

import (
	"testing"

	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

func precoloredVar(fn *cfg.Function, r *Register) *cfg.Variable {
	v := fn.CreateTemp(opcode.SzQword)
	lr := cfg.NewLiveRange(fn, opcode.SzQword)
	lr.Precolor(r)
	lr.AddMember(v)
	return v
}

func TestSynthesizePrologueEpiloguePushesOnlyUsedCalleeSaved(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)

	rbxUse := precoloredVar(fn, GP[1]) // rbx, callee-saved
	mov := fn.NewInstruction(opcode.Mov)
	mov.SetDestination(rbxUse)
	mov.SetSource(rbxUse)
	mov.SetWidth(opcode.Quad)
	entry.AppendInstruction(mov)

	ret := fn.NewInstruction(opcode.Ret)
	entry.AppendInstruction(ret)

	SynthesizePrologueEpilogue(fn)

	var pushes, pops int
	for i := entry.Head(); i != nil; i = i.Next() {
		if i.Op() == opcode.Push {
			pushes++
		}
		if i.Op() == opcode.Pop {
			pops++
		}
	}
	if pushes != 1 {
		t.Errorf("pushes = %d, want 1 (only rbx is both callee-saved and used)", pushes)
	}
	if pops != 1 {
		t.Errorf("pops = %d, want 1", pops)
	}
	if entry.Head().Op() != opcode.Push {
		t.Errorf("entry.Head().Op() = %v, want Push (leading)", entry.Head().Op())
	}
	if entry.Tail().Op() != opcode.Ret {
		t.Error("Ret must remain the block's terminator, with the matching Pop placed just before it")
	}
}

func TestSynthesizePrologueEpilogueSkipsRSPAndCallerSaved(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)

	_ = precoloredVar(fn, GP[0]) // rax, caller-saved
	ret := fn.NewInstruction(opcode.Ret)
	entry.AppendInstruction(ret)

	SynthesizePrologueEpilogue(fn)

	for i := entry.Head(); i != nil; i = i.Next() {
		if i.Op() == opcode.Push || i.Op() == opcode.Pop {
			t.Error("no push/pop expected: only a caller-saved register is used")
		}
	}
}

func TestAlignedFrameSizeRoundsUpTo16(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	fn.CreateBlock(cfg.FunctionEntry)

	lr := cfg.NewLiveRange(fn, opcode.SzQword) // 8 bytes
	lr.MarkSpilled(0)
	fn.SetFrameSize(8) // The spill pass's running total after one qword slot.

	got := alignedFrameSize(fn)
	if got != 16 {
		t.Errorf("alignedFrameSize = %d, want 16 (8 bytes rounded up)", got)
	}
}

func TestInjectCallerSaveWrapsCallWithLiveCallerSavedRegister(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)
	exit := fn.CreateBlock(cfg.FunctionExit)

	live := precoloredVar(fn, GP[4]) // rsi, caller-saved, precolored directly rather than via allocation

	call := fn.NewInstruction(opcode.Call)
	callDst := precoloredVar(fn, RAX)
	call.SetDestination(callDst)
	entry.AppendInstruction(call)
	// Force the call's result range to interfere with the still-live rsi value, mimicking what
	// BuildInterferenceGraph would have established had this gone through full allocation.
	callDst.LiveRange().AddNeighbour(live.LiveRange())
	live.LiveRange().AddNeighbour(callDst.LiveRange())

	ret := fn.NewInstruction(opcode.Ret)
	ret.SetDestination(callDst)
	entry.AppendInstruction(ret)
	cfg.Link(entry, exit)

	InjectCallerSave(fn)

	var sawPushBeforeCall, sawPopAfterCall bool
	for i := entry.Head(); i != nil; i = i.Next() {
		if i.Op() == opcode.Push && i.Next() != nil && i.Next().Op() == opcode.Call {
			sawPushBeforeCall = true
		}
		if i.Op() == opcode.Call && i.Next() != nil && i.Next().Op() == opcode.Pop {
			sawPopAfterCall = true
		}
	}
	if !sawPushBeforeCall {
		t.Error("expected a push of the live caller-saved register immediately before the call")
	}
	if !sawPopAfterCall {
		t.Error("expected a pop restoring it immediately after the call")
	}
}
