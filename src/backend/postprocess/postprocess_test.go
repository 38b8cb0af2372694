package postprocess

import (
	"testing"

	"ollie/src/backend/x86"
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

func precoloredTemp(fn *cfg.Function, r *x86.Register, size opcode.Size) *cfg.Variable {
	v := fn.CreateTemp(size)
	lr := cfg.NewLiveRange(fn, size)
	lr.Precolor(r)
	lr.AddMember(v)
	return v
}

func TestStripUselessMovesDeletesSameRegisterCopy(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)

	src := precoloredTemp(fn, x86.RAX, opcode.SzQword)
	dst := precoloredTemp(fn, x86.RAX, opcode.SzQword)

	mov := fn.NewInstruction(opcode.Mov)
	mov.SetSource(src)
	mov.SetDestination(dst)
	mov.SetWidth(opcode.Quad)
	entry.AppendInstruction(mov)

	StripUselessMoves(fn)

	if entry.Head() != nil {
		t.Error("mov between same-register live ranges must be deleted")
	}
}

func TestStripUselessMovesKeepsDifferentRegisterCopy(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)

	src := precoloredTemp(fn, x86.RAX, opcode.SzQword)
	dst := precoloredTemp(fn, x86.GP[1], opcode.SzQword) // rbx

	mov := fn.NewInstruction(opcode.Mov)
	mov.SetSource(src)
	mov.SetDestination(dst)
	mov.SetWidth(opcode.Quad)
	entry.AppendInstruction(mov)

	StripUselessMoves(fn)

	if entry.Head() == nil {
		t.Error("mov between distinct-register live ranges must survive")
	}
}

func TestCleanSplicesEmptyJumpOnlyBlock(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)
	emptyBlk := fn.CreateBlock(cfg.Normal)
	target := fn.CreateBlock(cfg.FunctionExit)

	j1 := fn.NewInstruction(opcode.Jmp)
	j1.SetIfBlock(emptyBlk)
	entry.AppendInstruction(j1)
	cfg.Link(entry, emptyBlk)

	j2 := fn.NewInstruction(opcode.Jmp)
	j2.SetIfBlock(target)
	emptyBlk.AppendInstruction(j2)
	cfg.Link(emptyBlk, target)

	ret := fn.NewInstruction(opcode.Ret)
	target.AppendInstruction(ret)

	Clean(fn)

	for _, b := range fn.Blocks() {
		if b == emptyBlk {
			t.Error("empty jump-only block must be spliced out by Clean")
		}
	}
	if j1.IfBlock() != target {
		t.Errorf("entry's jump must be retargeted straight to target, got %v", j1.IfBlock())
	}
}

func TestCleanMergesSinglePredecessorUnconditionalChain(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)
	second := fn.CreateBlock(cfg.FunctionExit)

	mov := fn.NewInstruction(opcode.Mov)
	mov.SetWidth(opcode.Quad)
	entry.AppendInstruction(mov)

	j := fn.NewInstruction(opcode.Jmp)
	j.SetIfBlock(second)
	entry.AppendInstruction(j)
	cfg.Link(entry, second)

	ret := fn.NewInstruction(opcode.Ret)
	second.AppendInstruction(ret)

	Clean(fn)

	if len(fn.Blocks()) != 1 {
		t.Fatalf("len(fn.Blocks()) = %d, want 1 (entry absorbed second)", len(fn.Blocks()))
	}
	if fn.Blocks()[0].Tail() != ret {
		t.Error("merged block's tail should be the absorbed block's Ret")
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)
	exit := fn.CreateBlock(cfg.FunctionExit)
	ret := fn.NewInstruction(opcode.Ret)
	entry.AppendInstruction(ret)
	cfg.Link(entry, exit)

	Clean(fn)
	firstPassBlocks := len(fn.Blocks())
	Clean(fn)
	if len(fn.Blocks()) != firstPassBlocks {
		t.Error("running Clean a second time over an already-clean function must not change block count")
	}
}

func TestReorderChainsBlocksAndDropsRedundantJump(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)
	second := fn.CreateBlock(cfg.Normal)
	exit := fn.CreateBlock(cfg.FunctionExit)

	j1 := fn.NewInstruction(opcode.Jmp)
	j1.SetIfBlock(second)
	entry.AppendInstruction(j1)
	cfg.Link(entry, second)

	j2 := fn.NewInstruction(opcode.Jmp)
	j2.SetIfBlock(exit)
	second.AppendInstruction(j2)
	cfg.Link(second, exit)

	ret := fn.NewInstruction(opcode.Ret)
	exit.AppendInstruction(ret)

	Reorder(fn)

	if entry.DirectSuccessor() != second {
		t.Errorf("entry.DirectSuccessor() = %v, want second", entry.DirectSuccessor())
	}
	if second.DirectSuccessor() != exit {
		t.Errorf("second.DirectSuccessor() = %v, want exit", second.DirectSuccessor())
	}
	if entry.Tail() != nil {
		t.Error("entry's jump to its installed direct successor must be deleted as redundant")
	}
	if second.Tail() != nil {
		t.Error("second's jump to its installed direct successor must be deleted as redundant")
	}
	if fn.CFG().Head != entry {
		t.Errorf("fn.CFG().Head = %v, want entry", fn.CFG().Head)
	}
}

func TestReorderRespectsJumpTableSlotsAsSuccessors(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)
	head := fn.CreateBlock(cfg.SwitchHead)
	case0 := fn.CreateBlock(cfg.Normal)
	case1 := fn.CreateBlock(cfg.Normal)
	exit := fn.CreateBlock(cfg.FunctionExit)

	j := fn.NewInstruction(opcode.Jmp)
	j.SetIfBlock(head)
	entry.AppendInstruction(j)
	cfg.Link(entry, head)

	jt := c.NewJumpTable(2)
	jt.Set(0, case0)
	jt.Set(1, case1)
	head.SetJumpTable(jt)
	sel := fn.CreateTemp(opcode.SzQword)
	dispatch := fn.NewInstruction(opcode.JmpTable)
	dispatch.SetSource(sel)
	dispatch.SetTable(jt)
	head.AppendInstruction(dispatch)
	cfg.Link(head, case0)
	cfg.Link(head, case1)

	for _, caseBlk := range []*cfg.Block{case0, case1} {
		je := fn.NewInstruction(opcode.Jmp)
		je.SetIfBlock(exit)
		caseBlk.AppendInstruction(je)
		cfg.Link(caseBlk, exit)
	}

	ret := fn.NewInstruction(opcode.Ret)
	exit.AppendInstruction(ret)

	Reorder(fn)

	visited := map[*cfg.Block]bool{}
	for b := fn.Entry(); b != nil; b = b.DirectSuccessor() {
		if visited[b] {
			t.Fatalf("direct-successor chain revisited block %v: not a simple chain", b)
		}
		visited[b] = true
	}
	if len(visited) != len(fn.Blocks()) {
		t.Errorf("direct-successor chain covers %d blocks, want %d", len(visited), len(fn.Blocks()))
	}
}
