package emit

import (
	"os"
	"strings"
	"sync"
	"testing"

	"ollie/src/backend/x86"
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
	"ollie/src/util"
)

// renderToString starts the package-level write listener over a temp file, runs fn against a fresh
// util.Writer, flushes and closes it, then reads back everything the listener wrote.
func renderToString(t *testing.T, fn func(w *util.Writer)) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "emit-test-*.s")
	if err != nil {
		t.Fatalf("os.CreateTemp: %v", err)
	}
	defer f.Close()

	var wg sync.WaitGroup
	util.ListenWrite(util.Options{}, f, &wg)
	w := util.NewWriter()
	fn(&w)
	w.Close()
	wg.Wait()
	util.Close()

	b, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("os.ReadFile: %v", err)
	}
	return string(b)
}

func precolored(fn *cfg.Function, r *x86.Register, size opcode.Size) *cfg.Variable {
	v := fn.CreateTemp(size)
	lr := cfg.NewLiveRange(fn, size)
	lr.Precolor(r)
	lr.AddMember(v)
	return v
}

func TestEmitMovSkipsSameRegisterCopy(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	src := precolored(fn, x86.RAX, opcode.SzQword)
	dst := precolored(fn, x86.RAX, opcode.SzQword)

	mov := fn.NewInstruction(opcode.Mov)
	mov.SetSource(src)
	mov.SetDestination(dst)
	mov.SetWidth(opcode.Quad)

	out := renderToString(t, func(w *util.Writer) { emitInstruction(w, mov) })
	if strings.Contains(out, "mov") {
		t.Errorf("expected no mov emitted for a same-register copy, got %q", out)
	}
}

func TestEmitMovRendersDistinctRegisters(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	src := precolored(fn, x86.RAX, opcode.SzQword)
	dst := precolored(fn, x86.GP[1], opcode.SzQword)

	mov := fn.NewInstruction(opcode.Mov)
	mov.SetSource(src)
	mov.SetDestination(dst)
	mov.SetWidth(opcode.Quad)

	out := renderToString(t, func(w *util.Writer) { emitInstruction(w, mov) })
	if !strings.Contains(out, "movq\t%rax, %rbx") {
		t.Errorf("got %q, want a line containing \"movq\\t%%rax, %%rbx\"", out)
	}
}

func TestEmitTwoOperandArithInsertsLeadingMovWhenNotCoalesced(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	a := precolored(fn, x86.GP[4], opcode.SzQword)
	b := precolored(fn, x86.GP[5], opcode.SzQword)
	dst := precolored(fn, x86.RAX, opcode.SzQword)

	add := fn.NewInstruction(opcode.Add)
	add.SetSource(a)
	add.SetSource2(b)
	add.SetDestination(dst)
	add.SetWidth(opcode.Quad)

	out := renderToString(t, func(w *util.Writer) { emitInstruction(w, add) })
	if !strings.Contains(out, "movq\t%rsi, %rax") {
		t.Errorf("expected a leading mov establishing destination := source, got %q", out)
	}
	if !strings.Contains(out, "addq\t%rdi, %rax") {
		t.Errorf("expected the in-place add, got %q", out)
	}
}

func TestEmitCmpAndJccOrderIsSourceThenDestination(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	a := precolored(fn, x86.GP[4], opcode.SzQword)
	b := precolored(fn, x86.GP[5], opcode.SzQword)

	cmp := fn.NewInstruction(opcode.Cmp)
	cmp.SetSource(a)
	cmp.SetDestination(b)
	cmp.SetWidth(opcode.Quad)

	entry := fn.CreateBlock(cfg.FunctionEntry)
	target := fn.CreateBlock(cfg.FunctionExit)
	jcc := fn.NewInstruction(opcode.Jcc)
	jcc.SetCond(opcode.NotEqual)
	jcc.SetIfBlock(target)

	out := renderToString(t, func(w *util.Writer) {
		emitInstruction(w, cmp)
		emitInstruction(w, jcc)
	})
	if !strings.Contains(out, "cmpq\t%rsi, %rdi") {
		t.Errorf("got %q, want cmpq source,destination in AT&T order", out)
	}
	if !strings.Contains(out, "jne\t.L") {
		t.Errorf("got %q, want a jne to the target block's label", out)
	}
	_ = entry
}

func TestEmitJumpTableDispatchBoundsChecksBeforeIndirectJump(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	case0 := fn.CreateBlock(cfg.Normal)
	case1 := fn.CreateBlock(cfg.Normal)
	jt := c.NewJumpTable(2)
	jt.Set(0, case0)
	jt.Set(1, case1)

	sel := precolored(fn, x86.GP[4], opcode.SzQword)
	dispatch := fn.NewInstruction(opcode.JmpTable)
	dispatch.SetSource(sel)
	dispatch.SetTable(jt)

	out := renderToString(t, func(w *util.Writer) { emitInstruction(w, dispatch) })
	if !strings.Contains(out, "cmp\t$2, %rsi") {
		t.Errorf("got %q, want an unsigned bounds check against the table length", out)
	}
	if !strings.Contains(out, "jae\t.JTOOB") {
		t.Errorf("got %q, want an out-of-bounds branch", out)
	}
	if !strings.Contains(out, "jmp\t*"+jt.Label()+"(,%rsi,8)") {
		t.Errorf("got %q, want an 8-byte-scaled indirect jump through the table", out)
	}
}

func TestEmitRodataRendersStringsAndFloats(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	c.CreateStringConstant("hello")
	c.CreateFloatConstant(3.5, true)

	out := renderToString(t, func(w *util.Writer) { emitRodata(c, w) })
	if !strings.Contains(out, ".section .rodata") {
		t.Errorf("got %q, want a .rodata section directive", out)
	}
	if !strings.Contains(out, `.string "hello"`) {
		t.Errorf("got %q, want the interned string literal", out)
	}
	if !strings.Contains(out, ".quad") {
		t.Errorf("got %q, want the float constant's bit-pattern quad", out)
	}
}

func TestEmitProgramWalksFunctionsInReorderedOrder(t *testing.T) {
	c := cfg.NewCFG(nil, nil)
	fn := c.CreateFunction("f")
	entry := fn.CreateBlock(cfg.FunctionEntry)
	ret := fn.NewInstruction(opcode.Ret)
	entry.AppendInstruction(ret)

	out := renderToString(t, func(w *util.Writer) { Program(c, w, "f.ol") })
	if !strings.Contains(out, `.file "f.ol"`) {
		t.Errorf("got %q, want a .file directive naming the source", out)
	}
	if !strings.Contains(out, ".globl f") {
		t.Errorf("got %q, want a .globl directive for function f", out)
	}
	if !strings.Contains(out, "f:\n") {
		t.Errorf("got %q, want the function's entry label", out)
	}
	if !strings.Contains(out, "\tret\n") {
		t.Errorf("got %q, want the ret instruction rendered", out)
	}
}
