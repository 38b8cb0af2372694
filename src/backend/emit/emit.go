// Package emit renders a fully allocated, postprocessed CFG as GAS-syntax AT&T assembly text. It is the
// final stage of the pipeline: everything it touches has already been through backend/regalloc and
// backend/postprocess, so every operand resolves to either a physical register or a frame-relative
// memory operand, and every function's block order is the chain backend/postprocess.Reorder installed.
package emit

import (
	"fmt"
	"math"

	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
	"ollie/src/util"
)

// ----------------------------
// ----- functions -----
// ----------------------------

// Program renders every function in c to w, preceded by the source file directive and every interned
// string/float constant's .rodata entry. Panics (a programmer-invariant violation, per the back-end's
// error-handling design) on any operand that didn't resolve to a register or stack slot, or on an
// unrecognised opcode.
func Program(c *cfg.CFG, w *util.Writer, sourceFile string) {
	w.Directive(".file %q", sourceFile)
	emitRodata(c, w)
	w.Directive(".text")
	for _, fn := range c.Functions {
		emitFunction(fn, w)
	}
}

// emitRodata prints every interned string and float constant as a named .rodata object. Strings get a
// byte-for-byte .string directive; floats get an 8-byte-aligned .quad carrying their IEEE-754 bit pattern,
// since GAS has no single-instruction way to load an immediate double directly into an XMM register.
func emitRodata(c *cfg.CFG, w *util.Writer) {
	strs := c.Strings()
	floats := c.Globals()
	if len(strs) == 0 && len(floats) == 0 {
		return
	}
	w.Directive(".section .rodata")
	for _, d := range strs {
		w.Label(d.Label)
		w.Directive(".string %q", d.SVal)
	}
	for _, d := range floats {
		w.Directive(".align 8")
		w.Label(d.Label)
		w.Directive(".quad %d", floatBits(d))
	}
}

func floatBits(d *cfg.DataObject) uint64 {
	if d.Kind == cfg.DataFloat32 {
		return uint64(math.Float32bits(float32(d.FVal)))
	}
	return math.Float64bits(d.FVal)
}

// emitFunction renders fn's label and its blocks in reorder-installed chain order, starting at fn's
// entry block. The entry block's leader is the function's own label; every subsequent block in the chain
// gets its own ".L<id>" label.
func emitFunction(fn *cfg.Function, w *util.Writer) {
	w.Directive(".globl %s", fn.Name())
	w.Directive(".type %s, @function", fn.Name())

	for b, first := fn.Entry(), true; b != nil; b, first = b.DirectSuccessor(), false {
		if first {
			w.Label(fn.Name())
		} else {
			w.Label(fmt.Sprintf(".L%d", b.Id()))
		}
		if b.Kind() == cfg.SwitchHead && b.JumpTable() != nil {
			emitJumpTable(w, b.JumpTable())
		}
		for i := b.Head(); i != nil; i = i.Next() {
			emitInstruction(w, i)
		}
	}
}

// emitJumpTable prints a switch block's dispatch table immediately ahead of the block it belongs to,
// GAS-section-switching out to .rodata at 8-byte alignment and back to .text, per the jump-table
// invariance rule: whatever block id each slot prints is whatever ReplaceTarget last rewrote it to.
func emitJumpTable(w *util.Writer, jt *cfg.JumpTable) {
	w.Directive(".section .rodata")
	w.Directive(".align 8")
	w.Label(jt.Label())
	for _, b := range jt.Slots() {
		w.Directive(".quad .L%d", b.Id())
	}
	w.Directive(".text")
}

// emitInstruction renders one Instruction as zero or more lines of AT&T assembly. Phi-functions never
// reach here: postprocess.Run's StripUselessMoves runs only after allocation resolves them away, and
// Function.Print(ModeRegister) already skips them for debug output, but a phi surviving to emission would
// be a programmer-invariant violation, so Phi panics like any other unrecognised case.
func emitInstruction(w *util.Writer, i *cfg.Instruction) {
	suf := i.Width().Suffix()

	switch i.Op() {
	case opcode.Mov:
		emitMov(w, i, suf)
	case opcode.Add, opcode.Sub, opcode.And, opcode.Or, opcode.Xor:
		emitTwoOperandArith(w, i, suf, i.Op().String())
	case opcode.Shl, opcode.Shr, opcode.Sar:
		emitShift(w, i, suf, i.Op().String())
	case opcode.IMul:
		emitTwoOperandArith(w, i, suf, "imul")
	case opcode.IDiv, opcode.Div, opcode.IDivMod, opcode.DivMod:
		emitDivide(w, i, suf)
	case opcode.Not, opcode.Neg:
		emitUnary(w, i, suf, i.Op().String())
	case opcode.Cmp:
		w.Ins2("cmp"+suf, operand(i.Source()), operand(i.Destination()))
	case opcode.Test:
		w.Ins2("test"+suf, operand(i.Source()), operand(i.Destination()))
	case opcode.SetCC:
		w.Ins1("set"+i.Cond().String(), operand8(i.Assignee()))
	case opcode.Jmp:
		w.Ins1("jmp", fmt.Sprintf(".L%d", i.IfBlock().Id()))
	case opcode.Jcc:
		w.Ins1("j"+i.Cond().String(), fmt.Sprintf(".L%d", i.IfBlock().Id()))
	case opcode.JmpTable:
		emitJumpTableDispatch(w, i)
	case opcode.Call:
		w.Ins1("call", calleeOf(i))
	case opcode.CallIndirect:
		w.Ins1("call", "*"+operand(i.Source()))
	case opcode.Ret:
		w.Ins0("ret")
	case opcode.Push:
		w.Ins1("push", operand(i.Destination()))
	case opcode.Pop:
		w.Ins1("pop", operand(i.Destination()))
	case opcode.Cltd:
		w.Ins0("cltd")
	case opcode.Cqto:
		w.Ins0("cqto")
	case opcode.Lea:
		w.Ins2("lea", leaSource(i), operand(i.Destination()))
	case opcode.StackAlloc:
		off, _ := i.Offset()
		w.Ins2imm("sub", off, "%rsp")
	case opcode.StackDealloc:
		off, _ := i.Offset()
		w.Ins2imm("add", off, "%rsp")
	case opcode.Load:
		w.Ins2("mov"+sizeSuffix(i.Destination()), memOperand(i), operand(i.Destination()))
	case opcode.Store:
		w.Ins2("mov"+sizeSuffix(i.Destination()), operand(i.Destination()), memOperand(i))
	default:
		panic(fmt.Sprintf("emit: unrecognised opcode %s", i.Op()))
	}
}

func emitMov(w *util.Writer, i *cfg.Instruction, suf string) {
	dst := operand(i.Destination())
	if v, ok := i.Imm(); ok {
		w.Ins2imm("mov"+suf, v, dst)
		return
	}
	src := operand(i.Source())
	if src == dst {
		return
	}
	w.Ins2("mov"+suf, src, dst)
}

// emitTwoOperandArith lowers the IR's three-address form (destination := source op source2) to x86's
// two-operand form: a leading mov establishes destination := source when allocation didn't already
// coalesce the two into the same register, then op source2, destination computes in place. This mirrors
// the interference-graph construction rule that a two-operand arithmetic destination is also read.
func emitTwoOperandArith(w *util.Writer, i *cfg.Instruction, suf, mnemonic string) {
	dst := operand(i.Destination())
	src := operand(i.Source())
	if src != dst {
		w.Ins2("mov"+suf, src, dst)
	}
	if v, ok := i.Imm(); ok {
		w.Ins2imm(mnemonic+suf, v, dst)
		return
	}
	w.Ins2(mnemonic+suf, operand(i.Source2()), dst)
}

// emitShift lowers a shift whose count isn't folded to an immediate through %cl, the only GP register
// x86 permits as a variable shift count.
func emitShift(w *util.Writer, i *cfg.Instruction, suf, mnemonic string) {
	dst := operand(i.Destination())
	src := operand(i.Source())
	if src != dst {
		w.Ins2("mov"+suf, src, dst)
	}
	if v, ok := i.Imm(); ok {
		w.Ins2imm(mnemonic+suf, v, dst)
		return
	}
	w.Ins2(mnemonic+suf, "%cl", dst)
}

func emitUnary(w *util.Writer, i *cfg.Instruction, suf, mnemonic string) {
	dst := operand(i.Destination())
	src := operand(i.Source())
	if src != dst {
		w.Ins2("mov"+suf, src, dst)
	}
	w.Ins1(mnemonic+suf, dst)
}

// emitDivide renders idiv/div's single-operand x86 form: the dividend is implicitly EDX:EAX (or
// RDX:RAX), pre-colored there by backend/regalloc's precolouring rules, and the quotient (IDiv/Div) or
// remainder (IDivMod/DivMod) lands in RAX/RDX by the same rule, so only the divisor needs printing.
func emitDivide(w *util.Writer, i *cfg.Instruction, suf string) {
	mnemonic := "div"
	if i.Op() == opcode.IDiv || i.Op() == opcode.IDivMod {
		mnemonic = "idiv"
	} else {
		// Unsigned division takes its high half from RDX with no sign-extension, so zero it.
		w.Ins2("xor", "%edx", "%edx")
	}
	w.Ins1(mnemonic+suf, operand(i.Source2()))
}

// emitJumpTableDispatch renders a switch head's bounds check and indirect dispatch: an unsigned compare
// against the table length (a selector value that doesn't fit is undefined behaviour in Ollie, so no
// explicit default branch is required) followed by an 8-byte-scaled indirect jump through the table.
func emitJumpTableDispatch(w *util.Writer, i *cfg.Instruction) {
	jt := i.JumpTable()
	sel := operand(i.Source())
	w.Ins2imm("cmp", int64(jt.Len()), sel)
	w.Ins1("jae", fmt.Sprintf(".JTOOB%d", jt.Id()))
	w.Ins1("jmp", fmt.Sprintf("*%s(,%s,8)", jt.Label(), sel))
	w.Label(fmt.Sprintf(".JTOOB%d", jt.Id()))
}

// sizeSuffix derives the AT&T width suffix from v's own size class, used for the spill-inserted Load/
// Store instructions that carry no explicit opcode.Width of their own.
func sizeSuffix(v *cfg.Variable) string {
	switch v.Size() {
	case opcode.SzByte:
		return "b"
	case opcode.SzWord:
		return "w"
	case opcode.SzDword, opcode.SzSSESingle:
		return "l"
	default:
		return "q"
	}
}

func leaSource(i *cfg.Instruction) string {
	if d := i.DataRef(); d != nil {
		return d.Label + "(%rip)"
	}
	return memOperand(i)
}

func memOperand(i *cfg.Instruction) string {
	off, _ := i.Offset()
	index := ""
	if i.AddrCalc2() != nil {
		index = regNameOf(i.AddrCalc2())
	}
	return util.Mem(int(off), regNameOf(i.AddrCalc1()), index, 8)
}

func calleeOf(i *cfg.Instruction) string {
	if a := i.Assignee(); a != nil {
		return a.Name()
	}
	return "?"
}

// operand renders v's resolved location: a physical register (e.g. "%rax") or a frame-relative memory
// operand (e.g. "24(%rsp)") if v's live range was spilled. Panics if v's live range never resolved to
// either, a programmer-invariant violation this late in the pipeline.
func operand(v *cfg.Variable) string {
	if v == nil {
		panic("emit: nil operand")
	}
	if v.IsStackPointer() {
		return "%rsp"
	}
	lr := v.LiveRange()
	if lr == nil {
		panic(fmt.Sprintf("emit: variable %s has no associated live range", v.Name()))
	}
	if lr.Spilled() {
		return util.Mem(lr.SpillOffset(), "rsp", "", 1)
	}
	r := lr.Register()
	if r == nil {
		panic(fmt.Sprintf("emit: live range %s resolved to neither a register nor a stack slot", lr))
	}
	return "%" + r.Name()
}

// operand8 renders v truncated to its 8-bit sub-register name, for set-cc's single-byte destination.
func operand8(v *cfg.Variable) string {
	full := operand(v)
	if len(full) == 0 || full[0] != '%' {
		return full
	}
	return "%" + byteSubRegister(full[1:])
}

func regNameOf(v *cfg.Variable) string {
	if v == nil {
		return ""
	}
	full := operand(v)
	if len(full) > 0 && full[0] == '%' {
		return full[1:]
	}
	return full
}

// byteSubRegister maps a 64-bit GP register name to its 8-bit sub-register name.
func byteSubRegister(name string) string {
	switch name {
	case "rax":
		return "al"
	case "rbx":
		return "bl"
	case "rcx":
		return "cl"
	case "rdx":
		return "dl"
	case "rsi":
		return "sil"
	case "rdi":
		return "dil"
	case "rbp":
		return "bpl"
	case "rsp":
		return "spl"
	case "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15":
		return name + "b"
	default:
		return name
	}
}
