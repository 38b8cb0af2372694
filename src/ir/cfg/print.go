package cfg

import (
	"fmt"
	"strings"

	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// PrintMode selects which operand identity an Instruction renders under (three debug-print
// modes): the pre-allocation virtual variable, its live range, or its assigned physical register.
type PrintMode uint8

const (
	ModeVariable PrintMode = iota
	ModeLiveRange
	ModeRegister
)

// ---------------------
// ----- functions -----
// ---------------------

// Print renders Function fn's full instruction listing under the given mode, one line per instruction
// grouped by block label. In ModeRegister, phi-functions are suppressed: they carry no meaning once SSA
// form has been resolved into register or stack assignments.
func (fn *Function) Print(mode PrintMode) string {
	var sb strings.Builder
	for _, b := range fn.blocks {
		fmt.Fprintf(&sb, ".L%d: ; %s\n", b.id, b.kind)
		for i := b.head; i != nil; i = i.next {
			if mode == ModeRegister && i.op == opcode.Phi {
				continue
			}
			sb.WriteString("\t")
			sb.WriteString(i.render(mode))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// operandString renders v under the given PrintMode: its name, its live range, or its assigned register.
func operandString(v *Variable, mode PrintMode) string {
	if v == nil {
		return "<nil>"
	}
	switch mode {
	case ModeLiveRange:
		if lr := v.LiveRange(); lr != nil {
			return lr.String()
		}
		return v.Name()
	case ModeRegister:
		if lr := v.LiveRange(); lr != nil {
			if lr.Spilled() {
				return fmt.Sprintf("[rsp+%d]", lr.SpillOffset())
			}
			if r := lr.Register(); r != nil {
				return "%" + r.Name()
			}
		}
		return v.Name()
	default:
		return v.Name()
	}
}

// render formats Instruction i as a single line of assembly-like text, e.g. "t3 = add t1, t2" or
// "%rax = addq %rbx, %rcx" depending on mode.
func (i *Instruction) render(mode PrintMode) string {
	var sb strings.Builder
	mnemonic := i.op.String()
	if i.width != 0 && (mode == ModeRegister) {
		mnemonic += i.width.Suffix()
	}

	switch i.op {
	case opcode.Phi:
		fmt.Fprintf(&sb, "%s = phi(", operandString(i.assignee, mode))
		for idx, arg := range i.phiArgs {
			if idx > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[.L%d: %s]", arg.From.id, operandString(arg.Val, mode))
		}
		sb.WriteString(")")
	case opcode.Jmp:
		fmt.Fprintf(&sb, "jmp .L%d", i.ifBlock.id)
	case opcode.Jcc:
		fmt.Fprintf(&sb, "j%s .L%d", strings.ToLower(i.cond.String()), i.ifBlock.id)
	case opcode.Ret:
		sb.WriteString("ret")
	case opcode.Cltd:
		sb.WriteString("cltd")
	case opcode.Cqto:
		sb.WriteString("cqto")
	case opcode.Call, opcode.CallIndirect:
		if i.destination != nil {
			fmt.Fprintf(&sb, "%s = ", operandString(i.destination, mode))
		}
		callee := "*" + operandString(i.source, mode)
		if i.op == opcode.Call && i.assignee != nil {
			callee = i.assignee.Name()
		}
		fmt.Fprintf(&sb, "call %s(", callee)
		for idx, p := range i.params {
			if idx > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(operandString(p, mode))
		}
		sb.WriteString(")")
	case opcode.JmpTable:
		fmt.Fprintf(&sb, "jmptable %s, %s", operandString(i.source, mode), i.table.Label())
	case opcode.SetCC:
		fmt.Fprintf(&sb, "%s = set%s", operandString(i.assignee, mode), strings.ToLower(i.cond.String()))
	case opcode.Cmp, opcode.Test:
		fmt.Fprintf(&sb, "%s %s, %s", mnemonic, operandString(i.destination, mode), operandString(i.source, mode))
	case opcode.Push:
		fmt.Fprintf(&sb, "push %s", operandString(i.destination, mode))
	case opcode.Pop:
		fmt.Fprintf(&sb, "%s = pop", operandString(i.destination, mode))
	case opcode.StackAlloc:
		fmt.Fprintf(&sb, "sub $%d, %%rsp", i.offset)
	case opcode.StackDealloc:
		fmt.Fprintf(&sb, "add $%d, %%rsp", i.offset)
	case opcode.Not, opcode.Neg:
		fmt.Fprintf(&sb, "%s = %s %s", operandString(i.destination, mode), mnemonic, operandString(i.source, mode))
	case opcode.Load:
		fmt.Fprintf(&sb, "%s = load %s", operandString(i.destination, mode), i.memString(mode))
	case opcode.Store:
		fmt.Fprintf(&sb, "store %s, %s", operandString(i.destination, mode), i.memString(mode))
	case opcode.Lea:
		if i.data != nil {
			fmt.Fprintf(&sb, "%s = lea %s(%%rip)", operandString(i.destination, mode), i.data.Label)
		} else {
			fmt.Fprintf(&sb, "%s = lea %s", operandString(i.destination, mode), i.memString(mode))
		}
	default:
		if v, ok := i.Imm(); ok && i.source == nil {
			fmt.Fprintf(&sb, "%s = %s $%d", operandString(i.destination, mode), mnemonic, v)
		} else if i.source2 != nil {
			fmt.Fprintf(&sb, "%s = %s %s, %s", operandString(i.destination, mode), mnemonic, operandString(i.source, mode), operandString(i.source2, mode))
		} else {
			fmt.Fprintf(&sb, "%s = %s %s", operandString(i.destination, mode), mnemonic, operandString(i.source, mode))
		}
	}
	return sb.String()
}

// memString renders the memory operand of a Load/Store/Lea instruction as "off(base,index)".
func (i *Instruction) memString(mode PrintMode) string {
	var sb strings.Builder
	if off, ok := i.Offset(); ok {
		fmt.Fprintf(&sb, "%d", off)
	}
	sb.WriteString("(")
	sb.WriteString(operandString(i.addrCalc1, mode))
	if i.addrCalc2 != nil {
		sb.WriteString(",")
		sb.WriteString(operandString(i.addrCalc2, mode))
	}
	sb.WriteString(")")
	return sb.String()
}
