package cfg

import (
	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// PhiArg binds one incoming value of a phi-function to the predecessor block it arrives from.
type PhiArg struct {
	From *Block
	Val  *Variable
}

// Instruction is a single machine-level or synthetic three-address operation, doubly linked within its
// owning block. Not every operand slot is meaningful for every Op; the
// instruction selector (out of core scope) is responsible for only populating the slots its opcode uses.
type Instruction struct {
	id int
	op opcode.Op

	width opcode.Width // Operand width, for Mov/arithmetic/Div-family opcodes.
	cond  opcode.Cond  // Relational operator, for Jcc/SetCC.

	assignee    *Variable // Phi/compare sink.
	destination *Variable
	source      *Variable
	source2     *Variable
	addrCalc1   *Variable // address_calc_reg slot 1 (base register of a memory operand).
	addrCalc2   *Variable // address_calc_reg slot 2 (index register of a memory operand).

	hasOffset bool
	offset    int64 // Optional immediate displacement.
	hasImm    bool
	imm       int64 // Optional immediate operand (folded scalar constant).

	params []*Variable // Constant table for call parameters, in argument order.

	ifBlock *Block      // Branch target, for Jmp/Jcc.
	table   *JumpTable  // Indirect-jump dispatch table, for a switch head's terminator (opcode.JmpTable).
	data    *DataObject // Module-level data object a Lea addresses RIP-relative, for string/float literals.

	phiArgs []PhiArg // Incoming values, for Op == Phi.

	block *Block // block_contained_in back-pointer.
	prev  *Instruction
	next  *Instruction
}

// ---------------------
// ----- functions -----
// ---------------------

// Id returns the unique, function-local identifier of Instruction i.
func (i *Instruction) Id() int { return i.id }

// Op returns the opcode of Instruction i.
func (i *Instruction) Op() opcode.Op { return i.op }

// Width returns the operand width of Instruction i.
func (i *Instruction) Width() opcode.Width { return i.width }

// Cond returns the relational operator of a Jcc/SetCC Instruction i.
func (i *Instruction) Cond() opcode.Cond { return i.cond }

// Assignee returns the phi/compare sink operand of Instruction i.
func (i *Instruction) Assignee() *Variable { return i.assignee }

// Destination returns the destination-register operand of Instruction i.
func (i *Instruction) Destination() *Variable { return i.destination }

// SetDestination sets the destination-register operand of Instruction i. Used by passes that synthesise
// instructions directly (prologue/epilogue, spill insertion, instruction selection).
func (i *Instruction) SetDestination(v *Variable) { i.destination = v }

// SetSource sets the first source-register operand of Instruction i.
func (i *Instruction) SetSource(v *Variable) { i.source = v }

// SetSource2 sets the second source-register operand of Instruction i.
func (i *Instruction) SetSource2(v *Variable) { i.source2 = v }

// SetAssignee sets the phi/compare sink operand of Instruction i.
func (i *Instruction) SetAssignee(v *Variable) { i.assignee = v }

// SetAddrCalc1 sets the first address-calculation register operand of Instruction i.
func (i *Instruction) SetAddrCalc1(v *Variable) { i.addrCalc1 = v }

// SetAddrCalc2 sets the second address-calculation register operand of Instruction i.
func (i *Instruction) SetAddrCalc2(v *Variable) { i.addrCalc2 = v }

// SetWidth sets the operand width of Instruction i.
func (i *Instruction) SetWidth(w opcode.Width) { i.width = w }

// SetCond sets the relational operator of a Jcc/SetCC Instruction i.
func (i *Instruction) SetCond(c opcode.Cond) { i.cond = c }

// SetIfBlock sets the branch target of Instruction i.
func (i *Instruction) SetIfBlock(b *Block) { i.ifBlock = b }

// SetTable attaches the indirect-dispatch jump table to a JmpTable Instruction i.
func (i *Instruction) SetTable(jt *JumpTable) { i.table = jt }

// SetParams sets the call-parameter constant table of Instruction i.
func (i *Instruction) SetParams(params []*Variable) { i.params = params }

// SetParam rewrites call-parameter slot idx of Instruction i. Used by the spill pass to substitute a
// loaded copy for a spilled argument.
func (i *Instruction) SetParam(idx int, v *Variable) { i.params[idx] = v }

// Source returns the first source-register operand of Instruction i.
func (i *Instruction) Source() *Variable { return i.source }

// Source2 returns the second source-register operand of Instruction i.
func (i *Instruction) Source2() *Variable { return i.source2 }

// AddrCalc1 returns the first address-calculation register operand of Instruction i.
func (i *Instruction) AddrCalc1() *Variable { return i.addrCalc1 }

// AddrCalc2 returns the second address-calculation register operand of Instruction i.
func (i *Instruction) AddrCalc2() *Variable { return i.addrCalc2 }

// Offset returns the immediate displacement of Instruction i, and whether one is set.
func (i *Instruction) Offset() (int64, bool) { return i.offset, i.hasOffset }

// SetOffset sets the immediate displacement of Instruction i.
func (i *Instruction) SetOffset(off int64) { i.offset = off; i.hasOffset = true }

// Imm returns the folded scalar immediate operand of Instruction i, and whether one is set.
func (i *Instruction) Imm() (int64, bool) { return i.imm, i.hasImm }

// SetImm sets the folded scalar immediate operand of Instruction i.
func (i *Instruction) SetImm(v int64) { i.imm = v; i.hasImm = true }

// Params returns the call-parameter constant table of Instruction i, in argument order.
func (i *Instruction) Params() []*Variable { return i.params }

// IfBlock returns the branch target of Instruction i.
func (i *Instruction) IfBlock() *Block { return i.ifBlock }

// JumpTable returns the indirect-dispatch jump table attached to Instruction i, if any.
func (i *Instruction) JumpTable() *JumpTable { return i.table }

// DataRef returns the module-level data object a Lea instruction addresses RIP-relative, or nil.
func (i *Instruction) DataRef() *DataObject { return i.data }

// SetDataRef attaches the module-level data object a Lea instruction addresses RIP-relative.
func (i *Instruction) SetDataRef(d *DataObject) { i.data = d }

// PhiArgs returns the incoming value list of a phi Instruction i.
func (i *Instruction) PhiArgs() []PhiArg { return i.phiArgs }

// Block returns the block that owns Instruction i (the block_contained_in back-pointer).
func (i *Instruction) Block() *Block { return i.block }

// Prev returns the instruction preceding i in its block's instruction list, or nil if i is the leader.
func (i *Instruction) Prev() *Instruction { return i.prev }

// Next returns the instruction following i in its block's instruction list, or nil if i is the exit.
func (i *Instruction) Next() *Instruction { return i.next }

// Defines reports whether Instruction i writes a new virtual register value (as opposed to only
// consuming operands, like Cmp/Test/Store/Ret/Jmp/Jcc/Push/StackAlloc/StackDealloc).
func (i *Instruction) Defines() bool {
	switch i.op {
	case opcode.Mov, opcode.Add, opcode.Sub, opcode.IMul, opcode.IDiv, opcode.Div,
		opcode.IDivMod, opcode.DivMod, opcode.And, opcode.Or, opcode.Xor, opcode.Not, opcode.Neg,
		opcode.Shl, opcode.Shr, opcode.Sar, opcode.SetCC, opcode.Call, opcode.CallIndirect,
		opcode.Pop, opcode.Phi, opcode.Lea, opcode.Load:
		return true
	default:
		return false
	}
}

// DefinedVariable returns the variable defined by Instruction i, or nil if i does not define one.
func (i *Instruction) DefinedVariable() *Variable {
	if !i.Defines() {
		return nil
	}
	if i.op == opcode.Phi || i.op == opcode.SetCC {
		return i.assignee
	}
	return i.destination
}

// Uses returns every non-nil, non-phi source operand of Instruction i, in a stable order. Phi-function
// uses are intentionally excluded: their contribution to live ranges is resolved by matching the
// assignee against identically-named variables produced in predecessor blocks.
func (i *Instruction) Uses() []*Variable {
	if i.op == opcode.Phi {
		return nil
	}
	res := make([]*Variable, 0, 5)
	for _, v := range []*Variable{i.source, i.source2, i.addrCalc1, i.addrCalc2} {
		if v != nil {
			res = append(res, v)
		}
	}
	if i.op == opcode.Call || i.op == opcode.CallIndirect {
		res = append(res, i.params...)
	}
	if i.op == opcode.Cmp || i.op == opcode.Test || i.op == opcode.Store || i.op == opcode.Ret || i.op == opcode.Push {
		if i.destination != nil {
			res = append(res, i.destination)
		}
	}
	return res
}

// String renders Instruction i in variable-inline form, e.g. "t3 = add t1, t2".
func (i *Instruction) String() string {
	return i.render(ModeVariable)
}

// ----------------------------
// ----- CFG edit surface -----
// ----------------------------

// AppendInstruction appends instr to the tail of Block b's instruction list and sets instr's
// block_contained_in back-pointer.
func (b *Block) AppendInstruction(instr *Instruction) {
	instr.block = b
	instr.id = b.fn.instrIDs.Next()
	if b.tail == nil {
		b.head = instr
		b.tail = instr
		instr.prev = nil
		instr.next = nil
	} else {
		b.tail.next = instr
		instr.prev = b.tail
		instr.next = nil
		b.tail = instr
	}
}

// InsertAfter inserts instr immediately after at in at's block, maintaining the doubly linked list.
func InsertAfter(at, instr *Instruction) {
	if at == nil || instr == nil {
		panic("cfg: InsertAfter called with a nil instruction")
	}
	b := at.block
	instr.block = b
	instr.id = b.fn.instrIDs.Next()
	instr.prev = at
	instr.next = at.next
	if at.next != nil {
		at.next.prev = instr
	} else {
		b.tail = instr
	}
	at.next = instr
}

// InsertBefore inserts instr immediately before at in at's block, maintaining the doubly linked list.
func InsertBefore(at, instr *Instruction) {
	if at == nil || instr == nil {
		panic("cfg: InsertBefore called with a nil instruction")
	}
	b := at.block
	instr.block = b
	instr.id = b.fn.instrIDs.Next()
	instr.prev = at.prev
	instr.next = at
	if at.prev != nil {
		at.prev.next = instr
	} else {
		b.head = instr
	}
	at.prev = instr
}

// DeleteInstruction removes instr from its owning block, maintaining the doubly linked list and the
// block's leader/exit as needed.
func DeleteInstruction(instr *Instruction) {
	if instr == nil {
		panic("cfg: DeleteInstruction called with a nil instruction")
	}
	b := instr.block
	if instr.prev != nil {
		instr.prev.next = instr.next
	} else {
		b.head = instr.next
	}
	if instr.next != nil {
		instr.next.prev = instr.prev
	} else {
		b.tail = instr.prev
	}
	instr.prev = nil
	instr.next = nil
	instr.block = nil
}

// newInstruction mints an Instruction with opcode op, function-local id left unset (AppendInstruction
// assigns it once the instruction is attached to a block).
func newInstruction(op opcode.Op) *Instruction {
	return &Instruction{op: op}
}
