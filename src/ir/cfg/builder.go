package cfg

import (
	"fmt"

	"ollie/src/frontend"
	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Builder lowers a front_end_results AST into the CFG/IR data model. It
// owns the per-symbol SSA generation counters and the current-definition map a textbook SSA builder needs,
// plus the block currently being appended to.
type Builder struct {
	cfg *CFG
	fn  *Function

	cur *Block // Block instructions are currently being appended to.

	generation map[*frontend.Symbol]int               // Next SSA generation to mint for a symbol.
	current    map[*frontend.Symbol]map[*Block]*Variable // Reaching definition of a symbol, per block.

	breakTarget    []*Block // Stack of loop-exit blocks, the jump targets of NodeBreak lowering.
	continueTarget []*Block
}

// NewBuilder creates a Builder that lowers into CFG c.
func NewBuilder(c *CFG) *Builder {
	return &Builder{
		cfg:        c,
		generation: make(map[*frontend.Symbol]int),
		current:    make(map[*frontend.Symbol]map[*Block]*Variable),
	}
}

// ---------------------
// ----- functions -----
// ---------------------

// sizeOf maps a front-end Type to the back-end's opcode.Size,-width derivation.
func sizeOf(t *frontend.Type) opcode.Size {
	if t == nil {
		return opcode.SzQword
	}
	if t.IsFloat {
		if t.SizeBytes == 4 {
			return opcode.SzSSESingle
		}
		return opcode.SzSSEDouble
	}
	switch t.SizeBytes {
	case 1:
		return opcode.SzByte
	case 2:
		return opcode.SzWord
	case 4:
		return opcode.SzDword
	default:
		return opcode.SzQword
	}
}

// BuildFunction lowers a NodeFunctionDecl AST node into a new Function owned by the builder's CFG.
func (b *Builder) BuildFunction(node *frontend.Node) *Function {
	if node.Kind != frontend.NodeFunctionDecl {
		panic("cfg: BuildFunction requires a NodeFunctionDecl")
	}
	name := "fn"
	if node.Symbol != nil {
		name = node.Symbol.Name
	}
	fn := b.cfg.CreateFunction(name)
	b.fn = fn
	b.generation = make(map[*frontend.Symbol]int)
	b.current = make(map[*frontend.Symbol]map[*Block]*Variable)

	entry := fn.CreateBlock(FunctionEntry)
	exit := fn.CreateBlock(FunctionExit)
	b.cur = entry

	if node.Symbol != nil && node.Symbol.Type != nil {
		fn.SetRetSize(sizeOf(node.Symbol.Type))
	} else {
		fn.SetVoid()
	}

	n := 1
	for _, child := range node.Children {
		if child.Kind != frontend.NodeIdentifier || child.Symbol == nil || child.Symbol.Kind != frontend.SymParameter {
			continue
		}
		p := fn.CreateParam(child.Symbol, sizeOf(child.Symbol.Type), n)
		b.writeVariable(child.Symbol, entry, p)
		n++
	}

	for _, child := range node.Children {
		if child.Kind == frontend.NodeBlock {
			b.buildStatement(child)
		}
	}

	if b.cur.tail == nil || !b.cur.tail.Op().IsTerminator() {
		Link(b.cur, exit)
		ret := fn.NewInstruction(opcode.Ret)
		b.cur.AppendInstruction(ret)
	}
	return fn
}

// writeVariable records v as the reaching definition of sym at the end of block blk.
func (b *Builder) writeVariable(sym *frontend.Symbol, blk *Block, v *Variable) {
	m, ok := b.current[sym]
	if !ok {
		m = make(map[*Block]*Variable)
		b.current[sym] = m
	}
	m[blk] = v
}

// readVariable returns the reaching definition of sym visible at the end of block blk, minting a fresh
// local variable on first reference.
func (b *Builder) readVariable(sym *frontend.Symbol, blk *Block) *Variable {
	if m, ok := b.current[sym]; ok {
		if v, ok := m[blk]; ok {
			return v
		}
	}
	if v := b.fn.GetParam(sym.ParameterNumber); sym.Kind == frontend.SymParameter && v != nil {
		b.writeVariable(sym, blk, v)
		return v
	}
	v := b.fn.CreateLocal(sym, sizeOf(sym.Type))
	v.generation = b.nextGeneration(sym)
	b.writeVariable(sym, blk, v)
	return v
}

func (b *Builder) nextGeneration(sym *frontend.Symbol) int {
	g := b.generation[sym]
	b.generation[sym] = g + 1
	return g
}

// buildStatement lowers one statement-level AST node, appending instructions to b.cur and possibly
// changing b.cur as control-flow constructs open new blocks.
func (b *Builder) buildStatement(node *frontend.Node) {
	switch node.Kind {
	case frontend.NodeBlock:
		for _, c := range node.Children {
			b.buildStatement(c)
		}
	case frontend.NodeIf:
		b.buildIf(node)
	case frontend.NodeWhile:
		b.buildWhile(node)
	case frontend.NodeSwitch:
		b.buildSwitch(node)
	case frontend.NodeReturn:
		b.buildReturn(node)
	case frontend.NodeAssign:
		b.buildAssign(node)
	case frontend.NodeBreak:
		b.buildBreakContinue(b.breakTarget)
	case frontend.NodeContinue:
		b.buildBreakContinue(b.continueTarget)
	default:
		b.buildExpr(node)
	}
}

// buildBreakContinue lowers a NodeBreak/NodeContinue statement into an unconditional jump to the
// innermost enclosing loop or switch's recorded target. A break/continue outside any loop or switch is a
// front-end validation error that must never reach the back end; it panics here instead of failing silently.
func (b *Builder) buildBreakContinue(targets []*Block) {
	if len(targets) == 0 {
		panic("cfg: break/continue outside any enclosing loop or switch")
	}
	target := targets[len(targets)-1]
	j := b.fn.NewInstruction(opcode.Jmp)
	j.ifBlock = target
	b.cur.AppendInstruction(j)
	Link(b.cur, target)
}

// buildIf lowers a NodeIf(condition, then[, else]) node into a diamond of blocks joined by phi-functions
// for every variable assigned on either arm.
func (b *Builder) buildIf(node *frontend.Node) {
	cond := node.Children[0]
	thenNode := node.Children[1]
	var elseNode *frontend.Node
	if len(node.Children) > 2 {
		elseNode = node.Children[2]
	}

	preBlk := b.cur
	condVal := b.buildExpr(cond)
	thenBlk := b.fn.CreateBlock(Normal)
	joinBlk := b.fn.CreateBlock(Normal)
	elseBlk := joinBlk
	if elseNode != nil {
		elseBlk = b.fn.CreateBlock(Normal)
	}

	test := b.fn.NewInstruction(opcode.Test)
	test.destination = condVal
	test.source = condVal
	test.width = widthFor(condVal.size)
	b.cur.AppendInstruction(test)

	jcc := b.fn.NewInstruction(opcode.Jcc)
	jcc.cond = opcode.NotEqual
	jcc.destination = condVal
	jcc.ifBlock = thenBlk
	b.cur.AppendInstruction(jcc)
	Link(b.cur, thenBlk)
	Link(b.cur, elseBlk)

	jmpElse := b.fn.NewInstruction(opcode.Jmp)
	jmpElse.ifBlock = elseBlk
	b.cur.AppendInstruction(jmpElse)

	b.cur = thenBlk
	b.buildStatement(thenNode)
	thenEnd := b.cur
	if thenEnd.tail == nil || !thenEnd.tail.Op().IsTerminator() {
		j := b.fn.NewInstruction(opcode.Jmp)
		j.ifBlock = joinBlk
		thenEnd.AppendInstruction(j)
		Link(thenEnd, joinBlk)
	}

	elseEnd := b.cur
	if elseNode != nil {
		b.cur = elseBlk
		b.buildStatement(elseNode)
		elseEnd = b.cur
		if elseEnd.tail == nil || !elseEnd.tail.Op().IsTerminator() {
			j := b.fn.NewInstruction(opcode.Jmp)
			j.ifBlock = joinBlk
			elseEnd.AppendInstruction(j)
			Link(elseEnd, joinBlk)
		}
	}

	b.insertJoinPhis(joinBlk, preBlk)
	b.cur = joinBlk
}

// buildWhile lowers a NodeWhile(condition, body) node into a header/body/exit triangle. Every symbol the
// body assigns gets a header phi up front, since the condition and the body may read the loop-carried
// value before its back-edge definition is known; the phi's back-edge argument is patched in once the
// body has been built. A phi contributes only its assignee to live-range membership, so mutating its
// argument list here is safe: live-range construction runs after the whole function is built.
func (b *Builder) buildWhile(node *frontend.Node) {
	cond := node.Children[0]
	body := node.Children[1]

	preBlk := b.cur
	header := b.fn.CreateBlock(Normal)
	bodyBlk := b.fn.CreateBlock(Normal)
	exitBlk := b.fn.CreateBlock(Normal)

	j := b.fn.NewInstruction(opcode.Jmp)
	j.ifBlock = header
	b.cur.AppendInstruction(j)
	Link(b.cur, header)

	b.cur = header

	headerPhis := make(map[*frontend.Symbol]*Instruction)
	for _, sym := range collectAssignedSymbols(body) {
		preVal := b.readVariable(sym, preBlk)
		t := b.fn.CreateTemp(preVal.size)
		t.symbol = sym
		t.name = sym.Name
		t.isTemporary = false
		t.generation = b.nextGeneration(sym)

		phi := b.fn.NewInstruction(opcode.Phi)
		phi.assignee = t
		phi.phiArgs = []PhiArg{{From: preBlk, Val: preVal}}
		header.AppendInstruction(phi)

		b.writeVariable(sym, header, t)
		headerPhis[sym] = phi
	}

	condVal := b.buildExpr(cond)
	test := b.fn.NewInstruction(opcode.Test)
	test.destination = condVal
	test.source = condVal
	test.width = widthFor(condVal.size)
	b.cur.AppendInstruction(test)

	jcc := b.fn.NewInstruction(opcode.Jcc)
	jcc.cond = opcode.NotEqual
	jcc.destination = condVal
	jcc.ifBlock = bodyBlk
	b.cur.AppendInstruction(jcc)
	Link(header, bodyBlk)
	Link(header, exitBlk)

	jmpExit := b.fn.NewInstruction(opcode.Jmp)
	jmpExit.ifBlock = exitBlk
	b.cur.AppendInstruction(jmpExit)

	b.breakTarget = append(b.breakTarget, exitBlk)
	b.continueTarget = append(b.continueTarget, header)

	b.cur = bodyBlk
	b.buildStatement(body)
	backEdge := b.cur
	if backEdge.tail == nil || !backEdge.tail.Op().IsTerminator() {
		jb := b.fn.NewInstruction(opcode.Jmp)
		jb.ifBlock = header
		backEdge.AppendInstruction(jb)
		Link(backEdge, header)
	}

	for sym, phi := range headerPhis {
		v := b.readVariable(sym, backEdge)
		phi.phiArgs = append(phi.phiArgs, PhiArg{From: backEdge, Val: v})
	}

	b.breakTarget = b.breakTarget[:len(b.breakTarget)-1]
	b.continueTarget = b.continueTarget[:len(b.continueTarget)-1]

	b.cur = exitBlk
}

// collectAssignedSymbols walks body's statement tree for every NodeAssign target, without descending
// into nested NodeFunctionDecl nodes (none appear inside a function body). Used by buildWhile to seed
// header phis for every symbol the loop body might redefine, before the body itself is built.
func collectAssignedSymbols(node *frontend.Node) []*frontend.Symbol {
	var out []*frontend.Symbol
	seen := make(map[*frontend.Symbol]bool)
	var walk func(n *frontend.Node)
	walk = func(n *frontend.Node) {
		if n == nil || n.Kind == frontend.NodeFunctionDecl {
			return
		}
		if n.Kind == frontend.NodeAssign && len(n.Children) > 0 {
			lhs := n.Children[0]
			if lhs.Kind == frontend.NodeIdentifier && lhs.Symbol != nil && !seen[lhs.Symbol] {
				seen[lhs.Symbol] = true
				out = append(out, lhs.Symbol)
			}
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(node)
	return out
}

// buildSwitch lowers a NodeSwitch(selector, case0, case1, ...) node into a SwitchHead block whose
// terminator is an indirect jump through a newly allocated JumpTable.
func (b *Builder) buildSwitch(node *frontend.Node) {
	selector := node.Children[0]
	cases := node.Children[1:]

	val := b.buildExpr(selector)
	preBlk := b.cur
	head := b.fn.CreateBlock(SwitchHead)
	exitBlk := b.fn.CreateBlock(Normal)

	j := b.fn.NewInstruction(opcode.Jmp)
	j.ifBlock = head
	b.cur.AppendInstruction(j)
	Link(b.cur, head)

	jt := b.cfg.NewJumpTable(len(cases))
	head.SetJumpTable(jt)
	b.cur = head
	dispatch := b.fn.NewInstruction(opcode.JmpTable)
	dispatch.source = val
	dispatch.table = jt
	head.AppendInstruction(dispatch)

	for idx, c := range cases {
		caseBlk := b.fn.CreateBlock(Normal)
		jt.Set(idx, caseBlk)
		Link(head, caseBlk)

		b.breakTarget = append(b.breakTarget, exitBlk)
		b.cur = caseBlk
		b.buildStatement(c)
		b.breakTarget = b.breakTarget[:len(b.breakTarget)-1]

		if b.cur.tail == nil || !b.cur.tail.Op().IsTerminator() {
			je := b.fn.NewInstruction(opcode.Jmp)
			je.ifBlock = exitBlk
			b.cur.AppendInstruction(je)
			Link(b.cur, exitBlk)
		}
	}

	b.insertJoinPhis(exitBlk, preBlk)
	b.cur = exitBlk
}

// insertJoinPhis inserts phi-functions at join's leader position for every symbol whose reaching
// definition differs across join's (already-linked) predecessor blocks.
// fallback supplies the reaching definition for a predecessor that never itself wrote the symbol (the
// value flowing through unchanged from before the branch). Must be called with join still empty, before
// b.cur is repointed at it, so the phis remain join's leading instructions.
func (b *Builder) insertJoinPhis(join, fallback *Block) {
	preds := join.Predecessors()
	if len(preds) < 2 {
		return
	}

	seen := make(map[*frontend.Symbol]bool)
	var syms []*frontend.Symbol
	for _, p := range preds {
		for _, s := range b.symbolsWrittenAt(p) {
			if !seen[s] {
				seen[s] = true
				syms = append(syms, s)
			}
		}
	}

	for _, sym := range syms {
		args := make([]PhiArg, 0, len(preds))
		var first *Variable
		diverge := false
		for _, p := range preds {
			v, ok := b.current[sym][p]
			if !ok {
				v = b.readVariable(sym, fallback)
			}
			args = append(args, PhiArg{From: p, Val: v})
			if first == nil {
				first = v
			} else if v != first {
				diverge = true
			}
		}
		if !diverge {
			b.writeVariable(sym, join, first)
			continue
		}

		t := b.fn.CreateTemp(first.size)
		t.symbol = sym
		t.name = sym.Name
		t.generation = b.nextGeneration(sym)

		phi := b.fn.NewInstruction(opcode.Phi)
		phi.assignee = t
		phi.phiArgs = args
		join.AppendInstruction(phi)

		b.writeVariable(sym, join, t)
	}
}

// symbolsWrittenAt returns every symbol the builder recorded a direct write for at block blk.
func (b *Builder) symbolsWrittenAt(blk *Block) []*frontend.Symbol {
	var out []*frontend.Symbol
	for sym, m := range b.current {
		if _, ok := m[blk]; ok {
			out = append(out, sym)
		}
	}
	return out
}

// buildReturn lowers a NodeReturn([value]) node.
func (b *Builder) buildReturn(node *frontend.Node) {
	ret := b.fn.NewInstruction(opcode.Ret)
	if len(node.Children) > 0 {
		v := b.buildExpr(node.Children[0])
		ret.destination = v
	}
	b.cur.AppendInstruction(ret)
	Link(b.cur, b.fn.exit)
}

// buildAssign lowers a NodeAssign(lvalue, rvalue) node and updates the SSA current-definition map.
func (b *Builder) buildAssign(node *frontend.Node) *Variable {
	lhs := node.Children[0]
	rhs := node.Children[1]
	v := b.buildExpr(rhs)
	if lhs.Kind != frontend.NodeIdentifier || lhs.Symbol == nil {
		panic("cfg: assignment target must be a bound identifier")
	}
	renamed := b.fn.CreateTemp(v.size)
	renamed.symbol = lhs.Symbol
	renamed.name = lhs.Symbol.Name
	renamed.isTemporary = false
	renamed.generation = b.nextGeneration(lhs.Symbol)

	mov := b.fn.NewInstruction(opcode.Mov)
	mov.destination = renamed
	mov.source = v
	mov.width = widthFor(v.size)
	b.cur.AppendInstruction(mov)

	b.writeVariable(lhs.Symbol, b.cur, renamed)
	return renamed
}

// buildExpr lowers an expression-level AST node, returning the Variable holding its value.
func (b *Builder) buildExpr(node *frontend.Node) *Variable {
	switch node.Kind {
	case frontend.NodeIdentifier:
		if node.Symbol == nil {
			panic("cfg: unbound identifier in expression")
		}
		return b.readVariable(node.Symbol, b.cur)
	case frontend.NodeIntLiteral:
		t := b.fn.CreateTemp(opcode.SzQword)
		mov := b.fn.NewInstruction(opcode.Mov)
		mov.destination = t
		mov.width = opcode.Quad
		iv, _ := node.Literal.(int64)
		mov.SetImm(iv)
		b.cur.AppendInstruction(mov)
		return t
	case frontend.NodeFloatLiteral:
		fv, _ := node.Literal.(float64)
		d := b.cfg.CreateFloatConstant(fv, true)
		t := b.fn.CreateTemp(opcode.SzSSEDouble)
		lea := b.fn.NewInstruction(opcode.Lea)
		lea.destination = t
		lea.data = d
		b.cur.AppendInstruction(lea)
		return t
	case frontend.NodeStringLiteral:
		sv, _ := node.Literal.(string)
		d := b.cfg.CreateStringConstant(sv)
		t := b.fn.CreateTemp(opcode.SzQword)
		lea := b.fn.NewInstruction(opcode.Lea)
		lea.destination = t
		lea.data = d
		b.cur.AppendInstruction(lea)
		return t
	case frontend.NodeAssign:
		return b.buildAssign(node)
	case frontend.NodeUnaryExpr:
		return b.buildUnary(node)
	case frontend.NodeBinaryExpr:
		return b.buildBinary(node)
	case frontend.NodeCall:
		return b.buildCall(node)
	default:
		panic(fmt.Sprintf("cfg: buildExpr: unsupported node kind %d", node.Kind))
	}
}

func widthFor(s opcode.Size) opcode.Width {
	switch s {
	case opcode.SzByte:
		return opcode.Byte
	case opcode.SzWord:
		return opcode.Word
	case opcode.SzDword, opcode.SzSSESingle:
		return opcode.Long
	default:
		return opcode.Quad
	}
}

// unaryOpcode maps a front-end operator literal to its opcode, for unary expressions.
func unaryOpcode(operator string) opcode.Op {
	switch operator {
	case "-":
		return opcode.Neg
	case "~":
		return opcode.Not
	default:
		panic(fmt.Sprintf("cfg: unsupported unary operator %q", operator))
	}
}

// binaryOpcode maps a front-end operator literal to its opcode, for binary arithmetic/bitwise expressions.
// Relational operators are handled separately by buildBinary via Cmp+SetCC.
func binaryOpcode(operator string) (op opcode.Op, isRelational bool, cond opcode.Cond) {
	switch operator {
	case "+":
		return opcode.Add, false, 0
	case "-":
		return opcode.Sub, false, 0
	case "*":
		return opcode.IMul, false, 0
	case "/":
		return opcode.IDiv, false, 0
	case "%":
		return opcode.IDivMod, false, 0
	case "&":
		return opcode.And, false, 0
	case "|":
		return opcode.Or, false, 0
	case "^":
		return opcode.Xor, false, 0
	case "<<":
		return opcode.Shl, false, 0
	case ">>":
		return opcode.Sar, false, 0
	case "==":
		return opcode.Cmp, true, opcode.Equal
	case "!=":
		return opcode.Cmp, true, opcode.NotEqual
	case "<":
		return opcode.Cmp, true, opcode.Less
	case "<=":
		return opcode.Cmp, true, opcode.LessEqual
	case ">":
		return opcode.Cmp, true, opcode.Greater
	case ">=":
		return opcode.Cmp, true, opcode.GreaterEqual
	default:
		panic(fmt.Sprintf("cfg: unsupported binary operator %q", operator))
	}
}

func (b *Builder) buildUnary(node *frontend.Node) *Variable {
	src := b.buildExpr(node.Children[0])
	op := unaryOpcode(node.Literal.(string))
	t := b.fn.CreateTemp(src.size)
	instr := b.fn.NewInstruction(op)
	instr.destination = t
	instr.source = src
	instr.width = widthFor(src.size)
	b.cur.AppendInstruction(instr)
	return t
}

func (b *Builder) buildBinary(node *frontend.Node) *Variable {
	lhs := b.buildExpr(node.Children[0])
	rhs := b.buildExpr(node.Children[1])
	op, isRelational, cond := binaryOpcode(node.Literal.(string))

	if isRelational {
		cmp := b.fn.NewInstruction(opcode.Cmp)
		cmp.destination = lhs
		cmp.source = rhs
		cmp.width = widthFor(lhs.size)
		b.cur.AppendInstruction(cmp)

		t := b.fn.CreateTemp(opcode.SzByte)
		setcc := b.fn.NewInstruction(opcode.SetCC)
		setcc.assignee = t
		setcc.cond = cond
		b.cur.AppendInstruction(setcc)
		return t
	}

	if op == opcode.IDiv || op == opcode.Div || op == opcode.IDivMod || op == opcode.DivMod {
		return b.buildDivide(op, lhs, rhs)
	}

	t := b.fn.CreateTemp(lhs.size)
	instr := b.fn.NewInstruction(op)
	instr.destination = t
	instr.source = lhs
	instr.source2 = rhs
	instr.width = widthFor(lhs.size)
	b.cur.AppendInstruction(instr)
	return t
}

// buildDivide lowers a division or remainder: copy the dividend into a fresh temporary (pinned to RAX
// later, when precolouring spots it feeding the sign-extend), sign-extend it into the high half, then
// divide. The divide's own destination carries the quotient or remainder per its opcode.
func (b *Builder) buildDivide(op opcode.Op, lhs, rhs *Variable) *Variable {
	dividend := b.fn.CreateTemp(lhs.size)
	mov := b.fn.NewInstruction(opcode.Mov)
	mov.destination = dividend
	mov.source = lhs
	mov.width = widthFor(lhs.size)
	b.cur.AppendInstruction(mov)

	if op == opcode.IDiv || op == opcode.IDivMod {
		sxOp := opcode.Cltd
		if widthFor(lhs.size) == opcode.Quad {
			sxOp = opcode.Cqto
		}
		sx := b.fn.NewInstruction(sxOp)
		b.cur.AppendInstruction(sx)
	}

	t := b.fn.CreateTemp(lhs.size)
	div := b.fn.NewInstruction(op)
	div.destination = t
	div.source = dividend
	div.source2 = rhs
	div.width = widthFor(lhs.size)
	b.cur.AppendInstruction(div)
	return t
}

func (b *Builder) buildCall(node *frontend.Node) *Variable {
	var args []*Variable
	for _, c := range node.Children {
		args = append(args, b.buildExpr(c))
	}
	t := b.fn.CreateTemp(opcode.SzQword)
	call := b.fn.NewInstruction(opcode.Call)
	call.destination = t
	call.assignee = &Variable{name: calleeName(node)}
	call.params = args
	b.cur.AppendInstruction(call)
	return t
}

func calleeName(node *frontend.Node) string {
	if node.Symbol != nil {
		return node.Symbol.Name
	}
	return "?"
}
