// Package llvmopt supplies the one concrete, LLVM-backed optimizer.Optimizer implementation: a
// block-local constant-folding pass built on tinygo.org/x/go-llvm, wired in behind the -ll command-line
// flag instead of the default optimizer.None.
package llvmopt

import (
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
	"ollie/src/ir/optimizer"

	"tinygo.org/x/go-llvm"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Fold is an optimizer.Optimizer that constant-folds integer arithmetic within a single block. Rather
// than reimplementing two's-complement wraparound and bitwise identities by hand, it builds the operands
// as llvm.ConstInt values and asks an llvm.Builder to perform the operation through its CreateAdd/
// CreateSub/CreateMul/CreateAnd/CreateOr/CreateXor calls: LLVM's IRBuilder constant-folds automatically when every operand is itself a constant.
type Fold struct {
	// Narrow folds at 32-bit width instead of the default 64-bit, for a program compiled with int32s.
	Narrow bool
}

// ---------------------
// ----- functions -----
// ---------------------

// Optimize runs the fold over every block of every function in c, on the calling goroutine.
func (o Fold) Optimize(c *cfg.CFG) error {
	ctx := llvm.NewContext()
	defer ctx.Dispose()
	b := ctx.NewBuilder()
	defer b.Dispose()

	for _, fn := range c.Functions {
		for _, blk := range fn.Blocks() {
			foldBlock(b, o.intType(), fn, blk)
		}
	}
	return nil
}

// OptimizeFunction runs the fold over every block of fn alone, with its own LLVM context and builder so
// it is safe to call concurrently from optimizer.Run's worker goroutines: an llvm.Context/Builder pair
// must not be shared across goroutines.
func (o Fold) OptimizeFunction(fn *cfg.Function) error {
	ctx := llvm.NewContext()
	defer ctx.Dispose()
	b := ctx.NewBuilder()
	defer b.Dispose()

	for _, blk := range fn.Blocks() {
		foldBlock(b, o.intType(), fn, blk)
	}
	return nil
}

// intType returns the LLVM integer type fold operations are performed at, per o.Narrow.
func (o Fold) intType() llvm.Type {
	if o.Narrow {
		return llvm.Int32Type()
	}
	return llvm.Int64Type()
}

// foldBlock tracks, for each virtual variable defined by a Mov carrying an immediate, its known constant
// value, and rewrites every arithmetic instruction whose operands are all known constants into an
// equivalent Mov carrying the folded result. The constant map is scoped to blk: no attempt is made to
// propagate constants across a block boundary, since proving that safe needs dataflow this pass doesn't
// track (the same simplification backend/regalloc's spill pass makes for its "currently spilled" marker).
func foldBlock(b llvm.Builder, ity llvm.Type, fn *cfg.Function, blk *cfg.Block) {
	known := make(map[*cfg.Variable]int64)

	var next *cfg.Instruction
	for instr := blk.Head(); instr != nil; instr = next {
		next = instr.Next()

		if instr.Op() == opcode.Mov {
			if v, ok := instr.Imm(); ok {
				if d := instr.Destination(); d != nil {
					known[d] = v
				}
			}
			continue
		}

		result, ok := fold(b, ity, instr, known)
		if !ok {
			continue
		}

		dst := instr.Destination()
		mov := fn.NewInstruction(opcode.Mov)
		mov.SetDestination(dst)
		mov.SetWidth(instr.Width())
		mov.SetImm(result)
		cfg.InsertBefore(instr, mov)
		cfg.DeleteInstruction(instr)

		if dst != nil {
			known[dst] = result
		}
	}
}

// fold evaluates instr via LLVM's constant folder if every operand instr reads resolves to a value
// already in known. It reports ok=false for any instruction outside the closed set of opcodes that take
// purely scalar integer operands (binary arithmetic/bitwise ops and Neg/Not), or whose operands aren't
// all yet known.
func fold(b llvm.Builder, ity llvm.Type, instr *cfg.Instruction, known map[*cfg.Variable]int64) (int64, bool) {
	switch instr.Op() {
	case opcode.Add, opcode.Sub, opcode.IMul, opcode.And, opcode.Or, opcode.Xor:
		lhs, ok1 := operandValue(instr.Source(), known)
		rhs, ok2 := operandValue(instr.Source2(), known)
		if !ok1 || !ok2 {
			return 0, false
		}
		op1 := llvm.ConstInt(ity, uint64(lhs), true)
		op2 := llvm.ConstInt(ity, uint64(rhs), true)
		return resultValue(binaryFold(b, instr.Op(), op1, op2)), true

	case opcode.Neg:
		v, ok := operandValue(instr.Source(), known)
		if !ok {
			return 0, false
		}
		op1 := llvm.ConstInt(ity, 0, false)
		op2 := llvm.ConstInt(ity, uint64(v), true)
		return resultValue(b.CreateSub(op1, op2, "")), true

	case opcode.Not:
		v, ok := operandValue(instr.Source(), known)
		if !ok {
			return 0, false
		}
		op1 := llvm.ConstInt(ity, ^uint64(0), false)
		op2 := llvm.ConstInt(ity, uint64(v), true)
		return resultValue(b.CreateXor(op1, op2, "")), true

	default:
		return 0, false
	}
}

// binaryFold dispatches to the llvm.Builder method matching op.
func binaryFold(b llvm.Builder, op opcode.Op, op1, op2 llvm.Value) llvm.Value {
	switch op {
	case opcode.Add:
		return b.CreateAdd(op1, op2, "")
	case opcode.Sub:
		return b.CreateSub(op1, op2, "")
	case opcode.IMul:
		return b.CreateMul(op1, op2, "")
	case opcode.And:
		return b.CreateAnd(op1, op2, "")
	case opcode.Or:
		return b.CreateOr(op1, op2, "")
	case opcode.Xor:
		return b.CreateXor(op1, op2, "")
	default:
		panic("llvmopt: binaryFold called with non-arithmetic opcode")
	}
}

// operandValue resolves v to a known constant, reporting ok=false for a nil operand (no such operand on
// this instruction) or one without a recorded constant value.
func operandValue(v *cfg.Variable, known map[*cfg.Variable]int64) (int64, bool) {
	if v == nil {
		return 0, false
	}
	n, ok := known[v]
	return n, ok
}

// resultValue extracts the folded scalar from a constant llvm.Value produced by an IRBuilder call whose
// operands were both constants.
func resultValue(v llvm.Value) int64 {
	return v.SExtValue()
}

var (
	_ optimizer.Optimizer         = Fold{}
	_ optimizer.FunctionOptimizer = Fold{}
)
