package regalloc

import (
	"ollie/src/backend/x86"
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- functions -----
// ----------------------------

// BuildInterferenceGraph walks every block of fn bottom-up with a livenow set seeded from live_out,
// recording interference edges and applying the ABI/ISA precolouring rules. Must run after
// ComputeLiveness; rebuilt from scratch after every spill.
func BuildInterferenceGraph(fn *cfg.Function) {
	for _, b := range fn.Blocks() {
		livenow := make(map[*cfg.LiveRange]bool)
		for lr := range b.LiveOut() {
			livenow[lr] = true
		}

		instrs := b.Instructions()
		for idx := len(instrs) - 1; idx >= 0; idx-- {
			i := instrs[idx]
			if i.Op() == opcode.Phi {
				continue
			}

			precolor(i)

			if d := i.DefinedVariable(); d != nil {
				dlr := d.LiveRange()
				for r := range livenow {
					if r != dlr {
						addInterference(dlr, r)
					}
				}
				if isTwoOperandArith(i.Op()) {
					livenow[dlr] = true
				} else {
					delete(livenow, dlr)
				}
			}

			for _, v := range i.Uses() {
				if lr := v.LiveRange(); lr != nil {
					livenow[lr] = true
				}
			}
		}
	}
}

func addInterference(a, b *cfg.LiveRange) {
	if a == nil || b == nil || a == b {
		return
	}
	a.AddNeighbour(b)
	b.AddNeighbour(a)
}

// feedsSignExtendedDivide reports whether mov's destination is the dividend of a following divide:
// either straight into an unsigned div, or through the cltd/cqto sign-extension a signed idiv needs.
func feedsSignExtendedDivide(mov *cfg.Instruction) bool {
	next := mov.Next()
	if next == nil {
		return false
	}
	if next.Op() == opcode.Cltd || next.Op() == opcode.Cqto {
		next = next.Next()
		if next == nil {
			return false
		}
	}
	switch next.Op() {
	case opcode.Div, opcode.IDiv, opcode.DivMod, opcode.IDivMod:
		return next.Source() == mov.Destination()
	default:
		return false
	}
}

// isTwoOperandArith reports whether op's destination is also implicitly read, as on x86's two-operand
// arithmetic forms.
func isTwoOperandArith(op opcode.Op) bool {
	switch op {
	case opcode.Add, opcode.Sub, opcode.And, opcode.Or, opcode.Xor, opcode.Shl, opcode.Shr, opcode.Sar:
		return true
	default:
		return false
	}
}

// precolor pins instruction i's ABI/ISA-constrained operands to their required physical register.
func precolor(i *cfg.Instruction) {
	switch i.Op() {
	case opcode.Ret:
		if d := i.Destination(); d != nil && d.LiveRange() != nil {
			d.LiveRange().Precolor(x86.RAX)
		}
	case opcode.Call, opcode.CallIndirect:
		if d := i.Destination(); d != nil && d.LiveRange() != nil {
			d.LiveRange().Precolor(x86.RAX)
		}
		for idx, p := range i.Params() {
			if idx >= 6 || p.LiveRange() == nil {
				continue
			}
			if r := x86.ArgRegisterFor(idx + 1); r != nil {
				p.LiveRange().Precolor(r)
			}
		}
	case opcode.IMul, opcode.Div, opcode.IDiv:
		if d := i.Destination(); d != nil && d.LiveRange() != nil {
			d.LiveRange().Precolor(x86.RAX)
		}
	case opcode.DivMod, opcode.IDivMod:
		if d := i.Destination(); d != nil && d.LiveRange() != nil {
			d.LiveRange().Precolor(x86.RDX)
		}
	case opcode.Cltd, opcode.Cqto:
		if d := i.Destination(); d != nil && d.LiveRange() != nil {
			d.LiveRange().Precolor(x86.RAX)
		}
	case opcode.Mov:
		// A move whose destination feeds a sign-extend + divide sequence holds the dividend, which x86
		// requires in RAX.
		if d := i.Destination(); d != nil && d.LiveRange() != nil && feedsSignExtendedDivide(i) {
			d.LiveRange().Precolor(x86.RAX)
		}
	}

	if d := i.DefinedVariable(); d != nil && d.LiveRange() != nil && !d.LiveRange().IsPrecolored() {
		if d.ParameterNumber() > 0 {
			if r := x86.ArgRegisterFor(d.ParameterNumber()); r != nil {
				d.LiveRange().Precolor(r)
			}
		}
	}
	for _, v := range i.Uses() {
		if v.LiveRange() == nil || v.LiveRange().IsPrecolored() {
			continue
		}
		if v.ParameterNumber() > 0 {
			if r := x86.ArgRegisterFor(v.ParameterNumber()); r != nil {
				v.LiveRange().Precolor(r)
			}
		}
	}
}
