package regalloc

import (
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
)

// ----------------------------
// ----- functions -----
// ----------------------------

// Coalesce walks fn's instructions for pure-copy moves and merges the source and destination live ranges
// when they don't interfere and aren't precoloured to different registers. The *source* range survives
// the merge and the destination is deleted.
func Coalesce(fn *cfg.Function) {
	for _, b := range fn.Blocks() {
		var next *cfg.Instruction
		for i := b.Head(); i != nil; i = next {
			next = i.Next()
			if !isPureCopy(i) {
				continue
			}

			src := i.Source()
			dst := i.Destination()
			srcLR := src.LiveRange()
			dstLR := dst.LiveRange()

			if srcLR == dstLR {
				cfg.DeleteInstruction(i)
				continue
			}

			if srcLR.Interferes(dstLR) {
				continue
			}
			if srcLR.IsPrecolored() && dstLR.IsPrecolored() && srcLR.Register() != dstLR.Register() {
				continue
			}

			if dstLR.IsPrecolored() && !srcLR.IsPrecolored() {
				srcLR.Precolor(dstLR.Register())
			}

			srcLR.Merge(dstLR)
			fn.RemoveLiveRange(dstLR)
			cfg.DeleteInstruction(i)
		}
	}
}

// isPureCopy reports whether i is a Mov with no indirection: a plain register-to-register move.
func isPureCopy(i *cfg.Instruction) bool {
	if i.Op() != opcode.Mov {
		return false
	}
	if _, hasImm := i.Imm(); hasImm {
		return false
	}
	if i.AddrCalc1() != nil || i.AddrCalc2() != nil {
		return false
	}
	return i.Source() != nil && i.Destination() != nil
}
