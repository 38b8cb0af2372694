// Package postprocess implements the three-pass cleanup pipeline that runs after register allocation
// succeeds: useless-move elimination, clean()-to-fixpoint empty-block/single-predecessor reduction, and a
// breadth-first block reorder that respects jump tables.
package postprocess

import (
	"ollie/src/ir/cfg"
	"ollie/src/ir/opcode"
	"ollie/src/util"
)

// ----------------------------
// ----- functions -----
// ----------------------------

// Run applies all three passes to fn, in order, and sets fn's CFG head to the block the reorder pass
// chose as entry. It is idempotent: running it twice over an already-clean, already-reordered fn leaves
// the block chain and instruction stream unchanged.
func Run(fn *cfg.Function) {
	StripUselessMoves(fn)
	Clean(fn)
	Reorder(fn)
}

// StripUselessMoves deletes every pure-copy move whose source and destination live ranges ended up
// assigned to the same physical register.
func StripUselessMoves(fn *cfg.Function) {
	for _, b := range fn.Blocks() {
		var next *cfg.Instruction
		for i := b.Head(); i != nil; i = next {
			next = i.Next()
			if i.Op() != opcode.Mov {
				continue
			}
			src, dst := i.Source(), i.Destination()
			if src == nil || dst == nil {
				continue
			}
			sr, dr := src.LiveRange(), dst.LiveRange()
			if sr == nil || dr == nil {
				continue
			}
			if sameRegister(sr.Register(), dr.Register()) {
				cfg.DeleteInstruction(i)
			}
		}
	}
}

func sameRegister(a, b cfg.Register) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Name() == b.Name()
}

// Clean repeats per-function reduction until no further change applies: an empty
// non-entry block that ends in an unconditional jump is spliced out via ReplaceTarget; a block whose
// unconditional-jump successor has exactly one predecessor is merged into it.
func Clean(fn *cfg.Function) {
	for {
		changed := false
		for _, b := range cfg.PostOrder(fn.Entry()) {
			j := unconditionalTarget(b)
			if j == nil {
				continue
			}

			if isEmptyJumpOnly(b) && b.Kind() != cfg.FunctionEntry {
				for _, p := range append([]*cfg.Block(nil), b.Predecessors()...) {
					p.ReplaceTarget(b, j)
				}
				cfg.DeleteInstruction(b.Tail())
				cfg.DeleteBlock(b)
				changed = true
				continue
			}

			if len(j.Predecessors()) == 1 && j.Predecessors()[0] == b {
				cfg.DeleteInstruction(b.Tail())
				cfg.Unlink(b, j)
				cfg.Merge(b, j)
				changed = true
			}
		}
		if !changed {
			break
		}
	}
}

// unconditionalTarget returns b's unconditional jump target, or nil if b doesn't end in one.
func unconditionalTarget(b *cfg.Block) *cfg.Block {
	t := b.Tail()
	if t == nil || t.Op() != opcode.Jmp {
		return nil
	}
	return t.IfBlock()
}

// isEmptyJumpOnly reports whether b's entire instruction list is a single unconditional jump.
func isEmptyJumpOnly(b *cfg.Block) bool {
	return b.Head() != nil && b.Head() == b.Tail() && b.Head().Op() == opcode.Jmp
}

// Reorder performs a breadth-first traversal from fn's entry block using a shared work queue, chaining
// blocks via DirectSuccessor in visitation order. Within one block's expansion,
// an unconditional-jump target is enqueued first so the common case (fallthrough to the jump target)
// produces a contiguous chain; after chaining, a now-redundant trailing jump to the installed direct
// successor is deleted.
func Reorder(fn *cfg.Function) {
	q := &util.Queue{}
	visited := make(map[*cfg.Block]bool)

	entry := fn.Entry()
	q.Enqueue(entry)
	visited[entry] = true

	var chain []*cfg.Block
	for q.Size() > 0 {
		b := q.Dequeue().(*cfg.Block)

		// An empty function-exit block is visited but never chained: it emits nothing, so chaining it
		// would only break the fallthrough between its neighbours in the chain.
		if b.Kind() == cfg.FunctionExit && b.Head() == nil {
			continue
		}
		chain = append(chain, b)

		var ordered []*cfg.Block
		if j := unconditionalTarget(b); j != nil {
			ordered = append(ordered, j)
		}
		for _, s := range b.Successors() {
			if unconditionalTarget(b) == s {
				continue
			}
			ordered = append(ordered, s)
		}
		for _, s := range ordered {
			if !visited[s] {
				visited[s] = true
				q.Enqueue(s)
			}
		}
	}

	for idx, b := range chain {
		if idx+1 < len(chain) {
			b.SetDirectSuccessor(chain[idx+1])
		} else {
			b.SetDirectSuccessor(nil)
		}
	}

	if len(chain) > 0 {
		fn.CFG().Head = chain[0]
	}

	for _, b := range chain {
		if j := unconditionalTarget(b); j != nil && j == b.DirectSuccessor() {
			cfg.DeleteInstruction(b.Tail())
		}
	}
}
