package regalloc

import "ollie/src/ir/cfg"

// ----------------------------
// ----- functions -----
// ----------------------------

// ComputeLiveness runs the live-in/live-out fixpoint over fn's blocks. The reverse post-order of the
// reverse CFG is computed once and cached for the duration of the fixpoint, since that order converges
// fastest; a second, redundant outer "all blocks backwards" loop is collapsed away here in favor of the
// single inner fixpoint.
func ComputeLiveness(fn *cfg.Function) {
	blocks := fn.Blocks()
	for _, b := range blocks {
		b.SetUsed(computeUsed(b))
		b.SetAssigned(computeAssigned(b))
		b.SetLiveIn(make(map[*cfg.LiveRange]bool))
		b.SetLiveOut(make(map[*cfg.LiveRange]bool))
	}

	order := reversePostOrderOfReverseCFG(fn)

	for {
		changed := false
		for _, b := range order {
			oldIn := b.LiveIn()
			oldOut := b.LiveOut()

			newOut := make(map[*cfg.LiveRange]bool)
			for _, s := range b.Successors() {
				for lr := range s.LiveIn() {
					newOut[lr] = true
				}
			}

			newIn := make(map[*cfg.LiveRange]bool)
			for lr := range b.Used() {
				newIn[lr] = true
			}
			for lr := range newOut {
				if !b.Assigned()[lr] {
					newIn[lr] = true
				}
			}

			if !setsEqual(newIn, oldIn) || !setsEqual(newOut, oldOut) {
				changed = true
			}
			b.SetLiveIn(newIn)
			b.SetLiveOut(newOut)
		}
		if !changed {
			break
		}
	}
}

// computeUsed returns fn's upward-exposed uses for block b: live ranges read before any local
// redefinition.
func computeUsed(b *cfg.Block) map[*cfg.LiveRange]bool {
	used := make(map[*cfg.LiveRange]bool)
	defined := make(map[*cfg.LiveRange]bool)
	for i := b.Head(); i != nil; i = i.Next() {
		for _, v := range i.Uses() {
			if lr := v.LiveRange(); lr != nil && !defined[lr] {
				used[lr] = true
			}
		}
		if d := i.DefinedVariable(); d != nil {
			if lr := d.LiveRange(); lr != nil {
				defined[lr] = true
			}
		}
	}
	return used
}

// computeAssigned returns every live range block b defines, anywhere in the block.
func computeAssigned(b *cfg.Block) map[*cfg.LiveRange]bool {
	assigned := make(map[*cfg.LiveRange]bool)
	for i := b.Head(); i != nil; i = i.Next() {
		if d := i.DefinedVariable(); d != nil {
			if lr := d.LiveRange(); lr != nil {
				assigned[lr] = true
			}
		}
	}
	return assigned
}

func setsEqual(a, b map[*cfg.LiveRange]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// reversePostOrderOfReverseCFG computes the order liveness converges fastest under: reverse-post-order
// of the CFG with every edge flipped. Exit blocks (no successors in the forward CFG, i.e. roots of the
// reverse CFG) are found first; traversal follows predecessor edges.
func reversePostOrderOfReverseCFG(fn *cfg.Function) []*cfg.Block {
	var roots []*cfg.Block
	for _, b := range fn.Blocks() {
		if len(b.Successors()) == 0 {
			roots = append(roots, b)
		}
	}
	if len(roots) == 0 && fn.Exit() != nil {
		roots = append(roots, fn.Exit())
	}

	visited := make(map[*cfg.Block]bool)
	var postOrder []*cfg.Block
	var visit func(b *cfg.Block)
	visit = func(b *cfg.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, p := range b.Predecessors() {
			visit(p)
		}
		postOrder = append(postOrder, b)
	}
	for _, r := range roots {
		visit(r)
	}
	for _, b := range fn.Blocks() {
		visit(b)
	}

	rpo := make([]*cfg.Block, len(postOrder))
	for i, b := range postOrder {
		rpo[len(postOrder)-1-i] = b
	}
	return rpo
}
