// Package cfg implements the control-flow graph and three-address-code IR that every later back-end pass
// mutates in place: basic blocks, instructions, virtual variables, live ranges and jump tables. It owns
// the structural edit operations (Link, Merge, ReplaceTarget, PostOrder) that every pass downstream of
// the IR builder relies on to keep the predecessor/successor symmetry invariant intact.
package cfg

import (
	"fmt"

	"ollie/src/frontend"
	"ollie/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Register is implemented by a physical register descriptor. The CFG/IR data model only ever stores a
// Register behind this interface so that ir/cfg never depends on a concrete backend package; backend/x86
// supplies the concrete implementation.
type Register interface {
	Name() string   // Name returns the assembler name of the register, e.g. "rax" or "xmm3".
	IsFloat() bool  // IsFloat reports whether the register belongs to the XMM class.
	CalleeSaved() bool
}

// CFG owns every block, instruction, function and live range created for one compilation unit, plus the
// id allocators and external (read-mostly) symbol/type table references: a global arena of all blocks,
// extended here to every arena-addressed object kind the data model needs.
type CFG struct {
	Functions []*Function // Ordered list of functions, in declaration order.
	Head      *Block      // First block to emit, set by backend/postprocess.Reorder.

	StackPointer *Variable // Shared stack-pointer virtual variable, supplied by the front end.

	SymTab  frontend.SymbolTable // External, read-mostly global symbol table.
	TypeTab frontend.TypeTable   // External, read-mostly type table.

	createdBlocks []*Block // Arena of every created block; Merge and DeleteBlock remove blocks from it.

	globals []*DataObject // Module-level globals (backing store for Lea-addressed statics).
	strings []*DataObject // Module-level string literals.

	blockIDs      util.IDAllocator
	jumpTableIDs  util.IDAllocator
	globalIDs     util.IDAllocator
	liveRangeIDs  util.IDAllocator
}

// DataObject is a named, module-level piece of static data (a string literal or a float constant that
// doesn't fit in an immediate), placed in .rodata or .data by the assembly emitter.
type DataObject struct {
	ID    int
	Label string
	Kind  DataKind
	IVal  int64
	FVal  float64
	SVal  string
}

// DataKind identifies the payload carried by a DataObject.
type DataKind uint8

const (
	DataFloat32 DataKind = iota
	DataFloat64
	DataString
)

// ---------------------
// ----- functions -----
// ---------------------

// NewCFG creates an empty CFG bound to the given external symbol and type tables, and mints the shared
// stack-pointer virtual variable every function parameter/local addresses relative to.
func NewCFG(symtab frontend.SymbolTable, types frontend.TypeTable) *CFG {
	c := &CFG{
		SymTab:  symtab,
		TypeTab: types,
	}
	c.StackPointer = &Variable{
		name:           "rsp",
		size:           0,
		isStackPointer: true,
	}
	return c
}

// CreateFunction creates a new, empty function owned by CFG c.
func (c *CFG) CreateFunction(name string) *Function {
	f := &Function{
		cfg:  c,
		name: name,
	}
	c.Functions = append(c.Functions, f)
	return f
}

// createBlock mints a fresh block with a globally unique id and registers it in the CFG's arena. Called
// only by Function.CreateBlock so every block's fn back-pointer is set at creation time.
func (c *CFG) createBlock(fn *Function, kind BlockKind) *Block {
	b := &Block{
		id:   c.blockIDs.Next(),
		kind: kind,
		fn:   fn,
	}
	c.createdBlocks = append(c.createdBlocks, b)
	return b
}

// removeFromArena deletes block b from the CFG's arena of created blocks. Called by Merge and by the
// postprocessor's empty-block elimination pass once b has been fully unlinked.
func (c *CFG) removeFromArena(b *Block) {
	for i, e := range c.createdBlocks {
		if e == b {
			c.createdBlocks[i] = c.createdBlocks[len(c.createdBlocks)-1]
			c.createdBlocks = c.createdBlocks[:len(c.createdBlocks)-1]
			return
		}
	}
}

// Blocks returns every block created in CFG c that has not since been merged away or deleted. Used by invariant checks and by jump-table reachability validation.
func (c *CFG) Blocks() []*Block {
	return c.createdBlocks
}

// CreateStringConstant interns string s as a module-level DataObject, returning it. Values too large for
// an immediate (strings, doubles) need a named home in .rodata, exactly like vslc's Module.CreateString.
func (c *CFG) CreateStringConstant(s string) *DataObject {
	for _, e := range c.strings {
		if e.SVal == s {
			return e
		}
	}
	d := &DataObject{
		ID:   c.globalIDs.Next(),
		Kind: DataString,
		SVal: s,
	}
	d.Label = labelFor(d.ID, "str")
	c.strings = append(c.strings, d)
	return d
}

// CreateFloatConstant interns a floating point constant as a module-level DataObject. double selects a
// DataFloat64 constant; otherwise it is DataFloat32.
func (c *CFG) CreateFloatConstant(v float64, double bool) *DataObject {
	kind := DataFloat32
	if double {
		kind = DataFloat64
	}
	d := &DataObject{
		ID:   c.globalIDs.Next(),
		Kind: kind,
		FVal: v,
	}
	d.Label = labelFor(d.ID, "flt")
	c.globals = append(c.globals, d)
	return d
}

// Strings returns every interned string constant.
func (c *CFG) Strings() []*DataObject { return c.strings }

// Globals returns every interned float constant.
func (c *CFG) Globals() []*DataObject { return c.globals }

func labelFor(id int, prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, id)
}
