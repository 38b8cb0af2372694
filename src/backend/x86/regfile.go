// Package x86 supplies the concrete System V x86-64 register set and the post-allocation prologue/
// epilogue and caller-save synthesis pass, generalized from the aarch64/riscv
// backend/regfile.RegisterFile abstraction to the fixed x86-64 register set.
package x86

import (
	"fmt"

	"ollie/src/ir/cfg"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Register is x86's concrete implementation of cfg.Register: a physical integer or XMM register.
type Register struct {
	id          int
	name        string
	float       bool
	calleeSaved bool
}

// ---------------------
// ----- functions -----
// ---------------------

// Id returns the dense index of r within its class's pool (0..14 for GP, 0..15 for XMM).
func (r *Register) Id() int { return r.id }

// Name returns the assembler name of r, e.g. "rax" or "xmm3".
func (r *Register) Name() string { return r.name }

// IsFloat reports whether r belongs to the XMM class.
func (r *Register) IsFloat() bool { return r.float }

// CalleeSaved reports whether the System V ABI requires a callee to preserve r across calls.
func (r *Register) CalleeSaved() bool { return r.calleeSaved }

// String renders the AT&T operand form of r, e.g. "%rax".
func (r *Register) String() string { return "%" + r.name }

var _ cfg.Register = (*Register)(nil)

// ---------------------
// ----- Constants -----
// ---------------------

// GP is the fixed pool of 15 general-purpose integer registers available to the allocator: every
// x86-64 GP register except RSP, which is never allocated.
var GP = []*Register{
	{id: 0, name: "rax"},
	{id: 1, name: "rbx", calleeSaved: true},
	{id: 2, name: "rcx"},
	{id: 3, name: "rdx"},
	{id: 4, name: "rsi"},
	{id: 5, name: "rdi"},
	{id: 6, name: "rbp", calleeSaved: true},
	{id: 7, name: "r8"},
	{id: 8, name: "r9"},
	{id: 9, name: "r10"},
	{id: 10, name: "r11"},
	{id: 11, name: "r12", calleeSaved: true},
	{id: 12, name: "r13", calleeSaved: true},
	{id: 13, name: "r14", calleeSaved: true},
	{id: 14, name: "r15", calleeSaved: true},
}

// XMM is the pool of floating-point registers, all caller-saved under System V.
var XMM = func() []*Register {
	regs := make([]*Register, 16)
	for i := range regs {
		regs[i] = &Register{id: i, name: fmt.Sprintf("xmm%d", i), float: true}
	}
	return regs
}()

// RSP is the stack pointer: never entered into the allocatable GP pool, referenced directly by the
// prologue/epilogue synthesiser and by every spill load/store's address computation.
var RSP = &Register{id: 15, name: "rsp", calleeSaved: true}

// ArgRegs is the System V integer argument-passing order, used both by CALL's parameter precolouring and
// by a function entry's own parameter precolouring.
var ArgRegs = []*Register{GP[5], GP[4], GP[3], GP[2], GP[7], GP[8]} // rdi, rsi, rdx, rcx, r8, r9

// RAX/RDX are named individually since the precolouring rules reference them directly and often.
var (
	RAX = GP[0]
	RDX = GP[3]
)

// ByName returns the GP or XMM register with the given assembler name, or nil.
func ByName(name string) *Register {
	for _, r := range GP {
		if r.name == name {
			return r
		}
	}
	for _, r := range XMM {
		if r.name == name {
			return r
		}
	}
	if name == "rsp" {
		return RSP
	}
	return nil
}

// argRegisterFor returns the System V integer argument register for 1-based parameter number n, or nil
// if n exceeds the 6 register-passed parameters.
func argRegisterFor(n int) *Register {
	if n < 1 || n > len(ArgRegs) {
		return nil
	}
	return ArgRegs[n-1]
}

// ArgRegisterFor exports argRegisterFor for backend/regalloc's precolouring pass.
func ArgRegisterFor(n int) *Register { return argRegisterFor(n) }
