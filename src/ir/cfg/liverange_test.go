package cfg

import (
	"math"
	"testing"

	"ollie/src/ir/opcode"
)

func TestAddMemberInheritsMustBeSpilled(t *testing.T) {
	fn := newTestFunction()
	lr := NewLiveRange(fn, opcode.SzQword)
	v := &Variable{id: 1}
	v.SetMustBeSpilled()

	lr.AddMember(v)

	if !lr.Spilled() {
		t.Error("LiveRange should inherit Spilled() == true from a must-be-spilled member")
	}
	if v.LiveRange() != lr {
		t.Error("AddMember must set the member's back-pointer to lr")
	}
}

func TestAddMemberIsIdempotent(t *testing.T) {
	fn := newTestFunction()
	lr := NewLiveRange(fn, opcode.SzQword)
	v := &Variable{id: 1}
	lr.AddMember(v)
	lr.AddMember(v)
	if len(lr.Members()) != 1 {
		t.Errorf("len(lr.Members()) = %d, want 1", len(lr.Members()))
	}
}

func TestAddNeighbourIsSymmetricOnlyWhenCalledOnBothEnds(t *testing.T) {
	fn := newTestFunction()
	a := NewLiveRange(fn, opcode.SzQword)
	b := NewLiveRange(fn, opcode.SzQword)

	a.AddNeighbour(b)
	b.AddNeighbour(a)

	if !a.Interferes(b) || !b.Interferes(a) {
		t.Error("expected a and b to mutually interfere")
	}
	if a.Degree() != 1 || b.Degree() != 1 {
		t.Errorf("a.Degree()=%d b.Degree()=%d, want 1 each", a.Degree(), b.Degree())
	}

	// A self-neighbour must never be recorded.
	a.AddNeighbour(a)
	if a.Interferes(a) {
		t.Error("a must not interfere with itself")
	}
}

func TestPinInfiniteSetsMaxSpillCost(t *testing.T) {
	fn := newTestFunction()
	lr := NewLiveRange(fn, opcode.SzQword)
	lr.PinInfinite()
	if lr.SpillCost() != math.MaxFloat64 {
		t.Errorf("SpillCost() = %v, want math.MaxFloat64", lr.SpillCost())
	}
}

func TestMergeSourceSurvives(t *testing.T) {
	fn := newTestFunction()
	src := NewLiveRange(fn, opcode.SzQword)
	dst := NewLiveRange(fn, opcode.SzQword)
	other := NewLiveRange(fn, opcode.SzQword)

	vSrc := &Variable{id: 1}
	vDst := &Variable{id: 2}
	src.AddMember(vSrc)
	dst.AddMember(vDst)

	// dst interferes with a third range; after the merge, src must inherit that edge and other must
	// no longer point at the now-dead dst.
	dst.AddNeighbour(other)
	other.AddNeighbour(dst)

	src.Merge(dst)

	found := false
	for _, m := range src.Members() {
		if m == vDst {
			found = true
		}
	}
	if !found {
		t.Error("src.Members() must include dst's former member after Merge")
	}
	if !src.Interferes(other) {
		t.Error("src must inherit dst's interference edges after Merge")
	}
	stillPointsAtDst := false
	for _, n := range other.Neighbours() {
		if n == dst {
			stillPointsAtDst = true
		}
	}
	if stillPointsAtDst {
		t.Error("other must not still reference dst after the merge retires it")
	}
	if len(dst.Members()) != 0 || len(dst.Neighbours()) != 0 {
		t.Error("dst should be left empty after being merged away")
	}
}

func TestPrecolorSetsRegisterAndFlag(t *testing.T) {
	fn := newTestFunction()
	lr := NewLiveRange(fn, opcode.SzQword)
	reg := fakeRegister{name: "rax"}
	lr.Precolor(reg)
	if !lr.IsPrecolored() {
		t.Error("IsPrecolored() == false after Precolor")
	}
	if lr.Register() != reg {
		t.Errorf("Register() = %v, want %v", lr.Register(), reg)
	}
}

type fakeRegister struct {
	name string
}

func (r fakeRegister) Name() string   { return r.name }
func (r fakeRegister) IsFloat() bool  { return false }
func (r fakeRegister) CalleeSaved() bool { return false }

var _ Register = fakeRegister{}
