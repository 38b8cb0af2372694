package opcode

import "testing"

func TestOpString(t *testing.T) {
	cases := []struct {
		op   Op
		want string
	}{
		{Mov, "mov"},
		{Add, "add"},
		{JmpTable, "jmptable"},
		{CallIndirect, "callq_indirect"},
	}
	for _, c := range cases {
		if got := c.op.String(); got != c.want {
			t.Errorf("Op(%d).String() = %q, want %q", c.op, got, c.want)
		}
	}
}

func TestOpStringPanicsOnUnknownTag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range Op tag")
		}
	}()
	_ = Op(255).String()
}

func TestWidthSuffixAndBytes(t *testing.T) {
	cases := []struct {
		w      Width
		suffix string
		bytes  int
	}{
		{Byte, "b", 1},
		{Word, "w", 2},
		{Long, "l", 4},
		{Quad, "q", 8},
	}
	for _, c := range cases {
		if got := c.w.Suffix(); got != c.suffix {
			t.Errorf("Width(%d).Suffix() = %q, want %q", c.w, got, c.suffix)
		}
		if got := c.w.Bytes(); got != c.bytes {
			t.Errorf("Width(%d).Bytes() = %d, want %d", c.w, got, c.bytes)
		}
	}
}

func TestSizeBytesAndIsFloat(t *testing.T) {
	cases := []struct {
		s       Size
		bytes   int
		isFloat bool
	}{
		{SzByte, 1, false},
		{SzWord, 2, false},
		{SzDword, 4, false},
		{SzQword, 8, false},
		{SzSSESingle, 4, true},
		{SzSSEDouble, 8, true},
	}
	for _, c := range cases {
		if got := c.s.Bytes(); got != c.bytes {
			t.Errorf("Size(%d).Bytes() = %d, want %d", c.s, got, c.bytes)
		}
		if got := c.s.IsFloat(); got != c.isFloat {
			t.Errorf("Size(%d).IsFloat() = %v, want %v", c.s, got, c.isFloat)
		}
	}
}

func TestCondInvertIsInvolution(t *testing.T) {
	conds := []Cond{Equal, NotEqual, Less, LessEqual, Greater, GreaterEqual}
	for _, c := range conds {
		inv := c.Invert()
		if inv.Invert() != c {
			t.Errorf("Cond(%d).Invert().Invert() != original", c)
		}
		if inv == c {
			t.Errorf("Cond(%d).Invert() returned itself", c)
		}
	}
}

func TestCondString(t *testing.T) {
	cases := map[Cond]string{
		Equal: "e", NotEqual: "ne", Less: "l", LessEqual: "le", Greater: "g", GreaterEqual: "ge",
	}
	for c, want := range cases {
		if got := c.String(); got != want {
			t.Errorf("Cond(%d).String() = %q, want %q", c, got, want)
		}
	}
}

func TestIsTerminator(t *testing.T) {
	terminators := []Op{Jmp, Jcc, Ret, JmpTable}
	for _, op := range terminators {
		if !op.IsTerminator() {
			t.Errorf("%s: expected IsTerminator() == true", op)
		}
	}
	nonTerminators := []Op{Mov, Add, Call, CallIndirect, Push, Pop}
	for _, op := range nonTerminators {
		if op.IsTerminator() {
			t.Errorf("%s: expected IsTerminator() == false", op)
		}
	}
}

func TestIsMove(t *testing.T) {
	if !Mov.IsMove() {
		t.Error("Mov.IsMove() == false")
	}
	if Add.IsMove() {
		t.Error("Add.IsMove() == true")
	}
}
