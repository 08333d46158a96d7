package vm

import "testing"

func TestStackPushPopOrder(t *testing.T) {
	s := NewStack[int]()
	assert(t, s.IsEmpty(), "expected empty stack")
	s.Push(1)
	s.Push(2)
	s.Push(3)
	assert(t, s.Size() == 3, "expected size 3, got %d", s.Size())

	v, ok := s.Pop()
	assert(t, ok && v == 3, "expected 3, got %d ok=%v", v, ok)
	v, ok = s.Pop()
	assert(t, ok && v == 2, "expected 2, got %d ok=%v", v, ok)

	assert(t, s.Swap() == false, "swap on a 1-element stack should fail")
}

func TestStackSwap(t *testing.T) {
	s := NewStack[int]()
	s.Push(1)
	s.Push(2)
	assert(t, s.Swap(), "swap should succeed with 2 elements")
	v, _ := s.Pop()
	assert(t, v == 1, "expected top to be 1 after swap, got %d", v)
}

func TestMemoryAllocateReadWrite(t *testing.T) {
	m := NewMemory[int]()
	base := m.Allocate(3)
	assert(t, base == 0, "expected first allocation to start at 0, got %d", base)

	m.WriteAt(0, 0)
	m.SetAddress(0)
	assert(t, m.Write(42) == nil, "write to allocated cell should succeed")

	v, err := m.Read()
	assert(t, err == nil && v == 42, "expected 42, got %d err=%v", v, err)

	m.SetAddress(99)
	_, err = m.Read()
	assert(t, err == errMemoryOutOfRange, "expected out-of-range error, got %v", err)
}

func TestALUArithmetic(t *testing.T) {
	a := &ALU{A: 7, B: 2}
	a.Add()
	assert(t, a.Result == 9, "7+2 expected 9, got %d", a.Result)

	a.A, a.B = -7, 2
	assert(t, a.Div() == nil, "div should not error")
	assert(t, a.Result == -4, "floor(-7/2) expected -4, got %d", a.Result)

	a.A, a.B = -7, 2
	assert(t, a.Mod() == nil, "mod should not error")
	assert(t, a.Result == 1, "-7 mod 2 expected 1 (sign of divisor), got %d", a.Result)

	a.A, a.B = 5, 0
	assert(t, a.Div() == errDivideByZero, "div by zero should error")
}

func TestALUBooleanPolarity(t *testing.T) {
	a := &ALU{A: 3, B: 3}
	a.Equals()
	assert(t, a.Result == -1, "equals true expected -1, got %d", a.Result)

	a.A = 0
	a.NotA()
	assert(t, a.Result == 1, "not of 0 expected 1 (opposite polarity), got %d", a.Result)
}

func TestOpCodeStringRoundTrip(t *testing.T) {
	for name := range nameToOpCode {
		code, ok := OpCodeFromString(name)
		assert(t, ok, "expected %q to resolve to an opcode", name)
		assert(t, code.String() == name, "round trip mismatch for %q: got %q", name, code.String())
	}
}

func TestLexStringLiteral(t *testing.T) {
	tokens, err := Lex(`." hello world "`)
	assert(t, err == nil, "lex failed: %v", err)
	assert(t, len(tokens) == 2, "expected string token + EOF, got %d tokens", len(tokens))
	assert(t, tokens[0].Term == TermPrint, "expected TermPrint, got %v", tokens[0].Term)
	assert(t, tokens[0].Text == "hello world", "expected %q, got %q", "hello world", tokens[0].Text)
}

func TestLexUnterminatedString(t *testing.T) {
	_, err := Lex(`." hello`)
	assert(t, err != nil, "expected an error for an unterminated string")
}

func TestParseRejectsReservedVariableName(t *testing.T) {
	tokens, err := Lex("variable i")
	assert(t, err == nil, "lex failed: %v", err)
	_, err = Parse(tokens)
	assert(t, err != nil, "expected reserved-name error declaring variable named i")
}

func TestParseRejectsNestedLoop(t *testing.T) {
	tokens, err := Lex("begin begin key drop until until")
	assert(t, err == nil, "lex failed: %v", err)
	_, err = Parse(tokens)
	assert(t, err != nil, "expected nested-construct error")
}
