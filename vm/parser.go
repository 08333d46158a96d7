package vm

import "fmt"

// AsmLine is one not-yet-addressed line of assembly: a mnemonic plus
// an optional symbolic or numeric argument, resolved to a concrete
// address by the assembler.
type AsmLine struct {
	Op  string
	Arg string
}

// VariableDecl is a `variable NAME [n allot]` declaration.
type VariableDecl struct {
	Name string
	Size int
}

// Program is the parser's output: the flat lowering of a source
// program's terms, ready for address resolution by the assembler.
// LabelOrder records the order labels were first defined in, since
// the assembler assigns fragment addresses in definition order.
type Program struct {
	Variables  []VariableDecl
	Code       []AsmLine
	Labels     map[string][]AsmLine
	LabelOrder []string
}

// termsToInstructions lowers single built-in words to one or more
// assembly lines; control-flow words (if/do/begin/:/variable/."...")
// are handled by the parser state machine below instead.
var termsToInstructions = map[Term][]AsmLine{
	TermEq:    {{Op: "eql"}},
	TermLt:    {{Op: "less"}},
	TermGt:    {{Op: "lrg"}},
	TermDup:   {{Op: "dup"}},
	TermDrop:  {{Op: "pop"}},
	TermPlus:  {{Op: "add"}},
	TermMinus: {{Op: "sub"}},
	TermStar:  {{Op: "mul"}},
	TermSlash: {{Op: "div"}},
	TermMod:   {{Op: "mod"}},
	TermNot:   {{Op: "not"}},
	TermKey:   {{Op: "read", Arg: VarInput}},
	TermSwap:  {{Op: "swap"}},
	TermStore: {{Op: "save"}},
	TermFetch: {{Op: "read"}},
	TermQuery: {
		{Op: "read"},
		{Op: "save", Arg: VarOutTemp},
		{Op: "push", Arg: "0"},
		{Op: "jmp", Arg: LabelNumberPrepare},
		{Op: "jmp", Arg: LabelNumberPrint},
	},
	TermDot: {
		{Op: "save", Arg: VarOutTemp},
		{Op: "push", Arg: "0"},
		{Op: "jmp", Arg: LabelNumberPrepare},
		{Op: "jmp", Arg: LabelNumberPrint},
	},
	TermEmit: {{Op: "save", Arg: VarOutput}},
	TermCR: {
		{Op: "push", Arg: "13"},
		{Op: "save", Arg: VarOutput},
	},
	TermNopWord: {{Op: "nop"}},
}

// builtinNumberPrepare converts the value stashed at out_temp into a
// run of ASCII digit codes pushed onto the data stack, most
// significant digit on top, terminated below by the sentinel 0 the
// caller pushed before jumping here. Looping back to its own label is
// safe because the sentinel push lives in the caller, not in this
// fragment.
var builtinNumberPrepare = []AsmLine{
	{Op: "read", Arg: VarOutTemp},
	{Op: "dup"},
	{Op: "push", Arg: "10"},
	{Op: "mod"},
	{Op: "push", Arg: "48"},
	{Op: "add"},
	{Op: "swap"},
	{Op: "push", Arg: "10"},
	{Op: "div"},
	{Op: "save", Arg: VarOutTemp},
	{Op: "read", Arg: VarOutTemp},
	{Op: "push", Arg: "0"},
	{Op: "eql"},
	{Op: "jmz", Arg: LabelNumberPrepare},
	{Op: "ret"},
}

// builtinNumberPrint pops and emits each digit left by
// builtinNumberPrepare, the sentinel 0 included, and returns once it
// has emitted the 0; drainOutput drops that 0 byte from the output.
// The back-edge jnz is followed directly by ret, so every return
// address it pushes unwinds through that ret.
var builtinNumberPrint = []AsmLine{
	{Op: "dup"},
	{Op: "save", Arg: VarOutput},
	{Op: "jnz", Arg: LabelNumberPrint},
	{Op: "ret"},
}

type parser struct {
	tokens []Token
	pos    int

	variables  []VariableDecl
	seenNames  map[string]bool
	code       []AsmLine
	labels     map[string][]AsmLine
	labelOrder []string

	depth      int // nesting depth of if/begin/do
	inFunction bool

	ifCounter   int
	loopCounter int
}

func (p *parser) addLabel(name string, lines []AsmLine) {
	if _, exists := p.labels[name]; !exists {
		p.labelOrder = append(p.labelOrder, name)
	}
	p.labels[name] = lines
}

// Parse lowers a token stream into a Program. It enforces: no
// re-declaration of reserved names, no nested function/condition/loop
// constructs, variable declarations only at the top level, and no
// string literal inside a condition or loop.
func Parse(tokens []Token) (*Program, error) {
	p := &parser{
		tokens:    tokens,
		seenNames: make(map[string]bool),
		labels:    make(map[string][]AsmLine),
	}
	p.addLabel(LabelNumberPrepare, builtinNumberPrepare)
	p.addLabel(LabelNumberPrint, builtinNumberPrint)

	if err := p.parseSequence(&p.code, false, false); err != nil {
		return nil, err
	}

	p.code = append(p.code, AsmLine{Op: "hlt"})

	return &Program{Variables: p.variables, Code: p.code, Labels: p.labels, LabelOrder: p.labelOrder}, nil
}

func (p *parser) peek() Token {
	return p.tokens[p.pos]
}

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Term != TermEOF {
		p.pos++
	}
	return t
}

func (p *parser) declareName(name string, tok Token) error {
	if isReservedName(name) {
		return fmt.Errorf("%w: %q at token %d", errReservedName, name, tok.Index)
	}
	p.seenNames[name] = true
	return nil
}

// parseSequence parses terms into out until EOF, `;`, `then`, `else`
// or `until`/`loop` (the caller decides which of those terminators it
// is waiting for via inControl/inLoop, which also gate the nesting and
// placement checks).
func (p *parser) parseSequence(out *[]AsmLine, inControl, inLoop bool) error {
	for {
		tok := p.peek()
		switch tok.Term {
		case TermEOF:
			return nil
		case TermSemicolon, TermThen, TermElse, TermUntil, TermLoop:
			return nil
		case TermVariable:
			if inControl || inLoop || p.inFunction {
				return fmt.Errorf("%w: at token %d", errVariableInControl, tok.Index)
			}
			p.next()
			if err := p.parseVariable(); err != nil {
				return err
			}
		case TermColon:
			if p.inFunction || p.depth > 0 {
				return fmt.Errorf("%w: at token %d", errNestedConstruct, tok.Index)
			}
			p.next()
			if err := p.parseFunction(); err != nil {
				return err
			}
		case TermIf:
			if p.depth > 0 {
				return fmt.Errorf("%w: at token %d", errNestedConstruct, tok.Index)
			}
			p.next()
			if err := p.parseIf(out); err != nil {
				return err
			}
		case TermBegin:
			if p.depth > 0 {
				return fmt.Errorf("%w: at token %d", errNestedConstruct, tok.Index)
			}
			p.next()
			if err := p.parseBegin(out); err != nil {
				return err
			}
		case TermDo:
			if p.depth > 0 {
				return fmt.Errorf("%w: at token %d", errNestedConstruct, tok.Index)
			}
			p.next()
			if err := p.parseDo(out); err != nil {
				return err
			}
		case TermLeave:
			if !inLoop {
				return fmt.Errorf("%w: leave outside loop at token %d", errUnbalancedControl, tok.Index)
			}
			p.next()
			// the original's `leave` copies `end`'s value into `i`'s
			// storage slot, forcing the loop epilogue's `less` check
			// to fail on the next iteration.
			*out = append(*out,
				AsmLine{Op: "push", Arg: VarEnd},
				AsmLine{Op: "read"},
				AsmLine{Op: "push", Arg: VarI},
				AsmLine{Op: "save"},
			)
		case TermPrint:
			if inControl || inLoop {
				return fmt.Errorf("%w: at token %d", errStringInControl, tok.Index)
			}
			p.next()
			*out = append(*out, stringLiteralLines(tok.Text)...)
		case TermNumber:
			p.next()
			*out = append(*out, AsmLine{Op: "push", Arg: fmt.Sprintf("%d", tok.Value)})
		case TermIdent:
			p.next()
			*out = append(*out, p.lowerIdent(tok)...)
		default:
			p.next()
			if lines, ok := termsToInstructions[tok.Term]; ok {
				*out = append(*out, lines...)
			} else {
				return fmt.Errorf("%w: %q at token %d", errUndefinedTerm, tok.Text, tok.Index)
			}
		}
	}
}

// lowerIdent lowers a bare identifier: a reserved or user-declared
// variable name pushes just its address (for a following @ or !);
// `NAME cells` pushes the address and immediately reads through it;
// anything else is a call to a `:`-defined word, lowered to a jump
// (jmp doubles as call — see JumpSignal).
func (p *parser) lowerIdent(tok Token) []AsmLine {
	if p.isVariableName(tok.Text) {
		if p.peek().Term == TermCells {
			p.next()
			return []AsmLine{{Op: "push", Arg: tok.Text}, {Op: "read"}}
		}
		return []AsmLine{{Op: "push", Arg: tok.Text}}
	}
	return []AsmLine{{Op: "jmp", Arg: tok.Text}}
}

// isVariableName reports whether name refers to a variable (reserved
// or user-declared) rather than a callable word.
func (p *parser) isVariableName(name string) bool {
	if isReservedName(name) || name == VarInput || name == VarOutput {
		return true
	}
	for _, v := range p.variables {
		if v.Name == name {
			return true
		}
	}
	return false
}

func stringLiteralLines(text string) []AsmLine {
	var lines []AsmLine
	for _, r := range text {
		lines = append(lines,
			AsmLine{Op: "push", Arg: fmt.Sprintf("%d", r)},
			AsmLine{Op: "save", Arg: VarOutput},
		)
	}
	lines = append(lines,
		AsmLine{Op: "push", Arg: "32"},
		AsmLine{Op: "save", Arg: VarOutput},
	)
	return lines
}

func (p *parser) parseVariable() error {
	nameTok := p.next()
	if nameTok.Term != TermIdent {
		return fmt.Errorf("%w: expected variable name at token %d", errUndefinedTerm, nameTok.Index)
	}
	if err := p.declareName(nameTok.Text, nameTok); err != nil {
		return err
	}

	size := 1
	// a number is only part of the declaration when `allot` follows it;
	// otherwise it is left in the stream as an ordinary literal push
	if p.peek().Term == TermNumber && p.tokens[p.pos+1].Term == TermAllot {
		n := p.next()
		p.next()
		size = n.Value
	}

	p.variables = append(p.variables, VariableDecl{Name: nameTok.Text, Size: size})
	return nil
}

func (p *parser) parseFunction() error {
	nameTok := p.next()
	if nameTok.Term != TermIdent {
		return fmt.Errorf("%w: expected word name at token %d", errUndefinedTerm, nameTok.Index)
	}
	if err := p.declareName(nameTok.Text, nameTok); err != nil {
		return err
	}

	p.inFunction = true
	var body []AsmLine
	err := p.parseSequence(&body, false, false)
	p.inFunction = false
	if err != nil {
		return err
	}

	if p.peek().Term != TermSemicolon {
		return fmt.Errorf("%w: missing ; at token %d", errUnbalancedControl, p.peek().Index)
	}
	p.next()

	body = append(body, AsmLine{Op: "ret"})
	p.addLabel(nameTok.Text, body)
	return nil
}

func (p *parser) parseIf(out *[]AsmLine) error {
	p.depth++
	p.ifCounter++
	n := p.ifCounter
	thenLabel := fmt.Sprintf("condition_then_%d", n)
	elseLabel := fmt.Sprintf("condition_else_%d", n)

	var thenBody []AsmLine
	if err := p.parseSequence(&thenBody, true, false); err != nil {
		p.depth--
		return err
	}

	hasElse := p.peek().Term == TermElse
	var elseBody []AsmLine
	if hasElse {
		p.next()
		if err := p.parseSequence(&elseBody, true, false); err != nil {
			p.depth--
			return err
		}
	}

	if p.peek().Term != TermThen {
		p.depth--
		return fmt.Errorf("%w: missing then at token %d", errUnbalancedControl, p.peek().Index)
	}
	p.next()
	p.depth--

	if hasElse {
		// The condition is duplicated: jnz takes the true branch, whose
		// fragment drops the leftover copy and leaves -1 in its place,
		// so on return the jmz skips the else fragment. On false, jnz
		// falls through and the jmz on the remaining 0 takes the else
		// fragment.
		thenBody = append([]AsmLine{{Op: "pop"}}, thenBody...)
		thenBody = append(thenBody, AsmLine{Op: "push", Arg: "-1"}, AsmLine{Op: "ret"})
		p.addLabel(thenLabel, thenBody)
		elseBody = append(elseBody, AsmLine{Op: "ret"})
		p.addLabel(elseLabel, elseBody)
		*out = append(*out, AsmLine{Op: "dup"}, AsmLine{Op: "jnz", Arg: thenLabel}, AsmLine{Op: "jmz", Arg: elseLabel})
	} else {
		thenBody = append(thenBody, AsmLine{Op: "ret"})
		p.addLabel(thenLabel, thenBody)
		// No else arm: false simply falls through to whatever follows
		// in the caller's code, skipping the then fragment entirely.
		*out = append(*out, AsmLine{Op: "jnz", Arg: thenLabel})
	}
	return nil
}

func (p *parser) parseBegin(out *[]AsmLine) error {
	p.depth++
	p.loopCounter++
	label := fmt.Sprintf("loop_begin_%d", p.loopCounter)

	var body []AsmLine
	if err := p.parseSequence(&body, false, true); err != nil {
		p.depth--
		return err
	}
	if p.peek().Term != TermUntil {
		p.depth--
		return fmt.Errorf("%w: missing until at token %d", errUnbalancedControl, p.peek().Index)
	}
	p.next()
	p.depth--

	body = append(body, AsmLine{Op: "jmz", Arg: label}, AsmLine{Op: "ret"})
	p.addLabel(label, body)
	*out = append(*out, AsmLine{Op: "jmp", Arg: label})
	return nil
}

func (p *parser) parseDo(out *[]AsmLine) error {
	p.depth++
	p.loopCounter++
	label := fmt.Sprintf("loop_do_%d", p.loopCounter)

	var body []AsmLine
	if err := p.parseSequence(&body, false, true); err != nil {
		p.depth--
		return err
	}
	if p.peek().Term != TermLoop {
		p.depth--
		return fmt.Errorf("%w: missing loop at token %d", errUnbalancedControl, p.peek().Index)
	}
	p.next()
	p.depth--

	// Epilogue: i++; if i < end, loop back; otherwise fall through to ret.
	body = append(body,
		AsmLine{Op: "push", Arg: VarI},
		AsmLine{Op: "read"},
		AsmLine{Op: "inc"},
		AsmLine{Op: "dup"},
		AsmLine{Op: "push", Arg: VarI},
		AsmLine{Op: "save"},
		AsmLine{Op: "push", Arg: VarEnd},
		AsmLine{Op: "read"},
		AsmLine{Op: "less"},
		AsmLine{Op: "jnz", Arg: label},
		AsmLine{Op: "ret"},
	)
	p.addLabel(label, body)

	*out = append(*out,
		AsmLine{Op: "save", Arg: VarI},
		AsmLine{Op: "save", Arg: VarEnd},
		AsmLine{Op: "jmp", Arg: label},
	)
	return nil
}
