package vm

// DataPath is the machine's datapath: the two stacks, the two
// memories, the ALU, and the latches/muxes microcode steps through to
// move values between them. Every category of control signal below is
// a small type implementing Apply — the idiomatic replacement for a
// runtime type-keyed dispatch table: Go's type system already knows
// which apply to call, so no dispatch map is needed.
type DataPath struct {
	DataMemory  *Memory[int]
	InstrMemory *Memory[Instruction]
	DataStack   *Stack[int]
	ReturnStack *Stack[int]
	ALU         ALU

	InputBuffer  []int
	OutputBuffer []int

	IP       int
	IR       Instruction
	ExitFlag bool

	ipMuxVal    int
	dsMuxVal    int
	dmMuxVal    int
	aluMuxAVal  int
	aluMuxBVal  int
}

func NewDataPath() *DataPath {
	return &DataPath{
		DataMemory:  NewMemory[int](),
		InstrMemory: NewMemory[Instruction](),
		DataStack:   NewStack[int](),
		ReturnStack: NewStack[int](),
	}
}

// Signal is one microcode step. Every signal category below
// implements it; ControlUnit's microcode tables are just ordered
// []Signal programs.
type Signal interface {
	Apply(dp *DataPath) error
}

// --- data stack ---

type DataStackOp int

const (
	DSPush DataStackOp = iota
	DSPop
	DSSwap
)

type DataStackSignal struct{ Op DataStackOp }

func (s DataStackSignal) Apply(dp *DataPath) error {
	switch s.Op {
	case DSPush:
		dp.DataStack.Push(dp.dsMuxVal)
		return nil
	case DSPop:
		if _, ok := dp.DataStack.Pop(); !ok {
			return errStackUnderflow
		}
		return nil
	case DSSwap:
		if !dp.DataStack.Swap() {
			return errStackUnderflow
		}
		return nil
	}
	return nil
}

// --- return stack ---

type ReturnStackOp int

const (
	RSPush ReturnStackOp = iota
	RSPop
)

// ReturnStackSignal.Push always pushes the current instruction
// pointer — the only value ever placed on the return stack.
type ReturnStackSignal struct{ Op ReturnStackOp }

func (s ReturnStackSignal) Apply(dp *DataPath) error {
	switch s.Op {
	case RSPush:
		dp.ReturnStack.Push(dp.IP)
		return nil
	case RSPop:
		if _, ok := dp.ReturnStack.Pop(); !ok {
			return errStackUnderflow
		}
		return nil
	}
	return nil
}

// --- data memory ---

type DataMemoryOp int

const (
	DMSetAddress DataMemoryOp = iota
	DMRead
	DMWrite
)

// DataMemorySignal implements the memory-mapped I/O convention: address
// 0 (INPUT) is read-only and draws from the input buffer, address 1
// (OUTPUT) is write-only and appends to the output buffer.
type DataMemorySignal struct{ Op DataMemoryOp }

func (s DataMemorySignal) Apply(dp *DataPath) error {
	switch s.Op {
	case DMSetAddress:
		if dp.IR.HasOperand {
			dp.DataMemory.SetAddress(dp.IR.Operand)
			return nil
		}
		addr, ok := dp.DataStack.Pop()
		if !ok {
			return errStackUnderflow
		}
		dp.DataMemory.SetAddress(addr)
		return nil
	case DMWrite:
		addr := dp.DataMemory.AddressRegister()
		if addr == AddrInput {
			return errForbiddenIO
		}
		if addr == AddrOutput {
			dp.OutputBuffer = append(dp.OutputBuffer, dp.dmMuxVal)
			return nil
		}
		return dp.DataMemory.Write(dp.dmMuxVal)
	case DMRead:
		addr := dp.DataMemory.AddressRegister()
		if addr == AddrOutput {
			return errForbiddenIO
		}
		if addr == AddrInput {
			if len(dp.InputBuffer) == 0 {
				return errInputExhausted
			}
			v := dp.InputBuffer[0]
			dp.InputBuffer = dp.InputBuffer[1:]
			dp.DataMemory.WriteAt(AddrInput, v)
			dp.DataMemory.SetAddress(AddrInput)
			_, err := dp.DataMemory.Read()
			return err
		}
		_, err := dp.DataMemory.Read()
		return err
	}
	return nil
}

// --- instruction memory ---

type InstructionMemoryOp int

const (
	IMSetAddress InstructionMemoryOp = iota
	IMRead
)

type InstructionMemorySignal struct{ Op InstructionMemoryOp }

func (s InstructionMemorySignal) Apply(dp *DataPath) error {
	switch s.Op {
	case IMSetAddress:
		dp.InstrMemory.SetAddress(dp.IP)
		return nil
	case IMRead:
		_, err := dp.InstrMemory.Read()
		return err
	}
	return nil
}

// --- latches ---

type LatchTarget int

const (
	LatchIP LatchTarget = iota
	LatchIR
)

type LatchSignal struct{ Target LatchTarget }

func (s LatchSignal) Apply(dp *DataPath) error {
	switch s.Target {
	case LatchIP:
		dp.IP = dp.ipMuxVal
	case LatchIR:
		dp.IR = dp.InstrMemory.DataRegister()
	}
	return nil
}

// --- muxes ---

type MuxSource int

const (
	MuxFromIP MuxSource = iota
	MuxFromDS
	MuxFromRS
	MuxFromDM
	MuxFromALU
	MuxFromIM
	MuxFromZero
	MuxFromOne
)

type IPMuxSignal struct{ Source MuxSource }

func (s IPMuxSignal) Apply(dp *DataPath) error {
	switch s.Source {
	case MuxFromIP:
		dp.ipMuxVal = dp.IP
	case MuxFromDS:
		v, ok := dp.DataStack.Peek()
		if !ok {
			return errStackUnderflow
		}
		dp.ipMuxVal = v
	case MuxFromRS:
		v, ok := dp.ReturnStack.Peek()
		if !ok {
			return errStackUnderflow
		}
		dp.ipMuxVal = v
	case MuxFromALU:
		dp.ipMuxVal = dp.ALU.Result
	}
	return nil
}

type DSMuxSignal struct{ Source MuxSource }

func (s DSMuxSignal) Apply(dp *DataPath) error {
	switch s.Source {
	case MuxFromDS:
		v, ok := dp.DataStack.Peek()
		if !ok {
			return errStackUnderflow
		}
		dp.dsMuxVal = v
	case MuxFromDM:
		dp.dsMuxVal = dp.DataMemory.DataRegister()
	case MuxFromALU:
		dp.dsMuxVal = dp.ALU.Result
	}
	return nil
}

type DMMuxSignal struct{ Source MuxSource }

func (s DMMuxSignal) Apply(dp *DataPath) error {
	switch s.Source {
	case MuxFromDS:
		v, ok := dp.DataStack.Pop()
		if !ok {
			return errStackUnderflow
		}
		dp.dmMuxVal = v
	case MuxFromALU:
		dp.dmMuxVal = dp.ALU.Result
	}
	return nil
}

type AluMuxASignal struct{ Source MuxSource }

func (s AluMuxASignal) Apply(dp *DataPath) error {
	switch s.Source {
	case MuxFromDS:
		v, ok := dp.DataStack.Pop()
		if !ok {
			return errStackUnderflow
		}
		dp.aluMuxAVal = v
	case MuxFromIM:
		dp.aluMuxAVal = dp.IR.Operand
	case MuxFromIP:
		dp.aluMuxAVal = dp.IP
	case MuxFromALU:
		dp.aluMuxAVal = dp.ALU.Result
	case MuxFromZero:
		dp.aluMuxAVal = 0
	case MuxFromOne:
		dp.aluMuxAVal = 1
	}
	return nil
}

type AluMuxBSignal struct{ Source MuxSource }

func (s AluMuxBSignal) Apply(dp *DataPath) error {
	switch s.Source {
	case MuxFromDS:
		v, ok := dp.DataStack.Pop()
		if !ok {
			return errStackUnderflow
		}
		dp.aluMuxBVal = v
	case MuxFromIM:
		dp.aluMuxBVal = dp.IR.Operand
	case MuxFromZero:
		dp.aluMuxBVal = 0
	case MuxFromOne:
		dp.aluMuxBVal = 1
	}
	return nil
}

// --- ALU control ---

type AluOp int

const (
	AluSetA AluOp = iota
	AluSetB
	AluAdd
	AluSub
	AluMul
	AluDiv
	AluMod
	AluComp
	AluEquals
	AluLess
	AluGreater
	AluNotA
	AluNotB
)

type AluSignal struct{ Op AluOp }

func (s AluSignal) Apply(dp *DataPath) error {
	switch s.Op {
	case AluSetA:
		dp.ALU.A = dp.aluMuxAVal
	case AluSetB:
		dp.ALU.B = dp.aluMuxBVal
	case AluAdd:
		dp.ALU.Add()
	case AluSub:
		dp.ALU.Sub()
	case AluMul:
		dp.ALU.Mul()
	case AluDiv:
		return dp.ALU.Div()
	case AluMod:
		return dp.ALU.Mod()
	case AluComp:
		dp.ALU.Compare()
	case AluEquals:
		dp.ALU.Equals()
	case AluLess:
		dp.ALU.Less()
	case AluGreater:
		dp.ALU.Greater()
	case AluNotA:
		dp.ALU.NotA()
	case AluNotB:
		dp.ALU.NotB()
	}
	return nil
}

// --- control ---

type ControlOp int

const (
	CtrlHalt ControlOp = iota
	CtrlNop
)

type ControlSignal struct{ Op ControlOp }

func (s ControlSignal) Apply(dp *DataPath) error {
	if s.Op == CtrlHalt {
		dp.ExitFlag = true
	}
	return nil
}

// --- jumps ---

type JumpOp int

const (
	JumpAlways JumpOp = iota
	JumpIfZero
	JumpIfNotZero
)

// JumpSignal implements the jump-as-call design: every variant pushes
// the current instruction pointer onto the return stack before
// (conditionally) overwriting it with the mux-selected target, which
// is why `ret` works uniformly as the one return mechanism.
type JumpSignal struct{ Op JumpOp }

func (s JumpSignal) Apply(dp *DataPath) error {
	dp.ReturnStack.Push(dp.IP)

	take := true
	if s.Op != JumpAlways {
		top, ok := dp.DataStack.Peek()
		if !ok {
			return errStackUnderflow
		}
		if s.Op == JumpIfZero {
			take = top == 0
		} else {
			take = top != 0
		}
	}

	if take {
		dp.IP = dp.ipMuxVal
	}
	return nil
}
