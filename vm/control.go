package vm

import (
	"github.com/sirupsen/logrus"
)

// ControlUnit drives the datapath one tick at a time: fetch always
// runs first, then the microprogram for the decoded opcode (chosen
// from the operand or no-operand table depending on whether the
// fetched instruction carries one) runs to completion.
type ControlUnit struct {
	DP     *DataPath
	Log    *logrus.Logger
	ticks  int
	instrs int
}

func NewControlUnit(dp *DataPath) *ControlUnit {
	return &ControlUnit{DP: dp, Log: logrus.StandardLogger()}
}

var fetchMicrocode = []Signal{
	InstructionMemorySignal{Op: IMSetAddress},
	InstructionMemorySignal{Op: IMRead},
	LatchSignal{Target: LatchIR},
	AluMuxASignal{Source: MuxFromIP},
	AluMuxBSignal{Source: MuxFromOne},
	AluSignal{Op: AluSetA},
	AluSignal{Op: AluSetB},
	AluSignal{Op: AluAdd},
	IPMuxSignal{Source: MuxFromALU},
	LatchSignal{Target: LatchIP},
}

func binaryALUMicrocode(op AluOp) []Signal {
	return []Signal{
		AluMuxBSignal{Source: MuxFromDS},
		AluMuxASignal{Source: MuxFromDS},
		AluSignal{Op: AluSetA},
		AluSignal{Op: AluSetB},
		AluSignal{Op: op},
		DSMuxSignal{Source: MuxFromALU},
		DataStackSignal{Op: DSPush},
	}
}

func unaryALUMicrocode(op AluOp, withOne bool) []Signal {
	sig := []Signal{AluMuxASignal{Source: MuxFromDS}}
	if withOne {
		sig = append(sig, AluMuxBSignal{Source: MuxFromOne})
	}
	sig = append(sig, AluSignal{Op: AluSetA})
	if withOne {
		sig = append(sig, AluSignal{Op: AluSetB})
	}
	sig = append(sig, AluSignal{Op: op})
	sig = append(sig, DSMuxSignal{Source: MuxFromALU}, DataStackSignal{Op: DSPush})
	return sig
}

var readMicrocode = []Signal{
	DataMemorySignal{Op: DMSetAddress},
	DataMemorySignal{Op: DMRead},
	DSMuxSignal{Source: MuxFromDM},
	DataStackSignal{Op: DSPush},
}

var saveMicrocode = []Signal{
	DataMemorySignal{Op: DMSetAddress},
	DMMuxSignal{Source: MuxFromDS},
	DataMemorySignal{Op: DMWrite},
}

func jumpMicrocode(op JumpOp) []Signal {
	sig := []Signal{
		AluMuxASignal{Source: MuxFromIM},
		AluMuxBSignal{Source: MuxFromZero},
		AluSignal{Op: AluSetA},
		AluSignal{Op: AluSetB},
		AluSignal{Op: AluAdd},
		IPMuxSignal{Source: MuxFromALU},
		JumpSignal{Op: op},
	}
	if op != JumpAlways {
		sig = append(sig, DataStackSignal{Op: DSPop})
	}
	return sig
}

// noOperandMicrocode holds the microprogram for each opcode when the
// fetched instruction carries no operand.
var noOperandMicrocode = map[OpCode][]Signal{
	OpAdd:  binaryALUMicrocode(AluAdd),
	OpSub:  binaryALUMicrocode(AluSub),
	OpMul:  binaryALUMicrocode(AluMul),
	OpDiv:  binaryALUMicrocode(AluDiv),
	OpMod:  binaryALUMicrocode(AluMod),
	OpEql:  binaryALUMicrocode(AluEquals),
	OpLess: binaryALUMicrocode(AluLess),
	OpLrg:  binaryALUMicrocode(AluGreater),
	OpComp: binaryALUMicrocode(AluComp),
	OpInc:  unaryALUMicrocode(AluAdd, true),
	OpDec:  unaryALUMicrocode(AluSub, true),
	OpNot:  unaryALUMicrocode(AluNotA, false),
	OpDup: {
		DSMuxSignal{Source: MuxFromDS},
		DataStackSignal{Op: DSPush},
	},
	OpSwap: {DataStackSignal{Op: DSSwap}},
	OpPop:  {DataStackSignal{Op: DSPop}},
	OpRead: readMicrocode,
	OpSave: saveMicrocode,
	OpRet: {
		IPMuxSignal{Source: MuxFromRS},
		LatchSignal{Target: LatchIP},
		ReturnStackSignal{Op: RSPop},
	},
	OpHlt: {ControlSignal{Op: CtrlHalt}},
	OpNop: {ControlSignal{Op: CtrlNop}},
}

// oneOperandMicrocode holds the microprogram for opcodes that carry a
// literal operand (push always; read/save/jmp/jmz/jnz when assembled
// with one).
var oneOperandMicrocode = map[OpCode][]Signal{
	OpPush: {
		AluMuxASignal{Source: MuxFromIM},
		AluMuxBSignal{Source: MuxFromZero},
		AluSignal{Op: AluSetA},
		AluSignal{Op: AluSetB},
		AluSignal{Op: AluAdd},
		DSMuxSignal{Source: MuxFromALU},
		DataStackSignal{Op: DSPush},
	},
	OpRead: readMicrocode,
	OpSave: saveMicrocode,
	OpJmp:  jumpMicrocode(JumpAlways),
	OpJmz:  jumpMicrocode(JumpIfZero),
	OpJnz:  jumpMicrocode(JumpIfNotZero),
}

func runMicrocode(dp *DataPath, program []Signal) error {
	for _, sig := range program {
		if err := sig.Apply(dp); err != nil {
			return err
		}
	}
	return nil
}

// Tick executes one full fetch-decode-execute cycle: the fetch
// microcode always runs, then the microprogram matching the decoded
// opcode (looked up in the operand or no-operand table depending on
// whether this instruction carries one).
func (c *ControlUnit) Tick() error {
	if err := runMicrocode(c.DP, fetchMicrocode); err != nil {
		return err
	}
	c.ticks++

	ir := c.DP.IR
	table := noOperandMicrocode
	if ir.HasOperand {
		table = oneOperandMicrocode
	}

	program, ok := table[ir.OpCode]
	if !ok {
		return errUnknownOpcode
	}

	if err := runMicrocode(c.DP, program); err != nil {
		return err
	}
	c.instrs++

	if c.Log.IsLevelEnabled(logrus.DebugLevel) {
		c.Log.WithFields(logrus.Fields{
			"tick":      c.ticks,
			"ip":        c.DP.IP,
			"opcode":    ir.OpCode.String(),
			"ds_size":   c.DP.DataStack.Size(),
			"rs_size":   c.DP.ReturnStack.Size(),
			"alu":       c.DP.ALU.Result,
			"out_bytes": len(c.DP.OutputBuffer),
		}).Debug("tick")
	}

	return nil
}

func (c *ControlUnit) TickCount() int {
	return c.ticks
}

func (c *ControlUnit) InstructionCount() int {
	return c.instrs
}
