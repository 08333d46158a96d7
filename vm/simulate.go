package vm

import (
	"bufio"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Simulate loads an object file into a fresh datapath, feeds input as
// the machine's input buffer, runs to halt, and returns the drained
// output buffer. input is the raw byte content of the input file,
// plus a terminating 0, matching the convention machine.py's loader
// used for its input_buffer.
func Simulate(obj *ObjectFile, input []byte, log *logrus.Logger) ([]byte, error) {
	dp := NewDataPath()
	loadObjectFile(dp, obj)

	dp.InputBuffer = make([]int, 0, len(input)+1)
	for _, b := range input {
		dp.InputBuffer = append(dp.InputBuffer, int(b))
	}
	dp.InputBuffer = append(dp.InputBuffer, 0)

	cu := NewControlUnit(dp)
	if log != nil {
		cu.Log = log
	}

	// The fetch/execute loop is hot and short-lived; disabling GC for
	// its duration and restoring the configured target afterward
	// avoids paying for collections mid-run.
	prevGC := debug.SetGCPercent(-1)
	defer debug.SetGCPercent(prevGC)

	if err := run(cu); err != nil {
		return nil, fmt.Errorf("at tick %d (instruction %d): %w", cu.TickCount(), cu.InstructionCount(), err)
	}

	return drainOutput(dp), nil
}

// NewDebugSession builds a datapath and control unit from an object
// file and input, for callers (the debug CLI) that need to drive
// ticks interactively rather than run to completion in one call.
func NewDebugSession(obj *ObjectFile, input []byte, log *logrus.Logger) (*DataPath, *ControlUnit) {
	dp := NewDataPath()
	loadObjectFile(dp, obj)

	dp.InputBuffer = make([]int, 0, len(input)+1)
	for _, b := range input {
		dp.InputBuffer = append(dp.InputBuffer, int(b))
	}
	dp.InputBuffer = append(dp.InputBuffer, 0)

	cu := NewControlUnit(dp)
	if log != nil {
		cu.Log = log
	}
	return dp, cu
}

// DrainOutput renders a datapath's output buffer to bytes, the same
// way Simulate does for its return value.
func DrainOutput(dp *DataPath) []byte {
	return drainOutput(dp)
}

func loadObjectFile(dp *DataPath, obj *ObjectFile) {
	for _, region := range obj.Memory {
		for i := 0; i < region.Size; i++ {
			dp.DataMemory.WriteAt(region.Idx+i, 0)
		}
	}
	for _, ei := range obj.Instructions {
		instr := Instruction{}
		code, ok := OpCodeFromString(ei.OpCode)
		if ok {
			instr.OpCode = code
		}
		if ei.Operand != nil {
			instr.Operand = *ei.Operand
			instr.HasOperand = true
		}
		dp.InstrMemory.WriteAt(ei.Idx, instr)
	}
}

// drainOutput renders the output buffer to bytes, skipping sentinel
// zero bytes the way machine.py's simulate() does when writing the
// result file.
func drainOutput(dp *DataPath) []byte {
	out := make([]byte, 0, len(dp.OutputBuffer))
	for _, v := range dp.OutputBuffer {
		if v == 0 {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

func run(cu *ControlUnit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simulator panic: %v", r)
		}
	}()

	for !cu.DP.ExitFlag {
		if err := cu.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// RunDebug drives the simulator in a single-step REPL: n/next executes
// one tick, r/run free-runs, b/break <tick> toggles a breakpoint on a
// tick count. Modelled on the teacher's step-through debugger, adapted
// to report datapath state (stacks/ALU/IP) instead of registers.
func RunDebug(cu *ControlUnit) error {
	fmt.Println("Commands:\n\tn or next: execute next tick\n\tr or run: run to completion\n\tb or break <tick>: toggle breakpoint")
	printState(cu)

	reader := bufio.NewReader(os.Stdin)
	waitForInput := true
	breakAt := make(map[int]struct{})
	lastBreak := -1

	for {
		line := ""
		if waitForInput {
			fmt.Print("\n->")
			line, _ = reader.ReadString('\n')
			line = strings.ToLower(strings.TrimSpace(line))
		} else if _, ok := breakAt[cu.TickCount()]; ok && lastBreak != cu.TickCount() {
			fmt.Println("breakpoint")
			printState(cu)
			waitForInput = true
			lastBreak = cu.TickCount()
			continue
		}

		switch {
		case !waitForInput || line == "n" || line == "next":
			lastBreak = -1
			if err := cu.Tick(); err != nil {
				fmt.Println(err)
				return err
			}
			if waitForInput {
				printState(cu)
			}
			if cu.DP.ExitFlag {
				printState(cu)
				return nil
			}
		case line == "r" || line == "run":
			waitForInput = false
		case strings.HasPrefix(line, "b"):
			arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "break"), "b"))
			n, err := strconv.Atoi(arg)
			if err != nil {
				fmt.Println("unknown tick:", err)
				continue
			}
			if _, ok := breakAt[n]; ok {
				delete(breakAt, n)
			} else {
				breakAt[n] = struct{}{}
			}
		}
	}
}

func printState(cu *ControlUnit) {
	fmt.Printf("  ip> %d next> %s\n", cu.DP.IP, cu.DP.IR)
	fmt.Println("  ds>", cu.DP.DataStack.items)
	fmt.Println("  rs>", cu.DP.ReturnStack.items)
	fmt.Println("  alu>", cu.DP.ALU)
}
