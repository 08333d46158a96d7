package vm

import (
	"fmt"
	"strconv"
)

// Assemble resolves a Program's labels and variables to concrete
// addresses and emits the object file. Top-level code is addressed
// first starting at 0, then each labelled fragment in the order it
// was first defined — a fragment's label resolves to the address of
// its first instruction.
func Assemble(prog *Program) (*ObjectFile, error) {
	variableAddr := map[string]int{
		VarInput:   AddrInput,
		VarOutput:  AddrOutput,
		VarOutTemp: AddrOutTemp,
		VarI:       AddrI,
		VarEnd:     AddrEnd,
	}
	memory := []MemoryRegion{
		{Idx: AddrInput, Size: 1},
		{Idx: AddrOutput, Size: 1},
		{Idx: AddrOutTemp, Size: 1},
		{Idx: AddrI, Size: 1},
		{Idx: AddrEnd, Size: 1},
	}

	next := AddrFirstUser
	for _, v := range prog.Variables {
		if _, exists := variableAddr[v.Name]; exists {
			return nil, fmt.Errorf("%w: %q", errReservedName, v.Name)
		}
		size := v.Size
		if size < 1 {
			size = 1
		}
		variableAddr[v.Name] = next
		memory = append(memory, MemoryRegion{Idx: next, Size: size})
		next += size
	}

	labelAddr := make(map[string]int)
	addr := len(prog.Code)
	for _, name := range prog.LabelOrder {
		labelAddr[name] = addr
		addr += len(prog.Labels[name])
	}

	var encoded []EncodedInstruction
	idx := 0

	resolve := func(line AsmLine) (EncodedInstruction, error) {
		ei := EncodedInstruction{Idx: idx, OpCode: line.Op}
		if line.Arg == "" {
			return ei, nil
		}
		if n, err := strconv.Atoi(line.Arg); err == nil {
			ei.Operand = &n
			return ei, nil
		}
		if a, ok := variableAddr[line.Arg]; ok {
			ei.Operand = &a
			return ei, nil
		}
		if a, ok := labelAddr[line.Arg]; ok {
			ei.Operand = &a
			return ei, nil
		}
		return ei, fmt.Errorf("%w: %q", errUndefinedLabel, line.Arg)
	}

	for _, line := range prog.Code {
		ei, err := resolve(line)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, ei)
		idx++
	}
	for _, name := range prog.LabelOrder {
		for _, line := range prog.Labels[name] {
			ei, err := resolve(line)
			if err != nil {
				return nil, err
			}
			encoded = append(encoded, ei)
			idx++
		}
	}

	return &ObjectFile{Memory: memory, Instructions: encoded}, nil
}

// Translate runs the full pipeline — lex, parse, assemble — over a
// source program.
func Translate(source string) (*ObjectFile, error) {
	tokens, err := Lex(source)
	if err != nil {
		return nil, err
	}
	prog, err := Parse(tokens)
	if err != nil {
		return nil, err
	}
	return Assemble(prog)
}
