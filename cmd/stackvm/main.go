package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stackvm/vm"
)

func main() {
	var trace bool
	var debugMode bool

	rootCmd := &cobra.Command{
		Use:   "stackvm <object> <input> <output>",
		Short: "Run a stack-machine object file against an input file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return simulate(args[0], args[1], args[2], trace, debugMode)
		},
	}
	rootCmd.Flags().BoolVar(&trace, "trace", false, "log every tick at debug level")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "drop into the single-step debugger instead of free-running")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func simulate(objectPath, inputPath, outputPath string, trace, debugMode bool) error {
	raw, err := os.ReadFile(objectPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", objectPath, err)
	}
	obj, err := vm.DecodeObjectFile(raw)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", objectPath, err)
	}

	input, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", inputPath, err)
	}

	log := logrus.StandardLogger()
	if trace {
		log.SetLevel(logrus.DebugLevel)
	}

	if debugMode {
		return runDebugMode(obj, input, outputPath, log)
	}

	output, err := vm.Simulate(obj, input, log)
	if err != nil {
		return fmt.Errorf("simulating %s: %w", objectPath, err)
	}

	if err := os.WriteFile(outputPath, output, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outputPath, err)
	}

	fmt.Printf("%s -> %s (%d bytes)\n", objectPath, outputPath, len(output))
	return nil
}

// runDebugMode wires the object file and input directly into a fresh
// control unit and hands control to the single-step REPL, since that
// path needs the datapath alive for inspection rather than a one-shot
// output buffer.
func runDebugMode(obj *vm.ObjectFile, input []byte, outputPath string, log *logrus.Logger) error {
	dp, cu := vm.NewDebugSession(obj, input, log)
	if err := vm.RunDebug(cu); err != nil {
		return err
	}
	return os.WriteFile(outputPath, vm.DrainOutput(dp), 0o644)
}
