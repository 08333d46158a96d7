package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stackvm/vm"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stackasm <source> <object>",
		Short: "Translate stack-machine source into a JSON object file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return translate(args[0], args[1])
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func translate(sourcePath, objectPath string) error {
	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", sourcePath, err)
	}

	obj, err := vm.Translate(string(source))
	if err != nil {
		return fmt.Errorf("translating %s: %w", sourcePath, err)
	}

	encoded, err := vm.EncodeObjectFile(obj)
	if err != nil {
		return fmt.Errorf("encoding object file: %w", err)
	}

	if err := os.WriteFile(objectPath, encoded, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", objectPath, err)
	}

	fmt.Printf("%s -> %s (%d instructions, %d memory regions)\n",
		sourcePath, objectPath, len(obj.Instructions), len(obj.Memory))
	return nil
}
