package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chainkit/scriptvm/api"
	"github.com/chainkit/scriptvm/engine"
)

var transformStrict bool

var transformCmd = &cobra.Command{
	Use:   "transform <file>",
	Short: "Instrument a contract script and print the traceable source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read source file: %w", err)
		}

		reg := newLocalRegistry()
		vm, err := api.New(reg)
		if err != nil {
			return fmt.Errorf("create vm: %w", err)
		}
		eng, err := vm.CreateEngine(engine.Config{})
		if err != nil {
			return fmt.Errorf("create engine: %w", err)
		}
		defer eng.DeleteEngine()

		res, err := eng.TransformSource(string(source), transformStrict)
		if err != nil {
			return fmt.Errorf("transform source: %w", err)
		}

		fmt.Printf("// lineOffset: %d\n", res.LineOffset)
		fmt.Println(res.Source)
		return nil
	},
}

func init() {
	transformCmd.Flags().BoolVar(&transformStrict, "strict", false, "reject nondeterministic calls while instrumenting")
}
