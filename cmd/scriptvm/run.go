package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/chainkit/scriptvm/api"
	"github.com/chainkit/scriptvm/engine"
	"github.com/chainkit/scriptvm/types"
)

var statusCaser = cases.Title(language.English)

var (
	runInstrument    bool
	runStrict        bool
	runMaxInstrs     uint64
	runTimeoutMicros uint64
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run a contract script against a local in-memory registry",
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

		eng, err := vm.CreateEngine(engine.Config{
			DefaultLimits: types.Limits{
				MaxInstructions: runMaxInstrs,
				TimeoutUS:       runTimeoutMicros,
			},
		})
		if err != nil {
			return fmt.Errorf("create engine: %w", err)
		}
		defer eng.DeleteEngine()

		filename := args[0]
		body := string(source)
		lineOffset := 0

		if runInstrument {
			res, err := eng.TransformSource(body, runStrict)
			if err != nil {
				return fmt.Errorf("transform source: %w", err)
			}
			body = res.Source
			lineOffset = res.LineOffset
		}

		result, err := eng.RunScript(filename, body, lineOffset, types.Handler(1))
		if err != nil {
			return fmt.Errorf("run script: %w", err)
		}

		fmt.Printf("status: %s\n", statusCaser.String(strings.ToLower(result.Status.String())))
		if result.Status == types.StatusSuccess {
			fmt.Printf("result: %v\n", result.Value)
			return nil
		}
		fmt.Print(result.Report.Formatted)
		fmt.Println()
		return fmt.Errorf("script did not complete successfully: %s", result.Status)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runInstrument, "instrument", true, "instrument the script with instruction counting before running")
	runCmd.Flags().BoolVar(&runStrict, "strict", false, "reject nondeterministic calls while instrumenting")
	runCmd.Flags().Uint64Var(&runMaxInstrs, "max-instructions", 0, "instruction limit (0 = unlimited)")
	runCmd.Flags().Uint64Var(&runTimeoutMicros, "timeout-us", types.DefaultTimeoutUS, "wall-clock timeout in microseconds")
}
