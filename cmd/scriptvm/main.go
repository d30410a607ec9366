// Command scriptvm is a small operator-facing CLI for the script execution
// engine: run a contract script against a throwaway in-memory registry, or
// just transform it and inspect the instrumented source. It plays the same
// role the teacher's vm-cli played for the wazero VM.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logger *slog.Logger

var rootCmd = &cobra.Command{
	Use:   "scriptvm",
	Short: "Script execution engine command line tool",
	Long: `scriptvm runs and instruments sandboxed smart contract scripts.
Complete documentation is available at https://github.com/chainkit/scriptvm`,
}

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(transformCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
