package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "corpusqa",
	Short:         "Question answering over a document corpus with a persistent answer cache",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(extractLocalCmd)
	rootCmd.AddCommand(syncIndexCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(serveCmd)
}
