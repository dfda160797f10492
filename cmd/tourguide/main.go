package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "tourguide",
		Short:         "Author and play guided tours of the block editor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newPlayCommand(),
		newCaptureCommand(),
		newTestCommand(),
		newConsoleCommand(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
