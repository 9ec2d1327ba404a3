// Command tates replays scripted mutations against a State and prints what
// every subscriber receives.
//
//	tates replay script.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tates",
		Short:         "Inspect observed state deliveries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReplayCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tates:", err)
		os.Exit(1)
	}
}
