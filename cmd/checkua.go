package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devgate/internal/compat"
)

// NewCheckUACmd returns the "check-ua" subcommand, which reports what the
// compatibility guard would do with a user agent.
func NewCheckUACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-ua [user-agent]",
		Short: "Show whether the dev server would turn away a browser",
		Long: `Run the browser compatibility guard against a user agent string and print the
decision. With no argument the request is checked without a user-agent header.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ua := ""
			if len(args) == 1 {
				ua = args[0]
			}
			d := compat.Classify(ua, len(args) == 1)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "decision: %s\n", d)
			if major, ok := compat.ChromiumMajor(ua); ok {
				fmt.Fprintf(out, "chromium: %d\n", major)
			}
			if d.Handled() {
				fmt.Fprintf(out, "blocked:  yes (serves %d-byte text/html page)\n", len(compat.Page))
			} else {
				fmt.Fprintln(out, "blocked:  no")
			}
			return nil
		},
	}
}
