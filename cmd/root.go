package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaharia-lab/devgate/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "devgate",
	Short: "Front server for the Vite app in development and production",
	Long: `devgate sits in front of the browser app. In development it proxies to the
Vite dev server and turns away browsers known to break local development.
In production it serves the built client bundle.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(NewServeCmd(config.Load))
	rootCmd.AddCommand(NewCheckUACmd())
	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewUpdateCmd())
}
