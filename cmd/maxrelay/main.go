// Command maxrelay runs the subscription OAuth gateway for the Anthropic
// Messages API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "maxrelay",
		Short: "OAuth subscription gateway for the Anthropic Messages API",
		Long: `maxrelay proxies Messages API requests, swapping the caller's shared
secret for a subscription OAuth credential that it refreshes as needed.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	root.AddCommand(newServeCmd(), newLoginCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
