// Command docctl 提供索引与文档的运维命令。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "docctl",
		Short:         "Maintenance commands for the document organizer",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./configs/config.yaml", "path to config.yaml")

	root.AddCommand(
		newCreateIndexCmd(opts),
		newReindexCmd(opts),
		newImportCmd(opts),
	)
	return root
}
