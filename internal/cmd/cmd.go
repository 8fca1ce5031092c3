package cmd

import (
	"github.com/spf13/cobra"
)

// NewDuskDBCmd returns the root "sdb-cli" command; subcommands attach
// themselves via cmd.AddCommand in cmd/sdb-cli/main.go.
func NewDuskDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sdb-cli",
		Short: "Command-line client for a duskdb server",
	}
	cmd.PersistentFlags().String("host", "localhost", "Server host address")
	cmd.PersistentFlags().IntP("port", "p", 5454, "Server port number")
	return cmd
}
