package cli

import (
	"github.com/spf13/cobra"
)

func (c *CLI) exitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exit",
		Short: "Close the database and leave the repl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.quit = true
			return c.Close()
		},
	}
}
