package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve value associated with <key>",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			val, err := c.db.Get(c.region, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(val))
			return nil
		},
	}
}
