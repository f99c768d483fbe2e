package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store <value> under <key>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.db.Set(c.region, args[0], []byte(args[1])); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s stored\n", args[0])
			return nil
		},
	}
}
