package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <region>",
		Short: "Drop every entry of <region> and release its pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.db.Forget(args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s forgotten\n", args[0])
			return nil
		},
	}
}
