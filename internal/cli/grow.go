package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func (c *CLI) growCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grow <pages>",
		Short: "Reserve <pages> more pages for the region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid page count %q: %w", args[0], err)
			}

			prev, err := c.db.Grow(c.region, pages)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s grew from %d to %d pages\n", c.region, prev, prev+pages)
			return nil
		},
	}
}
