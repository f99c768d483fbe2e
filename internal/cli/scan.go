package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) scanCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "scan [start] [end]",
		Short: "List keys in [start, end) in order",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end string
			if len(args) > 0 {
				start = args[0]
			}
			if len(args) > 1 {
				end = args[1]
			}

			entries, err := c.db.Scan(c.region, start, end, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%s\n", e.Key, e.Value)
			}
			fmt.Fprintf(out, "(%d entries)\n", len(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entries (0 for all)")
	return cmd
}
