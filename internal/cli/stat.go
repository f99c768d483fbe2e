package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Show image, region and cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.db.Stat()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "image:   %s\n", st.ImageID)
			fmt.Fprintf(out, "backend: %s\n", st.Backend)
			fmt.Fprintf(out, "pages:   %d\n", st.PhysicalPages)
			fmt.Fprintf(out, "cache:   %d hits, %d misses, %d nodes\n\n", st.Cache.Hits, st.Cache.Misses, st.Cache.Len)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REGION\tID\tPAGES\tENTRIES\tUSED")
			for _, r := range st.Regions {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", r.Name, r.ID, r.Pages, r.Entries, r.Used)
			}
			return w.Flush()
		},
	}
}

func (c *CLI) regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List configured regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range c.cfg.RegionNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, c.cfg.Regions[name])
			}
			return nil
		},
	}
}

func (c *CLI) verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the structure of every region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.db.Verify(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
