package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var errNestedREPL = errors.New("already in a repl session")

// Starts an interactive command session
// Forwards commands to cobra
func (c *CLI) startREPL() error {
	if c.inREPL {
		return errNestedREPL
	}
	c.inREPL = true
	c.quit = false
	defer func() { c.inREPL = false }()

	reader := bufio.NewScanner(c.in)

	for !c.quit {
		fmt.Fprint(c.out, "stablemem> ")

		if !reader.Scan() {
			fmt.Fprintln(c.out)
			break
		}

		input := strings.TrimSpace(reader.Text())
		if input == "" {
			continue
		}

		// Flags keep their values between executions of the same tree.
		resetFlags(c.root)
		c.root.SetArgs(strings.Fields(input))

		if err := c.root.Execute(); err != nil {
			fmt.Fprintln(c.out, "Error:", err)
		}
	}
	return reader.Err()
}

func (c *CLI) replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.startREPL()
		},
	}
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
