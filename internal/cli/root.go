package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.stablemem/internal/config"
	"go.stablemem/internal/engine"
)

// CLI holds the state shared by every command of one invocation, or of
// one REPL session.
type CLI struct {
	home    string
	cfgPath string
	region  string

	in  io.Reader
	out io.Writer

	cfg    *config.Config
	db     *engine.Database
	inREPL bool
	quit   bool

	root *cobra.Command
}

func New(in io.Reader, out io.Writer) *CLI {
	c := &CLI{in: in, out: out}

	c.root = &cobra.Command{
		Use:           "stablemem",
		Short:         "stablemem - paged persistent key value store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.inREPL {
				return nil
			}
			return c.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.startREPL()
		},
	}
	c.root.SetIn(in)
	c.root.SetOut(out)
	c.root.SetErr(out)

	flags := c.root.PersistentFlags()
	flags.StringVar(&c.home, "home", "", "stablemem home directory (default $STABLEMEM_HOME or ~/.local/share/stablemem)")
	flags.StringVar(&c.cfgPath, "config", "", "config file (default <home>/config.yaml)")
	flags.StringVarP(&c.region, "region", "r", "default", "region to operate on")

	c.root.AddCommand(
		c.setCmd(),
		c.getCmd(),
		c.deleteCmd(),
		c.scanCmd(),
		c.growCmd(),
		c.forgetCmd(),
		c.statCmd(),
		c.regionsCmd(),
		c.verifyCmd(),
		c.replCmd(),
		c.exitCmd(),
	)
	return c
}

func (c *CLI) Command() *cobra.Command {
	return c.root
}

// Run executes args and closes the database afterwards.
func (c *CLI) Run(args []string) error {
	c.root.SetArgs(args)
	err := c.root.Execute()
	return errors.Join(err, c.Close())
}

func (c *CLI) open() error {
	if c.db != nil {
		return nil
	}

	cfg, err := config.LoadConfig(c.home, c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := engine.Open(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	c.cfg = cfg
	c.db = db
	return nil
}

func (c *CLI) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func Execute() {
	if err := New(os.Stdin, os.Stdout).Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
