package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"go.stablemem/internal/engine"
)

func testHome(t *testing.T, backend string) string {
	t.Helper()

	home := t.TempDir()
	body := "backend: " + backend + "\nregions:\n  default: 0\n  users: 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(body), 0o644))
	return home
}

func run(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	err := New(strings.NewReader(in), &out).Run(args)
	return out.String(), err
}

func TestCommandsPersistAcrossRuns(t *testing.T) {
	home := testHome(t, "file")

	out, err := run(t, "", "--home", home, "set", "alpha", "1")
	require.NoError(t, err)
	require.Contains(t, out, "alpha stored")

	_, err = run(t, "", "--home", home, "set", "--region", "users", "alpha", "2")
	require.NoError(t, err)

	out, err = run(t, "", "--home", home, "get", "alpha")
	require.NoError(t, err)
	require.Equal(t, "1\n", out)

	out, err = run(t, "", "--home", home, "get", "-r", "users", "alpha")
	require.NoError(t, err)
	require.Equal(t, "2\n", out)

	_, err = run(t, "", "--home", home, "delete", "alpha")
	require.NoError(t, err)

	_, err = run(t, "", "--home", home, "get", "alpha")
	require.ErrorIs(t, err, engine.ErrKeyNotFound)

	out, err = run(t, "", "--home", home, "verify")
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)
}

func TestREPL(t *testing.T) {
	home := testHome(t, "memory")

	script := strings.Join([]string{
		"set b 2",
		"set a 1",
		"set -r users c 3",
		"",
		"get a",
		"scan --limit 1",
		"scan",
		"bogus",
		"regions",
		"exit",
		"get b",
	}, "\n")

	out, err := run(t, script, "--home", home)
	require.NoError(t, err)

	require.Contains(t, out, "stablemem> ")
	require.Contains(t, out, "a\t1\n(1 entries)")
	require.Contains(t, out, "a\t1\nb\t2\n(2 entries)")
	require.Contains(t, out, "Error:")
	require.Contains(t, out, "users\t1")
	require.NotContains(t, out, "c\t3")

	// Ten lines up to and including exit; the last one is never read.
	require.Equal(t, 10, strings.Count(out, "stablemem> "))
}

func TestREPLEndsAtEOF(t *testing.T) {
	home := testHome(t, "memory")

	out, err := run(t, "set a 1\nrepl\n", "--home", home, "repl")
	require.NoError(t, err)
	require.Contains(t, out, "a stored")
	require.Contains(t, out, errNestedREPL.Error())
}

func TestStatAndGrow(t *testing.T) {
	home := testHome(t, "file")

	out, err := run(t, "", "--home", home, "grow", "-r", "users", "2")
	require.NoError(t, err)
	require.Contains(t, out, "users grew from 1 to 3 pages")

	out, err = run(t, "", "--home", home, "stat")
	require.NoError(t, err)
	require.Contains(t, out, "backend: file")
	require.Regexp(t, `users\s+1\s+3\s+0`, out)

	out, err = run(t, "", "--home", home, "forget", "users")
	require.NoError(t, err)
	require.Contains(t, out, "users forgotten")

	out, err = run(t, "", "--home", home, "stat")
	require.NoError(t, err)
	require.Regexp(t, `users\s+1\s+0\s+0`, out)
}

func TestBadArguments(t *testing.T) {
	home := testHome(t, "memory")

	_, err := run(t, "", "--home", home, "grow", "many")
	require.Error(t, err)

	_, err = run(t, "", "--home", home, "get", "-r", "nope", "a")
	require.ErrorIs(t, err, engine.ErrUnknownRegion)

	_, err = run(t, "", "--home", home, "--config", filepath.Join(home, "missing.yaml"), "stat")
	require.Error(t, err)
}
