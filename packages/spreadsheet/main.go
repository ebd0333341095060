package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: spreadsheet <command> [flags] [args]

commands:
  create NAME               add an empty sheet
  list                      list sheets
  set -sheet S CELL FORMULA set a cell, an empty formula clears it
  get -sheet S CELL         print a cell's value
  usercode -sheet S FILE    replace a sheet's usercode, "-" reads stdin
  calc -sheet S             recalculate a sheet and print its console
  import -sheet S FILE      import a .csv or .xlsx file
  export -sheet S FILE      export values to a .csv or .xlsx file
  paste -sheet S -from RANGE -to RANGE
                            copy (or with -cut, move) cells
  jail DIR                  lay out a worker chroot in DIR
  worker                    serve one calculation (started by calc)

run "spreadsheet <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], env{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, getenv: os.Getenv})
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// env is the outside world a command sees
type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
}

// errReported marks a failure the command already printed
var errReported = errors.New("reported")

type command func(ctx context.Context, cfg Config, fs *flag.FlagSet, args []string, e env) error

var commands = map[string]command{
	"create":   runCreate,
	"list":     runList,
	"set":      runSet,
	"get":      runGet,
	"usercode": runUsercode,
	"calc":     runCalc,
	"import":   runImport,
	"export":   runExport,
	"paste":    runPaste,
	"jail":     runJail,
	"worker":   runWorker,
}

func run(ctx context.Context, args []string, e env) error {
	if len(args) == 0 {
		fmt.Fprint(e.stderr, usage)
		return errReported
	}
	name := args[0]
	if name == "-h" || name == "-help" || name == "help" {
		fmt.Fprint(e.stdout, usage)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(e.stderr, "unknown command %q\n\n%s", name, usage)
		return errReported
	}

	cfg := DefaultConfig()
	if err := cfg.LoadEnv(e.getenv); err != nil {
		return err
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return cmd(ctx, cfg, fs, args[1:], e)
}

// parseFlags parses the command's flags, treating -h as success
func parseFlags(fs *flag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return false, nil
		}
		return false, errReported
	}
	return true, nil
}
