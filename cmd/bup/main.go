// Command bup is a minimal content-addressed backup tool: it turns a
// pre-built file index into a deduplicated tree of objects (save) and lets
// that tree be browsed back out again (ls).
package main

import (
	"fmt"
	"os"
)

const usage = `Usage: bup <command> [options]

Commands:
    save    create or update a saved tree from an index
    ls      list the contents of a saved tree

Run 'bup <command> -h' for command-specific options.
`

var commands = map[string]func([]string) error{
	"save": saveRun,
	"ls":   lsRun,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err := cmd(os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "bup:", err)
		os.Exit(1)
	}
}

// repoDir resolves the object-store root: BUP_DIR if set, else ~/.bup.
func repoDir() string {
	if d := os.Getenv("BUP_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bup"
	}
	return home + "/.bup"
}
