package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zkmips/mipsgo/mvgo/cmd"
)

func main() {
	app := cli.NewApp()
	app.Name = "mipsgo"
	app.Usage = "MIPS32 execution engine with zkVM event tracing"
	app.Description = "Loads 32-bit MIPS ELF binaries and executes them, optionally producing per-shard event records for proving."
	app.Commands = []*cli.Command{
		cmd.LoadELFCommand,
		cmd.RunCommand,
	}
	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
