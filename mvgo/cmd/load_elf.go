package cmd

import (
	"debug/elf"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/zkmips/mipsgo/mvgo/emu"
)

var (
	LoadELFPathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "Path to 32-bit MIPS ELF file",
		TakesFile: true,
		Required:  true,
	}
	LoadELFOutFlag = &cli.PathFlag{
		Name:     "out",
		Usage:    "Output path of program JSON",
		Value:    "program.json",
		Required: false,
	}
)

func LoadELF(ctx *cli.Context) error {
	elfPath := ctx.Path(LoadELFPathFlag.Name)
	elfProgram, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer elfProgram.Close()
	program, err := emu.LoadELF(elfProgram)
	if err != nil {
		return fmt.Errorf("failed to load ELF into program: %w", err)
	}
	return writeJSON(ctx.Path(LoadELFOutFlag.Name), program)
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load a MIPS ELF file into program JSON",
	Description: "Decode the executable segments of a 32-bit MIPS ELF binary and store the result as program JSON for the run command.",
	Action:      LoadELF,
	Flags: []cli.Flag{
		LoadELFPathFlag,
		LoadELFOutFlag,
	},
}
