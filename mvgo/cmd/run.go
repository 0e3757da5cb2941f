package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/zkmips/mipsgo/mvgo/emu"
)

var (
	RunProgramFlag = &cli.PathFlag{
		Name:      "program",
		Usage:     "Program JSON to run, as produced by load-elf",
		TakesFile: true,
		Required:  true,
	}
	RunModeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "Execution mode: simple, checkpoint or trace",
		Value: "simple",
	}
	RunInputFlag = &cli.StringSliceFlag{
		Name:  "input",
		Usage: "Hex-encoded input buffer, may be repeated. Buffers are consumed in order by guest reads.",
	}
	RunOutputFlag = &cli.PathFlag{
		Name:  "output",
		Usage: "Output path of the shard records (trace mode)",
		Value: "records.json",
	}
	RunSnapshotFmtFlag = &cli.StringFlag{
		Name:  "snapshot-fmt",
		Usage: "Format for checkpoint state output file names (checkpoint mode)",
		Value: "state-%d.json",
	}
	RunRecoverFromFlag = &cli.PathFlag{
		Name:      "recover-from",
		Usage:     "Resume execution from a checkpoint state file",
		TakesFile: true,
	}
	RunShardSizeFlag = &cli.UintFlag{
		Name:  "shard-size",
		Usage: "Max shard-local cycles before a shard boundary is forced",
	}
	RunShardBatchSizeFlag = &cli.UintFlag{
		Name:  "shard-batch-size",
		Usage: "Shards per batch before yielding, 0 for unbounded",
	}
	RunMaxCyclesFlag = &cli.Uint64Flag{
		Name:  "max-cycles",
		Usage: "Fail the run if the global cycle count reaches this limit (0 = no limit)",
	}
	RunShapeCheckFreqFlag = &cli.Uint64Flag{
		Name:  "shape-check-frequency",
		Usage: "Global-cycle interval between shape probes",
	}
	RunMaxLogHeightFlag = &cli.UintFlag{
		Name:  "max-log-height",
		Usage: "Attach a shape checker limiting every event table to 2^height rows (0 = disabled)",
	}
	RunDebugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Enable debug-only memory access checks",
	}
	RunPProfCPUFlag = &cli.BoolFlag{
		Name:  "pprof.cpu",
		Usage: "enable pprof cpu profiling",
	}
)

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPUFlag.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	logger := Logger(os.Stderr, slog.LevelInfo)
	outLog := &LoggingWriter{Name: "program std-out", Log: logger}
	errLog := &LoggingWriter{Name: "program std-err", Log: logger}

	program, err := loadJSON[emu.Program](ctx.Path(RunProgramFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to load program: %w", err)
	}

	opts := emu.DefaultOpts()
	if v := ctx.Uint(RunShardSizeFlag.Name); v != 0 {
		opts.ShardSize = uint32(v)
	}
	if ctx.IsSet(RunShardBatchSizeFlag.Name) {
		opts.ShardBatchSize = uint32(ctx.Uint(RunShardBatchSizeFlag.Name))
	}
	if v := ctx.Uint64(RunMaxCyclesFlag.Name); v != 0 {
		opts.MaxCycles = v
	}
	if v := ctx.Uint64(RunShapeCheckFreqFlag.Name); v != 0 {
		opts.ShapeCheckFrequency = v
	}
	opts.DebugMemoryAccess = ctx.Bool(RunDebugFlag.Name)

	var exec *emu.Executor
	if statePath := ctx.Path(RunRecoverFromFlag.Name); statePath != "" {
		f, err := os.Open(statePath)
		if err != nil {
			return fmt.Errorf("failed to open state file: %w", err)
		}
		state, err := emu.ReadExecutionState(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to read state file %q: %w", statePath, err)
		}
		exec = emu.Recover(program, state, opts, outLog, errLog, logger)
	} else {
		exec = emu.NewExecutor(program, opts, outLog, errLog, logger)
	}

	for i, raw := range ctx.StringSlice(RunInputFlag.Name) {
		buf, err := hexutil.Decode(raw)
		if err != nil {
			return fmt.Errorf("invalid input buffer %d: %w", i, err)
		}
		exec.WithInput(buf)
	}
	if h := ctx.Uint(RunMaxLogHeightFlag.Name); h != 0 {
		exec.WithShapeChecker(emu.NewHeightShapeChecker(h))
	}

	mode := ctx.String(RunModeFlag.Name)
	logger.Info("running program",
		"mode", mode,
		"pc", HexU32(exec.State.PC),
		"instructions", len(program.Instructions),
		"shardSize", opts.ShardSize)

	switch mode {
	case "simple":
		report, err := exec.RunFast()
		if err != nil {
			return err
		}
		logger.Info("execution finished",
			"cycles", report.TotalCycles,
			"shards", report.TotalShards,
			"exitCode", exec.State.ExitCode)
		fmt.Fprintln(os.Stdout, report.String())
		return nil
	case "checkpoint":
		return runCheckpointed(ctx, exec, logger)
	case "trace":
		records, err := exec.Run()
		if err != nil {
			return err
		}
		logger.Info("execution finished",
			"cycles", exec.State.GlobalClk,
			"shards", len(records),
			"exitCode", exec.State.ExitCode)
		return writeJSON(ctx.Path(RunOutputFlag.Name), records)
	default:
		return fmt.Errorf("unknown execution mode %q", mode)
	}
}

func runCheckpointed(ctx *cli.Context, exec *emu.Executor, logger log.Logger) error {
	fmtStr := ctx.String(RunSnapshotFmtFlag.Name)
	for i := 0; ; i++ {
		state, done, err := exec.ExecuteState(false)
		if err != nil {
			return err
		}
		path := fmt.Sprintf(fmtStr, i)
		if err := writeState(path, state); err != nil {
			return err
		}
		logger.Info("wrote checkpoint", "path", path, "shard", state.CurrentShard, "globalClk", state.GlobalClk)
		if done {
			return nil
		}
	}
}

func writeState(path string, state *emu.ExecutionState) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, outFilePerm)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer f.Close()
	return state.WriteTo(f)
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run a loaded program",
	Description: "Executes a program JSON produced by load-elf, in simple, checkpoint or trace mode.",
	Action:      Run,
	Flags: []cli.Flag{
		RunProgramFlag,
		RunModeFlag,
		RunInputFlag,
		RunOutputFlag,
		RunSnapshotFmtFlag,
		RunRecoverFromFlag,
		RunShardSizeFlag,
		RunShardBatchSizeFlag,
		RunMaxCyclesFlag,
		RunShapeCheckFreqFlag,
		RunMaxLogHeightFlag,
		RunDebugFlag,
		RunPProfCPUFlag,
	},
}
