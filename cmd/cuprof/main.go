// Package main provides the CLI entry point for cuprof, a compute-unit
// profiling report generator for the commerce program.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/commercelabs/cuprof/aggregate"
	"github.com/commercelabs/cuprof/collector"
	"github.com/commercelabs/cuprof/report"
	"github.com/commercelabs/cuprof/schema"
	"github.com/commercelabs/cuprof/txsize"
)

const envPrefix = "CUPROF"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Error("run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "cuprof",
		Short: "Compute-unit profiling report generator for the commerce program",
		Long: `Cuprof estimates per-instruction transaction sizes from the program's
instruction definitions, runs the integration test suite with profiling
instrumentation enabled, and correlates both into a CU usage report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(logger))

	cobra.OnInitialize(initConfig)

	return root
}

// initConfig makes every flag overridable via CUPROF_* environment
// variables, e.g. CUPROF_TESTS_DIR for --tests-dir.
func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

type runConfig struct {
	output       string
	instructions string
	testsDir     string
	pkg          string
	fromLog      string
	outputJSON   bool
	accountFloor int
	vecElems     int
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the test suite and generate a CU analysis report",
		Long: `Run the integration test suite with profiling instrumentation enabled,
collect the measurements it emits, and write a markdown report correlating
compute-unit usage with estimated transaction sizes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}

			return runProfiling(cmd.Context(), logger, runConfig{
				output:       viper.GetString("output"),
				instructions: viper.GetString("instructions"),
				testsDir:     viper.GetString("tests-dir"),
				pkg:          viper.GetString("package"),
				fromLog:      viper.GetString("from-log"),
				outputJSON:   viper.GetBool("json"),
				accountFloor: viper.GetInt("account-floor"),
				vecElems:     viper.GetInt("vec-elems"),
			})
		},
	}

	flags := cmd.Flags()
	flags.String("output", "profiling_report.md",
		"Output report file")
	flags.String("instructions", "program/src/instructions.rs",
		"Path to the instruction definitions file")
	flags.String("tests-dir", ".",
		"Directory to run the test suite in")
	flags.String("package", "tests-commerce-program",
		"Cargo package containing the integration tests")
	flags.String("from-log", "",
		"Parse measurements from a captured output log instead of running tests")
	flags.Bool("json", false,
		"Write statistics as JSON instead of markdown")
	flags.Int("account-floor", 3,
		"Minimum account count assumed per instruction")
	flags.Int("vec-elems", 4,
		"Assumed average element count for Vec arguments")

	return cmd
}

func runProfiling(
	ctx context.Context,
	logger *slog.Logger,
	cfg runConfig,
) error {
	logger.InfoContext(ctx, "starting CU analysis",
		slog.String("instructions", cfg.instructions),
		slog.String("package", cfg.pkg),
		slog.String("output", cfg.output),
	)

	// Step 1: Extract the instruction schema.
	schemaCfg := schema.DefaultConfig()
	schemaCfg.AccountFloor = cfg.accountFloor

	instrs, err := schema.ParseFile(cfg.instructions, schemaCfg)
	if err != nil {
		return fmt.Errorf("extract instruction schema: %w", err)
	}

	logger.InfoContext(ctx, "instruction schema extracted",
		slog.Int("instructions", len(instrs)),
	)

	// Step 2: Build the per-operation transaction size table.
	sizeCfg := txsize.DefaultConfig()
	sizeCfg.AssumedVecElems = cfg.vecElems

	sizes, err := txsize.NewEstimator(sizeCfg).BuildTable(instrs)
	if err != nil {
		return fmt.Errorf("estimate transaction sizes: %w", err)
	}

	// Step 3: Collect profiling measurements, either from a fresh test
	// run or from a previously captured log.
	var data []collector.Datum

	if cfg.fromLog != "" {
		data, err = collector.ParseFile(cfg.fromLog, sizes, logger)
		if err != nil {
			return fmt.Errorf("parse output log: %w", err)
		}
	} else {
		runner := collector.NewRunner(cfg.testsDir, cfg.pkg, logger)

		output := runner.Run(ctx)

		data, err = collector.Parse(output, sizes, logger)
		if err != nil {
			return fmt.Errorf("parse test output: %w", err)
		}
	}

	if len(data) == 0 {
		return fmt.Errorf("no profiling data collected")
	}

	logger.InfoContext(ctx, "profiling data collected",
		slog.Int("measurements", len(data)),
	)

	// Step 4: Aggregate per-operation statistics.
	opStats, err := aggregate.Operations(data)
	if err != nil {
		return fmt.Errorf("aggregate statistics: %w", err)
	}

	// Step 5: Write the report.
	if cfg.outputJSON {
		err = report.WriteFileJSON(cfg.output, opStats)
	} else {
		err = report.WriteFile(cfg.output, opStats)
	}

	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	totalCalls := 0
	for _, s := range opStats {
		totalCalls += s.TotalCalls
	}

	logger.InfoContext(ctx, "report generated",
		slog.String("path", cfg.output),
		slog.Int("operations", len(opStats)),
		slog.Int("total_calls", totalCalls),
	)

	return nil
}
