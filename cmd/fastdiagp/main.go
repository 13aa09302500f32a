// Command fastdiagp is the driver for the FastDiag minimal-diagnosis core:
// it loads a model and requirement CNF pair, runs findDiagnosis, and prints
// one result line per run in the format the original benchmark driver used.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/gitrdm/fastdiagp/internal/config"
	"github.com/gitrdm/fastdiagp/pkg/fastdiag"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fastdiagp", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	verbose := fs.Bool("v", false, "enable debug-level logging")
	pretty := fs.Bool("pretty", false, "use zerolog's human-readable console writer")
	scenarios := fs.String("scenarios", "", "directory of requirement CNF files to run against the model, one diagnosis per file")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	var cfg config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastdiagp: %v\n", err)
		return 1
	}

	logger := newLogger(cfg, *verbose, *pretty)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
		logger.Debug().Msgf(format, a...)
	})); err != nil {
		logger.Debug().Err(err).Msg("fastdiagp: automaxprocs could not adjust GOMAXPROCS")
	}

	rest := fs.Args()
	if len(rest) < 3 {
		fmt.Fprintln(os.Stderr, "usage: fastdiagp <model.cnf> <req.cnf> <solver-path> [num-cores]")
		return 2
	}

	modelPath, solverPath := rest[0], rest[2]
	numCores := cfg.WorkerCount()
	if len(rest) >= 4 {
		if n, convErr := parsePositiveInt(rest[3]); convErr == nil {
			numCores = n
		}
	} else if cfg.Scheduler.Workers > 0 {
		numCores = cfg.Scheduler.Workers
	}

	oracleArgs := cfg.Solver.Args
	if solverPath == "" {
		solverPath = cfg.Solver.Path
	}
	oracle := fastdiag.NewExecOracle(solverPath, oracleArgs...)

	opts := []fastdiag.Option{
		fastdiag.WithWorkers(numCores),
		fastdiag.WithLogger(logger),
	}
	if cfg.Scheduler.LookaheadBudget > 0 {
		opts = append(opts, fastdiag.WithLookaheadBudget(cfg.Scheduler.LookaheadBudget))
	}
	if cfg.Scheduler.DisableLookahead {
		opts = append(opts, fastdiag.Sequential())
	}
	engine := fastdiag.New(oracle, opts...)

	ctx := context.Background()
	if cfg.Solver.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Solver.Timeout.Duration)
		defer cancel()
	}

	if *scenarios != "" {
		return runScenarios(ctx, engine, modelPath, *scenarios, solverPath, numCores, logger)
	}

	reqPath := rest[1]
	return runOne(ctx, engine, modelPath, reqPath, solverPath, numCores, logger)
}

func runOne(ctx context.Context, engine *fastdiag.Engine, modelPath, reqPath, solverPath string, numCores int, logger zerolog.Logger) int {
	b, c, err := fastdiag.Load(modelPath, reqPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastdiagp: %v\n", err)
		return 1
	}

	start := time.Now()
	delta, stats, err := engine.FindDiagnosis(ctx, c, b)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastdiagp: %v\n", err)
		return 1
	}

	printResultLine(reqPath, elapsed, stats, numCores, solverPath, delta)
	return 0
}

// runScenarios implements the benchmark-sweep supplement: one diagnosis per
// requirement file found in dir, all sharing modelPath, run sequentially.
func runScenarios(ctx context.Context, engine *fastdiag.Engine, modelPath, dir, solverPath string, numCores int, logger zerolog.Logger) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastdiagp: scenarios: %v\n", err)
		return 1
	}

	exit := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cnf") {
			continue
		}
		reqPath := filepath.Join(dir, entry.Name())
		if rc := runOne(ctx, engine, modelPath, reqPath, solverPath, numCores, logger); rc != 0 {
			exit = rc
		}
	}
	return exit
}

func printResultLine(reqPath string, elapsed time.Duration, stats fastdiag.Stats, numCores int, solverPath string, delta fastdiag.ConstraintSet) {
	fmt.Printf("%s | %s | %d | %d | %d | %d | %s | %s | %v\n",
		reqPath,
		elapsed,
		stats.OracleCount,
		stats.ReadyCount,
		stats.CacheSize,
		numCores,
		"fastdiagp",
		solverPath,
		delta.Indices(),
	)
}

func newLogger(cfg config.Config, verbose, pretty bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	} else if parsed, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		level = parsed
	}

	var writer io.Writer = os.Stderr
	if pretty || cfg.Logging.Pretty {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func parsePositiveInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("fastdiagp: num-cores must be positive, got %d", n)
	}
	return n, nil
}
