// cmd/root.go
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jdevietti/rcdcsim/sim"
	"github.com/jdevietti/rcdcsim/sim/multiplex"
)

var (
	logLevel string
	cfgFile  string

	cores       int
	blockSize   int
	l1Size      int
	l1Assoc     int
	useL2       bool
	l2Size      int
	l2Assoc     int
	useL3       bool
	l3Size      int
	l3Assoc     int
	policyName  string
	quantumSize int64
	smartQB     bool
	ignoreStack bool
	traceLevel  string
	statsFile   string
	fifoPath    string
	scheme      string
	workload    string
	input       string
	threads     int
)

var rootCmd = &cobra.Command{
	Use:   "rcdcsim",
	Short: "Trace-driven multicore cache simulator with deterministic relaxed-consistency execution",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the simulator over an event stream",
	Run: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := loadRunConfig()
		logrus.Infof("starting simulation: cores=%d policy=%s quantum-size=%d fifo=%s",
			cfg.Cores, cfg.Scheduler.Policy, cfg.Scheduler.QuantumSize, cfg.FIFOPath)

		s := sim.NewSimulation(cfg)

		pipe, err := sim.OpenEventPipe(cfg.FIFOPath)
		if err != nil {
			logrus.Fatalf("opening event pipe %s: %v", cfg.FIFOPath, err)
		}
		defer pipe.Close()

		if err := s.Run(pipe); err != nil {
			logrus.Fatalf("simulation error: %v", err)
		}

		out, err := sim.CreateStatsFile(cfg.StatsFile)
		if err != nil {
			logrus.Fatalf("opening stats file: %v", err)
		}
		defer out.Close()

		prefix := fmt.Sprintf("'scheme': %q, 'workload': %q, 'input': %q, 'threads': %d, ", cfg.Scheme, cfg.Workload, cfg.Input, cfg.Threads)
		if err := s.DumpStats(out, prefix, ""); err != nil {
			logrus.Fatalf("writing stats: %v", err)
		}

		logrus.Info("simulation complete")
	},
}

var multiplexCmd = &cobra.Command{
	Use:   "multiplex SOURCE DEST1 DEST2 ...",
	Short: "Fan out one event pipe to several destination pipes",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		source, err := os.Open(args[0])
		if err != nil {
			logrus.Fatalf("opening source %s: %v", args[0], err)
		}
		defer source.Close()

		var sinks []io.Writer
		var files []*os.File
		for _, dest := range args[1:] {
			f, err := os.OpenFile(dest, os.O_WRONLY, 0)
			if err != nil {
				logrus.Fatalf("opening destination %s: %v", dest, err)
			}
			files = append(files, f)
			sinks = append(sinks, f)
		}
		defer func() {
			for _, f := range files {
				f.Close()
			}
		}()

		if err := multiplex.Multiplex(source, sinks...); err != nil {
			logrus.Fatalf("multiplex error: %v", err)
		}
	},
}

func loadRunConfig() sim.RunConfig {
	cfg := sim.DefaultRunConfig()
	cfg.Cores = cores
	cfg.Cache.L1 = sim.GeometryConfig{BlockSize: blockSize, Size: l1Size, Assoc: l1Assoc}
	cfg.Cache.UseL2 = useL2
	cfg.Cache.L2 = sim.GeometryConfig{BlockSize: blockSize, Size: l2Size, Assoc: l2Assoc}
	cfg.Cache.UseL3 = useL3
	cfg.Cache.L3 = sim.GeometryConfig{BlockSize: blockSize, Size: l3Size, Assoc: l3Assoc}
	cfg.Scheduler.Policy = policyName
	cfg.Scheduler.QuantumSize = quantumSize
	cfg.Scheduler.SmartQB = smartQB
	cfg.IgnoreStack = ignoreStack
	cfg.TraceLevel = traceLevel
	cfg.StatsFile = statsFile
	cfg.FIFOPath = fifoPath
	cfg.Scheme = scheme
	cfg.Workload = workload
	cfg.Input = input
	cfg.Threads = threads

	if cfgFile != "" {
		loadYAMLOverrides(cfgFile, &cfg)
	}
	return cfg
}

// Execute runs the root command. A panic raised by the simulation core (a
// programmer-error assertion, not a recoverable input error) is caught
// here, logged, and turned into a nonzero exit.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("fatal: %v", r)
			os.Exit(1)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&cfgFile, "config", "", "optional YAML config file; flags override its values")
	runCmd.Flags().IntVar(&cores, "cores", 8, "number of simulated cores")
	runCmd.Flags().IntVar(&blockSize, "blocksize", 64, "cache line size in bytes")
	runCmd.Flags().IntVar(&l1Size, "l1-size", 32*1024, "L1 size in bytes")
	runCmd.Flags().IntVar(&l1Assoc, "l1-assoc", 8, "L1 associativity")
	runCmd.Flags().BoolVar(&useL2, "use-l2", false, "enable a private L2")
	runCmd.Flags().IntVar(&l2Size, "l2-size", 256*1024, "L2 size in bytes")
	runCmd.Flags().IntVar(&l2Assoc, "l2-assoc", 8, "L2 associativity")
	runCmd.Flags().BoolVar(&useL3, "use-l3", false, "enable a shared L3")
	runCmd.Flags().IntVar(&l3Size, "l3-size", 8*1024*1024, "L3 size in bytes")
	runCmd.Flags().IntVar(&l3Assoc, "l3-assoc", 16, "L3 associativity")
	runCmd.Flags().StringVar(&policyName, "policy", "nondet", "execution policy: nondet, det-tso, det-hb")
	runCmd.Flags().BoolVar(&smartQB, "smart-qb", false, "smart-quantum-building: budget work by det-time-in-memory")
	runCmd.Flags().Int64Var(&quantumSize, "quantum-size", 1000, "quantum work-unit budget")
	runCmd.Flags().BoolVar(&ignoreStack, "ignore-stack", false, "exclude stack-ref accesses from the store buffer")
	runCmd.Flags().StringVar(&traceLevel, "trace", "none", "decision-trace level: none, decisions")
	runCmd.Flags().StringVar(&statsFile, "statsfile", "rcdcsim-stats.py", "output path for the counter dump")
	runCmd.Flags().StringVar(&fifoPath, "tosim-fifo", "", "named pipe to read the event stream from")
	runCmd.Flags().StringVar(&scheme, "scheme", "", "free-form scheme tag, carried into the stats output")
	runCmd.Flags().StringVar(&workload, "workload", "", "free-form workload tag, carried into the stats output")
	runCmd.Flags().StringVar(&input, "input", "", "free-form input tag, carried into the stats output")
	runCmd.Flags().IntVar(&threads, "threads", 0, "free-form thread-count tag, carried into the stats output")
	runCmd.MarkFlagRequired("tosim-fifo")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(multiplexCmd)
}
