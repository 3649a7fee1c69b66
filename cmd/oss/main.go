// The oss command is the controller: it owns the shared simulated
// clock, launches worker processes under a concurrency cap, and tears
// everything down when the run completes or a signal arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"golang.org/x/sys/unix"

	"github.com/sarchlab/ossim/sched"
	"github.com/sarchlab/ossim/shmclock"
	"github.com/sarchlab/ossim/simulation"
)

var (
	workers       int
	concurrency   int
	lifetimeBound int
	spawnInterval int64
	budget        time.Duration
	tableCapacity int
	shmKey        int
	workerPath    string
	monitorPort   int
	noMonitor     bool
	noRecording   bool
	openBrowser   bool
	outputName    string
)

var rootCmd = &cobra.Command{
	Use:   "oss",
	Short: "oss launches workers against a simulated system clock.",
	Long: `oss maintains a simulated system clock in shared memory and uses ` +
		`it, instead of real time, to decide when to launch worker processes ` +
		`and when they should terminate. The run is bounded by a real-time ` +
		`budget; Ctrl-C tears down all workers and the shared clock.`,
	RunE: run,

	SilenceUsage: true,
}

func init() {
	// A .env file can override the built-in defaults; flags override
	// both.
	_ = godotenv.Load()

	rootCmd.Flags().IntVarP(&workers, "workers", "n",
		envInt("OSS_WORKERS", 5), "total number of workers to launch")
	rootCmd.Flags().IntVarP(&concurrency, "concurrency", "s",
		envInt("OSS_CONCURRENCY", 3), "maximum simultaneous workers")
	rootCmd.Flags().IntVarP(&lifetimeBound, "lifetime-bound", "t",
		envInt("OSS_LIFETIME_BOUND", 3),
		"upper bound of a worker's simulated lifetime, in seconds")
	rootCmd.Flags().Int64VarP(&spawnInterval, "spawn-interval", "i",
		int64(envInt("OSS_SPAWN_INTERVAL_MS", 100)),
		"minimum simulated milliseconds between launches")
	rootCmd.Flags().DurationVar(&budget, "budget",
		sched.DefaultWallClockBudget, "real-time budget for the whole run")
	rootCmd.Flags().IntVar(&tableCapacity, "table-capacity", 0,
		"process table slots (0 selects the default of 20)")
	rootCmd.Flags().IntVar(&shmKey, "shm-key", shmclock.DefaultKey,
		"System V key of the shared clock segment")
	rootCmd.Flags().StringVar(&workerPath, "worker",
		envStr("OSS_WORKER", "./worker"), "worker executable to launch")
	rootCmd.Flags().IntVar(&monitorPort, "monitor-port", 0,
		"monitoring server port (0 selects a random port)")
	rootCmd.Flags().BoolVar(&noMonitor, "no-monitor", false,
		"disable the monitoring server")
	rootCmd.Flags().BoolVar(&noRecording, "no-recording", false,
		"disable SQLite run recording")
	rootCmd.Flags().BoolVar(&openBrowser, "open-browser", false,
		"open the monitor in a browser")
	rootCmd.Flags().StringVar(&outputName, "output", "",
		"data recording file name")
}

func run(_ *cobra.Command, _ []string) error {
	if workers <= 0 || concurrency <= 0 || lifetimeBound <= 0 || spawnInterval < 0 {
		return fmt.Errorf(
			"workers, concurrency and lifetime-bound must be > 0, " +
				"spawn-interval must be >= 0")
	}

	builder := simulation.MakeBuilder().
		WithConfig(sched.Config{
			TotalWorkers:    workers,
			MaxConcurrent:   concurrency,
			LifetimeBound:   lifetimeBound,
			SpawnIntervalMs: spawnInterval,
			WallClockBudget: budget,
			TableCapacity:   tableCapacity,
		}).
		WithShmKey(shmKey).
		WithWorkerPath(workerPath)

	if noMonitor {
		builder = builder.WithoutMonitoring()
	} else if monitorPort > 0 {
		builder = builder.WithMonitorPort(monitorPort)
	}

	if !noMonitor && openBrowser {
		builder = builder.WithBrowser()
	}

	if noRecording {
		builder = builder.WithoutRecording()
	}

	if outputName != "" {
		builder = builder.WithOutputFileName(outputName)
	}

	s := builder.Build()

	// The handler goroutine only records the request; the loop observes
	// it at the top of the next iteration and tears down in normal
	// control flow.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, unix.SIGINT, unix.SIGTERM, unix.SIGALRM)
	go func() {
		<-sigCh
		s.NotifySignal()
	}()

	state := s.Run()

	fmt.Printf("OSS PID:%d done: state=%s launched=%d finished=%d\n",
		os.Getpid(), state,
		s.GetScheduler().Launched(), s.GetScheduler().Finished())

	return nil
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return fallback
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}

	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
