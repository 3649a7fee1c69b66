// The worker command attaches read-only to the controller's shared
// clock, computes an absolute simulated deadline from its lifetime
// budget, and polls until the deadline passes.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sarchlab/ossim/shmclock"
	"github.com/sarchlab/ossim/vclock"
	"github.com/sarchlab/ossim/worker"
)

var shmKey int

var rootCmd = &cobra.Command{
	Use:   "worker <lifetime-seconds> <lifetime-nanoseconds>",
	Short: "worker runs until the simulated clock reaches its deadline.",
	Args:  cobra.ExactArgs(2),
	RunE:  run,

	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().IntVar(&shmKey, "shm-key", shmclock.DefaultKey,
		"System V key of the shared clock segment")
}

func run(_ *cobra.Command, args []string) error {
	budgetSec, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || budgetSec < 0 {
		return fmt.Errorf("invalid lifetime seconds %q", args[0])
	}

	budgetNanos, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || budgetNanos < 0 || budgetNanos >= vclock.NanosPerSec {
		return fmt.Errorf("invalid lifetime nanoseconds %q", args[1])
	}

	segment, err := shmclock.Open(shmKey)
	if err != nil {
		return err
	}

	view, err := segment.AttachReadOnly()
	if err != nil {
		return err
	}
	defer view.Detach()

	start := view.Snapshot()
	deadline := worker.DeadlineFrom(
		start, vclock.Time{Seconds: budgetSec, Nanos: budgetNanos})

	printStatus(start, deadline)
	fmt.Println("--Just Starting")

	w := worker.NewWaiter(view, deadline, func(o worker.Observation) {
		printStatus(o.Now, o.Deadline)
		if o.Terminating {
			fmt.Println("--Terminating")
		} else {
			fmt.Printf("--%d seconds have passed since starting\n",
				o.SecondsElapsed)
		}
	})
	w.Wait()

	return nil
}

func printStatus(now, deadline vclock.Time) {
	fmt.Printf("WORKER PID:%d PPID:%d SysClockS:%d SysClockNano:%d "+
		"TermTimeS:%d TermTimeNano:%d\n",
		os.Getpid(), os.Getppid(),
		now.Seconds, now.Nanos,
		deadline.Seconds, deadline.Nanos)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
