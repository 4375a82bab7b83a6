package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	runThreads int
	runWork    int
)

// Priorities cycle through the three bands so one workload exercises
// round-robin, priority and SJF dispatch together.
var workloadPriorities = []int{30, 60, 90, 120}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a thread workload through the scheduler",
	Long: `Fork a batch of CPU-bound threads with priorities spread across the
three bands and let the scheduler dispatch them. Every queue insertion,
removal and priority change streams to the scheduler log; the machine
halts with its tick statistics once the workload drains.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runWorkload())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&runThreads, "threads", "n", 4, "number of worker threads")
	runCmd.Flags().IntVarP(&runWork, "work", "w", 300, "CPU ticks each worker burns")
}

func runWorkload() error {
	// The workload only needs a machine; format a scratch image when
	// none exists yet.
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, statErr := os.Stat(cfg.DiskPath)
	k, err := bootKernel(os.IsNotExist(statErr))
	if err != nil {
		return err
	}
	defer k.Close()

	main := k.Bootstrap("main")

	done := 0
	for i := 0; i < runThreads; i++ {
		priority := workloadPriorities[i%len(workloadPriorities)]
		w := k.Scheduler.NewThread(fmt.Sprintf("worker-%d", i), priority)
		w.Fork(func() {
			for burned := 0; burned < runWork; burned++ {
				k.Interrupt.OneUserTick()
			}
			done++
		})
	}

	for done < runThreads {
		main.Yield()
	}

	k.Halt()
	return nil
}
