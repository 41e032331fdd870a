package main

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshuapare/refcount/internal/logger"
	"github.com/joshuapare/refcount/registry"
)

var (
	stressThreads    int
	stressObjects    int
	stressIterations int
	stressAudit      string
	stressEmulate    bool
	stressLeak       int
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVarP(&stressThreads, "threads", "t", 8, "Number of worker goroutines")
	cmd.Flags().IntVarP(&stressObjects, "objects", "n", 64, "Number of shared objects")
	cmd.Flags().IntVarP(&stressIterations, "iterations", "i", 10000, "Retain/release operations per worker")
	cmd.Flags().StringVar(&stressAudit, "audit", "", "Write the audit log to this file")
	cmd.Flags().BoolVar(&stressEmulate, "emulate-atomics", false, "Use lock based counters")
	cmd.Flags().IntVar(&stressLeak, "leak", 0, "Deliberately leak this many objects")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Hammer the registry with concurrent retains and releases",
		Long: `The stress command creates a set of shared objects and lets worker
goroutines retain and release them at random. When the workers are done
every object must be back at a count of one; the command then releases them
and checks that each finalizer ran exactly once.

Example:
  refctl stress
  refctl stress --threads 32 --objects 10 --iterations 100000
  refctl stress --audit /tmp/refcount.audit --leak 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress()
		},
	}
	return cmd
}

// StressResult is the outcome of a stress run.
type StressResult struct {
	Threads     int
	Objects     int
	Operations  int64
	Misuses     int64
	Finalized   int64
	Leaked      int
	Duration    time.Duration
	OpsPerSec   float64
	Unbalanced  []string `json:",omitempty"`
	ShutdownDur time.Duration
}

func runStress() error {
	if stressThreads <= 0 || stressObjects <= 0 || stressIterations < 0 {
		return fmt.Errorf("threads and objects must be positive")
	}
	if stressLeak > stressObjects {
		return fmt.Errorf("cannot leak %d of %d objects", stressLeak, stressObjects)
	}

	r, err := newRegistry(func(o *registry.Options) {
		if stressAudit != "" {
			o.AuditPath = stressAudit
		}
		if stressEmulate {
			o.EmulateAtomics = true
		}
		// A stress run must not pause on errors; they are counted instead.
		o.MisuseDelay = -1
	})
	if err != nil {
		return fmt.Errorf("failed to start registry: %w", err)
	}

	var finalized atomic.Int64
	fin := registry.FinalizerFunc(func([]byte) { finalized.Add(1) })

	printVerbose("Creating %d objects\n", stressObjects)
	objs := make([]registry.Ref, stressObjects)
	for i := range objs {
		ref, err := r.Create(64, registry.TypeChannel, fmt.Sprintf("stress-%d", i), fin)
		if err != nil {
			r.Shutdown()
			return fmt.Errorf("failed to create object %d: %w", i, err)
		}
		objs[i] = ref
	}

	var (
		wg  sync.WaitGroup
		ops atomic.Int64
	)
	start := time.Now()
	for t := 0; t < stressThreads; t++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			stressWorker(r, objs, seed, &ops)
		}(uint64(t) + 1)
	}
	wg.Wait()
	elapsed := time.Since(start)

	res := StressResult{
		Threads:    stressThreads,
		Objects:    stressObjects,
		Operations: ops.Load(),
		Duration:   elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		res.OpsPerSec = float64(res.Operations) / secs
	}

	for i, ref := range objs {
		e, err := r.Info(ref)
		if err != nil || e.Count != 1 {
			res.Unbalanced = append(res.Unbalanced, fmt.Sprintf("%s: count=%d err=%v", ref, e.Count, err))
		}
		if i >= stressObjects-stressLeak {
			continue
		}
		r.Release(&objs[i])
	}

	res.Misuses = r.Stats().Misuses
	rep := r.Shutdown()
	res.Leaked = len(rep.Leaked)
	res.ShutdownDur = rep.Duration
	res.Finalized = finalized.Load()
	logger.Info("stress run finished", "ops", res.Operations, "leaked", res.Leaked)
	if res.Leaked != stressLeak {
		logger.Warn("stress run leaked unexpected objects", "want", stressLeak, "got", res.Leaked)
	}

	if jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printStress(res)
	}

	if len(res.Unbalanced) > 0 {
		return fmt.Errorf("%d object(s) unbalanced after the run", len(res.Unbalanced))
	}
	if res.Finalized != int64(stressObjects) {
		return fmt.Errorf("finalized %d objects, want %d", res.Finalized, stressObjects)
	}
	return nil
}

// stressWorker keeps its own references so that every release it issues is
// backed by a retain it made.
func stressWorker(r *registry.Registry, objs []registry.Ref, seed uint64, ops *atomic.Int64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	held := make([][]registry.Ref, len(objs))
	for i := 0; i < stressIterations; i++ {
		k := rng.IntN(len(objs))
		if len(held[k]) == 0 || rng.IntN(2) == 0 {
			if ref := r.Retain(objs[k]); !ref.IsNil() {
				held[k] = append(held[k], ref)
			}
		} else {
			last := len(held[k]) - 1
			r.Release(&held[k][last])
			held[k] = held[k][:last]
		}
		ops.Add(1)
	}
	for k := range held {
		for j := range held[k] {
			r.Release(&held[k][j])
			ops.Add(1)
		}
	}
}

func printStress(res StressResult) {
	printInfo("\nStress Results\n")
	printInfo("  Workers:     %d\n", res.Threads)
	printInfo("  Objects:     %d\n", res.Objects)
	printInfo("  Operations:  %s\n", formatNumber(res.Operations))
	printInfo("  Duration:    %s\n", res.Duration.Round(time.Microsecond))
	printInfo("  Throughput:  %s ops/s\n", formatNumber(int64(res.OpsPerSec)))
	printInfo("  Misuses:     %d\n", res.Misuses)
	printInfo("  Finalized:   %d\n", res.Finalized)
	printInfo("  Leaked:      %d (reclaimed in %s)\n", res.Leaked, res.ShutdownDur.Round(time.Microsecond))
	for _, u := range res.Unbalanced {
		printInfo("  Unbalanced:  %s\n", u)
	}
}
