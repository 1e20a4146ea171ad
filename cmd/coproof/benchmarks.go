package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/luxfi/coproof/pkg/pipeline"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type timing struct {
	total, min, max time.Duration
	runs            int
}

func (t *timing) add(d time.Duration) {
	if t.runs == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.total += d
	t.runs++
}

func (t *timing) print(name string) {
	if t.runs == 0 {
		return
	}
	fmt.Printf("\n%s:\n", name)
	fmt.Printf("  Average: %v\n", t.total/time.Duration(t.runs))
	fmt.Printf("  Min:     %v\n", t.min)
	fmt.Printf("  Max:     %v\n", t.max)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	iterations, _ := cmd.Flags().GetInt("iterations")
	if iterations < 1 {
		return fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	dir, err := os.MkdirTemp("", "coproof-bench-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	fmt.Printf("=== Pipeline Benchmark ===\n")
	fmt.Printf("Parties: %d, iterations: %d\n", simulatedParties, iterations)

	// stage logs would dominate the timings
	quiet := zap.NewNop()
	stages := []string{"split and merge input", "generate witness", "translate witness", "prove (REP3)", "prove (Shamir)", "verify"}
	timings := make(map[string]*timing, len(stages))
	for _, s := range stages {
		timings[s] = new(timing)
	}

	o := pipeline.New(pipeline.WithLogger(quiet))
	for i := 0; i < iterations; i++ {
		fmt.Printf("\rProgress: %d/%d", i, iterations)
		w, err := newWorkspace(fmt.Sprintf("%s/%d", dir, i))
		if err != nil {
			return err
		}
		if err := o.CreateCRS(pipeline.CRSRequest{Circuit: w.circuit, Out: w.path("crs")}); err != nil {
			return err
		}
		if err := o.CreateVK(pipeline.KeyRequest{Circuit: w.circuit, CRS: w.path("crs"), Out: w.path("vk")}); err != nil {
			return err
		}
		if err := benchmarkRun(cmd.Context(), w, o, quiet, timings); err != nil {
			return err
		}
	}
	fmt.Printf("\rProgress: %d/%d\n", iterations, iterations)

	for _, s := range stages {
		timings[s].print(s)
	}
	return nil
}

func benchmarkRun(ctx context.Context, w *workspace, o *pipeline.Orchestrator, log *zap.Logger, timings map[string]*timing) error {
	c := newCluster(simulatedParties, log)
	defer c.close()

	measure := func(name string, f func() error) error {
		start := time.Now()
		if err := f(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		timings[name].add(time.Since(start))
		return nil
	}
	steps := []struct {
		name string
		f    func() error
	}{
		{"split and merge input", func() error { return w.contribute(o) }},
		{"generate witness", func() error { return w.generateWitness(ctx, c) }},
		{"translate witness", func() error { return w.translate(ctx, c) }},
		{"prove (REP3)", func() error { return w.prove(ctx, c, "witness", "proof-rep3", share.REP3) }},
		{"prove (Shamir)", func() error { return w.prove(ctx, c, "shamir", "proof-shamir", share.Shamir) }},
		{"verify", func() error { return w.expectValid(o, w.share("proof-shamir", 0)) }},
	}
	for _, s := range steps {
		if err := measure(s.name, s.f); err != nil {
			return err
		}
	}
	return nil
}
