package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-ui/weft/pkg/reactive"
)

type benchResult struct {
	Workload      string        `json:"workload"`
	Nodes         int           `json:"nodes"`
	Writes        int           `json:"writes"`
	Elapsed       time.Duration `json:"elapsed_ns"`
	WritesPerSec  float64       `json:"writes_per_sec"`
	Recomputes    uint64        `json:"recomputes"`
	Notifications uint64        `json:"notifications"`
	Passes        uint64        `json:"passes"`
}

func benchCmd() *cobra.Command {
	var (
		workload string
		nodes    int
		writes   int
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run propagation benchmarks",
		Long: `Run a synthetic propagation workload and report throughput.

Workloads:
  chain    a single signal behind a linear chain of derivations
  fanout   one signal with many independent derived subscribers
  diamond  repeated two-branch diamonds joined per layer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res benchResult
			switch workload {
			case "chain":
				res = benchChain(nodes, writes)
			case "fanout":
				res = benchFanout(nodes, writes)
			case "diamond":
				res = benchDiamond(nodes, writes)
			default:
				return fmt.Errorf("unknown workload %q", workload)
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(res)
			}
			fmt.Printf("workload:       %s\n", res.Workload)
			fmt.Printf("nodes:          %d\n", res.Nodes)
			fmt.Printf("writes:         %d\n", res.Writes)
			fmt.Printf("elapsed:        %s\n", res.Elapsed)
			fmt.Printf("writes/sec:     %.0f\n", res.WritesPerSec)
			fmt.Printf("passes:         %d\n", res.Passes)
			fmt.Printf("recomputes:     %d\n", res.Recomputes)
			fmt.Printf("notifications:  %d\n", res.Notifications)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workload, "workload", "w", "chain", "Workload: chain, fanout, diamond")
	cmd.Flags().IntVarP(&nodes, "nodes", "n", 100, "Graph size in derivations")
	cmd.Flags().IntVar(&writes, "writes", 10000, "Number of source writes")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the result as JSON")

	return cmd
}

func benchChain(depth, writes int) benchResult {
	st := reactive.NewStore()
	src := reactive.NewSignal(st, 0)

	var tail reactive.Value[int] = src
	for i := 0; i < depth; i++ {
		tail = reactive.Derive(tail, func(x int) int { return x + 1 })
	}
	sink := 0
	tail.Subscribe(func(n int) { sink = n })

	start := time.Now()
	for i := 1; i <= writes; i++ {
		src.Set(i)
	}
	elapsed := time.Since(start)
	_ = sink

	return report("chain", depth, writes, elapsed, st.Stats())
}

func benchFanout(width, writes int) benchResult {
	st := reactive.NewStore()
	src := reactive.NewSignal(st, 0)

	sink := 0
	for i := 0; i < width; i++ {
		d := reactive.Derive(src, func(x int) int { return x + 1 })
		d.Subscribe(func(n int) { sink = n })
	}

	start := time.Now()
	for i := 1; i <= writes; i++ {
		src.Set(i)
	}
	elapsed := time.Since(start)
	_ = sink

	return report("fanout", width, writes, elapsed, st.Stats())
}

func benchDiamond(layers, writes int) benchResult {
	st := reactive.NewStore()
	src := reactive.NewSignal(st, 0)

	var join reactive.Value[int] = src
	for i := 0; i < layers; i++ {
		left := reactive.Derive(join, func(x int) int { return x + 1 })
		right := reactive.Derive(join, func(x int) int { return x * 2 })
		join = reactive.Derive2(left, right, func(a, b int) int { return a + b })
	}
	sink := 0
	join.Subscribe(func(n int) { sink = n })

	start := time.Now()
	for i := 1; i <= writes; i++ {
		src.Set(i)
	}
	elapsed := time.Since(start)
	_ = sink

	return report("diamond", layers*3, writes, elapsed, st.Stats())
}

func report(workload string, nodes, writes int, elapsed time.Duration, stats reactive.Stats) benchResult {
	return benchResult{
		Workload:      workload,
		Nodes:         nodes,
		Writes:        writes,
		Elapsed:       elapsed,
		WritesPerSec:  float64(writes) / elapsed.Seconds(),
		Recomputes:    stats.Recomputes,
		Notifications: stats.Notifications,
		Passes:        stats.Passes,
	}
}
