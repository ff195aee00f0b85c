package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/1F47E/touchmap/pkg/mapctx"
	"github.com/1F47E/touchmap/pkg/models"
	"github.com/1F47E/touchmap/pkg/query"
	"github.com/1F47E/touchmap/pkg/viewport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure tap query latency",
	Long:  `Fire random taps over the screen at the default extent and report how long the layers take to answer.`,
	RunE:  runBench,
}

var (
	benchQueries int
	benchWorkers int
)

func init() {
	benchCmd.Flags().IntVarP(&benchQueries, "queries", "n", 1000, "Number of taps")
	benchCmd.Flags().IntVarP(&benchWorkers, "workers", "w", runtime.NumCPU(), "Concurrent workers")
}

// BenchmarkResult summarizes a tap benchmark
type BenchmarkResult struct {
	TotalQueries  int
	Errors        int
	TotalDuration time.Duration
	Durations     []time.Duration
	Outcomes      map[query.Outcome]int
}

func (r BenchmarkResult) percentile(p float64) time.Duration {
	if len(r.Durations) == 0 {
		return 0
	}
	i := int(p * float64(len(r.Durations)-1))
	return r.Durations[i]
}

func (r BenchmarkResult) average() time.Duration {
	if len(r.Durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range r.Durations {
		total += d
	}
	return total / time.Duration(len(r.Durations))
}

// benchmarkTaps runs numQueries random taps on a worker pool. The
// projection and the layers are shared by all workers.
func benchmarkTaps(ctx context.Context, planner *query.Planner, ctrl *viewport.Controller, layers []query.Layer, numQueries, workers int) BenchmarkResult {
	cfg := ctrl.Config()
	result := BenchmarkResult{
		TotalQueries: numQueries,
		Outcomes:     map[query.Outcome]int{},
	}
	var mu sync.Mutex

	start := time.Now()
	queryCh := make(chan struct{}, numQueries)
	var wg sync.WaitGroup

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(rand.Int63()))

			for range queryCh {
				tap := models.ScreenPoint{
					X: r.Float64() * float64(cfg.ScreenWidth),
					Y: r.Float64() * float64(cfg.ScreenHeight),
				}

				queryStart := time.Now()
				res, err := planner.Query(ctx, tap, ctrl, layers)
				d := time.Since(queryStart)

				mu.Lock()
				if err != nil {
					result.Errors++
				} else {
					result.Durations = append(result.Durations, d)
					result.Outcomes[res.Outcome]++
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < numQueries; i++ {
		if ctx.Err() != nil {
			break
		}
		queryCh <- struct{}{}
	}
	close(queryCh)
	wg.Wait()

	result.TotalDuration = time.Since(start)
	sort.Slice(result.Durations, func(i, j int) bool { return result.Durations[i] < result.Durations[j] })
	return result
}

func runBench(cmd *cobra.Command, args []string) error {
	if benchQueries <= 0 || benchWorkers <= 0 {
		return fmt.Errorf("queries and workers must be positive")
	}
	ctx := cmd.Context()

	m, closeMap, err := openMap(ctx)
	if err != nil {
		return err
	}
	defer closeMap()

	base, err := m.DefaultExtent(ctx)
	if err != nil {
		return err
	}
	ctrl, err := viewport.New(cfg.Screen.Viewport(), base)
	if err != nil {
		return err
	}

	printTitle(fmt.Sprintf("Running %d taps on %s with %d workers", benchQueries, m.Name(), benchWorkers))
	printLayerSources(m)

	planner := query.NewPlanner(logger, query.WithHalfSize(cfg.Query.HalfSize))
	result := benchmarkTaps(ctx, planner, ctrl, m.QueryLayers(), benchQueries, benchWorkers)

	logger.Info("tap benchmark finished",
		zap.Int("queries", result.TotalQueries),
		zap.Int("errors", result.Errors),
		zap.Duration("duration", result.TotalDuration))

	printSubtitle("Results")
	printStat("Total duration", result.TotalDuration)
	printStat("Queries/second", fmt.Sprintf("%.2f", float64(len(result.Durations))/result.TotalDuration.Seconds()))
	printStat("Average", result.average())
	printStat("p50", result.percentile(0.5))
	printStat("p99", result.percentile(0.99))
	if len(result.Durations) > 0 {
		printStat("Min", result.Durations[0])
		printStat("Max", result.Durations[len(result.Durations)-1])
	}
	for _, o := range []query.Outcome{query.OutcomeHit, query.OutcomeAmbiguous, query.OutcomeNone} {
		printStat(string(o), result.Outcomes[o])
	}
	if result.Errors > 0 {
		printError(fmt.Sprintf("%d taps failed", result.Errors))
	}
	return nil
}

func printLayerSources(m *mapctx.MapContext) {
	for _, l := range m.Layers() {
		if !l.Visible() {
			continue
		}
		printInfo(fmt.Sprintf("%s (%T)", l.Name(), l.Source()))
	}
}
