// Command benchmark measures add and processing throughput of in-memory
// queues in each threading mode.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	processqueue "github.com/GridProtectionAlliance/gsf-sub065"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

type BenchmarkResult struct {
	Name     string
	Items    int
	Workers  int
	Duration time.Duration
	Rate     float64
	RateK    float64
	Success  int64
	Failed   int64
}

var (
	numItems = flag.IntP("items", "n", 100000, "number of items per benchmark")
	interval = flag.Duration("interval", time.Millisecond, "dispatch interval of Asynchronous and Synchronous queues")
	mixedFor = flag.Duration("mixed-duration", 5*time.Second, "duration of the mixed load benchmark")
	quick    = flag.Bool("quick", false, "run a single configuration of each benchmark")
)

var allResults []BenchmarkResult

type sample struct {
	ID        int
	Timestamp int64
	Value     float64
}

func newResult(name string, items, workers int, d time.Duration, success, failed int64) BenchmarkResult {
	rate := float64(success) / d.Seconds()
	log.Printf("Results:")
	log.Printf("  Duration: %v", d)
	log.Printf("  Success: %d, Failed: %d", success, failed)
	log.Printf("  Rate: %.2f items/sec (%.2f K/sec)", rate, rate/1000)
	return BenchmarkResult{
		Name:     name,
		Items:    items,
		Workers:  workers,
		Duration: d,
		Rate:     rate,
		RateK:    rate / 1000,
		Success:  success,
		Failed:   failed,
	}
}

func settings(name string, mode processqueue.ThreadingMode, workers int) processqueue.Settings {
	return processqueue.Settings{
		Name:       name,
		Mode:       mode,
		Interval:   *interval,
		MaxWorkers: workers,
		LogLevel:   processqueue.WarnLevel,
	}
}

// BenchmarkAdd measures how fast concurrent producers can add items to a
// queue that is not started.
func BenchmarkAdd(n, producers int) BenchmarkResult {
	log.Printf("\n=== ADD BENCHMARK ===")
	log.Printf("Items: %d, Producers: %d goroutines", n, producers)

	q, err := processqueue.New(processqueue.Config[sample]{
		Settings: settings("bench-add", processqueue.Asynchronous, 1),
		Handler:  processqueue.HandlerFunc[sample](func(context.Context, sample) error { return nil }),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer q.Close()

	var success, failed atomic.Int64
	perProducer := n / producers
	start := time.Now()
	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				if err := q.Add(sample{ID: p*perProducer + i, Timestamp: time.Now().UnixNano()}); err != nil {
					failed.Add(1)
					continue
				}
				success.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	return newResult(fmt.Sprintf("Add (producers=%d)", producers), n, producers, time.Since(start), success.Load(), failed.Load())
}

// BenchmarkProcessing measures how fast a queue drains n preloaded items.
func BenchmarkProcessing(mode processqueue.ThreadingMode, n, workers int) BenchmarkResult {
	log.Printf("\n=== PROCESSING BENCHMARK (%v) ===", mode)
	log.Printf("Items: %d, Workers: %d", n, workers)

	var processed atomic.Int64
	q, err := processqueue.New(processqueue.Config[sample]{
		Settings: settings("bench-process", mode, workers),
		Handler: processqueue.HandlerFunc[sample](func(ctx context.Context, s sample) error {
			processed.Add(1)
			return nil
		}),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer q.Close()

	items := make([]sample, n)
	for i := range items {
		items[i] = sample{ID: i, Value: float64(i)}
	}
	if err := q.AddRange(items...); err != nil {
		log.Fatal(err)
	}

	if err := q.Start(); err != nil {
		log.Fatal(err)
	}
	d, count := waitFor(&processed, int64(n), 2*time.Minute)
	if count < int64(n) {
		log.Printf("TIMEOUT - %d of %d items processed", count, n)
	}
	return newResult(fmt.Sprintf("Processing %v (workers=%d)", mode, q.Statistics().MaxWorkers), n, workers, d, count, int64(n)-count)
}

// BenchmarkKeyed measures a RealTime keyed queue fed by concurrent upserts
// over a fixed key space, where newer values replace queued ones.
func BenchmarkKeyed(n, producers, keys int) BenchmarkResult {
	log.Printf("\n=== KEYED BENCHMARK ===")
	log.Printf("Upserts: %d, Producers: %d, Keys: %d", n, producers, keys)

	var processed atomic.Int64
	kq, err := processqueue.NewKeyedRealTime(processqueue.KeyedConfig[int, sample]{
		Settings: settings("bench-keyed", processqueue.RealTime, 1),
		Handler: processqueue.KeyedHandlerFunc[int, sample](func(ctx context.Context, key int, s sample) error {
			processed.Add(1)
			return nil
		}),
	})
	if err != nil {
		log.Fatal(err)
	}
	defer kq.Close()
	if err := kq.Start(); err != nil {
		log.Fatal(err)
	}

	perProducer := n / producers
	start := time.Now()
	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				if err := kq.Set((p*perProducer+i)%keys, sample{ID: i}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	for kq.Count() > 0 || kq.IsProcessing() {
		time.Sleep(time.Millisecond)
	}
	d := time.Since(start)
	count := processed.Load()
	log.Printf("  Coalesced: %d upserts", int64(n)-count)
	return newResult(fmt.Sprintf("Keyed RealTime (keys=%d)", keys), n, producers, d, count, 0)
}

// BenchmarkMixedLoad adds and processes items concurrently for d.
func BenchmarkMixedLoad(d time.Duration, producers, workers int) (BenchmarkResult, BenchmarkResult) {
	log.Printf("\n=== MIXED LOAD BENCHMARK ===")
	log.Printf("Duration: %v, Producers: %d, Workers: %d", d, producers, workers)

	var processed atomic.Int64
	q, err := processqueue.New(processqueue.Config[sample]{
		Settings: settings("bench-mixed", processqueue.Asynchronous, workers),
		Handler: processqueue.HandlerFunc[sample](func(ctx context.Context, s sample) error {
			processed.Add(1)
			return nil
		}),
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := q.Start(); err != nil {
		log.Fatal(err)
	}

	var added atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := 0; ctx.Err() == nil; i++ {
				if err := q.Add(sample{ID: i}); err != nil {
					return err
				}
				added.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("Producer error: %v", err)
	}
	elapsed := time.Since(start)

	// Let the backlog drain a little before reading the counters.
	time.Sleep(2 * time.Second)
	stats := q.Statistics()
	q.Close()

	log.Printf("  Backlog at close: %d items", stats.QueueCount)
	addResult := newResult(fmt.Sprintf("Mixed Add (producers=%d)", producers), int(added.Load()), producers, elapsed, added.Load(), 0)
	processResult := newResult(fmt.Sprintf("Mixed Process (workers=%d)", workers), int(processed.Load()), workers, elapsed, processed.Load(), 0)
	return addResult, processResult
}

// waitFor polls counter until it reaches want or timeout elapses.
func waitFor(counter *atomic.Int64, want int64, timeout time.Duration) (time.Duration, int64) {
	start := time.Now()
	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := counter.Load(); n >= want {
				return time.Since(start), n
			}
		case <-deadline:
			return time.Since(start), counter.Load()
		}
	}
}

func printSummaryTable() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                           BENCHMARK RESULTS SUMMARY                                   ║")
	fmt.Println("╠═══════════════════════════════════════════════╦═══════════╦═══════════╦══════════════╣")
	fmt.Println("║ Test                                          ║  Items    ║  Workers  ║  Rate (K/s)  ║")
	fmt.Println("╠═══════════════════════════════════════════════╬═══════════╬═══════════╬══════════════╣")

	for _, r := range allResults {
		fmt.Printf("║ %-45s ║ %9d ║ %9d ║ %10.2f K ║\n", r.Name, r.Items, r.Workers, r.RateK)
	}

	fmt.Println("╚═══════════════════════════════════════════════╩═══════════╩═══════════╩══════════════╝")
}

func main() {
	flag.Parse()
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("╔══════════════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       PROCESS QUEUE BENCHMARK SUITE                                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════════════════╝")
	log.Printf("CPU Cores: %d | GOMAXPROCS: %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	log.Printf("Started at: %s", time.Now().Format("2006-01-02 15:04:05"))

	producers := []int{1, 10, 50, 100}
	workers := []int{1, 10, 50, 100}
	if *quick {
		producers, workers = []int{10}, []int{10}
	}

	for _, p := range producers {
		allResults = append(allResults, BenchmarkAdd(*numItems, p))
	}
	for _, w := range workers {
		allResults = append(allResults, BenchmarkProcessing(processqueue.Asynchronous, *numItems, w))
	}
	allResults = append(allResults,
		BenchmarkProcessing(processqueue.Synchronous, *numItems/10, 1),
		BenchmarkProcessing(processqueue.RealTime, *numItems, 1),
		BenchmarkKeyed(*numItems, 10, 1000),
	)

	addResult, processResult := BenchmarkMixedLoad(*mixedFor, 10, 50)
	allResults = append(allResults, addResult, processResult)

	printSummaryTable()

	log.Printf("\nCompleted at: %s", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println("\nBenchmark complete!")
}
