package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/google/uuid"

	"github.com/nStangl/minivault-go/client"
	"github.com/nStangl/minivault-go/util"
	"github.com/nStangl/minivault-go/vaulttest"
)

// Closed-loop benchmark: write n values over the binary transport,
// read them back, and plot per-phase latency histograms. Without
// -addr it benchmarks an in-process server, which mostly measures the
// client and loopback stack.
func main() {
	var (
		addr    = flag.String("addr", "", "binary listener to benchmark (empty starts an in-process server)")
		apiKey  = flag.String("api-key", "", "API key sent with every call")
		n       = flag.Int("n", 5000, "operations per phase")
		workers = flag.Int("c", 10, "concurrent operations")
		csvPath = flag.String("csv", "", "dump raw latencies (ns) to this CSV file")
	)

	flag.Parse()

	target := *addr

	if target == "" {
		srv, err := vaulttest.New()
		if err != nil {
			log.Fatalf("failed to start in-process server: %v", err)
		}

		defer srv.Close()

		target = srv.Addr()

		log.Printf("benchmarking in-process server on %s", target)
	}

	opts := []client.Option{client.WithTimeout(client.DefaultTimeout)}
	if *apiKey != "" {
		opts = append(opts, client.WithAPIKey(*apiKey))
	}

	c := client.NewBinary(target, opts...)

	keys := make([]string, *n)
	for i := range keys {
		keys[i] = "bench:" + uuid.NewString()
	}

	value := []byte(`{"payload":"0123456789abcdef","seq":0}`)

	writeTimes := run("set", keys, *workers, func(key string) bool {
		return c.Set(key, value)
	})

	readTimes := run("get", keys, *workers, func(key string) bool {
		return c.Get(key) != nil
	})

	fmt.Println("SET latency (ms)")
	plot(writeTimes)

	fmt.Println("GET latency (ms)")
	plot(readTimes)

	if *csvPath != "" {
		if err := dumpCSV(*csvPath, writeTimes, readTimes); err != nil {
			log.Fatalf("failed to write %s: %v", *csvPath, err)
		}

		log.Printf("raw latencies written to %s", *csvPath)
	}
}

func run(phase string, keys []string, workers int, op func(string) bool) []float64 {
	type res struct {
		ok bool
		d  time.Duration
	}

	var (
		wg   sync.WaitGroup
		coll sync.WaitGroup
		sem  = make(chan struct{}, util.Max(1, util.Min(len(keys), workers)))
		rs   = make(chan res, 1000)
	)

	times := make([]float64, 0, len(keys))
	failed := 0

	coll.Add(1)

	go func() {
		defer coll.Done()

		for r := range rs {
			if !r.ok {
				failed++
				continue
			}

			times = append(times, float64(r.d.Nanoseconds()))
		}
	}()

	start := time.Now()

	for _, key := range keys {
		key := key

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			opStart := time.Now()
			ok := op(key)
			rs <- res{ok: ok, d: time.Since(opStart)}
		}()
	}

	wg.Wait()
	close(rs)
	coll.Wait()

	elapsed := time.Since(start)

	log.Printf("%s: %d ops in %s (%.0f ops/sec, %d failed)",
		phase, len(keys), elapsed, float64(len(keys))/elapsed.Seconds(), failed)

	return times
}

func plot(times []float64) {
	if len(times) == 0 {
		fmt.Println("no samples")
		return
	}

	ms := make([]float64, len(times))
	for i, t := range times {
		ms[i] = t / float64(time.Millisecond)
	}

	hist := histogram.Hist(9, ms)

	if err := histogram.Fprint(os.Stdout, hist, histogram.Linear(40)); err != nil {
		log.Printf("failed to render histogram: %v", err)
	}
}

func dumpCSV(path string, writes, reads []float64) error {
	rows := make([][]string, 0, util.Max(len(writes), len(reads))+1)
	rows = append(rows, []string{"phase", "latency_ns"})

	for _, t := range writes {
		rows = append(rows, []string{"set", strconv.FormatFloat(t, 'f', 0, 64)})
	}

	for _, t := range reads {
		rows = append(rows, []string{"get", strconv.FormatFloat(t, 'f', 0, 64)})
	}

	return util.WriteCSV(path, rows)
}
