// Command authlimit-loadtest measures limiter throughput and latency under
// concurrent load. It runs two phases: a spread phase where workers check
// random identifiers, and a hot-key phase where all workers contend on a
// small identifier set to expose per-key serialization cost.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authlimit "github.com/kvarle/authlimit"
)

func main() {
	var (
		identifiers = flag.Int("identifiers", 100000, "number of distinct identifiers for the spread phase")
		hotKeys     = flag.Int("hot-keys", 16, "number of identifiers for the hot-key phase")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		maxAttempts = flag.Int("max-attempts", 1000000, "policy attempt limit; keep high so checks stay on the allowed path")
	)
	flag.Parse()

	if *identifiers <= 0 || *hotKeys <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identifiers, hot-keys, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	limiter, err := authlimit.New().
		WithPolicies(authlimit.Policy{
			Operation:           "loadtest",
			MaxAttempts:         *maxAttempts,
			WindowDuration:      15 * time.Minute,
			BaseBlockDuration:   time.Hour,
			BackoffMultiplier:   2,
			MaxBlockDuration:    7 * 24 * time.Hour,
			ViolationResetAfter: 30 * 24 * time.Hour,
		}).
		WithRedis(client).
		WithLedgerSink(authlimit.NoOpSink{}).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build limiter: %v\n", err)
		os.Exit(1)
	}
	defer limiter.Close()

	spread := make([]string, *identifiers)
	for i := range spread {
		spread[i] = fmt.Sprintf("10.%d.%d.%d", i>>16&0xFF, i>>8&0xFF, i&0xFF)
	}
	hot := make([]string, *hotKeys)
	for i := range hot {
		hot[i] = fmt.Sprintf("192.168.0.%d", i+1)
	}

	spreadStats := runPhase(ctx, limiter, spread, *ops, *concurrency)
	hotStats := runPhase(ctx, limiter, hot, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("spread", spreadStats)
	printStats("hot-key", hotStats)

	snapshot := limiter.MetricsSnapshot()
	fmt.Printf("allowed=%d blocked=%d fail-open=%d ledger-dropped=%d\n",
		snapshot.Counters[authlimit.MetricCheckAllowed],
		snapshot.Counters[authlimit.MetricCheckBlocked],
		snapshot.Counters[authlimit.MetricFailOpen],
		limiter.LedgerDropped(),
	)
}

func runPhase(ctx context.Context, limiter *authlimit.Limiter, ids []string, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		denied    int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				id := ids[r.Intn(len(ids))]
				t0 := time.Now()
				decision, err := limiter.Check(ctx, "loadtest", id, authlimit.IdentifierIP)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else if !decision.Allowed {
					atomic.AddInt64(&denied, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures, denied)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	denied   int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures, denied int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		denied:   denied,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d denied=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.denied,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
