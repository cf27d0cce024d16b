// Command lease-race hammers the registry with concurrent logins and checks
// that every account ends up with exactly one valid lease.
//
// Each account gets -racers concurrent Register calls with distinct
// candidates. Afterwards exactly one candidate per account must pass
// Validate. A validate phase then measures lookup latency.
//
//	go run ./cmd/lease-race -accounts 5000 -racers 4
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goLease "github.com/MrEthical07/goLease"
	"github.com/MrEthical07/goLease/leaseid"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type accountState struct {
	id         string
	candidates []string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of accounts")
		racers      = flag.Int("racers", 4, "concurrent logins per account")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "validate operations")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lr", "lease key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *racers <= 1 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0, racers must be > 1")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := goLease.DefaultConfig()
	cfg.Lease.RedisPrefix = *prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := goLease.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]accountState, *accounts)
	for i := range states {
		states[i].id = fmt.Sprintf("acct-%d", i)
		states[i].candidates = make([]string, *racers)
		for j := range states[i].candidates {
			id, err := leaseid.Mint(time.Now(), leaseid.NewFingerprint("lease-race", fmt.Sprint(j)))
			if err != nil {
				fmt.Fprintf(os.Stderr, "mint failed: %v\n", err)
				os.Exit(1)
			}
			states[i].candidates[j] = id
		}
	}

	raceStats := runRacePhase(ctx, engine, states, *concurrency)
	violations := checkExclusivity(ctx, engine, states)
	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)

	snap := engine.MetricsSnapshot()

	fmt.Println("---- results ----")
	printStats("register", raceStats)
	printStats("validate", validateStats)
	fmt.Printf("evictions=%d rejected=%d unavailable=%d\n",
		snap.Counters[goLease.MetricLeaseEvicted],
		snap.Counters[goLease.MetricValidateRejected],
		snap.Counters[goLease.MetricValidateUnavailable],
	)
	if violations > 0 {
		fmt.Printf("FAIL: %d accounts without exactly one valid lease\n", violations)
		os.Exit(1)
	}
	fmt.Println("OK: every account has exactly one valid lease")
}

// runRacePhase fires every candidate of every account at once, spread over
// the worker pool so racers of one account overlap.
func runRacePhase(ctx context.Context, engine *goLease.Engine, states []accountState, concurrency int) phaseStats {
	type job struct{ account, candidate string }

	jobs := make(chan job, concurrency)
	var (
		wg        sync.WaitGroup
		failures  int64
		latencies []time.Duration
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				t0 := time.Now()
				_, err := engine.Register(ctx, j.account, j.candidate, "lease-race")
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	for _, st := range states {
		for _, c := range st.candidates {
			jobs <- job{account: st.id, candidate: c}
		}
	}
	close(jobs)
	wg.Wait()

	return computeStats(time.Since(start), latencies, failures)
}

func checkExclusivity(ctx context.Context, engine *goLease.Engine, states []accountState) int {
	violations := 0
	for _, st := range states {
		valid := 0
		for _, c := range st.candidates {
			err := engine.Validate(ctx, st.id, c)
			switch {
			case err == nil:
				valid++
			case errors.Is(err, goLease.ErrLeaseSuperseded):
			default:
				fmt.Fprintf(os.Stderr, "validate %s: %v\n", st.id, err)
			}
		}
		if valid != 1 {
			violations++
		}
	}
	return violations
}

func runValidatePhase(ctx context.Context, engine *goLease.Engine, states []accountState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
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
				st := states[r.Intn(len(states))]
				c := st.candidates[r.Intn(len(st.candidates))]

				t0 := time.Now()
				err := engine.Validate(ctx, st.id, c)
				d := time.Since(t0)
				if err != nil && !errors.Is(err, goLease.ErrLeaseSuperseded) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
