package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goAuthClient "github.com/MrEthical07/goAuthClient"
	"github.com/alicebob/miniredis/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var signingKey = []byte("loadtest-only")

// fakeAPI serves just enough of the account API for the pipeline to run:
// login, refresh and user. Access tokens live for accessTTL.
type fakeAPI struct {
	accessTTL time.Duration
	latency   time.Duration
	refreshes atomic.Int64
	seq       atomic.Int64
}

func (a *fakeAPI) mint(ttl time.Duration) string {
	tok := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"sub": "1",
		"jti": fmt.Sprintf("t-%d", a.seq.Add(1)),
		"exp": time.Now().Add(ttl).Unix(),
	})
	s, _ := tok.SignedString(signingKey)
	return s
}

func (a *fakeAPI) valid(r *http.Request) bool {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	_, err := gojwt.Parse(raw, func(*gojwt.Token) (any, error) { return signingKey, nil },
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}))
	return err == nil
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.latency > 0 {
		time.Sleep(a.latency)
	}
	w.Header().Set("Content-Type", "application/json")
	switch strings.TrimPrefix(r.URL.Path, "/api") {
	case goAuthClient.LoginPath:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":  "Login successful",
			"username": "loadtest",
			"tokens":   map[string]string{"access": a.mint(a.accessTTL), "refresh": a.mint(24 * time.Hour)},
		})
	case goAuthClient.RefreshPath:
		a.refreshes.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access": a.mint(a.accessTTL)})
	case goAuthClient.UserPath:
		if !a.valid(r) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "loadtest"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func main() {
	var (
		clients      = flag.Int("clients", 8, "independent clients sharing the token store")
		concurrency  = flag.Int("concurrency", 64, "concurrent requests per client")
		ops          = flag.Int("ops", 20000, "requests per phase")
		accessTTL    = flag.Duration("access-ttl", 200*time.Millisecond, "lifetime of minted access tokens")
		latency      = flag.Duration("latency", 0, "artificial API latency")
		singleFlight = flag.Bool("single-flight", true, "deduplicate concurrent refreshes")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix       = flag.String("prefix", "ac", "token key prefix")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	api := &fakeAPI{accessTTL: *accessTTL, latency: *latency}
	srv := httptest.NewServer(api)
	defer srv.Close()

	pool := make([]*goAuthClient.Client, *clients)
	for i := range pool {
		cfg := goAuthClient.DefaultConfig()
		cfg.API.BaseURL = srv.URL + "/api"
		cfg.Storage.Kind = goAuthClient.StorageRedis
		cfg.Storage.RedisPrefix = fmt.Sprintf("%s:%d", *prefix, i)
		cfg.Refresh.SingleFlight = *singleFlight
		cfg.Metrics.Enabled = true
		cfg.Metrics.EnableLatencyHistograms = true
		cfg.Logger = zap.NewNop()

		c, err := goAuthClient.New().WithConfig(cfg).WithRedis(rdb).Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build client: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		if _, err := c.Login(ctx, "loadtest", "Passw0rd!"); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		pool[i] = c
	}
	fmt.Printf("logged in %d clients\n", len(pool))

	warmStats := runPhase(ctx, pool, *ops, *concurrency)

	// Let every access token lapse so the next phase starts with a 401 storm.
	time.Sleep(*accessTTL + 50*time.Millisecond)
	stormStats := runPhase(ctx, pool, *ops, *concurrency)

	var exchanges, replays, forced uint64
	for _, c := range pool {
		exchanges += c.RefreshExchanges()
		snap := c.MetricsSnapshot()
		replays += snap.Counters[goAuthClient.MetricReplay]
		forced += snap.Counters[goAuthClient.MetricForcedLogout]
	}

	fmt.Println("---- results ----")
	printStats("warm", warmStats)
	printStats("expiry", stormStats)
	fmt.Printf("refresh: exchanges=%d server_refreshes=%d replays=%d forced_logouts=%d\n",
		exchanges, api.refreshes.Load(), replays, forced)
}

func runPhase(ctx context.Context, pool []*goAuthClient.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for _, c := range pool {
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func(c *goAuthClient.Client) {
				defer wg.Done()
				for {
					i := int(atomic.AddInt64(&cursor, 1)) - 1
					if i >= ops {
						return
					}
					t0 := time.Now()
					_, err := c.UserInfo(ctx)
					d := time.Since(t0)
					if err != nil {
						atomic.AddInt64(&failures, 1)
					}
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				}
			}(c)
		}
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
		return phaseStats{total: total}
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
