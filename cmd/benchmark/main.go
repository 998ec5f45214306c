package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Load generator for the transfer endpoint. Expects a seeded database and a
// file of account ids (one per line via -accounts, or fetched ids baked into
// the uniform workload).
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accountsCSV string
)

var (
	totalRequests uint64
	success201    uint64
	fail409       uint64 // concurrency conflicts
	fail422       uint64 // declined (insufficient funds etc.)
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&accountsCSV, "accounts", "", "Comma-separated account ids to exercise")
}

func main() {
	flag.Parse()
	accounts := splitAccounts(accountsCSV)
	if len(accounts) < 2 {
		log.Fatal("need at least two account ids via -accounts")
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, accounts)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, accounts []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for time.Since(start) < duration {
		sender, recipient := pickPair(rng, accounts)
		payload, _ := json.Marshal(map[string]string{
			"recipient_id": recipient,
			"amount":       "1.00",
			"description":  "bench",
		})

		req, err := http.NewRequest("POST", targetURL+"/api/v1/transfers", bytes.NewReader(payload))
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Actor-ID", sender)

		resp, err := client.Do(req)
		atomic.AddUint64(&totalRequests, 1)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

// pickPair selects distinct sender/recipient; the hotspot workload funnels
// most traffic through the first account to stress per-row serialization.
func pickPair(rng *rand.Rand, accounts []string) (string, string) {
	if workload == "hotspot" && rng.Intn(100) < 80 {
		other := accounts[1+rng.Intn(len(accounts)-1)]
		return accounts[0], other
	}
	i := rng.Intn(len(accounts))
	j := rng.Intn(len(accounts) - 1)
	if j >= i {
		j++
	}
	return accounts[i], accounts[j]
}

func splitAccounts(csv string) []string {
	var out []string
	for _, s := range bytes.Split([]byte(csv), []byte(",")) {
		if v := string(bytes.TrimSpace(s)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("--- Results ---")
	fmt.Printf("Elapsed:     %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Requests:    %d (%.1f req/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("Created:     %d\n", atomic.LoadUint64(&success201))
	fmt.Printf("Conflicts:   %d\n", atomic.LoadUint64(&fail409))
	fmt.Printf("Declined:    %d\n", atomic.LoadUint64(&fail422))
	fmt.Printf("Other fails: %d\n", atomic.LoadUint64(&failOther))

	if atomic.LoadUint64(&failOther) > 0 {
		os.Exit(1)
	}
}
