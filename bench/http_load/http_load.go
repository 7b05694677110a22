package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"example.com/blogapi/bench/internal/apiclient"
	"example.com/blogapi/bench/internal/stats"
)

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var readRatio int
	var insecure bool

	flag.StringVar(&server, "server", "http://localhost:5000", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.IntVar(&readRatio, "reads", 4, "list requests per post creation")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flag.Parse()

	client := apiclient.New(server, insecure)
	ctx := context.Background()

	// --- Create and log in one user per goroutine ---
	fmt.Printf("Creating %d users...\n", concurrency)
	tokens := make([]string, concurrency)
	for i := range tokens {
		name := fmt.Sprintf("load-%d-%d", i, time.Now().UnixNano()%1e9)
		token, err := client.Signup(ctx, name, "load-password")
		if err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
		tokens[i] = token
	}
	fmt.Println("Users created.")

	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	var requests int64
	var successes int64
	var errors4xx int64
	var errors5xx int64

	latencySlices := make([][]float64, concurrency)

	// --- Mixed write/read load ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			token := tokens[idx]
			var local []float64

			for n := 0; time.Now().Before(stopTime); n++ {
				start := time.Now()
				var status int
				var err error
				if n%(readRatio+1) == 0 {
					body := map[string]string{"content": fmt.Sprintf("load test post %d", time.Now().UnixNano())}
					status, err = client.Do(ctx, http.MethodPost, "/api/blog", token, body, nil)
				} else {
					status, err = client.Do(ctx, http.MethodGet, "/api/blog", token, nil, nil)
				}
				local = append(local, time.Since(start).Seconds()*1000)
				atomic.AddInt64(&requests, 1)

				switch {
				case err == nil:
					atomic.AddInt64(&successes, 1)
				case status >= 500:
					atomic.AddInt64(&errors5xx, 1)
				case status >= 400:
					atomic.AddInt64(&errors4xx, 1)
				default:
					fmt.Printf("Request error: %v\n", err)
				}
			}

			latencySlices[idx] = local
		}(i)
	}

	wg.Wait()

	var all []float64
	for _, s := range latencySlices {
		all = append(all, s...)
	}
	summary := stats.Summarize(all, trimPercent)

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): %s\n", summary)

	if err := stats.WriteCSV(csvFile, all); err != nil {
		fmt.Printf("Failed to write CSV file: %v\n", err)
		return
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}
