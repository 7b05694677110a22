package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"example.com/blogapi/bench/internal/apiclient"
	"example.com/blogapi/bench/internal/stats"
	"example.com/blogapi/internal/models"
)

// Measures how long it takes for a created post to show up in the activity
// log, i.e. the server -> Kafka -> worker -> store path. Needs an admin
// account, created with `blogapi adduser --admin`.
func main() {
	var serverAddr, adminUser, adminPass string
	var U, P, concurrency, pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:5000", "server base URL")
	flag.StringVar(&adminUser, "admin-user", "admin", "admin username")
	flag.StringVar(&adminPass, "admin-pass", "", "admin password")
	flag.IntVar(&U, "users", 20, "number of users to create")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for each activity entry")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flag.Parse()

	ctx := context.Background()
	client := apiclient.New(serverAddr, insecure)

	adminToken, err := client.Login(ctx, adminUser, adminPass)
	if err != nil {
		fmt.Printf("admin login failed: %v\n", err)
		os.Exit(1)
	}

	// --- 1) Create users ---
	fmt.Printf("Creating %d users...\n", U)
	tokens := make([]string, 0, U)
	for i := 0; i < U; i++ {
		token, err := client.Signup(ctx, fmt.Sprintf("e2e-%d-%d", i, time.Now().UnixNano()%1e9), "e2e-password")
		if err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}
		tokens = append(tokens, token)
	}

	// --- 2) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	type postRecord struct {
		PostID  string
		Created time.Time
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	postsCh := make(chan postRecord, P)

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			token := tokens[rand.Intn(len(tokens))]
			id, err := client.CreatePost(ctx, token, fmt.Sprintf("post %d", rand.Int()))
			if err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			postsCh <- postRecord{PostID: id, Created: time.Now()}
		}()
	}
	wg.Wait()
	close(postsCh)

	pending := make(map[string]time.Time, P)
	for pr := range postsCh {
		pending[pr.PostID] = pr.Created
	}

	// --- 3) Poll the activity log until every post.created entry arrives ---
	fmt.Println("Waiting for activity entries...")
	var latencies []float64
	deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)
	for len(pending) > 0 && time.Now().Before(deadline) {
		var events []models.Event
		path := "/api/activity?limit=" + strconv.Itoa(min(500, 2*P+10))
		if _, err := client.Do(ctx, http.MethodGet, path, adminToken, nil, &events); err != nil {
			fmt.Printf("activity error: %v\n", err)
			time.Sleep(200 * time.Millisecond)
			continue
		}
		now := time.Now()
		for _, e := range events {
			if e.Type != models.EventPostCreated {
				continue
			}
			if created, ok := pending[e.PostID]; ok {
				latencies = append(latencies, now.Sub(created).Seconds()*1000)
				delete(pending, e.PostID)
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	// --- 4) Report ---
	if len(latencies) == 0 {
		fmt.Println("No activity entries observed.")
		return
	}
	summary := stats.Summarize(latencies, 1.0)
	fmt.Printf("Activity delivery (ms): %s missing=%d\n", summary, len(pending))
	if err := stats.WriteCSV("e2e_latencies.csv", latencies); err != nil {
		fmt.Printf("Failed to write CSV: %v\n", err)
		return
	}
	fmt.Println("Saved e2e_latencies.csv")
}
