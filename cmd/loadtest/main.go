package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

type evaluatePayload struct {
	Tree        json.RawMessage `json:"tree"`
	InputValues map[string]any  `json:"input_values"`
}

type result struct {
	latency time.Duration
	status  int
	err     error
}

// triageTree is a small spo2/hr triage tree; every request walks three
// nodes, which is representative of one branch decision plus a terminal.
const triageTree = `{
	"id": "loadtest-triage",
	"version": "1.0.0",
	"name": "Loadtest Triage",
	"root_id": "spo2_check",
	"nodes": {
		"spo2_check": {"kind": "condition", "label": "SpO2 below 92?", "condition": {"variable": "spo2", "operator": "<", "threshold": 92}, "children": ["urgent_care", "hr_check"]},
		"hr_check": {"kind": "condition", "label": "HR above 100?", "condition": {"variable": "hr", "operator": ">", "threshold": 100}, "children": ["tachy", "routine"]},
		"urgent_care": {"kind": "action", "label": "Urgent", "action": {"recommendation": "urgent care", "urgency_level": "urgent"}},
		"tachy": {"kind": "action", "label": "Tachycardic", "action": {"recommendation": "tachycardic workup", "urgency_level": "urgent"}},
		"routine": {"kind": "action", "label": "Routine", "action": {"recommendation": "routine follow-up", "urgency_level": "routine"}}
	},
	"variables": [
		{"name": "spo2", "type": "numeric", "units": "%"},
		{"name": "hr", "type": "numeric", "units": "bpm"}
	]
}`

func main() {
	url := flag.String("url", "http://localhost:8080/v1/trees/evaluate", "evaluate endpoint URL")
	rps := flag.Int("rps", 50, "target requests per second")
	duration := flag.Duration("duration", 60*time.Second, "test duration")
	workers := flag.Int("workers", 50, "number of concurrent workers")
	timeout := flag.Duration("timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	if *rps <= 0 || *duration <= 0 || *workers <= 0 {
		fmt.Fprintln(os.Stderr, "rps, duration and workers must be > 0")
		os.Exit(2)
	}

	payload := evaluatePayload{
		Tree:        json.RawMessage(triageTree),
		InputValues: map[string]any{"spo2": 95, "hr": 110},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal payload: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: *timeout}
	jobs := make(chan struct{}, *workers)

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make([]result, 0, *rps*int(duration.Seconds())+1)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				start := time.Now()
				req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader(body))
				if err != nil {
					mu.Lock()
					results = append(results, result{latency: time.Since(start), err: err})
					mu.Unlock()
					continue
				}
				req.Header.Set("Content-Type", "application/json")

				resp, err := client.Do(req)
				lat := time.Since(start)
				if err != nil {
					mu.Lock()
					results = append(results, result{latency: lat, err: err})
					mu.Unlock()
					continue
				}

				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				mu.Lock()
				results = append(results, result{latency: lat, status: resp.StatusCode})
				mu.Unlock()
			}
		}()
	}

	interval := time.Second / time.Duration(*rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.Now().Add(*duration)

	for now := range ticker.C {
		if now.After(deadline) {
			break
		}
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()

	latencies := make([]float64, 0, len(results))
	success2xx := 0
	non2xx := 0
	errs := 0

	for _, r := range results {
		latencies = append(latencies, float64(r.latency.Microseconds())/1000.0)
		if r.err != nil {
			errs++
			continue
		}
		if r.status >= 200 && r.status < 300 {
			success2xx++
		} else {
			non2xx++
		}
	}

	if len(latencies) == 0 {
		fmt.Fprintln(os.Stderr, "no requests executed")
		os.Exit(1)
	}

	avg, _ := stats.Mean(latencies)
	p50, _ := stats.Percentile(latencies, 50)
	p90, _ := stats.Percentile(latencies, 90)
	p99, _ := stats.Percentile(latencies, 99)
	achievedRPS := float64(len(latencies)) / duration.Seconds()

	fmt.Printf("Load test finished\n")
	fmt.Printf("- target_rps: %d\n", *rps)
	fmt.Printf("- achieved_rps: %.2f\n", achievedRPS)
	fmt.Printf("- duration: %s\n", duration.String())
	fmt.Printf("- requests: %d\n", len(latencies))
	fmt.Printf("- 2xx: %d\n", success2xx)
	fmt.Printf("- non_2xx: %d\n", non2xx)
	fmt.Printf("- errors: %d\n", errs)
	fmt.Printf("- avg_ms: %.3f\n", avg)
	fmt.Printf("- p50_ms: %.3f\n", p50)
	fmt.Printf("- p90_ms: %.3f\n", p90)
	fmt.Printf("- p99_ms: %.3f\n", p99)

	minRPS := float64(*rps) * 0.98
	if achievedRPS >= minRPS && p90 < 30.0 && errs == 0 && non2xx == 0 {
		fmt.Println("PASS: meets target RPS and P90 < 30ms")
		return
	}

	fmt.Println("FAIL: does not meet target (or has request errors)")
	os.Exit(1)
}
