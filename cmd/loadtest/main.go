// Command loadtest drives a running query server with a fixed set of queries
// and reports throughput, latency percentiles and response statuses.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher"
)

var defaultQueries = []string{
	"report", "budget", "notes", "roadmap", "finance",
	"engineering", ".docx", ".pdf", "q3", "policy", "",
}

type options struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	post        bool
	queries     []string
}

// outcome is one request as seen by the client.
type outcome struct {
	latency time.Duration
	code    int
	status  string
	matches int
	err     error
}

type recorder struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (r *recorder) add(o outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the query server")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	post := flag.Bool("post", false, "send POST / with a JSON body instead of GET /api/v1/search")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in set)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = readQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
	}

	opts := options{
		baseURL:     strings.TrimRight(*baseURL, "/"),
		concurrency: *concurrency,
		duration:    *duration,
		post:        *post,
		queries:     queries,
	}
	fmt.Printf("target=%s concurrency=%d duration=%s queries=%d post=%t\n\n",
		opts.baseURL, opts.concurrency, opts.duration, len(opts.queries), opts.post)

	rec := run(context.Background(), opts)
	if !report(os.Stdout, rec.outcomes, opts.duration) {
		fmt.Println("no requests completed; is the query server running?")
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		queries = append(queries, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return queries, nil
}

func run(ctx context.Context, opts options) *recorder {
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	rec := &recorder{}
	g, ctx := errgroup.WithContext(ctx)
	for w := range opts.concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				o := query(ctx, client, opts, opts.queries[i%len(opts.queries)])
				if ctx.Err() != nil && o.err != nil {
					return nil
				}
				rec.add(o)
			}
			return nil
		})
	}
	g.Wait()
	return rec
}

func query(ctx context.Context, client *http.Client, opts options, q string) outcome {
	var req *http.Request
	var err error
	if opts.post {
		body, _ := json.Marshal(map[string]string{"query": q})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, opts.baseURL+"/", bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet,
			opts.baseURL+"/api/v1/search?query="+url.QueryEscape(q), nil)
	}
	if err != nil {
		return outcome{err: err}
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return outcome{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	o := outcome{code: resp.StatusCode}
	var result searcher.QueryResult
	if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&result) == nil {
		o.status = result.Status
		o.matches = result.MatchingDocuments
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	o.latency = time.Since(start)
	return o
}

// report prints the summary and reports whether any request completed.
func report(w io.Writer, outcomes []outcome, elapsed time.Duration) bool {
	done := lo.Filter(outcomes, func(o outcome, _ int) bool { return o.err == nil })
	failed := len(outcomes) - len(done)

	fmt.Fprintf(w, "requests:   %d\n", len(outcomes))
	fmt.Fprintf(w, "transport errors: %d\n", failed)
	if len(outcomes) > 0 && elapsed > 0 {
		fmt.Fprintf(w, "req/s:      %.1f\n", float64(len(outcomes))/elapsed.Seconds())
	}
	if len(done) == 0 {
		return false
	}

	latencies := lo.Map(done, func(o outcome, _ int) time.Duration { return o.latency })
	slices.Sort(latencies)
	fmt.Fprintf(w, "\nlatency min=%s p50=%s p90=%s p99=%s max=%s\n",
		latencies[0],
		percentile(latencies, 50),
		percentile(latencies, 90),
		percentile(latencies, 99),
		latencies[len(latencies)-1],
	)

	codes := lo.CountValuesBy(done, func(o outcome) int { return o.code })
	fmt.Fprintln(w, "\nhttp status:")
	for _, code := range slices.Sorted(maps.Keys(codes)) {
		fmt.Fprintf(w, "  %d: %d\n", code, codes[code])
	}

	ok := lo.Filter(done, func(o outcome, _ int) bool { return o.status != "" })
	statuses := lo.CountValuesBy(ok, func(o outcome) string { return o.status })
	zero := lo.CountBy(ok, func(o outcome) bool { return o.matches == 0 })
	fmt.Fprintln(w, "\nresult status:")
	for _, s := range slices.Sorted(maps.Keys(statuses)) {
		fmt.Fprintf(w, "  %s: %d\n", s, statuses[s])
	}
	fmt.Fprintf(w, "  zero matches: %d\n", zero)
	return true
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p*len(sorted)+99)/100 - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
