package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"mercator-hq/courier/pkg/cli"
)

var benchFlags struct {
	target      string
	apiKey      string
	requests    int
	concurrency int
	model       string
	prompt      string
	maxTokens   int64
	stream      bool
	timeout     time.Duration
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load test a running proxy",
	Long: `Send a fixed number of Messages API requests through a running proxy with
the official Anthropic client and report throughput and latency percentiles.

Examples:
  # 100 requests, 4 at a time
  courier bench --requests 100 --concurrency 4

  # Streaming requests against a remote proxy
  courier bench --target http://proxy.internal:8083 --stream`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVar(&benchFlags.target, "target", "http://localhost:8083", "proxy URL")
	benchCmd.Flags().StringVar(&benchFlags.apiKey, "api-key", "bench", "client API key")
	benchCmd.Flags().IntVarP(&benchFlags.requests, "requests", "n", 50, "total requests")
	benchCmd.Flags().IntVar(&benchFlags.concurrency, "concurrency", 4, "concurrent clients")
	benchCmd.Flags().StringVar(&benchFlags.model, "model", "claude-3-5-haiku-20241022", "Claude model name to request")
	benchCmd.Flags().StringVar(&benchFlags.prompt, "prompt", "Write one sentence about the sea.", "user prompt")
	benchCmd.Flags().Int64Var(&benchFlags.maxTokens, "max-tokens", 64, "max_tokens per request")
	benchCmd.Flags().BoolVar(&benchFlags.stream, "stream", false, "use streaming requests")
	benchCmd.Flags().DurationVar(&benchFlags.timeout, "timeout", 60*time.Second, "per-request timeout")
}

// benchOptions configures runLoad.
type benchOptions struct {
	Target      string
	APIKey      string
	Requests    int
	Concurrency int
	Model       string
	Prompt      string
	MaxTokens   int64
	Stream      bool
	Timeout     time.Duration
}

type benchResults struct {
	requests     int
	succeeded    int
	failed       int
	outputTokens int64
	duration     time.Duration
	latencies    []time.Duration
}

func runBench(cmd *cobra.Command, args []string) error {
	f, err := formatter()
	if err != nil {
		return err
	}
	if benchFlags.requests <= 0 || benchFlags.concurrency <= 0 {
		return cli.NewConfigError("bench", "--requests and --concurrency must be positive")
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	progress := cli.NewProgressReporter(cmd.ErrOrStderr())
	results := runLoad(ctx, benchOptions{
		Target:      benchFlags.target,
		APIKey:      benchFlags.apiKey,
		Requests:    benchFlags.requests,
		Concurrency: benchFlags.concurrency,
		Model:       benchFlags.model,
		Prompt:      benchFlags.prompt,
		MaxTokens:   benchFlags.maxTokens,
		Stream:      benchFlags.stream,
		Timeout:     benchFlags.timeout,
	}, progress)

	if err := f.FormatTo(cmd.OutOrStdout(), results.fields()); err != nil {
		return err
	}
	if results.succeeded == 0 {
		return cli.NewCommandError("bench", errors.New("every request failed"))
	}
	return nil
}

// runLoad sends opts.Requests requests with opts.Concurrency workers.
func runLoad(ctx context.Context, opts benchOptions, progress cli.ProgressReporter) *benchResults {
	client := anthropic.NewClient(
		option.WithBaseURL(opts.Target),
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		MaxTokens: opts.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(opts.Prompt)),
		},
	}

	results := &benchResults{
		requests:  opts.Requests,
		latencies: make([]time.Duration, 0, opts.Requests),
	}
	var mu sync.Mutex

	jobs := make(chan struct{})
	var wg sync.WaitGroup

	progress.Start(int64(opts.Requests))
	start := time.Now()

	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
				reqStart := time.Now()
				tokens, err := sendOne(reqCtx, client, params, opts.Stream)
				latency := time.Since(reqStart)
				cancel()

				mu.Lock()
				if err != nil {
					results.failed++
				} else {
					results.succeeded++
					results.outputTokens += tokens
					results.latencies = append(results.latencies, latency)
				}
				mu.Unlock()
				progress.Record(err)
			}
		}()
	}

feed:
	for i := 0; i < opts.Requests; i++ {
		select {
		case jobs <- struct{}{}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	progress.Finish()
	results.duration = time.Since(start)
	return results
}

func sendOne(ctx context.Context, client anthropic.Client, params anthropic.MessageNewParams, stream bool) (int64, error) {
	if !stream {
		msg, err := client.Messages.New(ctx, params)
		if err != nil {
			return 0, err
		}
		return msg.Usage.OutputTokens, nil
	}

	s := client.Messages.NewStreaming(ctx, params)
	defer s.Close()

	msg := anthropic.Message{}
	for s.Next() {
		if err := msg.Accumulate(s.Current()); err != nil {
			return 0, err
		}
	}
	if err := s.Err(); err != nil {
		return 0, err
	}
	if msg.StopReason == "" {
		return 0, fmt.Errorf("stream ended without message_stop")
	}
	return msg.Usage.OutputTokens, nil
}

// latencySummary holds latency statistics over successful requests.
type latencySummary struct {
	min, mean, p50, p95, p99, max time.Duration
}

func summarizeLatencies(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, lat := range sorted {
		sum += lat
	}

	return latencySummary{
		min:  sorted[0],
		mean: sum / time.Duration(len(sorted)),
		p50:  percentile(sorted, 0.50),
		p95:  percentile(sorted, 0.95),
		p99:  percentile(sorted, 0.99),
		max:  sorted[len(sorted)-1],
	}
}

// percentile uses the nearest-rank method on sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	rank := int(p*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func (r *benchResults) fields() cli.Fields {
	throughput := 0.0
	if secs := r.duration.Seconds(); secs > 0 {
		throughput = float64(r.succeeded) / secs
	}
	lat := summarizeLatencies(r.latencies)
	ms := func(d time.Duration) string { return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000) }

	return cli.Fields{
		{Key: "requests", Value: r.requests},
		{Key: "succeeded", Value: r.succeeded},
		{Key: "failed", Value: r.failed},
		{Key: "duration", Value: r.duration.Round(time.Millisecond).String()},
		{Key: "throughput", Value: fmt.Sprintf("%.2f req/s", throughput)},
		{Key: "output_tokens", Value: r.outputTokens},
		{Key: "latency_min", Value: ms(lat.min)},
		{Key: "latency_mean", Value: ms(lat.mean)},
		{Key: "latency_p50", Value: ms(lat.p50)},
		{Key: "latency_p95", Value: ms(lat.p95)},
		{Key: "latency_p99", Value: ms(lat.p99)},
		{Key: "latency_max", Value: ms(lat.max)},
	}
}
