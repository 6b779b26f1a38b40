package parse

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProgressInterval is how often the engine forwards the shared
// progress counter to the progress callback.
const DefaultProgressInterval = 100 * time.Millisecond

// maxReportedSkips caps how many malformed line numbers are retained for
// diagnostics; the skip count itself is always exact.
const maxReportedSkips = 100

// ProgressFunc receives the number of records processed so far and the
// total expected. Calls are best-effort and must not block.
type ProgressFunc func(processed, total int)

// Result is the output of one engine run.
type Result struct {
	// Records holds parsed records in original line order.
	Records []Record
	// Skipped counts lines dropped because their field count did not
	// match the header count.
	Skipped int
	// SkippedLines holds the 1-based data line numbers of the first
	// dropped lines, capped at maxReportedSkips.
	SkippedLines []int
}

// Engine parses chunks of data lines across a bounded worker pool.
//
// Workers share nothing but a monotonically increasing progress counter.
// Each chunk produces (chunkIndex, records); the engine reassembles the
// outputs in index order, so the result order matches the input line
// order regardless of worker completion order.
type Engine struct {
	// Workers bounds the pool; 0 means one per CPU.
	Workers int
	// OnProgress, if set, is invoked roughly every Interval with the live
	// counter, and once more after all chunks complete.
	OnProgress ProgressFunc
	// Interval overrides DefaultProgressInterval when positive.
	Interval time.Duration
}

// Parse parses lines against headers and returns records in input order.
//
// Malformed lines are skipped and counted, never fatal. The returned
// error is only ever a context error from early cancellation.
func (e *Engine) Parse(ctx context.Context, lines []string, headers []string) (*Result, error) {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	chunks := SplitChunks(lines, workers)
	total := len(lines)

	type chunkOut struct {
		records      []Record
		skipped      int
		skippedLines []int
	}
	outs := make([]chunkOut, len(chunks))

	var processed atomic.Int64

	// The ticker goroutine owns all progress forwarding so that parse
	// workers never block on a slow consumer.
	var tickerWG sync.WaitGroup
	tickerDone := make(chan struct{})
	if e.OnProgress != nil {
		interval := e.Interval
		if interval <= 0 {
			interval = DefaultProgressInterval
		}
		tickerWG.Add(1)
		go func() {
			defer tickerWG.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-tickerDone:
					return
				case <-ticker.C:
					e.OnProgress(int(processed.Load()), total)
				}
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	lineOffset := 0
	for i, chunk := range chunks {
		i, chunk, offset := i, chunk, lineOffset
		lineOffset += len(chunk)

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			records := make([]Record, 0, len(chunk))
			var skipped int
			var skippedLines []int
			for j, line := range chunk {
				rec, ok := ParseRecord(line, headers)
				if ok {
					records = append(records, rec)
				} else {
					skipped++
					if len(skippedLines) < maxReportedSkips {
						skippedLines = append(skippedLines, offset+j+1)
					}
				}
				processed.Add(1)
			}
			outs[i] = chunkOut{records: records, skipped: skipped, skippedLines: skippedLines}
			return nil
		})
	}

	err := g.Wait()

	close(tickerDone)
	tickerWG.Wait()
	if e.OnProgress != nil {
		e.OnProgress(int(processed.Load()), total)
	}

	if err != nil {
		return nil, err
	}

	// Reassemble in chunk index order.
	result := &Result{Records: make([]Record, 0, total)}
	for _, out := range outs {
		result.Records = append(result.Records, out.records...)
		result.Skipped += out.skipped
		if len(result.SkippedLines) < maxReportedSkips {
			result.SkippedLines = append(result.SkippedLines, out.skippedLines...)
		}
	}
	if len(result.SkippedLines) > maxReportedSkips {
		result.SkippedLines = result.SkippedLines[:maxReportedSkips]
	}

	return result, nil
}
