package parse

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEngine_OrderMatchesInput(t *testing.T) {
	headers := []string{"AN", "SEQ"}

	const total = 25_000
	lines := make([]string, total)
	for i := range lines {
		lines[i] = fmt.Sprintf("2020,%d", i)
	}

	e := &Engine{Workers: 4}
	res, err := e.Parse(context.Background(), lines, headers)
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if len(res.Records) != total {
		t.Fatalf("got %d records, want %d", len(res.Records), total)
	}
	for i, rec := range res.Records {
		if rec["SEQ"] != fmt.Sprintf("%d", i) {
			t.Fatalf("record %d out of order: SEQ=%s", i, rec["SEQ"])
		}
	}
}

func TestEngine_SkipsMalformedLines(t *testing.T) {
	headers := []string{"AN", "MARQ_VEH", "MUNCP"}
	lines := []string{
		"2020,HONDA,Laval",
		"2020,HONDA",            // too few fields
		"2020,HONDA,Laval,plus", // too many fields
		"2020,TOYOTA,Longueuil",
	}

	e := &Engine{Workers: 2}
	res, err := e.Parse(context.Background(), lines, headers)
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if len(res.Records) != 2 {
		t.Errorf("got %d records, want 2", len(res.Records))
	}
	if res.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Skipped)
	}
	if len(res.SkippedLines) != 2 || res.SkippedLines[0] != 2 || res.SkippedLines[1] != 3 {
		t.Errorf("SkippedLines = %v, want [2 3]", res.SkippedLines)
	}
}

func TestEngine_ProgressReachesTotal(t *testing.T) {
	headers := []string{"AN"}
	lines := make([]string, 5_000)
	for i := range lines {
		lines[i] = "2020"
	}

	var mu sync.Mutex
	var last, calls int
	e := &Engine{
		Workers:  2,
		Interval: time.Millisecond,
		OnProgress: func(processed, total int) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if processed < last {
				t.Errorf("progress went backwards: %d after %d", processed, last)
			}
			last = processed
			if total != len(lines) {
				t.Errorf("total = %d, want %d", total, len(lines))
			}
		},
	}

	if _, err := e.Parse(context.Background(), lines, headers); err != nil {
		t.Fatalf("Parse error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("progress callback never invoked")
	}
	// The final synchronous report runs after all chunks complete.
	if last != len(lines) {
		t.Errorf("final progress = %d, want %d", last, len(lines))
	}
}

func TestEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lines := make([]string, 30_000)
	for i := range lines {
		lines[i] = "2020"
	}

	e := &Engine{Workers: 2}
	if _, err := e.Parse(ctx, lines, []string{"AN"}); err == nil {
		t.Error("Parse with cancelled context succeeded, want error")
	}
}
