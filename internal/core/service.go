package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadregistry/importer/internal/database"
	"github.com/roadregistry/importer/internal/dict"
)

// DefaultImportTimeout is the maximum duration for one import.
var DefaultImportTimeout = 30 * time.Minute

// Service provides the core business logic for extract imports.
type Service struct {
	db       *database.DB
	dicts    *dict.Store
	importer *BatchImporter
	limiter  *ImportLimiter
	workers  int
	timeout  time.Duration

	mu      sync.RWMutex
	imports map[string]*activeImport
}

type activeImport struct {
	ID           string
	TypeKey      string
	FileName     string
	Year         int
	SkipIndexing bool
	Decider      ReplaceDecider
	Cancel       context.CancelFunc
	Result       *ImportResult
	Done         chan struct{}

	// mu guards Progress, Listeners, and finished. The import goroutine
	// and the parse ticker write the snapshot while HTTP handlers read
	// it, so every access goes through update or snapshot.
	mu        sync.Mutex
	Progress  ImportProgress
	Listeners []chan ImportProgress
	finished  bool
}

// update applies fn to the progress snapshot and broadcasts the result
// to all listeners. Slow listeners are skipped rather than blocked on.
func (imp *activeImport) update(fn func(*ImportProgress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	fn(&imp.Progress)
	for _, ch := range imp.Listeners {
		select {
		case ch <- imp.Progress:
		default:
		}
	}
}

// snapshot returns a copy of the current progress.
func (imp *activeImport) snapshot() ImportProgress {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.Progress
}

// ServiceOptions tunes a Service; zero values pick defaults.
type ServiceOptions struct {
	// Workers bounds the parse pool; 0 means one per CPU.
	Workers int
	// BatchSize is records per write transaction.
	BatchSize int
	// MaxConcurrent limits simultaneous imports.
	MaxConcurrent int
	// MaxWaitTime is how long a request waits for an import slot.
	MaxWaitTime time.Duration
	// Timeout bounds one whole import.
	Timeout time.Duration
}

// NewService creates a Service over an open store.
func NewService(db *database.DB, dicts *dict.Store, opts ServiceOptions) *Service {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultImportTimeout
	}
	return &Service{
		db:       db,
		dicts:    dicts,
		importer: NewBatchImporter(db, dicts, opts.BatchSize),
		limiter:  NewImportLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		workers:  opts.Workers,
		timeout:  timeout,
		imports:  make(map[string]*activeImport),
	}
}

// Limiter exposes the concurrency limiter for shutdown draining.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// ImportRequest describes one extract to import.
type ImportRequest struct {
	// TypeKey selects the registered record type ("vehicles", "licenses").
	TypeKey string
	// FileName is recorded in the import log.
	FileName string
	// Year the extract covers; every AN column must match it.
	Year int
	// Replace answers the duplicate-year question up front. When the
	// year already has rows and Replace is false, the import cancels
	// before any write.
	Replace bool
	// SkipIndexing defers index and dictionary refresh, for callers
	// importing several files back-to-back.
	SkipIndexing bool
	// Data is the raw file content, encoding not yet known.
	Data []byte
}

// StartImport begins an asynchronous import and returns its id
// immediately. Use SubscribeProgress for updates and Result for the
// final accounting.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	def, ok := Lookup(req.TypeKey)
	if !ok {
		return "", fmt.Errorf("unknown record type: %s", req.TypeKey)
	}
	if req.Year < 1900 || req.Year > 2200 {
		return "", fmt.Errorf("implausible year %d", req.Year)
	}
	if len(req.Data) == 0 {
		return "", ErrEmptyFile
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	importID := uuid.New().String()
	impCtx, cancel := context.WithTimeout(context.Background(), s.timeout)

	imp := &activeImport{
		ID:           importID,
		TypeKey:      req.TypeKey,
		FileName:     req.FileName,
		Year:         req.Year,
		SkipIndexing: req.SkipIndexing,
		Decider:      StaticDecider(req.Replace),
		Cancel:       cancel,
		Progress: ImportProgress{
			ImportID:   importID,
			RecordType: req.TypeKey,
			FileName:   req.FileName,
			Year:       req.Year,
			Phase:      PhaseIdle,
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan ImportProgress, 0),
	}

	s.mu.Lock()
	s.imports[importID] = imp
	s.mu.Unlock()

	go s.processImport(impCtx, imp, def, req.Data)

	return importID, nil
}

// SubscribeProgress returns a channel that receives progress updates.
// The channel is closed when the import completes.
func (s *Service) SubscribeProgress(importID string) (<-chan ImportProgress, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrImportNotFound
	}

	ch := make(chan ImportProgress, 10)

	imp.mu.Lock()
	// Send current progress immediately
	ch <- imp.Progress
	if imp.finished {
		// Late subscriber: deliver the final snapshot and close.
		close(ch)
	} else {
		imp.Listeners = append(imp.Listeners, ch)
	}
	imp.mu.Unlock()

	return ch, nil
}

// CancelImport cancels an in-progress import.
func (s *Service) CancelImport(importID string) error {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return ErrImportNotFound
	}

	imp.Cancel()
	return nil
}

// Result returns the final accounting for an import, blocking until it
// completes if still in progress.
func (s *Service) Result(importID string) (*ImportResult, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrImportNotFound
	}

	<-imp.Done

	return imp.Result, nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(importID string) (ImportProgress, error) {
	s.mu.RLock()
	imp, ok := s.imports[importID]
	s.mu.RUnlock()

	if !ok {
		return ImportProgress{}, ErrImportNotFound
	}

	return imp.snapshot(), nil
}

// ImportLog returns the most recent import log entries, newest first.
func (s *Service) ImportLog(ctx context.Context, limit int) ([]database.ImportLogEntry, error) {
	return s.db.ImportLog(ctx, limit)
}

func (imp *activeImport) closeListeners() {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	for _, ch := range imp.Listeners {
		close(ch)
	}
	imp.Listeners = nil
	imp.finished = true
}

// cleanup drops the import record after a grace period so late result
// requests still succeed.
func (s *Service) cleanup(importID string, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.imports, importID)
		s.mu.Unlock()
	})
}
