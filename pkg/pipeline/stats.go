package pipeline

import "sync"

// Stats aggregates per-file outcomes across workers. All four counters are
// guarded by one mutex; each processed file increments exactly one of the
// outcome counters.
type Stats struct {
	mu                sync.Mutex
	totalFiles        int
	successfulUploads int
	failedUploads     int
	skippedFiles      int
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) SetTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFiles = n
}

func (s *Stats) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successfulUploads++
}

func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedUploads++
}

func (s *Stats) RecordSkip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skippedFiles++
}

type StatsSnapshot struct {
	TotalFiles        int
	SuccessfulUploads int
	FailedUploads     int
	SkippedFiles      int
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		TotalFiles:        s.totalFiles,
		SuccessfulUploads: s.successfulUploads,
		FailedUploads:     s.failedUploads,
		SkippedFiles:      s.skippedFiles,
	}
}
