package model

import (
	"sync"
	"time"
)

// TimeRange is an inclusive range of timestamps.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// WorkerAssignment describes the contiguous sub-range of time points a single
// worker is responsible for.  Assignments are created once by the partitioner
// and are read-only afterwards.  Points == 0 is a valid empty assignment.
type WorkerAssignment struct {
	WorkerId int
	SubRange TimeRange
	Points   int64
	Devices  []string
}

// Record is one synthesized air-quality measurement for a single device at a
// single time point.
type Record struct {
	Id          string
	DeviceId    string
	MonitorTime time.Time
	Pm25        float64
	Pm10        float64
	Co          float64
	No2         float64
	So2         float64
	O3          float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkerStats holds the counters owned by a single worker.  They are mutated
// under the worker's private lock and read by the auditor and the final
// report once every worker has joined.
type WorkerStats struct {
	mu            sync.Mutex
	insertedCount int64
	lastTimestamp time.Time
}

func (s *WorkerStats) AddInserted(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertedCount += int64(n)
}

func (s *WorkerStats) SetLastTimestamp(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTimestamp = t
}

func (s *WorkerStats) InsertedCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertedCount
}

func (s *WorkerStats) LastTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTimestamp
}
