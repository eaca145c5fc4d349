package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aqgenproject/aqgen/internal/aqgen/idgen"
	"github.com/aqgenproject/aqgen/internal/aqgen/metrics"
	"github.com/aqgenproject/aqgen/internal/aqgen/model"
	"github.com/aqgenproject/aqgen/internal/aqgen/synth"
)

// State is the lifecycle of a worker.  Transitions only ever move forward:
// Running -> Draining -> Stopped.
type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Sink persists a batch of records and reports how many were actually
// persisted.  Implementations must never propagate store errors: rows that
// cannot be persisted are logged and dropped by the sink itself.
type Sink interface {
	Store(ctx context.Context, batch []*model.Record) int
}

// Worker generates records for one assigned sub-range, accumulating them
// into bounded batches and handing each batch to its sink.  Exactly one
// goroutine runs Run; Stats and State may be read concurrently.
type Worker struct {
	assignment *model.WorkerAssignment
	interval   time.Duration
	batchSize  int
	allocator  idgen.Allocator
	sink       Sink
	metrics    *metrics.Metrics
	stats      *model.WorkerStats
	state      atomic.Int32
	log        *logrus.Entry

	buffer      []*model.Record
	lastFlushed time.Time
	hasFlushed  bool
}

func New(assignment *model.WorkerAssignment, interval time.Duration, batchSize int, allocator idgen.Allocator, sink Sink, m *metrics.Metrics) *Worker {
	return &Worker{
		assignment: assignment,
		interval:   interval,
		batchSize:  batchSize,
		allocator:  allocator,
		sink:       sink,
		metrics:    m,
		stats:      &model.WorkerStats{},
		log:        logrus.WithField("worker", assignment.WorkerId),
	}
}

func (w *Worker) Id() int {
	return w.assignment.WorkerId
}

func (w *Worker) Stats() *model.WorkerStats {
	return w.stats
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run walks the worker's sub-range chronologically, appending one record per
// device at each time point and flushing whenever the buffer reaches the
// batch size.  The cancellation context is polled once per time point; on
// cancellation the worker drains: it flushes what it has, audits and stops.
// Store operations run on a detached context so a flush in progress is not
// interrupted mid-transaction.
func (w *Worker) Run(ctx context.Context) error {
	defer w.setState(Stopped)
	storeCtx := context.WithoutCancel(ctx)
	w.buffer = make([]*model.Record, 0, w.batchSize)

	for i := int64(0); i < w.assignment.Points; i++ {
		if ctx.Err() != nil {
			w.log.Info("Shutdown requested, draining")
			break
		}
		ts := w.assignment.SubRange.Start.Add(time.Duration(i) * w.interval)
		for _, device := range w.assignment.Devices {
			record, err := synth.New(w.allocator, device, ts)
			if err != nil {
				// Persist whatever is buffered before unwinding so already
				// generated records are not lost with the partition.
				w.setState(Draining)
				w.flush(storeCtx)
				w.audit()
				return errors.Wrapf(err, "worker %d: synthesizing record for device %s at %s", w.assignment.WorkerId, device, ts)
			}
			w.metrics.RecordRecordsGenerated(1)
			w.buffer = append(w.buffer, record)
			if len(w.buffer) >= w.batchSize {
				w.flush(storeCtx)
			}
		}
	}

	w.setState(Draining)
	w.flush(storeCtx)
	w.audit()
	return nil
}

// flush validates ordering and hands the buffered records to the sink.
func (w *Worker) flush(ctx context.Context) {
	if len(w.buffer) == 0 {
		return
	}
	w.validateOrder(w.buffer)

	inserted := w.sink.Store(ctx, w.buffer)
	w.stats.AddInserted(inserted)
	last := w.buffer[len(w.buffer)-1].MonitorTime
	w.stats.SetLastTimestamp(last)
	w.lastFlushed = last
	w.hasFlushed = true

	w.log.WithFields(logrus.Fields{
		"batchSize": len(w.buffer),
		"inserted":  inserted,
		"lastTime":  last,
	}).Debug("Flushed batch")
	w.buffer = w.buffer[:0]
}
